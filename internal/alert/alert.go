// Package alert defines the inbound security-alert model shared by the
// triage pipeline and the HTTP API.
package alert

const (
	// DefaultIP is substituted for missing source/destination addresses.
	DefaultIP = "0.0.0.0"

	// DefaultProtocol is substituted when the submitter omits the protocol.
	DefaultProtocol = "HTTP"
)

// Alert is a single security-alert description submitted for triage.
// Payload is attacker-controlled and unbounded; consumers must truncate
// before embedding it anywhere size-sensitive. Immutable once received.
type Alert struct {
	AttackType     string            `json:"attack_type"`
	Payload        string            `json:"payload"`
	SourceIP       string            `json:"source_ip,omitempty"`
	DestIP         string            `json:"dest_ip,omitempty"`
	Protocol       string            `json:"protocol,omitempty"`
	AdditionalInfo map[string]string `json:"additional_info,omitempty"`
}

// Normalize returns a copy with defaults applied for optional fields.
// The receiver is not modified.
func (a Alert) Normalize() Alert {
	if a.SourceIP == "" {
		a.SourceIP = DefaultIP
	}
	if a.DestIP == "" {
		a.DestIP = DefaultIP
	}
	if a.Protocol == "" {
		a.Protocol = DefaultProtocol
	}
	return a
}

// RawLog returns the raw log excerpt carried in AdditionalInfo, if any.
// The router folds it into its scoring text alongside attack type and payload.
func (a Alert) RawLog() string {
	return a.AdditionalInfo["raw_log"]
}
