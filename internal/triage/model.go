package triage

import "time"

// Route identifies one of the fixed attack categories an alert can be
// dispatched to. The set is closed; the router never emits anything else.
type Route string

const (
	RouteWebAttack         Route = "web_attack"
	RouteVulnerability     Route = "vulnerability_attack"
	RouteIllegalConnection Route = "illegal_connection"
)

// Routes returns the category set in declaration order. Scoring ties and
// the all-zero case resolve to the earliest entry.
func Routes() []Route {
	return []Route{RouteWebAttack, RouteVulnerability, RouteIllegalConnection}
}

// DefaultRoute receives alerts whose route has no constructed engine.
const DefaultRoute = RouteWebAttack

// Threat level labels. The rule-derived path always emits one of these;
// the model-derived path passes the capability's label through unless
// normalization is enabled.
const (
	ThreatHigh   = "high"
	ThreatMedium = "medium"
	ThreatLow    = "low"
)

// ThreatLevelForScore maps a risk score to its threat label using the
// fixed thresholds: >=7 high, >=4 medium, else low.
func ThreatLevelForScore(score float64) string {
	switch {
	case score >= 7:
		return ThreatHigh
	case score >= 4:
		return ThreatMedium
	default:
		return ThreatLow
	}
}

// Origin tags how a finding was produced.
type Origin string

const (
	// OriginModel marks findings extracted from a remote-model response.
	OriginModel Origin = "model"

	// OriginRule marks degraded findings from the rule-based fallback or
	// the default-on-parse-failure path.
	OriginRule Origin = "rule"
)

// RoutingDecision is the router's verdict for one alert. Created once per
// request and never mutated.
type RoutingDecision struct {
	SelectedRoute Route   `json:"selected_route"`
	Confidence    float64 `json:"confidence"`
	ProcessingMS  int64   `json:"processing_time_ms"`
}

// Finding is one expert engine's verdict for one alert.
type Finding struct {
	AttackTechnique string   `json:"attack_technique"`
	RiskScore       float64  `json:"risk_score"`
	ThreatLevel     string   `json:"threat_level"`
	Recommendations []string `json:"recommendations"`
	Analysis        string   `json:"analysis"`
	Origin          Origin   `json:"origin"`
	DegradedReason  string   `json:"degraded_reason,omitempty"`
	ProcessingMS    int64    `json:"processing_time_ms"`
}

// Degraded reports whether the finding came from a fallback path rather
// than a successfully parsed model response.
func (f Finding) Degraded() bool { return f.Origin == OriginRule }

// Performance carries the per-stage timing breakdown of one analysis.
// Total is measured wall time; the sub-times are self-reported by the
// router and expert and nest inside it.
type Performance struct {
	TotalMS   int64 `json:"total_time_ms"`
	RoutingMS int64 `json:"routing_time_ms"`
	ExpertMS  int64 `json:"expert_time_ms"`
}

// Record is the complete, immutable outcome of one triage request: the
// unit of truth returned to callers and persisted to history.
type Record struct {
	Success     bool            `json:"success"`
	TaskID      string          `json:"task_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Routing     RoutingDecision `json:"routing"`
	Expert      Finding         `json:"expert_analysis"`
	Performance Performance     `json:"performance"`
}
