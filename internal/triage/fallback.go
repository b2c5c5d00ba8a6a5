package triage

import (
	"fmt"
	"strings"

	"github.com/linnemanlabs/argus/internal/alert"
)

// fallbackRule pairs a keyword set with a preset finding. The rules are
// evaluated in order, first match wins; each entry is independently
// testable.
type fallbackRule struct {
	technique       string
	keywords        []string
	riskScore       float64
	recommendations []string
}

func (r fallbackRule) matches(payload string) bool {
	for _, kw := range r.keywords {
		if strings.Contains(payload, kw) {
			return true
		}
	}
	return false
}

// fallbackRules is the ladder used when the remote capability is
// unavailable. Ordering matters: SQL injection markers are checked before
// XSS, then command injection, then command-and-control.
var fallbackRules = []fallbackRule{
	{
		technique:       "SQL Injection",
		keywords:        []string{"union", "select", "drop", "insert", "' or", "-- "},
		riskScore:       8.5,
		recommendations: []string{"Use parameterized queries", "Deploy a WAF", "Validate all input"},
	},
	{
		technique:       "Cross-Site Scripting",
		keywords:        []string{"<script", "javascript:", "onerror=", "alert("},
		riskScore:       7.5,
		recommendations: []string{"Encode output", "Enforce a CSP", "Filter input"},
	},
	{
		technique:       "Command Injection",
		keywords:        []string{"wget", "curl", "bash", "| ", "; ", "&& "},
		riskScore:       9.0,
		recommendations: []string{"Disable dangerous functions", "Allowlist validation", "Least-privilege execution"},
	},
	{
		technique:       "C2 Communication",
		keywords:        []string{"http://", "https://", "powershell", "cmd.exe"},
		riskScore:       8.0,
		recommendations: []string{"Block suspicious IPs", "Monitor traffic", "Deploy endpoint detection"},
	},
}

// ruleBasedFinding is the deterministic degraded path. It never fails and
// always derives the threat level from the fixed score thresholds.
func ruleBasedFinding(al *alert.Alert, reason string) Finding {
	payload := strings.ToLower(al.Payload)

	technique := "unknown"
	riskScore := 5.0
	var recommendations []string

	for _, r := range fallbackRules {
		if r.matches(payload) {
			technique = r.technique
			riskScore = r.riskScore
			recommendations = r.recommendations
			break
		}
	}

	return Finding{
		AttackTechnique: technique,
		RiskScore:       riskScore,
		ThreatLevel:     ThreatLevelForScore(riskScore),
		Recommendations: recommendations,
		Analysis:        fmt.Sprintf("Rule-based analysis identified %s with risk score %.1f", technique, riskScore),
		Origin:          OriginRule,
		DegradedReason:  reason,
	}
}
