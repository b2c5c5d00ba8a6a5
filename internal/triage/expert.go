package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/argus/internal/alert"
	"github.com/linnemanlabs/argus/internal/telemetry"
	"github.com/linnemanlabs/go-core/log"
)

// promptTemplates holds one analysis prompt per category. Placeholders are
// filled in order: attack type, payload, source IP, destination IP.
var promptTemplates = map[Route]string{
	RouteWebAttack: `You are a senior web security analyst specializing in the OWASP Top 10 and web attack techniques.

## Alert
- Attack type: %s
- Payload: %s
- Source IP: %s
- Destination IP: %s

## Analysis steps
1. Identify the specific attack technique (SQL injection, XSS, CSRF, SSRF, file inclusion, directory traversal, ...) and map it to a MITRE ATT&CK technique where possible.
2. Score the risk from 0-10: 9-10 system takeover, mass data theft, or RCE; 6-8 partial data theft, auth bypass, or availability impact; 1-5 information disclosure or issues needing special conditions.
3. Give at least 3 defensive recommendations in priority order.

Respond with strict JSON only (no surrounding text):
{
    "attack_technique": "specific technique name (e.g. UNION-based SQL injection)",
    "risk_score": 8.5,
    "threat_level": "high",
    "recommendations": ["top priority", "second priority", "supplementary"],
    "analysis": "detailed analysis: mechanism, blast radius, attacker intent"
}`,

	RouteVulnerability: `You are a senior vulnerability-exploitation analyst familiar with the CVE database and common exploitation frameworks (Metasploit, Cobalt Strike).

## Alert
- Attack type: %s
- Payload: %s
- Source IP: %s
- Destination IP: %s

## Analysis steps
1. Identify the vulnerability class exploited by the payload (buffer overflow, command injection, deserialization, file upload, ...) and associate a known CVE if possible.
2. Analyze the exploitation chain and attacker intent (privilege escalation, persistence, lateral movement).
3. Score the risk from 0-10: 9-10 unauthenticated RCE or root/SYSTEM escalation; 6-8 authenticated exploitation, local escalation, or information disclosure; 1-5 denial of service or exploits with heavy preconditions.
4. Give at least 3 remediation and hardening recommendations in priority order.

Respond with strict JSON only (no surrounding text):
{
    "attack_technique": "specific exploitation technique (e.g. Apache Log4j JNDI remote code execution)",
    "risk_score": 8.0,
    "threat_level": "high",
    "recommendations": ["urgent fix", "hardening", "detection"],
    "analysis": "detailed analysis: root cause, exploitation preconditions, impact, attack stage"
}`,

	RouteIllegalConnection: `You are a senior network threat-intelligence analyst specializing in C2 communication, data exfiltration, and lateral movement.

## Alert
- Attack type: %s
- Connection payload / traffic features: %s
- Source IP: %s
- Destination IP: %s

## Analysis steps
1. Classify the connection behavior (C2 beacon, reverse shell, exfiltration, tunneling, DGA domain, lateral movement, ...).
2. Attribute the traffic where possible to known threat groups or frameworks (APT groups, Cobalt Strike, Sliver).
3. Score the risk from 0-10: 9-10 established C2 channel, active exfiltration, or lateral movement; 6-8 DNS tunneling, suspicious beaconing, or anomalous encrypted traffic; 1-5 scanning or low-frequency suspicious connections.
4. Give at least 3 incident-response recommendations by urgency.

Respond with strict JSON only (no surrounding text):
{
    "attack_technique": "specific threat type (e.g. Cobalt Strike Beacon C2 communication)",
    "risk_score": 9.0,
    "threat_level": "high",
    "recommendations": ["immediate response", "forensics", "long-term defense"],
    "analysis": "detailed analysis: communication pattern, attribution, likely attack stage"
}`,
}

// Expert is a category-specific analysis engine. Stateless apart from its
// prompt template; safe for concurrent use.
type Expert struct {
	route           Route
	provider        Provider
	tlog            *telemetry.Log
	logger          log.Logger
	hooks           Hooks
	normalizeThreat bool
}

// NewExpert constructs the engine for one category.
func NewExpert(route Route, provider Provider, tlog *telemetry.Log, logger log.Logger, hooks Hooks, normalizeThreat bool) *Expert {
	if logger == nil {
		logger = log.Nop()
	}
	return &Expert{
		route:           route,
		provider:        provider,
		tlog:            tlog,
		logger:          logger,
		hooks:           hooks,
		normalizeThreat: normalizeThreat,
	}
}

// Route returns the category this engine analyzes.
func (e *Expert) Route() Route { return e.route }

// Analyze produces a finding for the alert. It never returns an error:
// remote-invocation failures degrade to the rule-based fallback and
// malformed responses degrade to a default finding.
func (e *Expert) Analyze(ctx context.Context, al *alert.Alert) Finding {
	start := time.Now()

	prompt := e.buildPrompt(al)
	// whitespace-split approximation, for telemetry only
	inputTokens := len(strings.Fields(prompt))

	var finding Finding

	llmStart := time.Now()
	response, err := e.provider.Generate(ctx, prompt, ResponseTokens, ModelTemperature)
	llmElapsed := time.Since(llmStart)

	if err != nil {
		e.logger.Error(ctx, err, "remote inference failed, using rule-based fallback", "expert_type", string(e.route))
		if e.tlog != nil {
			e.tlog.Event(telemetry.LevelError, "llm_inference_error", telemetry.Fields{
				"expert_type": string(e.route),
				"error":       err.Error(),
			})
		}
		if e.hooks.OnLLMCall != nil {
			e.hooks.OnLLMCall(inputTokens, 0, llmElapsed, true)
		}
		if e.hooks.OnFallback != nil {
			e.hooks.OnFallback(e.route, "remote_invocation_failed")
		}
		finding = ruleBasedFinding(al, "remote invocation failed")
	} else {
		outputTokens := len(strings.Fields(response))
		if e.tlog != nil {
			e.tlog.Log("llm_inference", telemetry.Fields{
				"expert_type":                 string(e.route),
				telemetry.FieldInputTokens:    inputTokens,
				telemetry.FieldOutputTokens:   outputTokens,
				telemetry.FieldProcessingTime: llmElapsed.Milliseconds(),
				"model":                       e.provider.Model(),
			})
		}
		if e.hooks.OnLLMCall != nil {
			e.hooks.OnLLMCall(inputTokens, outputTokens, llmElapsed, false)
		}
		finding = e.parseResponse(response)
	}

	finding.ProcessingMS = time.Since(start).Milliseconds()

	if e.tlog != nil {
		e.tlog.Log("expert_analysis", telemetry.Fields{
			"expert_type":                 string(e.route),
			"attack_type":                 finding.AttackTechnique,
			"risk_score":                  finding.RiskScore,
			telemetry.FieldProcessingTime: finding.ProcessingMS,
		})
	}

	return finding
}

func (e *Expert) buildPrompt(al *alert.Alert) string {
	tmpl, ok := promptTemplates[e.route]
	if !ok {
		tmpl = promptTemplates[DefaultRoute]
	}

	a := al.Normalize()
	attackType := a.AttackType
	if attackType == "" {
		attackType = "unknown"
	}

	return fmt.Sprintf(tmpl, attackType, truncate(a.Payload, MaxPayloadChars), a.SourceIP, a.DestIP)
}

// findingWire is the JSON shape the prompt asks the model to produce.
type findingWire struct {
	AttackTechnique string   `json:"attack_technique"`
	RiskScore       float64  `json:"risk_score"`
	ThreatLevel     string   `json:"threat_level"`
	Recommendations []string `json:"recommendations"`
	Analysis        string   `json:"analysis"`
}

// parseResponse extracts the JSON object embedded in the free-form model
// response: the substring between the first '{' and the last '}', strictly
// decoded. A malformed or absent object is an expected branch, not an
// error; it yields a degraded default finding carrying a prefix of the raw
// text as narrative.
func (e *Expert) parseResponse(response string) Finding {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start >= 0 && end > start {
		var w findingWire
		if err := json.Unmarshal([]byte(response[start:end+1]), &w); err == nil {
			f := Finding{
				AttackTechnique: w.AttackTechnique,
				RiskScore:       clampScore(w.RiskScore),
				ThreatLevel:     w.ThreatLevel,
				Recommendations: w.Recommendations,
				Analysis:        w.Analysis,
				Origin:          OriginModel,
			}
			if e.normalizeThreat {
				f.ThreatLevel = normalizeThreatLevel(f.ThreatLevel, f.RiskScore)
			}
			return f
		}
	}

	return Finding{
		AttackTechnique: "unknown",
		RiskScore:       5.0,
		ThreatLevel:     ThreatLevelForScore(5.0),
		Recommendations: []string{"Increase monitoring", "Investigate further"},
		Analysis:        truncate(response, RawPreviewChars),
		Origin:          OriginRule,
		DegradedReason:  "unparseable model response",
	}
}

// normalizeThreatLevel maps the model's label onto the fixed enum, falling
// back to the score thresholds when the label is not recognized.
func normalizeThreatLevel(level string, score float64) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case ThreatHigh, ThreatMedium, ThreatLow:
		return strings.ToLower(strings.TrimSpace(level))
	default:
		return ThreatLevelForScore(score)
	}
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 10 {
		return 10
	}
	return s
}
