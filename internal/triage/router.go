package triage

import (
	"regexp"
	"strings"
	"time"

	"github.com/linnemanlabs/argus/internal/alert"
	"github.com/linnemanlabs/argus/internal/telemetry"
)

// Scoring weights and bounds. A keyword hit is cheap and broad, a pattern
// hit is precise, so keywords weigh more but patterns confirm. The 3.0
// ceiling is an assumed "strong match" score, not a derived bound.
const (
	keywordWeight      = 0.6
	patternWeight      = 0.4
	uncertainScore     = 0.5
	uncertainConf      = 0.3
	strongMatchCeiling = 3.0
)

type routeRules struct {
	route    Route
	keywords []string
	patterns []*regexp.Regexp
}

// Router classifies alert text into one of the fixed categories by weighted
// rule scoring. The rule set is immutable after construction and safe for
// unsynchronized concurrent reads.
type Router struct {
	rules []routeRules
	tlog  *telemetry.Log
}

// NewRouter builds a router with the static rule set, precompiling every
// pattern once.
func NewRouter(tlog *telemetry.Log) *Router {
	return &Router{
		tlog: tlog,
		rules: []routeRules{
			{
				route: RouteWebAttack,
				keywords: []string{
					"sql", "xss", "script", "inject", "union", "select",
					"webshell", "upload", "traversal",
				},
				patterns: compile(
					`(?i)(union\s+select|select\s+.*\s+from)`,
					`(?i)(<script|javascript:|on\w+=)`,
					`(?i)(\.\./|\.\.\\|%2e%2e)`,
				),
			},
			{
				route: RouteVulnerability,
				keywords: []string{
					"cve", "exploit", "vulnerability", "payload",
					"shellcode", "overflow", "0day",
				},
				patterns: compile(
					`(?i)(cve-\d{4}-\d+)`,
					`(?i)(exploit|vulnerability)`,
					`(?i)(shellcode|payload)`,
				),
			},
			{
				route: RouteIllegalConnection,
				keywords: []string{
					"c2", "command and control", "tor", "proxy",
					"tunnel", "botnet", "ddos",
				},
				patterns: compile(
					`(?i)(c2\s+communication)`,
					`(?i)(botnet|zombie)`,
					`(?i)(ddos|dos\s+attack)`,
				),
			},
		},
	}
}

// Route scores the alert against every category and returns the decision.
// Pure and never fails: an unmatchable alert routes to the first declared
// category at low confidence.
func (r *Router) Route(al *alert.Alert) RoutingDecision {
	start := time.Now()

	text := strings.ToLower(al.AttackType + " " + al.Payload + " " + al.RawLog())

	scores := make(map[Route]float64, len(r.rules))
	best := r.rules[0].route
	bestScore := 0.0
	for _, rr := range r.rules {
		s := rr.score(text)
		scores[rr.route] = s
		// strictly greater so ties keep the earliest-declared category
		if s > bestScore {
			bestScore = s
			best = rr.route
		}
	}

	confidence := uncertainConf
	if bestScore >= uncertainScore {
		confidence = min(bestScore/strongMatchCeiling, 1.0)
	}

	decision := RoutingDecision{
		SelectedRoute: best,
		Confidence:    confidence,
		ProcessingMS:  time.Since(start).Milliseconds(),
	}

	if r.tlog != nil {
		r.tlog.Log("router_decision", telemetry.Fields{
			"user_query":                  truncate(al.AttackType, PayloadLogPreview),
			"selected_route":              string(best),
			"confidence":                  confidence,
			telemetry.FieldProcessingTime: decision.ProcessingMS,
			"route_scores":                scores,
		})
	}

	return decision
}

func (rr routeRules) score(text string) float64 {
	var keywordHits, patternHits int
	for _, kw := range rr.keywords {
		if strings.Contains(text, kw) {
			keywordHits++
		}
	}
	for _, p := range rr.patterns {
		if p.MatchString(text) {
			patternHits++
		}
	}
	return float64(keywordHits)*keywordWeight + float64(patternHits)*patternWeight
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
