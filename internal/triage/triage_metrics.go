package triage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the triage pipeline.
type Metrics struct {
	AnalysesTotal  *prometheus.CounterVec
	AnalysisTime   *prometheus.HistogramVec
	RoutingTime    prometheus.Histogram
	ExpertTime     *prometheus.HistogramVec
	RiskScore      *prometheus.HistogramVec
	FallbacksTotal *prometheus.CounterVec
	LLMCallsTotal  *prometheus.CounterVec
	LLMTokensIn    prometheus.Counter
	LLMTokensOut   prometheus.Counter
	LLMDuration    prometheus.Histogram
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_analyses_total",
			Help: "Total completed analyses by route, origin and threat level.",
		}, []string{"route", "origin", "threat_level"}),
		AnalysisTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "argus_analysis_duration_seconds",
			Help:    "End-to-end duration of analyses in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~40s
		}, []string{"route"}),
		RoutingTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "argus_routing_duration_seconds",
			Help:    "Duration of router scoring passes in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 10), // 0.1ms .. ~51ms
		}),
		ExpertTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "argus_expert_duration_seconds",
			Help:    "Duration of expert analyses in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~40s
		}, []string{"route", "origin"}),
		RiskScore: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "argus_risk_score",
			Help:    "Risk scores produced by expert analyses.",
			Buckets: prometheus.LinearBuckets(0, 1, 11), // 0 .. 10
		}, []string{"route"}),
		FallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_fallbacks_total",
			Help: "Total degradations to the rule-based path by route and reason.",
		}, []string{"route", "reason"}),
		LLMCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_llm_calls_total",
			Help: "Total remote-model calls by outcome.",
		}, []string{"outcome"}),
		LLMTokensIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "argus_llm_tokens_input_total",
			Help: "Approximate input tokens sent to the remote model.",
		}),
		LLMTokensOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "argus_llm_tokens_output_total",
			Help: "Approximate output tokens received from the remote model.",
		}),
		LLMDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "argus_llm_call_duration_seconds",
			Help:    "Duration of individual remote-model calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s .. ~64s
		}),
	}

	reg.MustRegister(
		m.AnalysesTotal,
		m.AnalysisTime,
		m.RoutingTime,
		m.ExpertTime,
		m.RiskScore,
		m.FallbacksTotal,
		m.LLMCallsTotal,
		m.LLMTokensIn,
		m.LLMTokensOut,
		m.LLMDuration,
	)

	return m
}

// Hooks returns pipeline hooks that feed these metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnLLMCall: func(inputTokens, outputTokens int, elapsed time.Duration, failed bool) {
			outcome := "success"
			if failed {
				outcome = "error"
			}
			m.LLMCallsTotal.WithLabelValues(outcome).Inc()
			m.LLMTokensIn.Add(float64(inputTokens))
			m.LLMTokensOut.Add(float64(outputTokens))
			m.LLMDuration.Observe(elapsed.Seconds())
		},
		OnFallback: func(route Route, reason string) {
			m.FallbacksTotal.WithLabelValues(string(route), reason).Inc()
		},
		OnComplete: func(rec *Record) {
			route := string(rec.Routing.SelectedRoute)
			m.AnalysesTotal.WithLabelValues(route, string(rec.Expert.Origin), rec.Expert.ThreatLevel).Inc()
			m.AnalysisTime.WithLabelValues(route).Observe(float64(rec.Performance.TotalMS) / 1000)
			m.RoutingTime.Observe(float64(rec.Performance.RoutingMS) / 1000)
			m.ExpertTime.WithLabelValues(route, string(rec.Expert.Origin)).Observe(float64(rec.Performance.ExpertMS) / 1000)
			m.RiskScore.WithLabelValues(route).Observe(rec.Expert.RiskScore)
		},
	}
}
