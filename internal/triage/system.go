package triage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/argus/internal/alert"
	"github.com/linnemanlabs/argus/internal/telemetry"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
)

var tracer = otel.Tracer("github.com/linnemanlabs/argus/internal/triage")

// ErrNotInitialized is returned by Analyze before Initialize has run.
// Fatal for that call only; the process and other in-flight calls are
// unaffected.
var ErrNotInitialized = errors.New("triage system not initialized")

// Hooks are optional observation points wired by main for Prometheus.
// Nil funcs are skipped.
type Hooks struct {
	OnLLMCall  func(inputTokens, outputTokens int, elapsed time.Duration, failed bool)
	OnFallback func(route Route, reason string)
	OnComplete func(rec *Record)
}

// Options tunes System construction.
type Options struct {
	// TelemetryDir is where JSONL session logs are written. Empty keeps
	// telemetry memory-only.
	TelemetryDir string

	// NormalizeThreatLevels forces model-derived threat labels onto the
	// fixed high/medium/low enum. Off by default: the model's own label
	// passes through unvalidated.
	NormalizeThreatLevels bool
}

// System composes the router, the expert engine pool, the telemetry log,
// and the history store into one request-response pipeline. It is the only
// component external callers invoke directly.
type System struct {
	provider Provider
	history  HistoryStore
	logger   log.Logger
	hooks    Hooks
	opts     Options

	mu      sync.RWMutex
	ready   bool
	router  *Router
	experts map[Route]*Expert
	tlog    *telemetry.Log
}

// NewSystem creates an uninitialized pipeline. Call Initialize before
// Analyze.
func NewSystem(provider Provider, history HistoryStore, logger log.Logger, hooks Hooks, opts Options) *System {
	if provider == nil {
		panic(xerrors.New("llm provider is required"))
	}
	if history == nil {
		panic(xerrors.New("history store is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &System{
		provider: provider,
		history:  history,
		logger:   logger,
		hooks:    hooks,
		opts:     opts,
	}
}

// Initialize constructs the router, one expert engine per category, and a
// fresh telemetry log. Idempotent: a ready system is left untouched. Not
// safe for concurrent calls before Ready; run it once before accepting
// requests.
func (s *System) Initialize(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return
	}

	// a re-initialize discards the prior in-memory aggregates but leaves
	// earlier session files on disk
	if s.tlog != nil {
		s.tlog.Finalize()
		s.tlog.Close()
	}
	s.tlog = telemetry.New(s.opts.TelemetryDir, s.logger)

	s.router = NewRouter(s.tlog)
	s.experts = make(map[Route]*Expert, len(Routes()))
	for _, r := range Routes() {
		s.experts[r] = NewExpert(r, s.provider, s.tlog, s.logger, s.hooks, s.opts.NormalizeThreatLevels)
	}
	s.ready = true

	s.logger.Info(ctx, "triage system initialized",
		"experts", len(s.experts),
		"telemetry_session", s.tlog.SessionID(),
		"telemetry_log", s.tlog.Path(),
	)
}

// Ready reports whether Initialize has completed.
func (s *System) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Analyze runs the full pipeline for one alert: route, dispatch to the
// matching expert, assemble the record, persist history. Concurrent calls
// are independent; each owns its correlation id and timing scope. The only
// error ever returned is ErrNotInitialized; every downstream failure is
// absorbed by the component contracts.
func (s *System) Analyze(ctx context.Context, al *alert.Alert) (*Record, error) {
	s.mu.RLock()
	ready, router, experts, tlog := s.ready, s.router, s.experts, s.tlog
	s.mu.RUnlock()

	if !ready {
		return nil, ErrNotInitialized
	}

	overall := time.Now()
	taskID := ulid.Make().String()

	ctx, span := tracer.Start(ctx, "triage.Analyze", trace.WithAttributes(
		attribute.String("argus.task_id", taskID),
	))
	defer span.End()

	L := s.logger.With("task_id", taskID)

	tlog.Log("user_input", telemetry.Fields{
		"task_id":         taskID,
		"attack_type":     al.AttackType,
		"payload_length":  len(al.Payload),
		"payload_preview": truncate(al.Payload, PayloadLogPreview),
	})

	decision := router.Route(al)
	L.Info(ctx, "alert routed",
		"route", string(decision.SelectedRoute),
		"confidence", decision.Confidence,
	)

	// should not occur given the fixed enum, but handled defensively
	expert, ok := experts[decision.SelectedRoute]
	if !ok {
		L.Warn(ctx, "no engine for route, using default",
			"route", string(decision.SelectedRoute),
			"default", string(DefaultRoute),
		)
		expert = experts[DefaultRoute]
	}

	finding := expert.Analyze(ctx, al)

	rec := &Record{
		Success:   true,
		TaskID:    taskID,
		Timestamp: time.Now(),
		Routing:   decision,
		Expert:    finding,
		Performance: Performance{
			TotalMS:   time.Since(overall).Milliseconds(),
			RoutingMS: decision.ProcessingMS,
			ExpertMS:  finding.ProcessingMS,
		},
	}

	span.SetAttributes(
		attribute.String("argus.route", string(decision.SelectedRoute)),
		attribute.String("argus.threat_level", finding.ThreatLevel),
		attribute.String("argus.origin", string(finding.Origin)),
	)

	tlog.Log("final_result", telemetry.Fields{
		"task_id":                  taskID,
		"attack_technique":         finding.AttackTechnique,
		"risk_score":               finding.RiskScore,
		"threat_level":             finding.ThreatLevel,
		"total_processing_time_ms": rec.Performance.TotalMS,
	})

	if s.hooks.OnComplete != nil {
		s.hooks.OnComplete(rec)
	}

	if _, err := s.history.Save(ctx, al, rec); err != nil {
		// history failures never fail the analysis
		L.Error(ctx, err, "history save failed")
	}

	L.Info(ctx, "analysis complete",
		"route", string(decision.SelectedRoute),
		"technique", finding.AttackTechnique,
		"risk_score", finding.RiskScore,
		"origin", string(finding.Origin),
		"total_ms", rec.Performance.TotalMS,
	)

	return rec, nil
}

// History queries the history store.
func (s *System) History(ctx context.Context, q HistoryQuery) ([]HistoryEntry, error) {
	return s.history.Query(ctx, q)
}

// HistoryStats returns distributions over the stored analyses.
func (s *System) HistoryStats(ctx context.Context) (HistoryStats, error) {
	return s.history.Stats(ctx)
}

// SessionStats returns the telemetry aggregates for the current session.
func (s *System) SessionStats() telemetry.SessionStats {
	s.mu.RLock()
	tlog := s.tlog
	s.mu.RUnlock()
	if tlog == nil {
		return telemetry.SessionStats{Stages: map[string]telemetry.StageStats{}}
	}
	return tlog.Stats()
}

// Finalize writes the telemetry session summary and releases the durable
// sink. Safe to call repeatedly.
func (s *System) Finalize() {
	s.mu.RLock()
	tlog := s.tlog
	s.mu.RUnlock()
	if tlog != nil {
		tlog.Finalize()
		tlog.Close()
	}
}
