// Package alertapi exposes the triage pipeline over HTTP. It is a thin
// shell: request decoding and response shaping only, with every analysis
// decision owned by the triage package.
package alertapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/argus/internal/alert"
	"github.com/linnemanlabs/argus/internal/telemetry"
	"github.com/linnemanlabs/argus/internal/triage"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
)

// TriageService defines the pipeline operations alertapi needs.
type TriageService interface {
	Analyze(ctx context.Context, al *alert.Alert) (*triage.Record, error)
	History(ctx context.Context, q triage.HistoryQuery) ([]triage.HistoryEntry, error)
	HistoryStats(ctx context.Context) (triage.HistoryStats, error)
	SessionStats() telemetry.SessionStats
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    TriageService
}

// New creates a new API handler.
func New(logger log.Logger, svc TriageService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/analyze", a.handleAnalyze)
		r.Get("/history", a.handleHistory)
		r.Get("/stats", a.handleStats)
		r.Get("/session", a.handleSession)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
