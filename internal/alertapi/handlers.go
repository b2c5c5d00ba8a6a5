package alertapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/linnemanlabs/argus/internal/alert"
	"github.com/linnemanlabs/argus/internal/triage"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// historyItem is the denormalized projection returned by the history
// endpoint. Full alert and record bodies stay internal.
type historyItem struct {
	ID          string    `json:"id"`
	AttackType  string    `json:"attack_type"`
	ThreatLevel string    `json:"threat_level"`
	RiskScore   float64   `json:"risk_score"`
	Timestamp   time.Time `json:"timestamp"`
}

func (a *API) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var al alert.Alert
	if err := json.NewDecoder(r.Body).Decode(&al); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if al.AttackType == "" {
		writeError(w, http.StatusBadRequest, "attack_type is required")
		return
	}
	if al.Payload == "" {
		writeError(w, http.StatusBadRequest, "payload is required")
		return
	}

	rec, err := a.svc.Analyze(ctx, &al)
	if err != nil {
		if errors.Is(err, triage.ErrNotInitialized) {
			writeError(w, http.StatusServiceUnavailable, "analysis system not initialized")
			return
		}
		a.logger.Error(ctx, err, "analysis failed")
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q := triage.HistoryQuery{
		ThreatLevel: r.URL.Query().Get("threat_level"),
		AttackType:  r.URL.Query().Get("attack_type"),
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = n
	}
	if s := r.URL.Query().Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		q.Offset = n
	}
	if s := r.URL.Query().Get("start_time"); s != "" {
		sec, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start_time")
			return
		}
		q.StartTime = time.Unix(sec, 0).UTC()
	}
	if s := r.URL.Query().Get("end_time"); s != "" {
		sec, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end_time")
			return
		}
		q.EndTime = time.Unix(sec, 0).UTC()
	}

	entries, err := a.svc.History(ctx, q)
	if err != nil {
		a.logger.Error(ctx, err, "history query failed")
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}

	items := make([]historyItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, historyItem{
			ID:          e.ID,
			AttackType:  e.AttackType,
			ThreatLevel: e.ThreatLevel,
			RiskScore:   e.RiskScore,
			Timestamp:   e.Timestamp,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":   len(items),
		"history": items,
	})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.svc.HistoryStats(r.Context())
	if err != nil {
		a.logger.Error(r.Context(), err, "stats query failed")
		writeError(w, http.StatusInternalServerError, "stats query failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.SessionStats())
}
