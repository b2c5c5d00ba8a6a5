package alertapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/argus/internal/alert"
	"github.com/linnemanlabs/argus/internal/telemetry"
	"github.com/linnemanlabs/argus/internal/triage"
)

// fakeService implements TriageService with canned responses.
type fakeService struct {
	analyzeRec *triage.Record
	analyzeErr error
	lastAlert  *alert.Alert
	lastQuery  triage.HistoryQuery
	historyOut []triage.HistoryEntry
	historyErr error
	statsOut   triage.HistoryStats
	statsErr   error
	sessionOut telemetry.SessionStats
}

func (f *fakeService) Analyze(_ context.Context, al *alert.Alert) (*triage.Record, error) {
	f.lastAlert = al
	return f.analyzeRec, f.analyzeErr
}

func (f *fakeService) History(_ context.Context, q triage.HistoryQuery) ([]triage.HistoryEntry, error) {
	f.lastQuery = q
	return f.historyOut, f.historyErr
}

func (f *fakeService) HistoryStats(_ context.Context) (triage.HistoryStats, error) {
	return f.statsOut, f.statsErr
}

func (f *fakeService) SessionStats() telemetry.SessionStats {
	return f.sessionOut
}

func newTestRouter(t *testing.T, svc TriageService) chi.Router {
	t.Helper()
	r := chi.NewRouter()
	New(nil, svc).RegisterRoutes(r)
	return r
}

func TestNew_NilService_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("New(nil, nil) did not panic; expected panic for nil service")
		}
	}()
	New(nil, nil)
}

func TestHandleAnalyze(t *testing.T) {
	t.Parallel()

	okRec := &triage.Record{
		Success: true,
		TaskID:  "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Routing: triage.RoutingDecision{SelectedRoute: triage.RouteWebAttack, Confidence: 0.9},
		Expert: triage.Finding{
			AttackTechnique: "UNION-based SQL injection",
			RiskScore:       8.5,
			ThreatLevel:     "high",
		},
	}

	tests := []struct {
		name       string
		body       string
		svc        *fakeService
		wantStatus int
	}{
		{
			"valid alert",
			`{"attack_type":"sql_injection","payload":"union select"}`,
			&fakeService{analyzeRec: okRec},
			http.StatusOK,
		},
		{
			"invalid JSON",
			`{bad`,
			&fakeService{},
			http.StatusBadRequest,
		},
		{
			"missing attack_type",
			`{"payload":"union select"}`,
			&fakeService{},
			http.StatusBadRequest,
		},
		{
			"missing payload",
			`{"attack_type":"sql_injection"}`,
			&fakeService{},
			http.StatusBadRequest,
		},
		{
			"system not initialized",
			`{"attack_type":"sql_injection","payload":"union select"}`,
			&fakeService{analyzeErr: triage.ErrNotInitialized},
			http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := newTestRouter(t, tt.svc)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				var rec triage.Record
				if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
					t.Fatalf("response not valid JSON: %v", err)
				}
				if rec.TaskID != okRec.TaskID {
					t.Errorf("task_id = %q, want %q", rec.TaskID, okRec.TaskID)
				}
				if rec.Expert.RiskScore != 8.5 {
					t.Errorf("risk_score = %v, want 8.5", rec.Expert.RiskScore)
				}
			}
		})
	}
}

func TestHandleAnalyze_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &fakeService{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyze", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleHistory_QueryParams(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/history?limit=5&offset=10&threat_level=high&attack_type=sql_injection&start_time=1767225600&end_time=1767312000", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}

	q := svc.lastQuery
	if q.Limit != 5 || q.Offset != 10 {
		t.Errorf("pagination = (%d, %d), want (5, 10)", q.Limit, q.Offset)
	}
	if q.ThreatLevel != "high" || q.AttackType != "sql_injection" {
		t.Errorf("filters = (%q, %q)", q.ThreatLevel, q.AttackType)
	}
	if q.StartTime.Unix() != 1767225600 || q.EndTime.Unix() != 1767312000 {
		t.Errorf("time window = (%v, %v)", q.StartTime, q.EndTime)
	}
}

func TestHandleHistory_Projection(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &fakeService{historyOut: []triage.HistoryEntry{{
		ID:          "t1",
		Timestamp:   ts,
		AttackType:  "sql_injection",
		ThreatLevel: "high",
		RiskScore:   8.5,
		Alert:       &alert.Alert{AttackType: "sql_injection", Payload: "secret payload"},
	}}}
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/history", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Total   int           `json:"total"`
		History []historyItem `json:"history"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not valid JSON: %v", err)
	}
	if resp.Total != 1 || len(resp.History) != 1 {
		t.Fatalf("total = %d, len = %d, want 1", resp.Total, len(resp.History))
	}
	item := resp.History[0]
	if item.ID != "t1" || item.AttackType != "sql_injection" || item.ThreatLevel != "high" || item.RiskScore != 8.5 {
		t.Errorf("item = %+v", item)
	}
	// full alert body must not leak into the projection
	if strings.Contains(w.Body.String(), "secret payload") {
		t.Error("history response leaked the raw alert payload")
	}
}

func TestHandleHistory_InvalidParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
	}{
		{"bad limit", "/api/v1/history?limit=abc"},
		{"negative limit", "/api/v1/history?limit=-1"},
		{"bad offset", "/api/v1/history?offset=x"},
		{"bad start_time", "/api/v1/history?start_time=notepoch"},
		{"bad end_time", "/api/v1/history?end_time=1.5d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := newTestRouter(t, &fakeService{})
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestHandleStats(t *testing.T) {
	t.Parallel()

	svc := &fakeService{statsOut: triage.HistoryStats{
		TotalAnalyses: 3,
		ThreatLevels:  map[string]int{"high": 2, "medium": 1},
		AttackTypes:   map[string]int{"sql_injection": 3},
	}}
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var stats triage.HistoryStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("response not valid JSON: %v", err)
	}
	if stats.TotalAnalyses != 3 || stats.ThreatLevels["high"] != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestHandleSession(t *testing.T) {
	t.Parallel()

	svc := &fakeService{sessionOut: telemetry.SessionStats{
		TotalTokens: 150,
		TotalTimeMS: 1200,
		Stages: map[string]telemetry.StageStats{
			"llm_inference": {Count: 2, TotalTimeMS: 900},
		},
	}}
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var stats telemetry.SessionStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("response not valid JSON: %v", err)
	}
	if stats.TotalTokens != 150 || stats.Stages["llm_inference"].Count != 2 {
		t.Errorf("stats = %+v", stats)
	}
}
