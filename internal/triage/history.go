package triage

import (
	"context"
	"time"

	"github.com/linnemanlabs/argus/internal/alert"
)

// DefaultHistoryCapacity bounds the in-memory history store.
const DefaultHistoryCapacity = 100

// HistoryEntry is the denormalized projection of one completed analysis
// kept for later filtering, alongside the original alert and full record.
type HistoryEntry struct {
	ID          string       `json:"id"`
	Timestamp   time.Time    `json:"timestamp"`
	AttackType  string       `json:"attack_type"`
	ThreatLevel string       `json:"threat_level"`
	RiskScore   float64      `json:"risk_score"`
	Alert       *alert.Alert `json:"alert_data,omitempty"`
	Record      *Record      `json:"result,omitempty"`
}

// HistoryQuery selects entries. Filters combine conjunctively; a zero
// value never excludes anything. Limit defaults to 50 when unset.
type HistoryQuery struct {
	Limit       int
	Offset      int
	ThreatLevel string
	AttackType  string
	StartTime   time.Time
	EndTime     time.Time
}

// HistoryStats summarizes the stored entries.
type HistoryStats struct {
	TotalAnalyses int            `json:"total_analyses"`
	ThreatLevels  map[string]int `json:"threat_level_distribution"`
	AttackTypes   map[string]int `json:"attack_type_distribution"`
}

// HistoryStore is the bounded, newest-first record store written by the
// orchestrator after each completed analysis.
type HistoryStore interface {
	// Save persists one analysis and returns its entry id.
	Save(ctx context.Context, al *alert.Alert, rec *Record) (string, error)

	// Query returns entries matching q, newest first, paginated.
	Query(ctx context.Context, q HistoryQuery) ([]HistoryEntry, error)

	// Stats returns distributions over all stored entries.
	Stats(ctx context.Context) (HistoryStats, error)
}
