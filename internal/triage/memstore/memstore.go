// Package memstore provides the bounded in-memory implementation of
// triage.HistoryStore. Newest entries sit at the head; saves beyond the
// capacity silently evict the oldest entries.
package memstore

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/linnemanlabs/argus/internal/alert"
	"github.com/linnemanlabs/argus/internal/triage"
)

const defaultQueryLimit = 50

// Store holds analysis history in memory. No persistence beyond process
// lifetime.
type Store struct {
	mu       sync.RWMutex
	capacity int
	entries  []triage.HistoryEntry // newest first
}

// New creates a store bounded to capacity entries. A non-positive capacity
// falls back to triage.DefaultHistoryCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = triage.DefaultHistoryCapacity
	}
	return &Store{capacity: capacity}
}

// Save inserts the analysis at the head, evicting beyond capacity. The id
// prefers the record's correlation id, else a millisecond timestamp.
func (s *Store) Save(_ context.Context, al *alert.Alert, rec *triage.Record) (string, error) {
	id := rec.TaskID
	if id == "" {
		id = strconv.FormatInt(time.Now().UnixMilli(), 10)
	}

	alCopy := *al
	recCopy := *rec
	entry := triage.HistoryEntry{
		ID:          id,
		Timestamp:   rec.Timestamp,
		AttackType:  al.AttackType,
		ThreatLevel: rec.Expert.ThreatLevel,
		RiskScore:   rec.Expert.RiskScore,
		Alert:       &alCopy,
		Record:      &recCopy,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append([]triage.HistoryEntry{entry}, s.entries...)
	if len(s.entries) > s.capacity {
		s.entries = s.entries[:s.capacity]
	}
	return id, nil
}

// Query applies the filters conjunctively over the full collection, then
// slices [offset, offset+limit).
func (s *Store) Query(_ context.Context, q triage.HistoryQuery) ([]triage.HistoryEntry, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := make([]triage.HistoryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if q.ThreatLevel != "" && e.ThreatLevel != q.ThreatLevel {
			continue
		}
		if q.AttackType != "" && e.AttackType != q.AttackType {
			continue
		}
		if !q.StartTime.IsZero() && e.Timestamp.Before(q.StartTime) {
			continue
		}
		if !q.EndTime.IsZero() && e.Timestamp.After(q.EndTime) {
			continue
		}
		filtered = append(filtered, e)
	}

	if q.Offset >= len(filtered) {
		return []triage.HistoryEntry{}, nil
	}
	end := q.Offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[q.Offset:end], nil
}

// Stats counts the threat-level and attack-type distributions in a single
// pass. An empty store yields zero total and empty maps.
func (s *Store) Stats(_ context.Context) (triage.HistoryStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := triage.HistoryStats{
		TotalAnalyses: len(s.entries),
		ThreatLevels:  make(map[string]int),
		AttackTypes:   make(map[string]int),
	}
	for _, e := range s.entries {
		stats.ThreatLevels[e.ThreatLevel]++
		stats.AttackTypes[e.AttackType]++
	}
	return stats, nil
}
