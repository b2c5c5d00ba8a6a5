// Package telemetry provides the structured event log for the triage
// pipeline: an append-only JSONL sink on disk, an in-memory mirror for
// synchronous queries, and running session aggregates.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/linnemanlabs/go-core/log"
)

// Level is the severity of a telemetry event.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Fields carries the stage-specific payload of an event. Token and timing
// fields with the well-known keys below feed the session aggregates.
type Fields map[string]any

// Well-known field keys picked up by the stats aggregation.
const (
	FieldInputTokens    = "input_tokens"
	FieldOutputTokens   = "output_tokens"
	FieldProcessingTime = "processing_time_ms"
)

// Event is a single append-only log record.
type Event struct {
	Timestamp time.Time
	Level     Level
	Stage     string
	Fields    Fields
}

// MarshalJSON flattens Fields into the top-level object so the JSONL file
// reads as one flat record per line.
func (e Event) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Fields)+3)
	for k, v := range e.Fields {
		m[k] = v
	}
	m["timestamp"] = e.Timestamp.Format(time.RFC3339Nano)
	m["level"] = string(e.Level)
	m["stage"] = e.Stage
	return json.Marshal(m)
}

// StageStats aggregates invocations of a single pipeline stage.
type StageStats struct {
	Count       int   `json:"count"`
	TotalTimeMS int64 `json:"total_time_ms"`
}

// SessionStats is the running aggregate over every event logged so far.
// Reset only when a new Log is created.
type SessionStats struct {
	TotalTokens int64                 `json:"total_tokens"`
	TotalTimeMS int64                 `json:"total_time_ms"`
	Stages      map[string]StageStats `json:"stages"`
}

// Log is the telemetry sink. Writers are serialized; readers get copies.
// Durable-sink write failures never propagate to callers.
type Log struct {
	mu        sync.Mutex
	logger    log.Logger
	sessionID string
	startedAt time.Time
	path      string
	file      *os.File
	entries   []Event
	stats     SessionStats
}

// New opens a telemetry log writing to a timestamped JSONL file under dir.
// An empty dir, or any failure to open the file, degrades to memory-only
// operation; the pipeline never fails because of its telemetry sink.
func New(dir string, logger log.Logger) *Log {
	if logger == nil {
		logger = log.Nop()
	}

	l := &Log{
		logger:    logger,
		sessionID: uuid.NewString(),
		startedAt: time.Now(),
		stats:     SessionStats{Stages: make(map[string]StageStats)},
	}

	if dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			logger.Warn(context.Background(), "telemetry dir unavailable, memory-only", "dir", dir, "error", err)
		} else {
			name := fmt.Sprintf("analysis_%s.jsonl", l.startedAt.Format("20060102_150405"))
			path := filepath.Join(dir, name)
			f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) //nolint:gosec // path is operator-configured, not user input
			if err != nil {
				logger.Warn(context.Background(), "telemetry file unavailable, memory-only", "path", path, "error", err)
			} else {
				l.path = path
				l.file = f
			}
		}
	}

	l.appendToFile(Event{
		Timestamp: l.startedAt,
		Level:     LevelInfo,
		Stage:     "session_start",
		Fields: Fields{
			"session_id": l.sessionID,
			"log_file":   l.path,
		},
	})

	return l
}

// Log appends an INFO event.
func (l *Log) Log(stage string, fields Fields) {
	l.Event(LevelInfo, stage, fields)
}

// Event appends an event at the given level to both sinks and updates the
// session aggregates.
func (l *Log) Event(level Level, stage string, fields Fields) {
	e := Event{
		Timestamp: time.Now(),
		Level:     level,
		Stage:     stage,
		Fields:    fields,
	}

	l.mu.Lock()
	l.entries = append(l.entries, e)

	if n, ok := asInt64(fields[FieldInputTokens]); ok {
		l.stats.TotalTokens += n
	}
	if n, ok := asInt64(fields[FieldOutputTokens]); ok {
		l.stats.TotalTokens += n
	}
	ms, hasTime := asInt64(fields[FieldProcessingTime])
	if hasTime {
		l.stats.TotalTimeMS += ms
	}
	st := l.stats.Stages[stage]
	st.Count++
	if hasTime {
		st.TotalTimeMS += ms
	}
	l.stats.Stages[stage] = st
	l.mu.Unlock()

	l.appendToFile(e)
}

// Stats returns a snapshot of the session aggregates.
func (l *Log) Stats() SessionStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statsLocked()
}

func (l *Log) statsLocked() SessionStats {
	out := SessionStats{
		TotalTokens: l.stats.TotalTokens,
		TotalTimeMS: l.stats.TotalTimeMS,
		Stages:      make(map[string]StageStats, len(l.stats.Stages)),
	}
	for k, v := range l.stats.Stages {
		out.Stages[k] = v
	}
	return out
}

// EntryCount returns the number of events logged in this session.
func (l *Log) EntryCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// SessionID returns the unique identifier of this telemetry session.
func (l *Log) SessionID() string { return l.sessionID }

// Path returns the JSONL file path, or "" when running memory-only.
func (l *Log) Path() string { return l.path }

// Finalize writes the session summary artifact next to the main log file
// and appends a closing event. Safe to call repeatedly; each call reflects
// the aggregates at that moment. Returns the main log file path.
func (l *Log) Finalize() string {
	l.mu.Lock()
	stats := l.statsLocked()
	total := len(l.entries)
	l.mu.Unlock()

	end := time.Now()

	if l.path != "" {
		summary := map[string]any{
			"session_id":    l.sessionID,
			"session_start": l.startedAt.Format(time.RFC3339Nano),
			"session_end":   end.Format(time.RFC3339Nano),
			"total_entries": total,
			"statistics":    stats,
			"log_file":      l.path,
		}
		if b, err := json.MarshalIndent(summary, "", "  "); err == nil {
			path := strings.TrimSuffix(l.path, ".jsonl") + ".summary.json"
			if werr := os.WriteFile(path, b, 0o640); werr != nil { //nolint:gosec // operator-configured dir
				l.logger.Warn(context.Background(), "telemetry summary write failed", "path", path, "error", werr)
			}
		}
	}

	l.appendToFile(Event{
		Timestamp: end,
		Level:     LevelInfo,
		Stage:     "session_end",
		Fields: Fields{
			"session_id":    l.sessionID,
			"total_entries": total,
			"statistics":    stats,
		},
	})

	return l.path
}

// Close releases the durable sink. The in-memory mirror stays queryable.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
}

// appendToFile writes one JSONL line. Failures are logged and swallowed;
// they must never reach the in-memory path or the caller.
func (l *Log) appendToFile(e Event) {
	l.mu.Lock()
	f := l.file
	l.mu.Unlock()
	if f == nil {
		return
	}

	b, err := json.Marshal(e)
	if err != nil {
		l.logger.Warn(context.Background(), "telemetry event marshal failed", "stage", e.Stage, "error", err)
		return
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		l.logger.Warn(context.Background(), "telemetry append failed", "path", l.path, "error", err)
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
