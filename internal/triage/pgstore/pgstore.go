// Package pgstore provides a PostgreSQL implementation of
// triage.HistoryStore for deployments that want history to survive
// restarts. The same capacity bound applies: saves beyond it delete the
// oldest rows.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/argus/internal/alert"
	"github.com/linnemanlabs/argus/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/argus/internal/triage/pgstore")

//go:embed schema.sql
var schema string

const defaultQueryLimit = 50

// Store persists analysis history in PostgreSQL.
type Store struct {
	pool     *pgxpool.Pool
	capacity int
}

// New applies the schema and returns a ready Store. A non-positive
// capacity falls back to triage.DefaultHistoryCapacity.
func New(ctx context.Context, pool *pgxpool.Pool, capacity int) (*Store, error) {
	if capacity <= 0 {
		capacity = triage.DefaultHistoryCapacity
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool, capacity: capacity}, nil
}

// Save inserts the analysis and trims rows beyond capacity, oldest first.
func (s *Store) Save(ctx context.Context, al *alert.Alert, rec *triage.Record) (string, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Save", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	id := rec.TaskID
	if id == "" {
		id = strconv.FormatInt(time.Now().UnixMilli(), 10)
	}

	alertJSON, err := json.Marshal(al)
	if err != nil {
		return "", recordErr(span, fmt.Errorf("marshal alert: %w", err))
	}
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return "", recordErr(span, fmt.Errorf("marshal record: %w", err))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", recordErr(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	_, err = tx.Exec(ctx, `
		INSERT INTO analysis_history (id, ts, attack_type, threat_level, risk_score, alert, record)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		id, rec.Timestamp, al.AttackType, rec.Expert.ThreatLevel, rec.Expert.RiskScore, alertJSON, recordJSON,
	)
	if err != nil {
		return "", recordErr(span, fmt.Errorf("insert: %w", err))
	}

	// capacity eviction is routine behavior, not an error
	_, err = tx.Exec(ctx, `
		DELETE FROM analysis_history WHERE id IN (
			SELECT id FROM analysis_history ORDER BY ts DESC, id DESC OFFSET $1
		)`, s.capacity)
	if err != nil {
		return "", recordErr(span, fmt.Errorf("trim: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return "", recordErr(span, fmt.Errorf("commit: %w", err))
	}
	return id, nil
}

// Query returns entries matching q, newest first.
func (s *Store) Query(ctx context.Context, q triage.HistoryQuery) ([]triage.HistoryEntry, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Query", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	limit := q.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	sql := `SELECT id, ts, attack_type, threat_level, risk_score, alert, record FROM analysis_history`
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.ThreatLevel != "" {
		conds = append(conds, "threat_level = "+arg(q.ThreatLevel))
	}
	if q.AttackType != "" {
		conds = append(conds, "attack_type = "+arg(q.AttackType))
	}
	if !q.StartTime.IsZero() {
		conds = append(conds, "ts >= "+arg(q.StartTime))
	}
	if !q.EndTime.IsZero() {
		conds = append(conds, "ts <= "+arg(q.EndTime))
	}
	for i, c := range conds {
		if i == 0 {
			sql += " WHERE " + c
		} else {
			sql += " AND " + c
		}
	}
	sql += " ORDER BY ts DESC, id DESC LIMIT " + arg(limit) + " OFFSET " + arg(offset)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, recordErr(span, err)
	}
	defer rows.Close()

	entries := []triage.HistoryEntry{}
	for rows.Next() {
		var (
			e          triage.HistoryEntry
			alertJSON  []byte
			recordJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.AttackType, &e.ThreatLevel, &e.RiskScore, &alertJSON, &recordJSON); err != nil {
			return nil, recordErr(span, err)
		}
		var al alert.Alert
		if err := json.Unmarshal(alertJSON, &al); err == nil {
			e.Alert = &al
		}
		var rec triage.Record
		if err := json.Unmarshal(recordJSON, &rec); err == nil {
			e.Record = &rec
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, recordErr(span, err)
	}
	return entries, nil
}

// Stats returns distributions over all stored entries.
func (s *Store) Stats(ctx context.Context) (triage.HistoryStats, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Stats", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	stats := triage.HistoryStats{
		ThreatLevels: make(map[string]int),
		AttackTypes:  make(map[string]int),
	}

	rows, err := s.pool.Query(ctx, `SELECT threat_level, attack_type FROM analysis_history`)
	if err != nil {
		return stats, recordErr(span, err)
	}
	defer rows.Close()

	for rows.Next() {
		var threat, attack string
		if err := rows.Scan(&threat, &attack); err != nil {
			return stats, recordErr(span, err)
		}
		stats.TotalAnalyses++
		stats.ThreatLevels[threat]++
		stats.AttackTypes[attack]++
	}
	if err := rows.Err(); err != nil {
		return stats, recordErr(span, err)
	}
	return stats, nil
}

func recordErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
