package pgstore_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/linnemanlabs/argus/internal/alert"
	"github.com/linnemanlabs/argus/internal/postgres"
	"github.com/linnemanlabs/argus/internal/triage"
	"github.com/linnemanlabs/argus/internal/triage/pgstore"
)

func openStore(t *testing.T, capacity int) *pgstore.Store {
	t.Helper()
	dsn := os.Getenv("ARGUS_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("ARGUS_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("postgres.NewPool: %v", err)
	}
	t.Cleanup(pool.Close)

	s, err := pgstore.New(ctx, pool, capacity)
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}

	// start from a clean table
	if _, err := pool.Exec(ctx, "DELETE FROM analysis_history"); err != nil {
		t.Fatalf("clean table: %v", err)
	}
	return s
}

func seedRecord(id, attackType, threatLevel string, score float64, ts time.Time) (*alert.Alert, *triage.Record) {
	al := &alert.Alert{AttackType: attackType, Payload: "payload"}
	rec := &triage.Record{
		Success:   true,
		TaskID:    id,
		Timestamp: ts,
		Expert: triage.Finding{
			AttackTechnique: attackType,
			RiskScore:       score,
			ThreatLevel:     threatLevel,
		},
	}
	return al, rec
}

func TestSaveAndQuery(t *testing.T) {
	s := openStore(t, 100)
	ctx := context.Background()
	base := time.Now().Truncate(time.Microsecond).UTC()

	al, rec := seedRecord("pg-test-001", "sql_injection", "high", 8.5, base)
	id, err := s.Save(ctx, al, rec)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if id != "pg-test-001" {
		t.Errorf("Save id = %q, want pg-test-001", id)
	}

	entries, err := s.Query(ctx, triage.HistoryQuery{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len = %d, want 1", len(entries))
	}

	got := entries[0]
	if got.ID != "pg-test-001" || got.AttackType != "sql_injection" || got.ThreatLevel != "high" || got.RiskScore != 8.5 {
		t.Errorf("entry = %+v", got)
	}
	if got.Alert == nil || got.Alert.Payload != "payload" {
		t.Errorf("alert body not round-tripped: %+v", got.Alert)
	}
	if got.Record == nil || got.Record.Expert.RiskScore != 8.5 {
		t.Errorf("record body not round-tripped: %+v", got.Record)
	}
}

func TestQuery_FiltersAndOrder(t *testing.T) {
	s := openStore(t, 100)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Truncate(time.Microsecond).UTC()

	seed := []struct {
		id, attackType, level string
		offset                time.Duration
	}{
		{"pg-f1", "sql_injection", "high", 0},
		{"pg-f2", "xss", "medium", 10 * time.Minute},
		{"pg-f3", "sql_injection", "medium", 20 * time.Minute},
	}
	for _, e := range seed {
		al, rec := seedRecord(e.id, e.attackType, e.level, 5.0, base.Add(e.offset))
		if _, err := s.Save(ctx, al, rec); err != nil {
			t.Fatalf("Save %s: %v", e.id, err)
		}
	}

	all, err := s.Query(ctx, triage.HistoryQuery{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(all) != 3 || all[0].ID != "pg-f3" || all[2].ID != "pg-f1" {
		t.Errorf("order = %v, want newest first", ids(all))
	}

	filtered, err := s.Query(ctx, triage.HistoryQuery{AttackType: "sql_injection", ThreatLevel: "medium"})
	if err != nil {
		t.Fatalf("Query filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != "pg-f3" {
		t.Errorf("filtered = %v, want [pg-f3]", ids(filtered))
	}

	windowed, err := s.Query(ctx, triage.HistoryQuery{
		StartTime: base.Add(5 * time.Minute),
		EndTime:   base.Add(15 * time.Minute),
	})
	if err != nil {
		t.Fatalf("Query windowed: %v", err)
	}
	if len(windowed) != 1 || windowed[0].ID != "pg-f2" {
		t.Errorf("windowed = %v, want [pg-f2]", ids(windowed))
	}

	paged, err := s.Query(ctx, triage.HistoryQuery{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("Query paged: %v", err)
	}
	if len(paged) != 1 || paged[0].ID != "pg-f2" {
		t.Errorf("paged = %v, want [pg-f2]", ids(paged))
	}
}

func TestSave_TrimsBeyondCapacity(t *testing.T) {
	s := openStore(t, 5)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Truncate(time.Microsecond).UTC()

	for i := 0; i < 8; i++ {
		al, rec := seedRecord(fmt.Sprintf("pg-cap-%d", i), "sql", "high", 8.0, base.Add(time.Duration(i)*time.Minute))
		if _, err := s.Save(ctx, al, rec); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	entries, err := s.Query(ctx, triage.HistoryQuery{Limit: 100})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("len = %d, want capacity 5", len(entries))
	}
	if entries[0].ID != "pg-cap-7" {
		t.Errorf("head = %q, want newest pg-cap-7", entries[0].ID)
	}
	for _, e := range entries {
		if e.ID == "pg-cap-0" || e.ID == "pg-cap-1" || e.ID == "pg-cap-2" {
			t.Errorf("entry %q survived trim", e.ID)
		}
	}
}

func TestStats(t *testing.T) {
	s := openStore(t, 100)
	ctx := context.Background()
	base := time.Now().Truncate(time.Microsecond).UTC()

	seed := []struct {
		id, attackType, level string
	}{
		{"pg-s1", "sql_injection", "high"},
		{"pg-s2", "sql_injection", "high"},
		{"pg-s3", "xss", "medium"},
	}
	for _, e := range seed {
		al, rec := seedRecord(e.id, e.attackType, e.level, 5.0, base)
		if _, err := s.Save(ctx, al, rec); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalAnalyses != 3 {
		t.Errorf("TotalAnalyses = %d, want 3", stats.TotalAnalyses)
	}
	if stats.ThreatLevels["high"] != 2 || stats.ThreatLevels["medium"] != 1 {
		t.Errorf("ThreatLevels = %v", stats.ThreatLevels)
	}
	if stats.AttackTypes["sql_injection"] != 2 || stats.AttackTypes["xss"] != 1 {
		t.Errorf("AttackTypes = %v", stats.AttackTypes)
	}
}

func ids(entries []triage.HistoryEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
