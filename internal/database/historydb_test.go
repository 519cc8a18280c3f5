package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/treewalk/internal/model"
	"github.com/nao1215/treewalk/internal/treepath"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *HistoryDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mustPath(t *testing.T, s string) treepath.Path {
	t.Helper()

	p, err := treepath.Parse(s)
	if err != nil {
		t.Fatalf("failed to parse path %q: %v", s, err)
	}
	return p
}

// sampleReport builds a run with two visits, one failure and one denied item.
func sampleReport(t *testing.T, started time.Time) *model.RunReport {
	t.Helper()

	report := model.NewRunReport()
	report.Outcome = model.OutcomeStopped
	report.Resumed = true
	report.ResumedFrom = "1"
	report.StartLocation = model.Location{URL: "https://wiki.example.com/home", Title: "Home"}
	report.OutputDir = "/tmp/out"
	report.Visits = []model.VisitRecord{
		{
			Path:            mustPath(t, "2"),
			Level:           0,
			NodeName:        "Design",
			URL:             "https://wiki.example.com/design",
			Title:           "Design",
			VisitedAt:       started.Add(time.Second),
			ResponseLatency: 1500 * time.Millisecond,
		},
		{
			Path:      mustPath(t, "2-1"),
			Level:     1,
			NodeName:  "設計書",
			URL:       "https://wiki.example.com/design/doc",
			Title:     "設計書",
			VisitedAt: started.Add(2 * time.Second),
		},
	}
	report.Failures = []model.FailureRecord{
		{NodeName: "Broken", Level: 0, Reason: "click failed", Timestamp: started.Add(3 * time.Second)},
	}
	report.Denied = []model.DeniedRecord{
		{NodeName: "Secret", Level: 1, URL: "https://wiki.example.com/denied", Marker: "/denied", Timestamp: started.Add(4 * time.Second)},
	}
	report.Stats.StartedAt = started
	report.Stats.EndedAt = started.Add(time.Minute)
	report.Stats.TotalFound = 4
	report.Stats.RecordVisit(0)
	report.Stats.RecordVisit(1)
	report.Stats.AccessFailed = 1
	report.Stats.PermissionDenied = 1
	return report
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("Path() = %q", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "nonexistent-db")
		_, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err == nil {
			t.Fatal("expected error when CreateIfNotExists=false and database does not exist")
		}
		if !strings.Contains(err.Error(), "database not found") {
			t.Errorf("unexpected error message: %v", err)
		}
		if _, statErr := os.Stat(dbDir); !os.IsNotExist(statErr) {
			t.Error("database directory should not have been created")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "existing-db")
		db1, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		ctx := context.Background()
		if _, err := db1.SaveRun(ctx, sampleReport(t, time.Now())); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
		_ = db1.Close()

		db2, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		defer db2.Close()

		runs, err := db2.ListRuns(ctx, 0)
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}
		if len(runs) != 1 {
			t.Errorf("expected 1 run after reopen, got %d", len(runs))
		}
	})
}

func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	if !opts.CreateIfNotExists {
		t.Error("expected CreateIfNotExists to be true")
	}
	if !opts.EnableWAL {
		t.Error("expected EnableWAL to be true")
	}
}

func TestSaveAndGetRun(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)

	report := sampleReport(t, started)
	id, err := db.SaveRun(ctx, report)
	if err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if id == 0 || report.ID != id {
		t.Fatalf("expected report.ID to be set to %d, got %d", id, report.ID)
	}

	got, err := db.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected run, got nil")
	}

	if got.Outcome != model.OutcomeStopped {
		t.Errorf("Outcome = %v, want stopped", got.Outcome)
	}
	if !got.Resumed || got.ResumedFrom != "1" {
		t.Errorf("resume fields = %v %q", got.Resumed, got.ResumedFrom)
	}
	if got.StartLocation.URL != report.StartLocation.URL {
		t.Errorf("StartLocation.URL = %q", got.StartLocation.URL)
	}
	if len(got.Visits) != 2 {
		t.Fatalf("expected 2 visits, got %d", len(got.Visits))
	}
	if got.Visits[1].Path.String() != "2-1" || got.Visits[1].NodeName != "設計書" {
		t.Errorf("second visit = %+v", got.Visits[1])
	}
	if got.Visits[0].ResponseLatency != 1500*time.Millisecond {
		t.Errorf("latency = %v", got.Visits[0].ResponseLatency)
	}
	if !got.Visits[0].VisitedAt.Equal(started.Add(time.Second)) {
		t.Errorf("VisitedAt = %v", got.Visits[0].VisitedAt)
	}
	if len(got.Failures) != 1 || got.Failures[0].Reason != "click failed" {
		t.Errorf("failures = %+v", got.Failures)
	}
	if len(got.Denied) != 1 || got.Denied[0].Marker != "/denied" {
		t.Errorf("denied = %+v", got.Denied)
	}
	if got.Stats.TotalFound != 4 || got.Stats.LevelCounts[2] != 1 {
		t.Errorf("stats = %+v", got.Stats)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)

	got, err := db.GetRun(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing run, got %+v", got)
	}
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)

	for i := range 3 {
		if _, err := db.SaveRun(ctx, sampleReport(t, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("SaveRun %d failed: %v", i, err)
		}
	}

	runs, err := db.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if !runs[0].StartedAt.After(runs[1].StartedAt) {
		t.Error("expected newest run first")
	}
	first := runs[0]
	if first.Visits != 2 || first.Failures != 1 || first.Denied != 1 || first.TotalFound != 4 {
		t.Errorf("summary counts = %+v", first)
	}

	limited, err := db.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns with limit failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 runs with limit, got %d", len(limited))
	}
}

func TestGetLatestRun(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	latest, err := db.GetLatestRun(ctx)
	if err != nil {
		t.Fatalf("GetLatestRun on empty db failed: %v", err)
	}
	if latest != nil {
		t.Fatal("expected nil on empty history")
	}

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)
	if _, err := db.SaveRun(ctx, sampleReport(t, base)); err != nil {
		t.Fatal(err)
	}
	newer := sampleReport(t, base.Add(time.Hour))
	newer.Outcome = model.OutcomeCompleted
	id, err := db.SaveRun(ctx, newer)
	if err != nil {
		t.Fatal(err)
	}

	latest, err = db.GetLatestRun(ctx)
	if err != nil {
		t.Fatalf("GetLatestRun failed: %v", err)
	}
	if latest == nil || latest.ID != id {
		t.Fatalf("expected run %d, got %+v", id, latest)
	}
	if latest.Outcome != model.OutcomeCompleted {
		t.Errorf("Outcome = %v", latest.Outcome)
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		zero  bool
	}{
		{name: "milliseconds", input: "2026-03-01 10:00:00.250"},
		{name: "sqlite default", input: "2026-03-01 10:00:00"},
		{name: "iso with Z", input: "2026-03-01T10:00:00Z"},
		{name: "rfc3339", input: "2026-03-01T10:00:00+09:00"},
		{name: "empty", input: "", zero: true},
		{name: "garbage", input: "yesterday", zero: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := parseTimestamp(tt.input)
			if got.IsZero() != tt.zero {
				t.Errorf("parseTimestamp(%q) = %v, zero want %v", tt.input, got, tt.zero)
			}
		})
	}
}

func TestFormatTimestamp_RoundTrip(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 1, 10, 0, 0, 123_000_000, time.Local)
	if got := parseTimestamp(formatTimestamp(ts)); !got.Equal(ts) {
		t.Errorf("round trip = %v, want %v", got, ts)
	}
	if formatTimestamp(time.Time{}) != "" {
		t.Error("zero time should format as empty string")
	}
}
