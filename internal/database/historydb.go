package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/treewalk/internal/model"
	"github.com/nao1215/treewalk/internal/treepath"
)

// FileName is the history database file inside the data directory.
const FileName = "treewalk.db"

// HistoryDB stores finished runs so they can be listed and compared later.
// The CSV checkpoint remains the source of truth for resuming; the history
// database is written once per run, after the walk.
type HistoryDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a HistoryDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file; mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

func (h *HistoryDB) createTables() error {
	schema := `
	-- One row per traversal execution
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		outcome TEXT NOT NULL,
		resumed INTEGER NOT NULL DEFAULT 0,
		resumed_from TEXT,
		start_url TEXT,
		start_title TEXT,
		output_dir TEXT,
		error TEXT,
		stats_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- Visited nodes, in visit order
	CREATE TABLE IF NOT EXISTS visits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		level INTEGER NOT NULL,
		node_name TEXT NOT NULL,
		url TEXT,
		title TEXT,
		visited_at DATETIME NOT NULL,
		latency_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_visits_run ON visits(run_id);
	CREATE INDEX IF NOT EXISTS idx_visits_name ON visits(node_name);

	CREATE TABLE IF NOT EXISTS failures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		node_name TEXT NOT NULL,
		level INTEGER NOT NULL,
		reason TEXT,
		occurred_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_failures_run ON failures(run_id);

	CREATE TABLE IF NOT EXISTS denied (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		node_name TEXT NOT NULL,
		level INTEGER NOT NULL,
		url TEXT,
		title TEXT,
		marker TEXT,
		occurred_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_denied_run ON denied(run_id);
	`

	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// RunSummary is one row of the run list.
type RunSummary struct {
	ID          int64         `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     time.Time     `json:"ended_at"`
	Outcome     model.Outcome `json:"outcome"`
	Resumed     bool          `json:"resumed"`
	StartURL    string        `json:"start_url,omitempty"`
	Visits      int           `json:"visits"`
	Failures    int           `json:"failures"`
	Denied      int           `json:"denied"`
	TotalFound  int           `json:"total_found"`
	ResumedFrom string        `json:"resumed_from,omitempty"`
}

// SaveRun stores report and its records in one transaction and sets
// report.ID.
func (h *HistoryDB) SaveRun(ctx context.Context, report *model.RunReport) (int64, error) {
	stats := report.Stats
	if stats == nil {
		stats = model.NewRunStats()
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize stats: %w", err)
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
	INSERT INTO runs (started_at, ended_at, outcome, resumed, resumed_from, start_url, start_title, output_dir, error, stats_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		formatTimestamp(stats.StartedAt),
		formatTimestamp(stats.EndedAt),
		report.Outcome.String(),
		report.Resumed,
		report.ResumedFrom,
		report.StartLocation.URL,
		report.StartLocation.Title,
		report.OutputDir,
		report.Error,
		string(statsJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}

	for _, v := range report.Visits {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO visits (run_id, path, level, node_name, url, title, visited_at, latency_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, v.Path.String(), v.Level, v.NodeName, v.URL, v.Title,
			formatTimestamp(v.VisitedAt), v.ResponseLatency.Milliseconds(),
		); err != nil {
			return 0, fmt.Errorf("failed to save visit %s: %w", v.Path, err)
		}
	}

	for _, f := range report.Failures {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO failures (run_id, node_name, level, reason, occurred_at)
		VALUES (?, ?, ?, ?, ?)`,
			id, f.NodeName, f.Level, f.Reason, formatTimestamp(f.Timestamp),
		); err != nil {
			return 0, fmt.Errorf("failed to save failure %q: %w", f.NodeName, err)
		}
	}

	for _, d := range report.Denied {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO denied (run_id, node_name, level, url, title, marker, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, d.NodeName, d.Level, d.URL, d.Title, d.Marker, formatTimestamp(d.Timestamp),
		); err != nil {
			return 0, fmt.Errorf("failed to save denied %q: %w", d.NodeName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	report.ID = id
	return id, nil
}

// ListRuns returns the newest runs first. A limit of zero or less lists all.
func (h *HistoryDB) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `
	SELECT r.id, r.started_at, r.ended_at, r.outcome, r.resumed, r.resumed_from, r.start_url, r.stats_json,
		(SELECT COUNT(*) FROM visits v WHERE v.run_id = r.id),
		(SELECT COUNT(*) FROM failures f WHERE f.run_id = r.id),
		(SELECT COUNT(*) FROM denied d WHERE d.run_id = r.id)
	FROM runs r
	ORDER BY r.started_at DESC, r.id DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			s                            RunSummary
			started, outcome, statsJSON  string
			ended, resumedFrom, startURL sql.NullString
		)
		if err := rows.Scan(&s.ID, &started, &ended, &outcome, &s.Resumed, &resumedFrom, &startURL, &statsJSON,
			&s.Visits, &s.Failures, &s.Denied); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.StartedAt = parseTimestamp(started)
		s.EndedAt = parseTimestamp(ended.String)
		s.Outcome, _ = model.ParseOutcome(outcome) //nolint:errcheck // unknown outcomes list as completed
		s.ResumedFrom = resumedFrom.String
		s.StartURL = startURL.String

		var stats model.RunStats
		if err := json.Unmarshal([]byte(statsJSON), &stats); err == nil {
			s.TotalFound = stats.TotalFound
		}
		runs = append(runs, s)
	}
	return runs, rows.Err()
}

// GetRun loads a run and its records. It returns nil without error when no
// run has that id.
func (h *HistoryDB) GetRun(ctx context.Context, id int64) (*model.RunReport, error) {
	var (
		started, outcome, statsJSON                         string
		ended, resumedFrom, startURL, startTitle, outDir, e sql.NullString
		resumed                                             bool
	)
	err := h.db.QueryRowContext(ctx, `
	SELECT started_at, ended_at, outcome, resumed, resumed_from, start_url, start_title, output_dir, error, stats_json
	FROM runs WHERE id = ?`, id).Scan(
		&started, &ended, &outcome, &resumed, &resumedFrom, &startURL, &startTitle, &outDir, &e, &statsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %d: %w", id, err)
	}

	report := model.NewRunReport()
	report.ID = id
	report.Outcome, _ = model.ParseOutcome(outcome) //nolint:errcheck // unknown outcomes load as completed
	report.Resumed = resumed
	report.ResumedFrom = resumedFrom.String
	report.StartLocation = model.Location{URL: startURL.String, Title: startTitle.String}
	report.OutputDir = outDir.String
	report.Error = e.String

	if err := json.Unmarshal([]byte(statsJSON), report.Stats); err != nil {
		return nil, fmt.Errorf("failed to parse stats of run %d: %w", id, err)
	}
	if report.Stats.StartedAt.IsZero() {
		report.Stats.StartedAt = parseTimestamp(started)
	}
	if report.Stats.EndedAt.IsZero() {
		report.Stats.EndedAt = parseTimestamp(ended.String)
	}

	if report.Visits, err = h.visits(ctx, id); err != nil {
		return nil, err
	}
	if report.Failures, err = h.failures(ctx, id); err != nil {
		return nil, err
	}
	if report.Denied, err = h.denied(ctx, id); err != nil {
		return nil, err
	}
	return report, nil
}

// GetLatestRun loads the most recent run, or nil when the history is empty.
func (h *HistoryDB) GetLatestRun(ctx context.Context) (*model.RunReport, error) {
	var id int64
	err := h.db.QueryRowContext(ctx, `SELECT id FROM runs ORDER BY started_at DESC, id DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return h.GetRun(ctx, id)
}

func (h *HistoryDB) visits(ctx context.Context, runID int64) ([]model.VisitRecord, error) {
	rows, err := h.db.QueryContext(ctx, `
	SELECT path, level, node_name, url, title, visited_at, latency_ms
	FROM visits WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get visits: %w", err)
	}
	defer rows.Close()

	visits := make([]model.VisitRecord, 0)
	for rows.Next() {
		var (
			v             model.VisitRecord
			path, visited string
			url, title    sql.NullString
			latencyMS     int64
		)
		if err := rows.Scan(&path, &v.Level, &v.NodeName, &url, &title, &visited, &latencyMS); err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}
		p, err := treepath.Parse(path)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored path %q: %w", path, err)
		}
		v.Path = p
		v.URL = url.String
		v.Title = title.String
		v.VisitedAt = parseTimestamp(visited)
		v.ResponseLatency = time.Duration(latencyMS) * time.Millisecond
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

func (h *HistoryDB) failures(ctx context.Context, runID int64) ([]model.FailureRecord, error) {
	rows, err := h.db.QueryContext(ctx, `
	SELECT node_name, level, reason, occurred_at FROM failures WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get failures: %w", err)
	}
	defer rows.Close()

	failures := make([]model.FailureRecord, 0)
	for rows.Next() {
		var (
			f      model.FailureRecord
			reason sql.NullString
			at     string
		)
		if err := rows.Scan(&f.NodeName, &f.Level, &reason, &at); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		f.Reason = reason.String
		f.Timestamp = parseTimestamp(at)
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

func (h *HistoryDB) denied(ctx context.Context, runID int64) ([]model.DeniedRecord, error) {
	rows, err := h.db.QueryContext(ctx, `
	SELECT node_name, level, url, title, marker, occurred_at FROM denied WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get denied records: %w", err)
	}
	defer rows.Close()

	denied := make([]model.DeniedRecord, 0)
	for rows.Next() {
		var (
			d                  model.DeniedRecord
			url, title, marker sql.NullString
			at                 string
		)
		if err := rows.Scan(&d.NodeName, &d.Level, &url, &title, &marker, &at); err != nil {
			return nil, fmt.Errorf("failed to scan denied record: %w", err)
		}
		d.URL = url.String
		d.Title = title.String
		d.Marker = marker.String
		d.Timestamp = parseTimestamp(at)
		denied = append(denied, d)
	}
	return denied, rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05.000", // formatTimestamp
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,
	time.RFC3339Nano,
}

// formatTimestamp stores local wall-clock time with milliseconds so runs
// started within the same second still sort correctly.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04:05.000")
}

// parseTimestamp parses s as local time using timestampFormats.
// It returns zero time when no format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.ParseInLocation(format, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}
