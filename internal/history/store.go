// Package history keeps a SQLite record of organizer runs so that status
// changes between runs can be inspected later.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"stubprobe/internal/organize"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Run is one recorded organizer run.
type Run struct {
	ID            string        `json:"id"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	DryRun        bool          `json:"dry_run"`
	Root          string        `json:"root"`
	Implemented   int           `json:"implemented"`
	Unimplemented int           `json:"unimplemented"`
	Moved         int           `json:"moved"`
	Skipped       int           `json:"skipped"`
	Failed        int           `json:"failed"`
}

// Outcome is one module's verdict and move result within a run.
type Outcome struct {
	RunID       string `json:"run_id"`
	Module      string `json:"module"`
	URL         string `json:"url"`
	Implemented bool   `json:"implemented"`
	Source      string `json:"source"`
	Outcome     string `json:"outcome"`
	Detail      string `json:"detail,omitempty"`
	Err         string `json:"error,omitempty"`
}

// Change is a module whose verdict differs between two consecutive runs.
type Change struct {
	Module string `json:"module"`
	Before bool   `json:"before"`
	After  bool   `json:"after"`
}

// Store manages the run history database.
type Store struct {
	db     *sql.DB
	dbPath string
	keep   int
	logger *zap.Logger
	mu     sync.RWMutex
}

// Open creates or opens the history database at path. keep bounds how many
// runs are retained; values below 1 keep every run.
func Open(path string, keep int, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if keep < 0 {
		keep = 0
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// A single writer keeps SQLite from reporting SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dbPath: path, keep: keep, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		dry_run INTEGER NOT NULL DEFAULT 0,
		root TEXT NOT NULL,
		implemented INTEGER NOT NULL,
		unimplemented INTEGER NOT NULL,
		moved INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		failed INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS outcomes (
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		module TEXT NOT NULL,
		url TEXT NOT NULL,
		implemented INTEGER NOT NULL,
		source TEXT NOT NULL,
		outcome TEXT NOT NULL,
		detail TEXT,
		error TEXT,
		PRIMARY KEY (run_id, position),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_outcomes_module ON outcomes(module);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores report and prunes runs beyond the retention limit.
func (s *Store) Record(ctx context.Context, report *organize.Report) error {
	if report == nil {
		return fmt.Errorf("record run: nil report")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, duration_ms, dry_run, root,
			implemented, unimplemented, moved, skipped, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, report.RunID, report.StartedAt.UnixMilli(), report.Duration().Milliseconds(), boolInt(report.DryRun), report.Root,
		len(report.Implemented), len(report.Unimplemented),
		report.Count(organize.OutcomeMoved), report.Count(organize.OutcomeSkippedMissing), report.Count(organize.OutcomeFailed))
	if err != nil {
		return fmt.Errorf("insert run %s: %w", report.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO outcomes (run_id, position, module, url, implemented, source, outcome, detail, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare outcomes: %w", err)
	}
	defer stmt.Close()

	verdicts := make(map[string]int, len(report.Verdicts))
	for i, v := range report.Verdicts {
		verdicts[v.ID] = i
	}
	for i, op := range report.Operations {
		var url, source string
		var implemented bool
		if vi, ok := verdicts[op.ID]; ok {
			v := report.Verdicts[vi]
			url, source, implemented = v.URL, string(v.Source), v.Implemented
		}
		if _, err := stmt.ExecContext(ctx, report.RunID, i, op.ID, url, boolInt(implemented), source,
			string(op.Outcome), op.Detail, op.Err); err != nil {
			return fmt.Errorf("insert outcome %s: %w", op.ID, err)
		}
	}

	pruned, err := s.pruneLocked(ctx, tx)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("run recorded",
		zap.String("run_id", report.RunID),
		zap.Int("outcomes", len(report.Operations)),
		zap.Int64("pruned", pruned))
	return nil
}

func (s *Store) pruneLocked(ctx context.Context, tx *sql.Tx) (int64, error) {
	if s.keep == 0 {
		return 0, nil
	}
	res, err := tx.ExecContext(ctx, `
		DELETE FROM runs WHERE seq NOT IN (
			SELECT seq FROM runs ORDER BY seq DESC LIMIT ?
		)
	`, s.keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Recent returns up to limit runs, newest first. A limit below 1 returns all.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, duration_ms, dry_run, root,
			implemented, unimplemented, moved, skipped, failed
		FROM runs ORDER BY seq DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedMs, durationMs int64
		var dryRun int
		if err := rows.Scan(&r.ID, &startedMs, &durationMs, &dryRun, &r.Root,
			&r.Implemented, &r.Unimplemented, &r.Moved, &r.Skipped, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(startedMs)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.DryRun = dryRun != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Outcomes returns the per-module rows of runID in registry order.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, module, url, implemented, source, outcome, detail, error
		FROM outcomes WHERE run_id = ? ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var o Outcome
		var implemented int
		var detail, errText sql.NullString
		if err := rows.Scan(&o.RunID, &o.Module, &o.URL, &implemented, &o.Source, &o.Outcome, &detail, &errText); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Implemented = implemented != 0
		o.Detail = detail.String
		o.Err = errText.String
		out = append(out, o)
	}
	return out, rows.Err()
}

// Changes lists modules whose verdict differs between the two most recent
// non-dry runs. Modules absent from either run are ignored.
func (s *Store) Changes(ctx context.Context) ([]Change, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		WITH latest AS (
			SELECT id, ROW_NUMBER() OVER (ORDER BY seq DESC) AS rn
			FROM runs WHERE dry_run = 0
		)
		SELECT cur.module, prev.implemented, cur.implemented
		FROM outcomes cur
		JOIN latest lc ON lc.id = cur.run_id AND lc.rn = 1
		JOIN latest lp ON lp.rn = 2
		JOIN outcomes prev ON prev.run_id = lp.id AND prev.module = cur.module
		WHERE cur.source != '' AND prev.source != '' AND cur.implemented != prev.implemented
		ORDER BY cur.position
	`)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	var changes []Change
	for rows.Next() {
		var c Change
		var before, after int
		if err := rows.Scan(&c.Module, &before, &after); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		c.Before, c.After = before != 0, after != 0
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
