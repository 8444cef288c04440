// Package auditstore persists anonymization run history to an embedded
// SQLite database. Writes are asynchronous so the web UI never blocks on
// disk; reads serve the run history page and operator queries.
package auditstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // register the pure-Go sqlite driver

	"pii-toolkit/internal/anonymize"
	"pii-toolkit/internal/logger"
)

// Schema for the audit tables. Applied by Open.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_runs (
	run_id TEXT PRIMARY KEY,
	format TEXT NOT NULL,
	source TEXT NOT NULL,
	degraded INTEGER NOT NULL,
	record_count INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_runs_ts ON audit_runs(created_at);

CREATE TABLE IF NOT EXISTS audit_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	placeholder TEXT NOT NULL,
	original TEXT NOT NULL,
	category TEXT NOT NULL,
	location TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_records_run ON audit_records(run_id);
`

// Run is one anonymization run to be persisted.
type Run struct {
	ID        string
	Format    string
	Source    string
	Degraded  bool
	Timestamp time.Time
	Records   []anonymize.AuditRecord
}

// RunSummary is a row of the run history listing.
type RunSummary struct {
	ID          string    `json:"id"`
	Format      string    `json:"format"`
	Source      string    `json:"source"`
	Degraded    bool      `json:"degraded"`
	RecordCount int       `json:"recordCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store persists audit runs asynchronously.
type Store struct {
	db   *sql.DB
	log  *logger.Logger
	ch   chan *Run
	done chan struct{}
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the SQLite database at path, applies the schema
// and starts the flush goroutine.
func Open(path string, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.New("auditstore", "info")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db %q: %w", path, err)
	}
	// SQLite accepts one writer at a time.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(Schema); err != nil {
		db.Close() //nolint:errcheck // best-effort close on init failure
		return nil, fmt.Errorf("apply audit schema: %w", err)
	}

	s := &Store{
		db:   db,
		log:  log,
		ch:   make(chan *Run, 1024),
		done: make(chan struct{}),
	}
	go s.flushLoop()
	return s, nil
}

// RecordRun queues a run for async persistence. Non-blocking; drops if the
// buffer is full or the store is already closed.
func (s *Store) RecordRun(r *Run) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.log.Warnf("record", "store closed, dropping run %s", r.ID)
		return
	}
	select {
	case s.ch <- r:
	default:
		s.log.Warnf("record", "audit buffer full, dropping run %s", r.ID)
	}
}

// Recent returns up to limit run summaries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, format, source, degraded, record_count, created_at
		FROM audit_runs ORDER BY created_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var degraded int
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.Format, &r.Source, &degraded, &r.RecordCount, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit run: %w", err)
		}
		r.Degraded = degraded != 0
		r.CreatedAt = time.Unix(0, createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Run returns the summary of a single run, or nil when unknown.
func (s *Store) Run(ctx context.Context, runID string) (*RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, format, source, degraded, record_count, created_at
		FROM audit_runs WHERE run_id = ?`, runID)

	var r RunSummary
	var degraded int
	var createdAt int64
	if err := row.Scan(&r.ID, &r.Format, &r.Source, &degraded, &r.RecordCount, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query audit run %s: %w", runID, err)
	}
	r.Degraded = degraded != 0
	r.CreatedAt = time.Unix(0, createdAt)
	return &r, nil
}

// Records returns the audit records of one run in insertion order.
func (s *Store) Records(ctx context.Context, runID string) ([]anonymize.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT placeholder, original, category, location
		FROM audit_records WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []anonymize.AuditRecord
	for rows.Next() {
		var rec anonymize.AuditRecord
		if err := rows.Scan(&rec.Placeholder, &rec.Original, &rec.Category, &rec.Location); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close drains the buffer, stops the flush goroutine and closes the database.
// Concurrent RecordRun calls drop instead of panicking on the closed channel.
func (s *Store) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.ch)
		<-s.done
	})
	return s.db.Close()
}

func (s *Store) flushLoop() {
	defer close(s.done)

	batch := make([]*Run, 0, 64)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				s.flushBatch(batch)
				return
			}
			batch = append(batch, r)
			if len(batch) >= 64 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *Store) flushBatch(batch []*Run) {
	if len(batch) == 0 {
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		s.log.Errorf("flush", "begin tx: %v", err)
		return
	}

	runStmt, err := tx.Prepare(`INSERT OR REPLACE INTO audit_runs
		(run_id, format, source, degraded, record_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		s.log.Errorf("flush", "prepare run insert: %v", err)
		return
	}
	defer runStmt.Close() //nolint:errcheck

	recStmt, err := tx.Prepare(`INSERT INTO audit_records
		(run_id, placeholder, original, category, location)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		s.log.Errorf("flush", "prepare record insert: %v", err)
		return
	}
	defer recStmt.Close() //nolint:errcheck

	for _, r := range batch {
		degraded := 0
		if r.Degraded {
			degraded = 1
		}
		if _, err := runStmt.Exec(r.ID, r.Format, r.Source, degraded, len(r.Records), r.Timestamp.UnixNano()); err != nil {
			s.log.Errorf("flush", "insert run %s: %v", r.ID, err)
			continue
		}
		for _, rec := range r.Records {
			if _, err := recStmt.Exec(r.ID, rec.Placeholder, rec.Original, string(rec.Category), rec.Location); err != nil {
				s.log.Errorf("flush", "insert record for %s: %v", r.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		s.log.Errorf("flush", "commit: %v", err)
	}
}
