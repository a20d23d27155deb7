package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nstogner/crew/pkg/domain"
	"github.com/nstogner/crew/pkg/store"
)

// Store implements store.Store using SQLite.
type Store struct {
	db          *sql.DB
	subscribers []chan string
	mu          sync.RWMutex
}

// Verify interface compliance at compile time.
var _ store.Store = (*Store)(nil)

// New opens (or creates) a SQLite database at the given path and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		sandbox_root TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL DEFAULT '',
		agents TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS stream_entries (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		agent TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		execution_failed INTEGER NOT NULL DEFAULT 0,
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		seq INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_stream_run_seq ON stream_entries(run_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- RunStore ---

func (s *Store) CreateRun(ctx context.Context, run *domain.Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	agents, err := json.Marshal(run.Agents)
	if err != nil {
		return fmt.Errorf("encoding agents: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, sandbox_root, provider, agents, created_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.SandboxRoot, run.Provider, string(agents), run.CreatedAt,
	)
	return err
}

func (s *Store) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT id, sandbox_root, provider, agents, created_at FROM runs WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Store) ListRuns(ctx context.Context) ([]domain.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sandbox_root, provider, agents, created_at FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.Run, error) {
	var run domain.Run
	var agents string
	if err := row.Scan(&run.ID, &run.SandboxRoot, &run.Provider, &agents, &run.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(agents), &run.Agents); err != nil {
		return nil, fmt.Errorf("decoding agents of run %s: %w", run.ID, err)
	}
	return &run, nil
}

// --- StreamStore ---

func (s *Store) Append(ctx context.Context, entry *domain.StreamEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	// Get next sequence number.
	var maxSeq int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM stream_entries WHERE run_id=?`,
		entry.RunID,
	).Scan(&maxSeq)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO stream_entries (id, run_id, agent, role, content, execution_failed, timestamp, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RunID, entry.Agent, entry.Role,
		entry.Content, entry.ExecutionFailed, entry.Timestamp, maxSeq+1,
	)
	if err != nil {
		return err
	}

	s.notifySubscribers(entry.RunID)
	return nil
}

const entryColumns = `id, run_id, agent, role, content, execution_failed, timestamp`

func (s *Store) GetEntries(ctx context.Context, runID string, limit int) ([]domain.StreamEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM stream_entries WHERE run_id=? ORDER BY seq ASC`
	args := []any{runID}

	if limit > 0 {
		// Subquery to get only the last N entries in ASC order.
		query = `SELECT ` + entryColumns + ` FROM (
			SELECT ` + entryColumns + `, seq
			FROM stream_entries WHERE run_id=? ORDER BY seq DESC LIMIT ?
		) sub ORDER BY seq ASC`
		args = append(args, limit)
	}

	return s.queryEntries(ctx, query, args...)
}

func (s *Store) GetEntriesAfter(ctx context.Context, runID string, afterID string) ([]domain.StreamEntry, error) {
	var afterSeq int
	err := s.db.QueryRowContext(ctx,
		`SELECT seq FROM stream_entries WHERE id=? AND run_id=?`, afterID, runID,
	).Scan(&afterSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return s.GetEntries(ctx, runID, 0)
	}
	if err != nil {
		return nil, err
	}

	return s.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM stream_entries WHERE run_id=? AND seq > ? ORDER BY seq ASC`,
		runID, afterSeq,
	)
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]domain.StreamEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.StreamEntry
	for rows.Next() {
		var e domain.StreamEntry
		if err := rows.Scan(&e.ID, &e.RunID, &e.Agent, &e.Role, &e.Content, &e.ExecutionFailed, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) Subscribe() <-chan string {
	ch := make(chan string, 64)
	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()
	return ch
}

func (s *Store) Unsubscribe(ch <-chan string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.subscribers {
		if c == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			return
		}
	}
}

func (s *Store) notifySubscribers(runID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- runID:
		default:
			// Drop if subscriber is not consuming fast enough.
		}
	}
}
