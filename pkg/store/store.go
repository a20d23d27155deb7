package store

import (
	"context"
	"errors"

	"github.com/nstogner/crew/pkg/domain"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// RunStore manages the records of orchestration runs.
type RunStore interface {
	// CreateRun persists a new run. The ID field must be set by the caller.
	CreateRun(ctx context.Context, run *domain.Run) error

	// GetRun retrieves a run by its unique ID.
	// Returns ErrNotFound if the run does not exist.
	GetRun(ctx context.Context, id string) (*domain.Run, error)

	// ListRuns returns all runs, ordered by creation time descending.
	ListRuns(ctx context.Context) ([]domain.Run, error)
}

// StreamStore manages the append-only transcript of each run. Every message
// a session adds to an agent's history is appended as one entry.
type StreamStore interface {
	// Append adds a new entry to the end of the run's stream.
	// The entry's ID should be set by the caller; a zero Timestamp is
	// filled in.
	Append(ctx context.Context, entry *domain.StreamEntry) error

	// GetEntries returns the run's entries in chronological order.
	// If limit > 0, returns at most the last limit entries.
	GetEntries(ctx context.Context, runID string, limit int) ([]domain.StreamEntry, error)

	// GetEntriesAfter returns entries appended after the given entry ID.
	// An unknown afterID returns every entry.
	GetEntriesAfter(ctx context.Context, runID string, afterID string) ([]domain.StreamEntry, error)

	// Subscribe returns a channel that emits run IDs whenever new entries
	// are appended to any run's stream. Slow subscribers miss notifications
	// rather than block writers.
	Subscribe() <-chan string
	// Unsubscribe stops notifications on a channel returned by Subscribe.
	Unsubscribe(ch <-chan string)
}

// Store is the full transcript store.
type Store interface {
	RunStore
	StreamStore
	Close() error
}
