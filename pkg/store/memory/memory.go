// Package memory keeps run transcripts in process memory. It backs runs that
// should leave nothing on disk besides the sandbox.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nstogner/crew/pkg/domain"
	"github.com/nstogner/crew/pkg/store"
)

// Store implements store.Store in memory.
type Store struct {
	mu          sync.RWMutex
	runs        map[string]domain.Run
	entries     map[string][]domain.StreamEntry
	subscribers []chan string
}

// Verify interface compliance at compile time.
var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		runs:    make(map[string]domain.Run),
		entries: make(map[string][]domain.StreamEntry),
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) CreateRun(ctx context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	r := *run
	r.Agents = append([]string(nil), run.Agents...)
	s.runs[run.ID] = r
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, store.ErrNotFound)
	}
	return &r, nil
}

func (s *Store) ListRuns(ctx context.Context) ([]domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]domain.Run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

func (s *Store) Append(ctx context.Context, entry *domain.StreamEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	s.entries[entry.RunID] = append(s.entries[entry.RunID], *entry)
	s.mu.Unlock()

	s.notifySubscribers(entry.RunID)
	return nil
}

func (s *Store) GetEntries(ctx context.Context, runID string, limit int) ([]domain.StreamEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.entries[runID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]domain.StreamEntry(nil), all...), nil
}

func (s *Store) GetEntriesAfter(ctx context.Context, runID string, afterID string) ([]domain.StreamEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.entries[runID]
	for i, e := range all {
		if e.ID == afterID {
			return append([]domain.StreamEntry(nil), all[i+1:]...), nil
		}
	}
	return append([]domain.StreamEntry(nil), all...), nil
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
		}
	}
}
