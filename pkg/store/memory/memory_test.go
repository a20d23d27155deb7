package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nstogner/crew/pkg/domain"
	"github.com/nstogner/crew/pkg/store"
)

func TestRuns(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.CreateRun(ctx, &domain.Run{ID: "a", CreatedAt: time.Unix(100, 0)})
	s.CreateRun(ctx, &domain.Run{ID: "b", CreatedAt: time.Unix(200, 0)})

	if err := s.CreateRun(ctx, &domain.Run{ID: "a"}); err == nil {
		t.Error("duplicate CreateRun succeeded")
	}

	runs, _ := s.ListRuns(ctx)
	if len(runs) != 2 || runs[0].ID != "b" {
		t.Errorf("ListRuns = %+v, want newest first", runs)
	}

	if _, err := s.GetRun(ctx, "zzz"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetRun error = %v, want ErrNotFound", err)
	}
}

func TestEntries(t *testing.T) {
	s := New()
	ctx := context.Background()
	ch := s.Subscribe()

	for i := 0; i < 4; i++ {
		s.Append(ctx, &domain.StreamEntry{ID: fmt.Sprint(i), RunID: "r", Content: fmt.Sprint(i)})
	}

	select {
	case id := <-ch:
		if id != "r" {
			t.Errorf("subscriber got %q", id)
		}
	default:
		t.Error("subscriber did not receive event")
	}

	last, _ := s.GetEntries(ctx, "r", 2)
	if len(last) != 2 || last[0].ID != "2" {
		t.Errorf("GetEntries limit = %+v", last)
	}
	after, _ := s.GetEntriesAfter(ctx, "r", "1")
	if len(after) != 2 || after[0].ID != "2" {
		t.Errorf("GetEntriesAfter = %+v", after)
	}
	all, _ := s.GetEntriesAfter(ctx, "r", "nope")
	if len(all) != 4 {
		t.Errorf("GetEntriesAfter unknown len = %d, want 4", len(all))
	}
	if all[0].Timestamp.IsZero() {
		t.Error("Timestamp not filled in")
	}
}

func TestUnsubscribe(t *testing.T) {
	s := New()
	ctx := context.Background()
	kept := s.Subscribe()
	gone := s.Subscribe()

	s.Unsubscribe(gone)
	s.Unsubscribe(gone)
	s.Append(ctx, &domain.StreamEntry{ID: "1", RunID: "r"})

	select {
	case id := <-gone:
		t.Errorf("unsubscribed channel got %q", id)
	default:
	}
	select {
	case <-kept:
	default:
		t.Error("remaining subscriber did not receive event")
	}
	if n := len(s.subscribers); n != 1 {
		t.Errorf("subscribers = %d, want 1", n)
	}
}
