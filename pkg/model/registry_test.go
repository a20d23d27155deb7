package model

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/nstogner/crew/pkg/domain"
)

type stubProvider struct{ name string }

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) List(ctx context.Context) ([]domain.Model, error) { return nil, nil }

func (s *stubProvider) Stream(ctx context.Context, modelName string, messages []domain.Message) (ModelStream, error) {
	return nil, errors.New("not implemented")
}

func TestRegistryBuildsOnce(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.Register("stub", func(ctx context.Context) (Provider, error) {
		calls++
		return &stubProvider{name: "stub"}, nil
	})

	ctx := context.Background()
	p1, err := r.Get(ctx, "stub")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	p2, err := r.Get(ctx, "stub")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p1 != p2 {
		t.Error("Get returned different providers for the same selector")
	}
	if calls != 1 {
		t.Errorf("factory called %d times, want 1", calls)
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get(context.Background(), "nope"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("Get error = %v, want ErrUnknownProvider", err)
	}
}

func TestRegistryRetriesFailedConstruction(t *testing.T) {
	r := NewRegistry()
	fail := true
	r.Register("flaky", func(ctx context.Context) (Provider, error) {
		if fail {
			return nil, errors.New("no credentials")
		}
		return &stubProvider{name: "flaky"}, nil
	})

	if _, err := r.Get(context.Background(), "flaky"); err == nil {
		t.Fatal("expected error")
	}
	fail = false
	if _, err := r.Get(context.Background(), "flaky"); err != nil {
		t.Fatalf("Get after recovery: %v", err)
	}
}

func TestRegistrySelectors(t *testing.T) {
	r := NewRegistry()
	for _, s := range []string{"openai", "gemini", "mock"} {
		r.Register(s, func(ctx context.Context) (Provider, error) { return &stubProvider{}, nil })
	}
	want := []string{"gemini", "mock", "openai"}
	if got := r.Selectors(); !reflect.DeepEqual(got, want) {
		t.Errorf("Selectors() = %v, want %v", got, want)
	}
}
