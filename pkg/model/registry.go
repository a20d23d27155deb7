package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrUnknownProvider is returned when a selector has no registered factory.
var ErrUnknownProvider = errors.New("unknown provider")

// Factory constructs a provider. It is called at most once per Registry.
type Factory func(ctx context.Context) (Provider, error)

// Registry maps provider selectors to lazily constructed providers. Each
// provider is built on first use and reused for the life of the registry.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	providers map[string]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		providers: make(map[string]Provider),
	}
}

// Register adds a factory for selector, replacing any previous one. A
// provider already built for selector is discarded.
func (r *Registry) Register(selector string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[selector] = f
	delete(r.providers, selector)
}

// Get returns the provider for selector, constructing it on first use.
// A failed construction is not cached, so a later call tries again.
func (r *Registry) Get(ctx context.Context, selector string) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.providers[selector]; ok {
		return p, nil
	}
	f, ok := r.factories[selector]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, selector)
	}
	p, err := f(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating provider %s: %w", selector, err)
	}
	slog.Info("Provider ready", "provider", selector)
	r.providers[selector] = p
	return p, nil
}

// Selectors returns the registered selectors in sorted order.
func (r *Registry) Selectors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.factories))
	for s := range r.factories {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
