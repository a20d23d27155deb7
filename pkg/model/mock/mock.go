// Package mock provides a scripted model.Provider for offline runs and tests.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/nstogner/crew/pkg/domain"
	"github.com/nstogner/crew/pkg/model"
)

// ErrExhausted is returned once every scripted reply has been used.
var ErrExhausted = errors.New("mock provider has no replies left")

// Provider answers each Stream call with the next scripted reply.
type Provider struct {
	mu      sync.Mutex
	replies []string
	errs    map[int]error
	calls   [][]domain.Message
}

// Verify interface compliance.
var _ model.Provider = (*Provider)(nil)

// New creates a provider that returns replies in order.
func New(replies ...string) *Provider {
	return &Provider{
		replies: replies,
		errs:    make(map[int]error),
	}
}

// FailAt makes call n (zero-based) fail with err instead of consuming a reply.
func (p *Provider) FailAt(n int, err error) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[n] = err
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "mock" }

// List returns the single mock model.
func (p *Provider) List(ctx context.Context) ([]domain.Model, error) {
	return []domain.Model{{ID: "mock", Name: "Scripted replies", Provider: "mock"}}, nil
}

// Stream records the conversation and returns the next reply.
func (p *Provider) Stream(ctx context.Context, modelName string, messages []domain.Message) (model.ModelStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.calls)
	p.calls = append(p.calls, append([]domain.Message(nil), messages...))

	if err, ok := p.errs[n]; ok {
		return &stream{err: err}, nil
	}
	if len(p.replies) == 0 {
		return &stream{err: ErrExhausted}, nil
	}
	reply := p.replies[0]
	p.replies = p.replies[1:]
	return &stream{msg: domain.Message{Role: domain.RoleAssistant, Content: reply}}, nil
}

// Calls returns a copy of the history sent with every Stream call so far.
func (p *Provider) Calls() [][]domain.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]domain.Message(nil), p.calls...)
}

type stream struct {
	msg domain.Message
	err error
}

func (s *stream) FullMessage() (domain.Message, error) {
	if s.err != nil {
		return domain.Message{}, s.err
	}
	return s.msg, nil
}

func (s *stream) Close() error { return nil }
