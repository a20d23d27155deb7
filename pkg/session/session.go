// Package session holds the conversation of one agent: its history, the
// model it talks to and the dispatcher that applies its commands.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/nstogner/crew/pkg/command"
	"github.com/nstogner/crew/pkg/dispatch"
	"github.com/nstogner/crew/pkg/domain"
	"github.com/nstogner/crew/pkg/model"
	"github.com/nstogner/crew/pkg/store"
)

// Session is one agent's conversation. It is driven by a single caller at a
// time; History may be read concurrently.
type Session struct {
	name       string
	provider   model.Provider
	modelName  string
	dispatcher *dispatch.Dispatcher

	stream store.StreamStore
	runID  string

	mu      sync.RWMutex
	history []domain.Message
}

// Option configures a Session.
type Option func(*Session)

// WithRecorder appends every message of the session to stream under runID.
func WithRecorder(stream store.StreamStore, runID string) Option {
	return func(s *Session) {
		s.stream = stream
		s.runID = runID
	}
}

// New creates a session whose history starts with rolePrompt as a system
// message.
func New(name, rolePrompt string, provider model.Provider, modelName string, dispatcher *dispatch.Dispatcher, opts ...Option) *Session {
	s := &Session{
		name:       name,
		provider:   provider,
		modelName:  modelName,
		dispatcher: dispatcher,
	}
	for _, o := range opts {
		o(s)
	}
	s.append(context.Background(), domain.Message{Role: domain.RoleSystem, Content: rolePrompt})
	return s
}

// Name returns the agent name of the session.
func (s *Session) Name() string { return s.name }

// Process sends input to the model with the full history and applies the
// commands of its reply. Execution summaries, if any, are appended as one
// system message. A model failure is returned as is; nothing is retried.
func (s *Session) Process(ctx context.Context, input string) (string, error) {
	s.append(ctx, domain.Message{Role: domain.RoleUser, Content: input})

	reply, err := s.complete(ctx)
	if err != nil {
		return "", fmt.Errorf("agent %s: %w", s.name, err)
	}
	s.append(ctx, reply)

	summaries := s.dispatcher.Dispatch(ctx, reply.Content)
	if len(summaries) > 0 {
		text, failed := dispatch.Join(summaries)
		s.append(ctx, domain.Message{
			Role:            domain.RoleSystem,
			Content:         text,
			ExecutionFailed: failed,
		})
	}
	return reply.Content, nil
}

func (s *Session) complete(ctx context.Context) (domain.Message, error) {
	stream, err := s.provider.Stream(ctx, s.modelName, s.History())
	if err != nil {
		return domain.Message{}, fmt.Errorf("streaming model: %w", err)
	}
	defer stream.Close()

	msg, err := stream.FullMessage()
	if err != nil {
		return domain.Message{}, fmt.Errorf("getting model response: %w", err)
	}
	msg.Role = domain.RoleAssistant
	return msg, nil
}

// NeedsMoreInfo reports whether reply asks the user for more information.
func (s *Session) NeedsMoreInfo(reply string) bool {
	return command.NeedsMoreInfo(reply)
}

// RequestPrompt returns the first question reply asks the user.
func (s *Session) RequestPrompt(reply string) (string, bool) {
	return command.RequestPrompt(reply)
}

// History returns a copy of the conversation so far.
func (s *Session) History() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Message(nil), s.history...)
}

// LastExecution returns the most recent execution summary message. The role
// prompt at the head of the history never counts.
func (s *Session) LastExecution() (domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.history) - 1; i > 0; i-- {
		if s.history[i].Role == domain.RoleSystem {
			return s.history[i], true
		}
	}
	return domain.Message{}, false
}

func (s *Session) append(ctx context.Context, msg domain.Message) {
	s.mu.Lock()
	s.history = append(s.history, msg)
	s.mu.Unlock()

	if s.stream == nil {
		return
	}
	entry := &domain.StreamEntry{
		ID:              uuid.New().String(),
		RunID:           s.runID,
		Agent:           s.name,
		Role:            msg.Role,
		Content:         msg.Content,
		ExecutionFailed: msg.ExecutionFailed,
	}
	if err := s.stream.Append(ctx, entry); err != nil {
		slog.Error("Failed to record message", "agent", s.name, "runID", s.runID, "error", err)
	}
}
