// Package orchestrator runs a chain of agents over one user request: it
// answers their questions through a Prompter, feeds each agent's output to
// the next and asks the last agent to fix failed executions.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nstogner/crew/pkg/command"
	"github.com/nstogner/crew/pkg/domain"
)

// DefaultMaxRetries bounds the fix requests sent after a failed execution.
const DefaultMaxRetries = 3

// ErrCancelled is returned by a Prompter when the user declines to answer.
var ErrCancelled = errors.New("cancelled by user")

// Agent is one conversation in the chain. *session.Session implements it.
type Agent interface {
	Name() string
	Process(ctx context.Context, input string) (string, error)
	// LastExecution returns the most recent execution summary message.
	LastExecution() (domain.Message, bool)
}

// Prompter obtains answers from the human user.
type Prompter interface {
	// Ask shows prompt and returns the user's answer, or ErrCancelled.
	Ask(ctx context.Context, prompt string) (string, error)
}

// Observer is notified as the run progresses.
type Observer interface {
	Reply(agent, reply string)
	Retry(attempt int, failure string)
}

type nopObserver struct{}

func (nopObserver) Reply(string, string) {}
func (nopObserver) Retry(int, string)    {}

// Outcome is the result of a completed Run.
type Outcome struct {
	// Output is the last reply of the last agent.
	Output string `json:"output"`
	// Retries is how many fix requests were sent.
	Retries int `json:"retries"`
	// NeedsManualIntervention is set when executions still failed after
	// the last allowed retry.
	NeedsManualIntervention bool `json:"needs_manual_intervention"`
}

// Orchestrator drives a fixed chain of agents.
type Orchestrator struct {
	agents     []Agent
	prompter   Prompter
	observer   Observer
	maxRetries int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver sets the observer notified of replies and retries.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithMaxRetries overrides DefaultMaxRetries. Zero disables retries.
func WithMaxRetries(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// New creates an Orchestrator for agents, run in the given order.
func New(agents []Agent, prompter Prompter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		agents:     agents,
		prompter:   prompter,
		observer:   nopObserver{},
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run passes input through the chain. It returns an error when an agent's
// model fails or the user cancels a question; exhausting retries is
// reported through Outcome instead.
func (o *Orchestrator) Run(ctx context.Context, input string) (*Outcome, error) {
	if len(o.agents) == 0 {
		return nil, fmt.Errorf("no agents configured in orchestrator")
	}
	slog.Info("Orchestrator started", "agents", len(o.agents))

	current := input
	for _, a := range o.agents {
		out, err := o.converse(ctx, a, current)
		if err != nil {
			slog.Error("Agent failed", "agent", a.Name(), "error", err)
			return nil, err
		}
		current = out
	}

	final := o.agents[len(o.agents)-1]
	outcome := &Outcome{Output: current}
	for {
		failure, failed := lastFailure(final)
		if !failed {
			break
		}
		if outcome.Retries >= o.maxRetries {
			slog.Warn("Maximum retries reached", "agent", final.Name(), "retries", outcome.Retries)
			outcome.NeedsManualIntervention = true
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		outcome.Retries++
		slog.Info("Retrying failed execution", "agent", final.Name(), "attempt", outcome.Retries)
		o.observer.Retry(outcome.Retries, failure)

		out, err := o.converse(ctx, final, fixPrompt(failure))
		if err != nil {
			return nil, err
		}
		outcome.Output = out
	}

	slog.Info("Orchestrator finished", "retries", outcome.Retries, "manual", outcome.NeedsManualIntervention)
	return outcome, nil
}

// converse sends input to a and keeps answering its questions until it
// replies without one.
func (o *Orchestrator) converse(ctx context.Context, a Agent, input string) (string, error) {
	reply, err := a.Process(ctx, input)
	if err != nil {
		return "", err
	}
	o.observer.Reply(a.Name(), reply)

	for {
		prompt, ok := command.RequestPrompt(reply)
		if !ok {
			return reply, nil
		}
		answer, err := o.prompter.Ask(ctx, prompt)
		if err != nil {
			return "", fmt.Errorf("answering %s: %w", a.Name(), err)
		}
		reply, err = a.Process(ctx, answer)
		if err != nil {
			return "", err
		}
		o.observer.Reply(a.Name(), reply)
	}
}

func lastFailure(a Agent) (string, bool) {
	msg, ok := a.LastExecution()
	if !ok || !msg.ExecutionFailed {
		return "", false
	}
	return msg.Content, true
}

func fixPrompt(failure string) string {
	return "The last execution reported errors:\n\n" + failure +
		"\n\nFix the code so that it runs without errors, then execute it again."
}
