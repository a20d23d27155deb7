// Package dispatch applies the commands of an agent reply to the sandbox
// and summarizes executions for the conversation.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nstogner/crew/pkg/command"
	"github.com/nstogner/crew/pkg/domain"
	"github.com/nstogner/crew/pkg/executor"
	"github.com/nstogner/crew/pkg/sandbox"
)

const (
	// DefaultMaxSummaryChars bounds a single execution summary.
	DefaultMaxSummaryChars = 5000
	// TailLines is how many trailing stdout lines a summary quotes.
	TailLines = 10
	// TruncationMarker is appended to summaries cut at the budget.
	TruncationMarker = "\n... (truncated)"
	// ResultsHeader prefixes the joined summaries of one reply.
	ResultsHeader = "Execution results:\n"
)

// Summary describes one Execute command.
type Summary struct {
	Path   string `json:"path"`
	Text   string `json:"text"`
	Failed bool   `json:"failed"`
}

// Dispatcher routes parsed commands to the sandbox and execution engine.
type Dispatcher struct {
	store    sandbox.Store
	engine   executor.Engine
	maxChars int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMaxSummaryChars overrides DefaultMaxSummaryChars.
func WithMaxSummaryChars(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxChars = n
		}
	}
}

// New creates a Dispatcher for one sandbox.
func New(store sandbox.Store, engine executor.Engine, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		engine:   engine,
		maxChars: DefaultMaxSummaryChars,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch applies every command in reply and returns one summary per
// Execute command, in execution order. Filesystem failures are logged and
// do not stop the remaining commands.
func (d *Dispatcher) Dispatch(ctx context.Context, reply string) []Summary {
	var summaries []Summary
	for _, a := range command.Parse(reply) {
		switch a.Kind {
		case domain.ActionCreateFolder:
			if err := d.store.CreateFolder(a.Path); err != nil {
				slog.Error("Could not create folder", "path", a.Path, "error", err)
			}
		case domain.ActionCreateFile:
			if err := d.store.CreateFile(a.Path); err != nil {
				slog.Error("Could not create file", "path", a.Path, "error", err)
			}
		case domain.ActionEditFile:
			if err := d.store.WriteFile(a.Path, a.Content); err != nil {
				slog.Error("Could not edit file", "path", a.Path, "error", err)
			}
		case domain.ActionExecute:
			summaries = append(summaries, d.execute(ctx, a.Path))
		case domain.ActionRequestInfo:
			slog.Info("Agent requests more information", "prompt", a.Prompt)
		}
	}
	return summaries
}

func (d *Dispatcher) execute(ctx context.Context, rel string) Summary {
	if _, err := d.store.Resolve(rel); err != nil {
		slog.Error("Refusing to execute", "path", rel, "error", err)
		return Summarize(rel, &executor.Result{Stderr: err.Error()}, d.maxChars)
	}

	res := d.engine.Execute(ctx, d.store.Root(), rel)
	if res.Succeeded() {
		slog.Info("Execution succeeded", "path", rel, "stdoutBytes", len(res.Stdout))
	} else {
		slog.Warn("Execution failed", "path", rel, "stderr", res.Stderr)
	}
	return Summarize(rel, res, d.maxChars)
}

// Summarize renders the execution summary for path. The text is cut to
// maxChars characters plus TruncationMarker when longer.
func Summarize(path string, res *executor.Result, maxChars int) Summary {
	tail := lastLines(res.Stdout, TailLines)

	var text string
	if !res.Succeeded() {
		text = fmt.Sprintf("Execution of %s failed with error: %s", path, res.Stderr)
		if tail != "" {
			text += "\nLast 10 lines of output:\n" + tail
		}
	} else {
		text = fmt.Sprintf("Execution of %s succeeded. Last 10 lines of output:\n%s", path, tail)
	}

	return Summary{
		Path:   path,
		Text:   truncate(text, maxChars),
		Failed: !res.Succeeded(),
	}
}

// Join combines the summaries of one reply into a single system message
// body and reports whether any execution failed.
func Join(summaries []Summary) (string, bool) {
	texts := make([]string, 0, len(summaries))
	failed := false
	for _, s := range summaries {
		texts = append(texts, s.Text)
		failed = failed || s.Failed
	}
	return ResultsHeader + strings.Join(texts, "\n"), failed
}

func lastLines(s string, n int) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars]) + TruncationMarker
}
