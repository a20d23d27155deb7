// Package executor defines how a sandbox file is run in a fresh,
// dependency-isolated environment.
package executor

import (
	"context"
	"fmt"
)

// Result is the captured output of one execution.
type Result struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// Succeeded reports whether the execution produced no error output.
// Partial stdout may coexist with a failure.
func (r *Result) Succeeded() bool {
	return r.Stderr == ""
}

// Engine runs a file from a sandbox. Each call discards any environment left
// by a previous call, provisions a new one, installs the sandbox's
// requirements.txt if present and runs the file. Failures at any step are
// reported in Stderr rather than returned; nothing is retried.
type Engine interface {
	// Execute runs rel, a path relative to root.
	Execute(ctx context.Context, root, rel string) *Result

	// Close releases any resources held by the engine.
	Close() error
}

// Failure builds a Result for a step that failed before the program ran.
func Failure(step string, err error) *Result {
	return &Result{Stderr: fmt.Sprintf("%s: %v", step, err)}
}

// ExitFailure fills in Stderr for a program that exited non-zero without
// writing to stderr, so Succeeded stays the only success rule.
func ExitFailure(res *Result, code int) *Result {
	if code != 0 && res.Stderr == "" {
		res.Stderr = fmt.Sprintf("process exited with status %d", code)
	}
	return res
}
