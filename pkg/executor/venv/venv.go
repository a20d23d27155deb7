// Package venv implements executor.Engine with uv-managed Python virtual
// environments created inside the sandbox.
package venv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/nstogner/crew/pkg/executor"
	"github.com/nstogner/crew/pkg/sandbox"
)

const (
	// DefaultUV is the uv binary looked up on PATH.
	DefaultUV = "uv"
	// DefaultDir is the environment directory inside the sandbox.
	DefaultDir = ".venv"
)

// Engine runs files with a fresh uv virtual environment per execution.
type Engine struct {
	uv  string
	dir string
}

// Verify interface compliance.
var _ executor.Engine = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithUV sets the uv binary.
func WithUV(path string) Option {
	return func(e *Engine) {
		if path != "" {
			e.uv = path
		}
	}
}

// WithDir sets the environment directory name, relative to the sandbox root.
func WithDir(dir string) Option {
	return func(e *Engine) {
		if dir != "" {
			e.dir = dir
		}
	}
}

// New creates a venv Engine.
func New(opts ...Option) *Engine {
	e := &Engine{uv: DefaultUV, dir: DefaultDir}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute recreates the environment, installs requirements.txt when present
// and runs rel with the environment's interpreter from the sandbox root.
func (e *Engine) Execute(ctx context.Context, root, rel string) *executor.Result {
	venvPath := filepath.Join(root, e.dir)
	if err := os.RemoveAll(venvPath); err != nil {
		return executor.Failure("Failed to remove previous virtual environment", err)
	}

	slog.Debug("Creating virtual environment", "path", venvPath)
	if err := e.uvRun(ctx, root, "venv", venvPath); err != nil {
		return executor.Failure("Failed to create virtual environment", err)
	}
	python := pythonPath(venvPath)

	manifest := filepath.Join(root, sandbox.ManifestName)
	if _, err := os.Stat(manifest); err == nil {
		slog.Info("Installing requirements", "manifest", manifest)
		if err := e.uvRun(ctx, root, "pip", "install", "-r", manifest, "--python", python); err != nil {
			return executor.Failure("Failed to install requirements", err)
		}
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, python, filepath.Join(root, filepath.FromSlash(rel)))
	cmd.Dir = root
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Info("Running file", "path", rel)
	err := cmd.Run()
	res := &executor.Result{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return executor.ExitFailure(res, exitErr.ExitCode())
	}
	if err != nil {
		return &executor.Result{Stderr: err.Error()}
	}
	return res
}

// Close is a no-op; environments live inside the sandbox.
func (e *Engine) Close() error { return nil }

// uvRun runs a uv subcommand and turns a failure into an error carrying
// uv's own diagnostics.
func (e *Engine) uvRun(ctx context.Context, dir string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.uv, args...)
	cmd.Dir = dir
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return errors.New(msg)
		}
		return fmt.Errorf("%s %s: %w", e.uv, args[0], err)
	}
	return nil
}

func pythonPath(venvPath string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(venvPath, "Scripts", "python.exe")
	}
	return filepath.Join(venvPath, "bin", "python")
}
