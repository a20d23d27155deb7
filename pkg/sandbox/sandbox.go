// Package sandbox owns the project directory shared by the agents of a run
// and applies their filesystem commands to it.
package sandbox

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Placeholder is written to files created with an empty body.
const Placeholder = "# File created by agent\n"

// ManifestName is the dependency manifest expected at the sandbox root.
const ManifestName = "requirements.txt"

var (
	// ErrOutsidePath is returned for paths that are absolute or resolve
	// outside the sandbox root.
	ErrOutsidePath = errors.New("path escapes sandbox")
	// ErrEmptyPath is returned when a command carries no path.
	ErrEmptyPath = errors.New("empty path")
)

// Store applies filesystem commands relative to a sandbox root.
type Store interface {
	CreateFolder(rel string) error
	CreateFile(rel string) error
	WriteFile(rel, content string) error
	// Resolve returns the absolute path for rel, or an error if rel is
	// not a valid sandbox path.
	Resolve(rel string) (string, error)
	// Root returns the absolute sandbox root.
	Root() string
}

// Sandbox is a working directory created once per run.
type Sandbox struct {
	root string
	// realRoot is root with symlinks resolved.
	realRoot  string
	createdAt time.Time
}

// Verify interface compliance.
var _ Store = (*Sandbox)(nil)

// Create makes a new sandbox_<unix-seconds> directory under baseDir.
func Create(baseDir string, now time.Time) (*Sandbox, error) {
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		baseDir = wd
	}
	root := filepath.Join(baseDir, fmt.Sprintf("sandbox_%d", now.Unix()))
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating sandbox: %w", err)
	}
	sb, err := Open(root)
	if err != nil {
		return nil, err
	}
	sb.createdAt = now
	return sb, nil
}

// Open wraps an existing directory as a sandbox.
func Open(root string) (*Sandbox, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving sandbox root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("opening sandbox: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sandbox root %s is not a directory", abs)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving sandbox root: %w", err)
	}
	return &Sandbox{root: abs, realRoot: real, createdAt: info.ModTime()}, nil
}

// Root returns the absolute sandbox directory.
func (s *Sandbox) Root() string { return s.root }

// CreatedAt returns when the sandbox was created.
func (s *Sandbox) CreatedAt() time.Time { return s.createdAt }

// Resolve maps a command path onto the sandbox. Absolute paths, paths that
// leave the root after cleaning and paths whose existing part leads out of
// the root through a symlink are rejected.
func (s *Sandbox) Resolve(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", ErrEmptyPath
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) {
		return "", fmt.Errorf("%w: %s", ErrOutsidePath, rel)
	}
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	if !within(s.root, full) {
		return "", fmt.Errorf("%w: %s", ErrOutsidePath, rel)
	}
	real, err := s.realExisting(full)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrOutsidePath, rel, err)
	}
	if !within(s.realRoot, real) {
		return "", fmt.Errorf("%w: %s", ErrOutsidePath, rel)
	}
	return full, nil
}

// realExisting resolves the symlinks of the deepest existing ancestor of
// full, which is full itself when it exists. A dangling link is an error.
func (s *Sandbox) realExisting(full string) (string, error) {
	p := full
	for {
		if _, err := os.Lstat(p); err == nil {
			return filepath.EvalSymlinks(p)
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		if p == s.root {
			return s.realRoot, nil
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", errors.New("no existing ancestor")
		}
		p = parent
	}
}

func within(root, p string) bool {
	r, err := filepath.Rel(root, p)
	return err == nil && r != ".." && !strings.HasPrefix(r, ".."+string(filepath.Separator))
}

// CreateFolder creates rel and any missing parents.
func (s *Sandbox) CreateFolder(rel string) error {
	full, err := s.Resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(full, 0755); err != nil {
		return fmt.Errorf("creating folder %s: %w", rel, err)
	}
	slog.Info("Created folder", "path", rel)
	return nil
}

// CreateFile creates rel with placeholder content. An existing file is left
// untouched, so repeating the command is harmless.
func (s *Sandbox) CreateFile(rel string) error {
	full, err := s.Resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("creating parent folders for %s: %w", rel, err)
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, os.ErrExist) {
		slog.Debug("File already exists", "path", rel)
		return nil
	}
	if err != nil {
		return fmt.Errorf("creating file %s: %w", rel, err)
	}
	defer f.Close()
	if _, err := f.WriteString(Placeholder); err != nil {
		return fmt.Errorf("writing file %s: %w", rel, err)
	}
	slog.Info("Created file", "path", rel)
	return nil
}

// WriteFile replaces the whole content of rel.
func (s *Sandbox) WriteFile(rel, content string) error {
	full, err := s.Resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("creating parent folders for %s: %w", rel, err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing file %s: %w", rel, err)
	}
	slog.Info("Edited file", "path", rel, "size", len(content))
	return nil
}
