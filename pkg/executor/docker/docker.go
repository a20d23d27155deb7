// Package docker implements executor.Engine with a throwaway Docker
// container per execution. The sandbox is bind-mounted into the container so
// the program sees the files the agents wrote.
package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/nstogner/crew/pkg/executor"
	"github.com/nstogner/crew/pkg/sandbox"
)

const (
	// LabelManager is the label used to identify containers managed by crew.
	LabelManager = "manager"
	// LabelManagerValue is the value of the manager label.
	LabelManagerValue = "crew"
	// LabelSandbox records the sandbox directory a container was made for.
	LabelSandbox = "crew-sandbox"
	// DefaultImage is the Python image executions run in.
	DefaultImage = "python:3.12-slim"
	// WorkDir is where the sandbox is mounted inside the container.
	WorkDir = "/workspace"
)

// Engine implements executor.Engine using the Docker API.
type Engine struct {
	client *client.Client
	image  string
}

// Verify interface compliance.
var _ executor.Engine = (*Engine)(nil)

// New creates a Docker engine using the environment's Docker settings.
// An empty image selects DefaultImage.
func New(image string) (*Engine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	if image == "" {
		image = DefaultImage
	}
	return &Engine{client: cli, image: image}, nil
}

// Execute replaces the sandbox's container with a fresh one, installs
// requirements.txt when present and runs rel with python.
func (e *Engine) Execute(ctx context.Context, root, rel string) *executor.Result {
	name := containerName(root)

	if err := e.removeContainer(ctx, name); err != nil {
		return executor.Failure("Failed to remove previous container", err)
	}

	id, err := e.createAndStart(ctx, name, root)
	if err != nil {
		return executor.Failure("Failed to create container", err)
	}

	if _, err := os.Stat(filepath.Join(root, sandbox.ManifestName)); err == nil {
		slog.Info("Installing requirements", "container", name)
		res, code, err := e.exec(ctx, id, []string{
			"pip", "install", "--no-cache-dir", "-r", path.Join(WorkDir, sandbox.ManifestName),
		})
		if err != nil {
			return executor.Failure("Failed to install requirements", err)
		}
		if code != 0 {
			msg := strings.TrimSpace(res.Stderr)
			if msg == "" {
				msg = fmt.Sprintf("pip exited with status %d", code)
			}
			return executor.Failure("Failed to install requirements", errors.New(msg))
		}
	}

	slog.Info("Running file", "container", name, "path", rel)
	res, code, err := e.exec(ctx, id, []string{"python", path.Join(WorkDir, filepath.ToSlash(rel))})
	if err != nil {
		return &executor.Result{Stderr: err.Error()}
	}
	return executor.ExitFailure(res, code)
}

// Prune removes every container this engine manages.
func (e *Engine) Prune(ctx context.Context) error {
	containers, err := e.client.ContainerList(ctx, types.ContainerListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", LabelManager+"="+LabelManagerValue),
		),
	})
	if err != nil {
		return fmt.Errorf("listing managed containers: %w", err)
	}
	for _, c := range containers {
		if err := e.client.ContainerRemove(ctx, c.ID, types.ContainerRemoveOptions{Force: true}); err != nil {
			slog.Warn("Failed to remove container", "id", c.ID, "error", err)
		}
	}
	return nil
}

// Close releases the Docker client resources.
func (e *Engine) Close() error {
	return e.client.Close()
}

// --- internal helpers ---

func (e *Engine) removeContainer(ctx context.Context, name string) error {
	err := e.client.ContainerRemove(ctx, name, types.ContainerRemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return err
	}
	return nil
}

func (e *Engine) ensureImage(ctx context.Context) error {
	_, _, err := e.client.ImageInspectWithRaw(ctx, e.image)
	if err == nil {
		return nil
	}
	if !client.IsErrNotFound(err) {
		return fmt.Errorf("inspecting image %s: %w", e.image, err)
	}

	slog.Info("Pulling image", "image", e.image)
	rc, err := e.client.ImagePull(ctx, e.image, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("pulling image %s: %w", e.image, err)
	}
	defer rc.Close()
	// The pull only completes once the progress stream is drained.
	_, err = io.Copy(io.Discard, rc)
	return err
}

func (e *Engine) createAndStart(ctx context.Context, name, root string) (string, error) {
	if err := e.ensureImage(ctx); err != nil {
		return "", err
	}

	cfg := &container.Config{
		Image:      e.image,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: WorkDir,
		Labels: map[string]string{
			LabelManager: LabelManagerValue,
			LabelSandbox: filepath.Base(root),
		},
	}
	hostCfg := &container.HostConfig{
		Binds: []string{root + ":" + WorkDir},
	}

	resp, err := e.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}
	if err := e.client.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return "", fmt.Errorf("starting container: %w", err)
	}
	slog.Debug("Container started", "name", name, "id", resp.ID)
	return resp.ID, nil
}

// exec runs cmd in the container and returns its separated output and exit code.
func (e *Engine) exec(ctx context.Context, id string, cmd []string) (*executor.Result, int, error) {
	created, err := e.client.ContainerExecCreate(ctx, id, types.ExecConfig{
		Cmd:          cmd,
		WorkingDir:   WorkDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("creating exec: %w", err)
	}

	attach, err := e.client.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return nil, 0, fmt.Errorf("attaching exec: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return nil, 0, fmt.Errorf("reading exec output: %w", err)
	}

	inspect, err := e.client.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, 0, fmt.Errorf("inspecting exec: %w", err)
	}
	return &executor.Result{Stdout: stdout.String(), Stderr: stderr.String()}, inspect.ExitCode, nil
}

// containerName derives a stable container name from the sandbox directory.
func containerName(root string) string {
	base := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			return r
		}
		return '-'
	}, filepath.Base(root))
	return "crew-" + base
}
