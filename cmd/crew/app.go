package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/nstogner/crew/pkg/config"
	"github.com/nstogner/crew/pkg/dispatch"
	"github.com/nstogner/crew/pkg/domain"
	"github.com/nstogner/crew/pkg/executor"
	"github.com/nstogner/crew/pkg/executor/docker"
	"github.com/nstogner/crew/pkg/executor/venv"
	"github.com/nstogner/crew/pkg/model"
	"github.com/nstogner/crew/pkg/model/gemini"
	"github.com/nstogner/crew/pkg/model/mock"
	"github.com/nstogner/crew/pkg/model/openai"
	"github.com/nstogner/crew/pkg/orchestrator"
	"github.com/nstogner/crew/pkg/prompts"
	"github.com/nstogner/crew/pkg/sandbox"
	"github.com/nstogner/crew/pkg/session"
	"github.com/nstogner/crew/pkg/store"
	"github.com/nstogner/crew/pkg/store/memory"
	"github.com/nstogner/crew/pkg/store/sqlite"
)

// newRegistry registers every provider crew knows. Credentials are read
// when a provider is first used.
func newRegistry(cfg *config.Config) *model.Registry {
	r := model.NewRegistry()
	r.Register("gemini", func(ctx context.Context) (model.Provider, error) {
		key := os.Getenv("GEMINI_API_KEY")
		if key == "" {
			return nil, errors.New("GEMINI_API_KEY environment variable not set")
		}
		p, err := gemini.New(ctx, key)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	r.Register("openai", func(ctx context.Context) (model.Provider, error) {
		p, err := openai.New(openai.Config{
			Name:    "openai",
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: cfg.Providers.OpenAI.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	r.Register("ollama", func(ctx context.Context) (model.Provider, error) {
		p, err := openai.New(openai.Config{
			Name:    "ollama",
			BaseURL: cfg.Providers.Ollama.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	r.Register("mock", func(ctx context.Context) (model.Provider, error) {
		return mock.New(cfg.Providers.Mock.Replies...), nil
	})
	return r
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		return memory.New(), nil
	default:
		s, err := sqlite.New(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		return s, nil
	}
}

func newEngine(cfg *config.Config) (executor.Engine, error) {
	switch cfg.Executor.Kind {
	case config.ExecutorDocker:
		e, err := docker.New(cfg.Executor.Image)
		if err != nil {
			return nil, fmt.Errorf("initializing docker engine: %w", err)
		}
		return e, nil
	default:
		return venv.New(venv.WithUV(cfg.Executor.UV)), nil
	}
}

// crew is one orchestration run: a sandbox, the agents sharing it and the
// transcript they are recorded to.
type crew struct {
	run     *domain.Run
	sandbox *sandbox.Sandbox
	engine  executor.Engine
	store   store.Store
	agents  []orchestrator.Agent
}

// newCrew creates the sandbox and the agent chain for a run.
func newCrew(ctx context.Context, cfg *config.Config, registry *model.Registry) (*crew, error) {
	provider, err := registry.Get(ctx, cfg.Provider)
	if err != nil {
		return nil, err
	}

	sb, err := sandbox.Create(cfg.Sandbox.BaseDir, time.Now())
	if err != nil {
		return nil, err
	}

	engine, err := newEngine(cfg)
	if err != nil {
		return nil, err
	}

	st, err := openStore(cfg)
	if err != nil {
		engine.Close()
		return nil, err
	}

	run := &domain.Run{
		ID:          uuid.New().String(),
		SandboxRoot: sb.Root(),
		Provider:    cfg.Provider,
	}
	for _, a := range cfg.Chain {
		run.Agents = append(run.Agents, a.Name)
	}
	if err := st.CreateRun(ctx, run); err != nil {
		engine.Close()
		st.Close()
		return nil, fmt.Errorf("recording run: %w", err)
	}

	d := dispatch.New(sb, engine, dispatch.WithMaxSummaryChars(cfg.SummaryBudget))
	c := &crew{run: run, sandbox: sb, engine: engine, store: st}
	for _, a := range cfg.Chain {
		prompt := a.Instructions
		if prompt == "" {
			prompt, err = prompts.Lookup(a.Prompt)
			if err != nil {
				c.Close()
				return nil, err
			}
		}
		c.agents = append(c.agents, session.New(a.Name, prompt, provider, cfg.ModelName(), d,
			session.WithRecorder(st, run.ID)))
	}

	slog.Info("Run started", "runID", run.ID, "sandbox", sb.Root(), "provider", cfg.Provider, "agents", run.Agents)
	return c, nil
}

// Close releases the engine and the store. The sandbox is kept.
func (c *crew) Close() error {
	if p, ok := c.engine.(interface{ Prune(context.Context) error }); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := p.Prune(ctx); err != nil {
			slog.Warn("Failed to prune containers", "error", err)
		}
	}
	return errors.Join(c.engine.Close(), c.store.Close())
}
