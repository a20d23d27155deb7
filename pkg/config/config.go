// Package config loads the YAML configuration of crew.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/nstogner/crew/pkg/model/gemini"
	"github.com/nstogner/crew/pkg/model/openai"
)

// Config is the full configuration of a crew process.
type Config struct {
	// Provider selects the model provider: gemini, openai, ollama or mock.
	Provider   string          `yaml:"provider"`
	Providers  ProvidersConfig `yaml:"providers"`
	Chain      []AgentConfig   `yaml:"chain"`
	MaxRetries int             `yaml:"max_retries"`
	// SummaryBudget bounds each execution summary, in characters.
	SummaryBudget int            `yaml:"summary_budget"`
	Executor      ExecutorConfig `yaml:"executor"`
	Sandbox       SandboxConfig  `yaml:"sandbox"`
	Store         StoreConfig    `yaml:"store"`
	Server        ServerConfig   `yaml:"server"`
	Log           LogConfig      `yaml:"log"`
}

// ProvidersConfig holds per-provider settings.
type ProvidersConfig struct {
	Gemini ModelConfig `yaml:"gemini"`
	OpenAI ModelConfig `yaml:"openai"`
	Ollama ModelConfig `yaml:"ollama"`
	Mock   MockConfig  `yaml:"mock"`
}

// ModelConfig names the model and endpoint of a provider.
type ModelConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// MockConfig scripts the replies of the mock provider.
type MockConfig struct {
	Replies []string `yaml:"replies"`
}

// AgentConfig is one link of the agent chain. Instructions, when set,
// replace the built-in prompt named by Prompt.
type AgentConfig struct {
	Name         string `yaml:"name"`
	Prompt       string `yaml:"prompt"`
	Instructions string `yaml:"instructions"`
}

// ExecutorConfig selects how generated programs are run.
type ExecutorConfig struct {
	// Kind is venv or docker.
	Kind  string `yaml:"kind"`
	UV    string `yaml:"uv"`
	Image string `yaml:"image"`
}

// SandboxConfig places the per-run sandbox directories.
type SandboxConfig struct {
	// BaseDir defaults to the working directory.
	BaseDir string `yaml:"base_dir"`
}

// StoreConfig selects the transcript store.
type StoreConfig struct {
	// Driver is sqlite or memory.
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// ServerConfig controls the transcript API.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level"`
	// File, when set, receives JSON logs in addition to stderr.
	File string `yaml:"file"`
}

const (
	ExecutorVenv   = "venv"
	ExecutorDocker = "docker"
	StoreSQLite    = "sqlite"
	StoreMemory    = "memory"
)

// Load reads the YAML file at path. An empty path or a missing file yields
// the defaults. Relative store paths are resolved against the file's
// directory.
func Load(path string) (*Config, error) {
	var cfg Config
	baseDir := "."

	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(content, &cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
			baseDir = filepath.Dir(path)
		}
	}

	cfg.applyDefaults(baseDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in every field the file left empty.
func (c *Config) applyDefaults(baseDir string) {
	if c.Provider == "" {
		c.Provider = "ollama"
	}
	if c.Providers.Gemini.Model == "" {
		c.Providers.Gemini.Model = gemini.DefaultModel
	}
	if c.Providers.OpenAI.Model == "" {
		c.Providers.OpenAI.Model = openai.DefaultModel
	}
	if c.Providers.OpenAI.BaseURL == "" {
		c.Providers.OpenAI.BaseURL = openai.DefaultBaseURL
	}
	if c.Providers.Ollama.Model == "" {
		c.Providers.Ollama.Model = openai.OllamaModel
	}
	if c.Providers.Ollama.BaseURL == "" {
		c.Providers.Ollama.BaseURL = openai.OllamaBaseURL
	}

	if len(c.Chain) == 0 {
		c.Chain = []AgentConfig{
			{Name: "designer", Prompt: "product_designer"},
			{Name: "engineer", Prompt: "software_engineer"},
		}
	}
	for i := range c.Chain {
		if c.Chain[i].Name == "" {
			c.Chain[i].Name = c.Chain[i].Prompt
		}
	}

	// A negative value disables retries.
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	} else if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.SummaryBudget <= 0 {
		c.SummaryBudget = 5000
	}

	if c.Executor.Kind == "" {
		c.Executor.Kind = ExecutorVenv
	}
	if c.Executor.UV == "" {
		c.Executor.UV = "uv"
	}
	if c.Executor.Image == "" {
		c.Executor.Image = "python:3.12-slim"
	}

	if c.Store.Driver == "" {
		c.Store.Driver = StoreSQLite
	}
	if c.Store.Path == "" {
		c.Store.Path = "crew.db"
	}
	if !filepath.IsAbs(c.Store.Path) {
		c.Store.Path = filepath.Join(baseDir, c.Store.Path)
	}

	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	switch c.Executor.Kind {
	case ExecutorVenv, ExecutorDocker:
	default:
		return fmt.Errorf("unknown executor kind %q", c.Executor.Kind)
	}
	switch c.Store.Driver {
	case StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	for i, a := range c.Chain {
		if a.Prompt == "" && a.Instructions == "" {
			return fmt.Errorf("chain[%d] (%s): prompt or instructions required", i, a.Name)
		}
	}
	return nil
}

// ModelName returns the configured model of the selected provider.
func (c *Config) ModelName() string {
	switch c.Provider {
	case "gemini":
		return c.Providers.Gemini.Model
	case "openai":
		return c.Providers.OpenAI.Model
	case "ollama":
		return c.Providers.Ollama.Model
	default:
		return c.Provider
	}
}
