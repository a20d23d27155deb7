package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nstogner/crew/pkg/model/gemini"
	"github.com/nstogner/crew/pkg/model/openai"
)

func TestProviderDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p := cfg.Providers
	if p.Gemini.Model != gemini.DefaultModel {
		t.Errorf("Gemini.Model = %q, want %q", p.Gemini.Model, gemini.DefaultModel)
	}
	if p.OpenAI.Model != openai.DefaultModel || p.OpenAI.BaseURL != openai.DefaultBaseURL {
		t.Errorf("OpenAI = %+v", p.OpenAI)
	}
	if p.Ollama.Model != openai.OllamaModel || p.Ollama.BaseURL != openai.OllamaBaseURL {
		t.Errorf("Ollama = %+v", p.Ollama)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "ollama" || cfg.ModelName() != "deepseek-r1:1.5b" {
		t.Errorf("provider = %q model = %q", cfg.Provider, cfg.ModelName())
	}
	if cfg.MaxRetries != 3 || cfg.SummaryBudget != 5000 {
		t.Errorf("MaxRetries = %d SummaryBudget = %d", cfg.MaxRetries, cfg.SummaryBudget)
	}
	if len(cfg.Chain) != 2 || cfg.Chain[0].Prompt != "product_designer" || cfg.Chain[1].Prompt != "software_engineer" {
		t.Errorf("Chain = %+v", cfg.Chain)
	}
	if cfg.Executor.Kind != ExecutorVenv || cfg.Store.Driver != StoreSQLite {
		t.Errorf("Executor = %+v Store = %+v", cfg.Executor, cfg.Store)
	}

	empty, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if empty.Server.Address != ":8080" {
		t.Errorf("Server.Address = %q", empty.Server.Address)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crew.yaml")
	content := `
provider: openai
providers:
  openai:
    model: gpt-4o-mini
chain:
  - name: coder
    prompt: software_engineer
  - name: reviewer
    instructions: Review the code.
max_retries: -1
executor:
  kind: docker
store:
  driver: sqlite
  path: data/crew.db
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ModelName() != "gpt-4o-mini" {
		t.Errorf("ModelName() = %q", cfg.ModelName())
	}
	if cfg.Providers.OpenAI.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("BaseURL = %q", cfg.Providers.OpenAI.BaseURL)
	}
	if len(cfg.Chain) != 2 || cfg.Chain[1].Instructions != "Review the code." {
		t.Errorf("Chain = %+v", cfg.Chain)
	}
	if cfg.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0", cfg.MaxRetries)
	}
	if cfg.Executor.Kind != ExecutorDocker || cfg.Executor.Image != "python:3.12-slim" {
		t.Errorf("Executor = %+v", cfg.Executor)
	}
	if want := filepath.Join(dir, "data", "crew.db"); cfg.Store.Path != want {
		t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, want)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"bad yaml":     "provider: [",
		"bad executor": "executor:\n  kind: podman\n",
		"bad store":    "store:\n  driver: redis\n",
		"bad chain":    "chain:\n  - name: x\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			os.WriteFile(path, []byte(content), 0644)
			if _, err := Load(path); err == nil {
				t.Error("Load succeeded, want error")
			}
		})
	}
}
