package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nstogner/crew/pkg/domain"
)

func newTestProvider(t *testing.T, key string, handler http.Handler) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := New(Config{Name: "ollama", APIKey: key, BaseURL: server.URL + "/v1/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestStreamFullMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		var req wireRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Model != "deepseek-r1:1.5b" {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Messages) != 3 {
			t.Errorf("messages = %d, want 3", len(req.Messages))
		} else {
			for i, want := range []string{"system", "user", "system"} {
				if req.Messages[i].Role != want {
					t.Errorf("messages[%d].role = %q, want %q", i, req.Messages[i].Role, want)
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{"role": "assistant", "content": "<exec>main.py</exec>"},
			}},
		})
	})

	p := newTestProvider(t, "secret", mux)
	stream, err := p.Stream(context.Background(), "deepseek-r1:1.5b", []domain.Message{
		{Role: domain.RoleSystem, Content: "You are an engineer."},
		{Role: domain.RoleUser, Content: "Build it."},
		{Role: domain.RoleSystem, Content: "Execution results:\n", ExecutionFailed: true},
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	msg, err := stream.FullMessage()
	if err != nil {
		t.Fatalf("FullMessage: %v", err)
	}
	if msg.Role != domain.RoleAssistant || msg.Content != "<exec>main.py</exec>" {
		t.Errorf("FullMessage = %+v", msg)
	}
}

func TestStreamErrorStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("Authorization sent without a key")
		}
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	p := newTestProvider(t, "", mux)
	stream, err := p.Stream(context.Background(), "m", nil)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	_, err = stream.FullMessage()
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("FullMessage error = %v, want status 429", err)
	}
}

func TestStreamNoChoices(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})

	p := newTestProvider(t, "", mux)
	stream, _ := p.Stream(context.Background(), "m", nil)
	defer stream.Close()
	if _, err := stream.FullMessage(); err == nil {
		t.Error("expected error for empty choices")
	}
}

func TestList(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":"deepseek-r1:1.5b"},{"id":"llama3"}]}`))
	})

	p := newTestProvider(t, "", mux)
	models, err := p.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("got %d models, want 2", len(models))
	}
	if models[0].ID != "deepseek-r1:1.5b" || models[0].Provider != "ollama" {
		t.Errorf("models[0] = %+v", models[0])
	}
}

func TestNewRequiresKeyForHostedAPI(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New without key for the hosted API succeeded")
	}
	p, err := New(Config{Name: "ollama", BaseURL: OllamaBaseURL})
	if err != nil {
		t.Fatalf("New for ollama: %v", err)
	}
	if p.Name() != "ollama" {
		t.Errorf("Name() = %q", p.Name())
	}
}
