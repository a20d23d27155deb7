// Package openai talks to OpenAI-compatible chat completion endpoints. The
// same provider serves the hosted OpenAI API and a local Ollama server.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nstogner/crew/pkg/domain"
	"github.com/nstogner/crew/pkg/model"
)

const (
	// DefaultBaseURL is the hosted OpenAI API.
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is used with DefaultBaseURL when no model is configured.
	DefaultModel = "gpt-3.5-turbo"

	// OllamaBaseURL is the OpenAI-compatible endpoint of a local Ollama.
	OllamaBaseURL = "http://localhost:11434/v1"
	// OllamaModel is used with OllamaBaseURL when no model is configured.
	OllamaModel = "deepseek-r1:1.5b"

	defaultTimeout = 120 * time.Second
)

// Config describes how to reach a chat completions endpoint.
type Config struct {
	// Name is the provider identifier reported by Name, e.g. "openai" or "ollama".
	Name string
	// APIKey is sent as a bearer token when set.
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// Provider implements model.Provider over HTTP.
type Provider struct {
	name       string
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Verify interface compliance.
var _ model.Provider = (*Provider)(nil)

// New creates a provider from cfg.
func New(cfg Config) (*Provider, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "openai"
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && baseURL == DefaultBaseURL {
		return nil, errors.New("no OpenAI API key provided")
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Provider{
		name:       name,
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: client,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return p.name }

// List returns the models served by the endpoint.
func (p *Provider) List(ctx context.Context) ([]domain.Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("building models request: %w", err)
	}
	p.authorize(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var decoded struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding models response: %w", err)
	}

	models := make([]domain.Model, 0, len(decoded.Data))
	for _, m := range decoded.Data {
		models = append(models, domain.Model{ID: m.ID, Name: m.ID, Provider: p.name})
	}
	return models, nil
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// Stream prepares a chat completion for the conversation. The request is
// sent when FullMessage is called.
func (p *Provider) Stream(ctx context.Context, modelName string, messages []domain.Message) (model.ModelStream, error) {
	slog.Debug("OpenAI.Stream", "provider", p.name, "model", modelName, "messageCount", len(messages))

	body := wireRequest{Model: modelName}
	for _, m := range messages {
		body.Messages = append(body.Messages, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	return &completionStream{
		provider: p,
		ctx:      streamCtx,
		cancel:   cancel,
		payload:  payload,
	}, nil
}

func (p *Provider) authorize(req *http.Request) {
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return fmt.Errorf("endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// completionStream performs one chat completion request.
type completionStream struct {
	provider *Provider
	ctx      context.Context
	cancel   context.CancelFunc
	payload  []byte
}

func (s *completionStream) FullMessage() (domain.Message, error) {
	p := s.provider
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(s.payload))
	if err != nil {
		return domain.Message{}, fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	p.authorize(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return domain.Message{}, fmt.Errorf("requesting chat completion: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return domain.Message{}, err
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.Message{}, fmt.Errorf("decoding chat response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return domain.Message{}, errors.New("chat response has no choices")
	}

	return domain.Message{
		Role:    domain.RoleAssistant,
		Content: decoded.Choices[0].Message.Content,
	}, nil
}

func (s *completionStream) Close() error {
	s.cancel()
	return nil
}
