package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nstogner/crew/pkg/domain"
	"github.com/nstogner/crew/pkg/model"
	"google.golang.org/genai"
)

// DefaultModel is used when the configuration names no model.
const DefaultModel = "gemini-2.0-flash"

// Provider implements model.Provider using the Google Gen AI SDK.
type Provider struct {
	client *genai.Client
}

// Verify interface compliance.
var _ model.Provider = (*Provider)(nil)

// New creates a new Gemini provider.
func New(ctx context.Context, apiKey string) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Provider{client: client}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "gemini" }

// List returns available Gemini models.
func (p *Provider) List(ctx context.Context) ([]domain.Model, error) {
	var models []domain.Model
	for m, err := range p.client.Models.All(ctx) {
		if err != nil {
			return nil, err
		}
		if !supportsGenerate(m) {
			continue
		}
		models = append(models, domain.Model{
			ID:       m.Name,
			Name:     m.DisplayName,
			Provider: "gemini",
		})
	}
	return models, nil
}

func supportsGenerate(m *genai.Model) bool {
	if strings.Contains(strings.ToLower(m.Name), "gemma") {
		return false
	}
	for _, action := range m.SupportedActions {
		if action == "generateContent" {
			return true
		}
	}
	return false
}

// Stream sends the conversation to Gemini and returns a stream.
func (p *Provider) Stream(ctx context.Context, modelName string, messages []domain.Message) (model.ModelStream, error) {
	slog.Debug("Gemini.Stream", "model", modelName, "messageCount", len(messages))

	system, contents := convert(messages)
	config := &genai.GenerateContentConfig{
		SystemInstruction: system,
	}

	streamCtx, cancel := context.WithCancel(ctx)
	iter := p.client.Models.GenerateContentStream(streamCtx, modelName, contents, config)

	return &geminiStream{
		iter:   iter,
		cancel: cancel,
	}, nil
}

// convert maps the history onto Gemini contents. The leading system message
// becomes the system instruction; later system messages, such as execution
// summaries, are sent as user turns since Gemini has no system role in the
// conversation itself.
func convert(messages []domain.Message) (*genai.Content, []*genai.Content) {
	var system *genai.Content
	var contents []*genai.Content

	for i, msg := range messages {
		if msg.Content == "" {
			continue
		}
		if i == 0 && msg.Role == domain.RoleSystem {
			system = &genai.Content{
				Parts: []*genai.Part{{Text: msg.Content}},
			}
			continue
		}

		role := "user"
		if msg.Role == domain.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}
	return system, contents
}

// geminiStream wraps the Gemini streaming iterator.
type geminiStream struct {
	iter   func(yield func(*genai.GenerateContentResponse, error) bool)
	cancel context.CancelFunc
}

func (s *geminiStream) FullMessage() (domain.Message, error) {
	var fullText strings.Builder

	for resp, err := range s.iter {
		if err != nil {
			return domain.Message{}, err
		}
		if resp == nil {
			continue
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part.Text != "" && !part.Thought {
					fullText.WriteString(part.Text)
				}
			}
		}
	}

	return domain.Message{
		Role:    domain.RoleAssistant,
		Content: fullText.String(),
	}, nil
}

func (s *geminiStream) Close() error {
	s.cancel()
	return nil
}
