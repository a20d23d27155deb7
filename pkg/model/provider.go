package model

import (
	"context"

	"github.com/nstogner/crew/pkg/domain"
)

// Provider represents a service that provides LLMs (e.g. Gemini, OpenAI).
type Provider interface {
	// Name returns the provider's identifier (e.g. "gemini", "openai").
	Name() string

	// List returns the available models from this provider.
	List(ctx context.Context) ([]domain.Model, error)

	// Stream sends the conversation history to the LLM and returns a stream
	// of responses. modelName identifies which model to use. System messages
	// in messages carry the role prompt and execution summaries.
	Stream(ctx context.Context, modelName string, messages []domain.Message) (ModelStream, error)
}

// ModelStream abstracts the stream of responses from the model.
type ModelStream interface {
	// FullMessage blocks until the complete response is available and returns it.
	FullMessage() (domain.Message, error)

	// Close releases resources associated with this stream.
	Close() error
}
