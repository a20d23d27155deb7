package domain

import "time"

// Message is a single entry in an agent's conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// ExecutionFailed is set on system messages that summarize executions
	// when at least one of them failed.
	ExecutionFailed bool `json:"execution_failed,omitempty"`
}

// ActionKind identifies the command family of an Action.
type ActionKind string

const (
	ActionCreateFolder ActionKind = "create_folder"
	ActionCreateFile   ActionKind = "create_file"
	ActionEditFile     ActionKind = "edit_file"
	ActionExecute      ActionKind = "execute"
	ActionRequestInfo  ActionKind = "request_info"
)

// Action is a command extracted from an assistant reply.
// Path is always relative to the sandbox root.
type Action struct {
	Kind ActionKind `json:"kind"`
	// Path is set for every kind except ActionRequestInfo.
	Path string `json:"path,omitempty"`
	// Content is the full file body for ActionEditFile.
	Content string `json:"content,omitempty"`
	// Prompt is the question for the user for ActionRequestInfo.
	Prompt string `json:"prompt,omitempty"`
}

// Run is one orchestration run: a chain of agents sharing one sandbox.
type Run struct {
	ID          string    `json:"id"`
	SandboxRoot string    `json:"sandbox_root"`
	Provider    string    `json:"provider"`
	Agents      []string  `json:"agents"`
	CreatedAt   time.Time `json:"created_at"`
}

// StreamEntry is a persisted conversation message of one agent within a run.
type StreamEntry struct {
	ID              string    `json:"id"`
	RunID           string    `json:"run_id"`
	Agent           string    `json:"agent"`
	Role            Role      `json:"role"`
	Content         string    `json:"content"`
	ExecutionFailed bool      `json:"execution_failed,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Model represents an available LLM model.
type Model struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}
