package domain

// Role defines the sender of a conversation message.
type Role string

const (
	// RoleSystem indicates a system-level message: the agent's role prompt or
	// an execution summary injected after a reply.
	RoleSystem Role = "system"
	// RoleUser indicates input to an agent, from the human or a previous agent.
	RoleUser Role = "user"
	// RoleAssistant indicates a reply from the model.
	RoleAssistant Role = "assistant"
)
