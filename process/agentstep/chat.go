// Package agentstep implements the agent step-kernel variant: a step
// whose entry point turns its input into a chat completion call against
// a pluggable ChatModel, optionally dispatching tool calls through a
// toolstep.Invoker, and records token usage on the owning process's cost
// tracker.
package agentstep

import "context"

// ChatModel abstracts a chat-completion provider (OpenAI, Anthropic,
// Google, or a test double) behind one call shape.
type ChatModel interface {
	// Chat sends messages and optional tool specs and returns the
	// completion. Implementations must respect ctx cancellation.
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Named is implemented by providers that can report the concrete model
// string they were configured with, for cost-tracker pricing lookups.
type Named interface {
	ModelName() string
}

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string
}

// Standard message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolSpec describes one tool a model may call.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ToolCall is a model-issued request to invoke a named tool.
type ToolCall struct {
	Name  string
	Input map[string]interface{}
}

// Usage reports the token counts a completion consumed, for cost
// tracking. A provider adapter that cannot report exact counts should
// estimate rather than leave both fields zero.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ChatOut is a model's response: text, requested tool calls, or both.
type ChatOut struct {
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
}
