// Package llm provides the Ollama model client.
package llm

import "time"

// Message represents a chat message for the model.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
}

// ToolCall represents a tool call emitted by the model. ID is a
// correlation token assigned at parse time when the provider does not
// supply one (Ollama does not).
type ToolCall struct {
	ID       string `json:"id,omitempty"`
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

// ChatResponse is the parsed response from a chat request.
type ChatResponse struct {
	Model     string
	CreatedAt time.Time
	Message   Message
	Done      bool

	// Token usage
	PromptTokens int
	OutputTokens int

	// Timing (populated when available)
	TotalDuration time.Duration
	EvalDuration  time.Duration
}

// StreamCallback is called for each streamed token.
type StreamCallback func(token string)
