package llm

import "context"

// Client is the model backend contract the assistant depends on.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	Chat(ctx context.Context, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// ChatStream sends a streaming chat request. If callback is non-nil,
	// tokens are streamed to it as they arrive.
	ChatStream(ctx context.Context, messages []Message, tools []map[string]any, callback StreamCallback) (*ChatResponse, error)

	// Ping checks if the backend is reachable.
	Ping(ctx context.Context) error
}
