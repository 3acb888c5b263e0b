package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voxmachina/jarvis/internal/config"
	"github.com/voxmachina/jarvis/internal/httpkit"
)

// OllamaClient is a client for the Ollama chat API.
type OllamaClient struct {
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewOllamaClient creates a client for the configured Ollama backend.
func NewOllamaClient(cfg config.OllamaConfig, logger *slog.Logger) *OllamaClient {
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout == 0 {
		timeout = 5 * time.Minute // Large models with tools need time
	}
	return &OllamaClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		httpClient:  httpkit.NewClient(httpkit.WithTimeout(timeout), httpkit.WithLogger(logger)),
		logger:      logger,
	}
}

// chatRequest is the request format for the Ollama chat API.
type chatRequest struct {
	Model    string           `json:"model"`
	Messages []Message        `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []map[string]any `json:"tools,omitempty"`
	Options  map[string]any   `json:"options,omitempty"`
}

// chatChunk is one wire-format response object. Non-streaming requests
// return exactly one; streaming requests return newline-delimited many.
type chatChunk struct {
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Message   Message   `json:"message"`
	Done      bool      `json:"done"`

	// Usage stats (when done=true)
	TotalDuration   int64 `json:"total_duration,omitempty"`
	PromptEvalCount int   `json:"prompt_eval_count,omitempty"`
	EvalCount       int   `json:"eval_count,omitempty"`
	EvalDuration    int64 `json:"eval_duration,omitempty"`
}

// Chat sends a non-streaming chat request.
func (c *OllamaClient) Chat(ctx context.Context, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	return c.ChatStream(ctx, messages, tools, nil)
}

// ChatStream sends a chat request. When callback is non-nil the request
// streams and each content token is forwarded to the callback as it
// arrives; the returned response carries the accumulated content.
func (c *OllamaClient) ChatStream(ctx context.Context, messages []Message, tools []map[string]any, callback StreamCallback) (*ChatResponse, error) {
	stream := callback != nil

	req := chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   stream,
		Tools:    tools,
	}
	if c.temperature > 0 {
		req.Options = map[string]any{"temperature": c.temperature}
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	c.logger.Log(ctx, config.LevelTrace, "ollama request", "payload", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama API error %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 4096))
	}

	if !stream {
		var chunk chatChunk
		if err := json.NewDecoder(resp.Body).Decode(&chunk); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return c.finalize(chunk), nil
	}

	// Streaming: read newline-delimited JSON chunks.
	var final chatChunk
	var content strings.Builder
	decoder := json.NewDecoder(resp.Body)

	for {
		var chunk chatChunk
		if err := decoder.Decode(&chunk); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decode stream chunk: %w", err)
		}

		if chunk.Message.Content != "" {
			content.WriteString(chunk.Message.Content)
			callback(chunk.Message.Content)
		}

		// Tool calls arrive on the final message for most models.
		if len(chunk.Message.ToolCalls) > 0 {
			final.Message.ToolCalls = chunk.Message.ToolCalls
		}

		if chunk.Done {
			toolCalls := final.Message.ToolCalls
			final = chunk
			if len(final.Message.ToolCalls) == 0 {
				final.Message.ToolCalls = toolCalls
			}
			final.Message.Content = content.String()
			break
		}
	}

	return c.finalize(final), nil
}

// finalize converts a wire chunk into a ChatResponse, filling in
// correlation IDs and recovering tool calls that smaller models emit as
// JSON text instead of through the native tool_calls field.
func (c *OllamaClient) finalize(chunk chatChunk) *ChatResponse {
	msg := chunk.Message

	if len(msg.ToolCalls) == 0 && msg.Content != "" {
		if parsed := parseTextToolCalls(msg.Content); len(parsed) > 0 {
			msg.ToolCalls = parsed
			msg.Content = "" // Content was a tool call, not an answer
		}
	}

	for i := range msg.ToolCalls {
		if msg.ToolCalls[i].ID == "" {
			msg.ToolCalls[i].ID = uuid.New().String()
		}
	}

	return &ChatResponse{
		Model:         chunk.Model,
		CreatedAt:     chunk.CreatedAt,
		Message:       msg,
		Done:          chunk.Done,
		PromptTokens:  chunk.PromptEvalCount,
		OutputTokens:  chunk.EvalCount,
		TotalDuration: time.Duration(chunk.TotalDuration),
		EvalDuration:  time.Duration(chunk.EvalDuration),
	}
}

// parseTextToolCalls attempts to extract tool calls from content text.
// Many models output tool calls as JSON in the content rather than using
// the native tool_calls field. Handled formats:
//   - Raw JSON object: {"name": "...", "arguments": {...}}
//   - JSON array: [{"name": "...", "arguments": {...}}]
//   - Tagged: <tool_call>...</tool_call>
func parseTextToolCalls(content string) []ToolCall {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	if strings.Contains(content, "<tool_call>") {
		start := strings.Index(content, "<tool_call>")
		end := strings.Index(content, "</tool_call>")
		if start != -1 && end > start {
			content = strings.TrimSpace(content[start+len("<tool_call>") : end])
		} else if start != -1 {
			// No closing tag, take rest of content
			content = strings.TrimSpace(content[start+len("<tool_call>"):])
		}
	}

	type wireCall struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}

	toCall := func(w wireCall) ToolCall {
		var tc ToolCall
		tc.Function.Name = w.Name
		tc.Function.Arguments = w.Arguments
		return tc
	}

	var calls []wireCall
	if err := json.Unmarshal([]byte(content), &calls); err == nil && len(calls) > 0 {
		result := make([]ToolCall, 0, len(calls))
		for _, w := range calls {
			if w.Name == "" {
				continue
			}
			result = append(result, toCall(w))
		}
		return result
	}

	var single wireCall
	if err := json.Unmarshal([]byte(content), &single); err == nil && single.Name != "" {
		return []ToolCall{toCall(single)}
	}

	return nil
}

// Ping checks if Ollama is reachable.
func (c *OllamaClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama API error %d", resp.StatusCode)
	}

	return nil
}

// Model returns the configured model name.
func (c *OllamaClient) Model() string {
	return c.model
}

// ListModels returns the model names available on the backend.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	names := make([]string, len(result.Models))
	for i, m := range result.Models {
		names[i] = m.Name
	}
	return names, nil
}
