// Package assistant implements the conversation engine: per-session
// history, the tool-call loop against the model, and streaming
// delivery of answers.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/voxmachina/jarvis/internal/llm"
	"github.com/voxmachina/jarvis/internal/tools"
)

// DefaultSystemPrompt is used when no prompt file is configured.
const DefaultSystemPrompt = `You are Jarvis, a helpful personal assistant. You can read and send email, manage the calendar, control the lights, and schedule reminders through your tools. Answer concisely and use tools when the request calls for one.`

// ToolExecutor is the slice of the orchestrator the engine depends on.
// Satisfied by [orchestrator.Client].
type ToolExecutor interface {
	ListTools(ctx context.Context) ([]tools.Spec, error)
	ExecuteTool(ctx context.Context, call tools.Call) (tools.Result, error)
}

// StreamMode selects how ProcessStream decides on tool use.
const (
	// StreamModeDetect always runs a non-streaming tool-decision call
	// first. Consistent, slightly higher latency.
	StreamModeDetect = "detect"
	// StreamModeKeyword streams directly unless the user text matches
	// a tool keyword. Lower latency, can miss tool requests.
	StreamModeKeyword = "keyword"
)

// Assistant is the conversation engine. It owns all sessions and runs
// the tool-call loop for each turn.
type Assistant struct {
	model        llm.Client
	executor     ToolExecutor
	systemPrompt string
	streamMode   string
	logger       *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// New creates a conversation engine. streamMode is "detect" or
// "keyword"; an empty systemPrompt falls back to the default.
func New(model llm.Client, executor ToolExecutor, systemPrompt, streamMode string, logger *slog.Logger) *Assistant {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if streamMode == "" {
		streamMode = StreamModeDetect
	}
	return &Assistant{
		model:        model,
		executor:     executor,
		systemPrompt: systemPrompt,
		streamMode:   streamMode,
		logger:       logger.With("component", "assistant"),
		sessions:     make(map[string]*Session),
	}
}

// Session returns the session for id, creating it on first use.
func (a *Assistant) Session(id string) *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[id]
	if !ok {
		s = newSession(a.systemPrompt)
		a.sessions[id] = s
	}
	return s
}

// ClearSession resets a conversation to its system prompt.
func (a *Assistant) ClearSession(id string) {
	a.Session(id).Clear()
}

// Process runs one non-streaming turn: append the user message, let
// the model decide on tool calls, execute them in the order returned,
// and produce the final answer. Transport failures leave the history
// as it was before the turn; tool failures are folded into the
// conversation so the model can explain them.
func (a *Assistant) Process(ctx context.Context, sessionID, userText string) (string, error) {
	sess := a.Session(sessionID)
	sess.turn.Lock()
	defer sess.turn.Unlock()

	a.logger.Info("processing command", "session", sessionID, "length", len(userText))

	_, start := sess.snapshot()
	sess.append(llm.Message{Role: roleUser, Content: userText})

	specs, err := a.listSpecs(ctx)
	if err != nil {
		sess.truncate(start)
		return "", err
	}

	history, _ := sess.snapshot()
	resp, err := a.model.Chat(ctx, history, specs)
	if err != nil {
		sess.truncate(start)
		return "", fmt.Errorf("model call failed: %w", err)
	}

	if len(resp.Message.ToolCalls) == 0 {
		sess.append(llm.Message{Role: roleAssistant, Content: resp.Message.Content})
		return resp.Message.Content, nil
	}

	if err := a.runToolCalls(ctx, sess, resp.Message.ToolCalls); err != nil {
		sess.truncate(start)
		return "", err
	}

	summary, err := a.summarize(ctx, sess, "Please provide a summary of the results.")
	if err != nil {
		sess.truncate(start)
		return "", err
	}
	sess.append(llm.Message{Role: roleAssistant, Content: summary})
	return summary, nil
}

// ProcessStream runs one streaming turn, forwarding answer tokens to
// onToken as they arrive. It returns the complete answer text. If the
// context is cancelled mid-stream, the partial answer is kept in the
// history and the cancellation error is returned.
func (a *Assistant) ProcessStream(ctx context.Context, sessionID, userText string, onToken llm.StreamCallback) (string, error) {
	sess := a.Session(sessionID)
	sess.turn.Lock()
	defer sess.turn.Unlock()

	a.logger.Info("processing streaming command", "session", sessionID, "length", len(userText))

	_, start := sess.snapshot()
	sess.append(llm.Message{Role: roleUser, Content: userText})

	specs, err := a.listSpecs(ctx)
	if err != nil {
		sess.truncate(start)
		return "", err
	}

	attemptTools := len(specs) > 0
	if attemptTools && a.streamMode == StreamModeKeyword {
		attemptTools = mentionsToolWork(userText)
	}

	if !attemptTools {
		return a.streamAnswer(ctx, sess, start, nil, onToken)
	}

	history, _ := sess.snapshot()
	resp, err := a.model.Chat(ctx, history, specs)
	if err != nil {
		sess.truncate(start)
		return "", fmt.Errorf("model call failed: %w", err)
	}

	if len(resp.Message.ToolCalls) == 0 {
		return a.streamAnswer(ctx, sess, start, nil, onToken)
	}

	if err := a.runToolCalls(ctx, sess, resp.Message.ToolCalls); err != nil {
		sess.truncate(start)
		return "", err
	}

	summary := &llm.Message{
		Role:    roleUser,
		Content: "Please provide a summary of the results in a natural way.",
	}
	return a.streamAnswer(ctx, sess, start, summary, onToken)
}

// listSpecs fetches the current tool snapshot and converts it to the
// model's function-calling format. The list is fetched every turn:
// authorization may have changed which tools exist.
func (a *Assistant) listSpecs(ctx context.Context) ([]map[string]any, error) {
	list, err := a.executor.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	if len(list) == 0 {
		return nil, nil
	}
	specs := make([]map[string]any, 0, len(list))
	for _, spec := range list {
		specs = append(specs, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        spec.Name,
				"description": spec.Description,
				"parameters":  spec.Parameters,
			},
		})
	}
	return specs, nil
}

// runToolCalls executes the calls strictly in the order the model
// emitted them, appending each result to the conversation. A failed
// tool becomes conversation content; only transport failures return an
// error.
func (a *Assistant) runToolCalls(ctx context.Context, sess *Session, calls []llm.ToolCall) error {
	a.logger.Info("executing tool calls", "count", len(calls))

	for _, call := range calls {
		result, err := a.executor.ExecuteTool(ctx, tools.Call{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
		if err != nil {
			return fmt.Errorf("execute tool %s: %w", call.Function.Name, err)
		}

		content := result.Content
		if !result.Success {
			content = result.Error
		}
		a.logger.Info("tool executed", "tool", call.Function.Name, "success", result.Success)

		sess.append(llm.Message{
			Role:       roleTool,
			Content:    fmt.Sprintf("Tool '%s' result: %s", call.Function.Name, content),
			ToolCallID: call.ID,
		})
	}
	return nil
}

// summarize issues one more model call asking for a summary of the
// tool results. The synthetic instruction is not persisted.
func (a *Assistant) summarize(ctx context.Context, sess *Session, instruction string) (string, error) {
	history, _ := sess.snapshot()
	history = append(history, llm.Message{Role: roleUser, Content: instruction})

	resp, err := a.model.Chat(ctx, history, nil)
	if err != nil {
		return "", fmt.Errorf("summary call failed: %w", err)
	}
	return resp.Message.Content, nil
}

// streamAnswer streams a model response, forwarding tokens and
// appending the accumulated text as the turn's assistant message.
// extra, when non-nil, is a synthetic trailing instruction that is
// sent to the model but never persisted.
func (a *Assistant) streamAnswer(ctx context.Context, sess *Session, start int, extra *llm.Message, onToken llm.StreamCallback) (string, error) {
	history, _ := sess.snapshot()
	if extra != nil {
		history = append(history, *extra)
	}

	var full strings.Builder
	_, err := a.model.ChatStream(ctx, history, nil, func(token string) {
		full.WriteString(token)
		if onToken != nil {
			onToken(token)
		}
	})
	if err != nil {
		if isCancel(err) && full.Len() > 0 {
			// Keep what made it out before the consumer went away.
			sess.append(llm.Message{Role: roleAssistant, Content: full.String()})
			return full.String(), err
		}
		sess.truncate(start)
		return "", fmt.Errorf("streaming model call failed: %w", err)
	}

	sess.append(llm.Message{Role: roleAssistant, Content: full.String()})
	return full.String(), nil
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// toolKeywords gate the keyword stream mode. A match means the turn
// goes through non-streaming tool detection first.
var toolKeywords = []string{
	"email", "calendar", "schedule", "send", "check", "create",
	"event", "events", "meeting", "meetings", "next", "upcoming",
	"today", "tomorrow", "list", "show", "tell",
	"notification", "reminder", "reminders",
	"hue", "lights", "light", "color", "brightness",
	"turn on", "turn off",
}

func mentionsToolWork(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range toolKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
