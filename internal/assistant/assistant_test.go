package assistant

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/voxmachina/jarvis/internal/llm"
	"github.com/voxmachina/jarvis/internal/tools"
)

// fakeModel scripts Chat/ChatStream responses in call order.
type fakeModel struct {
	chatResponses []*llm.ChatResponse
	chatErr       error
	chatCalls     [][]llm.Message

	streamTokens []string
	streamErr    error
	streamCalls  [][]llm.Message
}

func (f *fakeModel) Chat(_ context.Context, messages []llm.Message, _ []map[string]any) (*llm.ChatResponse, error) {
	f.chatCalls = append(f.chatCalls, messages)
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	if len(f.chatResponses) == 0 {
		return &llm.ChatResponse{Message: llm.Message{Role: "assistant"}}, nil
	}
	resp := f.chatResponses[0]
	f.chatResponses = f.chatResponses[1:]
	return resp, nil
}

func (f *fakeModel) ChatStream(_ context.Context, messages []llm.Message, _ []map[string]any, callback llm.StreamCallback) (*llm.ChatResponse, error) {
	f.streamCalls = append(f.streamCalls, messages)
	var full strings.Builder
	for _, tok := range f.streamTokens {
		full.WriteString(tok)
		if callback != nil {
			callback(tok)
		}
	}
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return &llm.ChatResponse{Message: llm.Message{Role: "assistant", Content: full.String()}, Done: true}, nil
}

func (f *fakeModel) Ping(context.Context) error { return nil }

// fakeExecutor serves a fixed tool list and records executions.
type fakeExecutor struct {
	specs    []tools.Spec
	results  map[string]tools.Result
	listErr  error
	execErr  error
	executed []tools.Call
}

func (f *fakeExecutor) ListTools(context.Context) ([]tools.Spec, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.specs, nil
}

func (f *fakeExecutor) ExecuteTool(_ context.Context, call tools.Call) (tools.Result, error) {
	f.executed = append(f.executed, call)
	if f.execErr != nil {
		return tools.Result{}, f.execErr
	}
	if res, ok := f.results[call.Name]; ok {
		res.ToolCallID = call.ID
		return res, nil
	}
	return tools.Result{ToolCallID: call.ID, Content: "ok", Success: true}, nil
}

func lightSpecs() []tools.Spec {
	return []tools.Spec{{Name: "hue_turn_on_light", Description: "Turn on a light"}}
}

func toolCall(name string) llm.ToolCall {
	var tc llm.ToolCall
	tc.ID = "call-" + name
	tc.Function.Name = name
	tc.Function.Arguments = map[string]any{}
	return tc
}

func newTestAssistant(model *fakeModel, exec *fakeExecutor, streamMode string) *Assistant {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(model, exec, "You are a test assistant.", streamMode, logger)
}

func TestProcessPlainAnswer(t *testing.T) {
	model := &fakeModel{chatResponses: []*llm.ChatResponse{
		{Message: llm.Message{Role: "assistant", Content: "Hello!"}},
	}}
	a := newTestAssistant(model, &fakeExecutor{}, StreamModeDetect)

	out, err := a.Process(context.Background(), "s1", "hi")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out != "Hello!" {
		t.Errorf("out = %q", out)
	}

	hist := a.Session("s1").History()
	if len(hist) != 3 { // system, user, assistant
		t.Fatalf("history length = %d, want 3", len(hist))
	}
	if hist[1].Role != "user" || hist[1].Content != "hi" {
		t.Errorf("user message = %+v", hist[1])
	}
	if hist[2].Role != "assistant" || hist[2].Content != "Hello!" {
		t.Errorf("assistant message = %+v", hist[2])
	}
}

func TestProcessToolLoop(t *testing.T) {
	model := &fakeModel{chatResponses: []*llm.ChatResponse{
		{Message: llm.Message{Role: "assistant", ToolCalls: []llm.ToolCall{
			toolCall("hue_turn_on_light"),
			toolCall("hue_set_brightness"),
		}}},
		{Message: llm.Message{Role: "assistant", Content: "Both lights handled."}},
	}}
	exec := &fakeExecutor{
		specs: lightSpecs(),
		results: map[string]tools.Result{
			"hue_turn_on_light":  {Content: `{"message":"Light 3 turned on"}`, Success: true},
			"hue_set_brightness": {Content: `{"message":"Light 3 brightness set to 120"}`, Success: true},
		},
	}
	a := newTestAssistant(model, exec, StreamModeDetect)

	out, err := a.Process(context.Background(), "s1", "turn on the light and dim it")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out != "Both lights handled." {
		t.Errorf("out = %q", out)
	}

	if len(exec.executed) != 2 {
		t.Fatalf("executed %d calls, want 2", len(exec.executed))
	}
	if exec.executed[0].Name != "hue_turn_on_light" || exec.executed[1].Name != "hue_set_brightness" {
		t.Errorf("execution order = %q, %q", exec.executed[0].Name, exec.executed[1].Name)
	}

	hist := a.Session("s1").History()
	// system, user, two tool results, assistant summary
	if len(hist) != 5 {
		t.Fatalf("history length = %d, want 5", len(hist))
	}
	if hist[2].Role != "tool" || !strings.Contains(hist[2].Content, "Tool 'hue_turn_on_light' result:") {
		t.Errorf("first tool message = %+v", hist[2])
	}
	if !strings.Contains(hist[3].Content, "brightness set to 120") {
		t.Errorf("second tool message = %+v", hist[3])
	}

	// The summary instruction goes to the model but never persists.
	lastCall := model.chatCalls[len(model.chatCalls)-1]
	if got := lastCall[len(lastCall)-1].Content; got != "Please provide a summary of the results." {
		t.Errorf("summary instruction = %q", got)
	}
	for _, m := range hist {
		if strings.Contains(m.Content, "summary of the results") {
			t.Errorf("summary instruction leaked into history: %+v", m)
		}
	}
}

func TestProcessToolFailureFoldedIntoHistory(t *testing.T) {
	model := &fakeModel{chatResponses: []*llm.ChatResponse{
		{Message: llm.Message{Role: "assistant", ToolCalls: []llm.ToolCall{toolCall("hue_turn_on_light")}}},
		{Message: llm.Message{Role: "assistant", Content: "The bridge is unreachable."}},
	}}
	exec := &fakeExecutor{
		specs: lightSpecs(),
		results: map[string]tools.Result{
			"hue_turn_on_light": {Success: false, Error: "bridge rejected update: resource not available"},
		},
	}
	a := newTestAssistant(model, exec, StreamModeDetect)

	out, err := a.Process(context.Background(), "s1", "lights on")
	if err != nil {
		t.Fatalf("tool failure must not fail the turn: %v", err)
	}
	if out != "The bridge is unreachable." {
		t.Errorf("out = %q", out)
	}

	hist := a.Session("s1").History()
	var found bool
	for _, m := range hist {
		if m.Role == "tool" && strings.Contains(m.Content, "bridge rejected update") {
			found = true
		}
	}
	if !found {
		t.Error("tool error message not folded into history")
	}
}

func TestProcessModelFailureLeavesHistoryClean(t *testing.T) {
	model := &fakeModel{chatErr: fmt.Errorf("connection refused")}
	a := newTestAssistant(model, &fakeExecutor{}, StreamModeDetect)

	before := a.Session("s1").Len()
	if _, err := a.Process(context.Background(), "s1", "hi"); err == nil {
		t.Fatal("expected error")
	}
	if got := a.Session("s1").Len(); got != before {
		t.Errorf("history length = %d, want %d (turn rolled back)", got, before)
	}
}

func TestProcessExecutorTransportFailure(t *testing.T) {
	model := &fakeModel{chatResponses: []*llm.ChatResponse{
		{Message: llm.Message{Role: "assistant", ToolCalls: []llm.ToolCall{toolCall("hue_turn_on_light")}}},
	}}
	exec := &fakeExecutor{specs: lightSpecs(), execErr: fmt.Errorf("orchestrator unreachable")}
	a := newTestAssistant(model, exec, StreamModeDetect)

	before := a.Session("s1").Len()
	if _, err := a.Process(context.Background(), "s1", "lights on"); err == nil {
		t.Fatal("expected error")
	}
	if got := a.Session("s1").Len(); got != before {
		t.Errorf("history length = %d, want %d", got, before)
	}
}

func TestProcessStreamPlainMatchesNonStreaming(t *testing.T) {
	model := &fakeModel{streamTokens: []string{"Hel", "lo", "!"}}
	a := newTestAssistant(model, &fakeExecutor{}, StreamModeDetect)

	var got strings.Builder
	out, err := a.ProcessStream(context.Background(), "s1", "hi", func(tok string) {
		got.WriteString(tok)
	})
	if err != nil {
		t.Fatalf("ProcessStream: %v", err)
	}
	if out != "Hello!" || got.String() != "Hello!" {
		t.Errorf("out = %q, streamed = %q", out, got.String())
	}

	hist := a.Session("s1").History()
	if hist[len(hist)-1].Content != "Hello!" {
		t.Errorf("final message = %+v", hist[len(hist)-1])
	}
	// Zero tools registered: no detection call should happen.
	if len(model.chatCalls) != 0 {
		t.Errorf("chat calls = %d, want 0", len(model.chatCalls))
	}
}

func TestProcessStreamKeywordModeSkipsDetection(t *testing.T) {
	model := &fakeModel{streamTokens: []string{"Good ", "morning."}}
	exec := &fakeExecutor{specs: lightSpecs()}
	a := newTestAssistant(model, exec, StreamModeKeyword)

	if _, err := a.ProcessStream(context.Background(), "s1", "good morning", nil); err != nil {
		t.Fatalf("ProcessStream: %v", err)
	}
	if len(model.chatCalls) != 0 {
		t.Errorf("keyword mode ran detection for non-tool text: %d calls", len(model.chatCalls))
	}
}

func TestProcessStreamKeywordModeDetectsToolText(t *testing.T) {
	model := &fakeModel{
		chatResponses: []*llm.ChatResponse{
			{Message: llm.Message{Role: "assistant", ToolCalls: []llm.ToolCall{toolCall("hue_turn_on_light")}}},
		},
		streamTokens: []string{"Done, ", "lights are on."},
	}
	exec := &fakeExecutor{specs: lightSpecs()}
	a := newTestAssistant(model, exec, StreamModeKeyword)

	out, err := a.ProcessStream(context.Background(), "s1", "turn on the lights", nil)
	if err != nil {
		t.Fatalf("ProcessStream: %v", err)
	}
	if out != "Done, lights are on." {
		t.Errorf("out = %q", out)
	}
	if len(exec.executed) != 1 {
		t.Fatalf("executed %d tools, want 1", len(exec.executed))
	}

	// Tool path streams the summary with the streaming instruction.
	lastStream := model.streamCalls[len(model.streamCalls)-1]
	if got := lastStream[len(lastStream)-1].Content; got != "Please provide a summary of the results in a natural way." {
		t.Errorf("stream summary instruction = %q", got)
	}
}

func TestProcessStreamCancellationKeepsPartial(t *testing.T) {
	model := &fakeModel{streamTokens: []string{"Once upon ", "a time"}, streamErr: context.Canceled}
	a := newTestAssistant(model, &fakeExecutor{}, StreamModeDetect)

	out, err := a.ProcessStream(context.Background(), "s1", "tell a story", nil)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if out != "Once upon a time" {
		t.Errorf("partial = %q", out)
	}

	hist := a.Session("s1").History()
	if hist[len(hist)-1].Content != "Once upon a time" {
		t.Errorf("partial answer not kept: %+v", hist[len(hist)-1])
	}
}

func TestClearKeepsSystemPrompt(t *testing.T) {
	model := &fakeModel{chatResponses: []*llm.ChatResponse{
		{Message: llm.Message{Role: "assistant", Content: "Hi."}},
	}}
	a := newTestAssistant(model, &fakeExecutor{}, StreamModeDetect)

	if _, err := a.Process(context.Background(), "s1", "hello"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	a.ClearSession("s1")

	hist := a.Session("s1").History()
	if len(hist) != 1 || hist[0].Role != "system" {
		t.Errorf("after clear: %+v", hist)
	}
}

func TestMentionsToolWork(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"turn on the lights", true},
		{"what's on my calendar", true},
		{"send an email to Bob", true},
		{"how are you", false},
		{"good morning", false},
	}
	for _, tc := range tests {
		if got := mentionsToolWork(tc.in); got != tc.want {
			t.Errorf("mentionsToolWork(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
