// Package tools defines the tool registry and dispatcher that route
// model tool calls to their handlers.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Spec describes one callable tool. Parameters is a JSON-Schema-shaped
// map ({type, properties, required}) forwarded verbatim to the model.
type Spec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Call is one tool invocation requested by the model.
type Call struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Result is the outcome of one Call. Content carries the serialized
// payload on success; Error carries the failure message otherwise.
type Result struct {
	ToolCallID string `json:"tool_call_id,omitempty"`
	Content    string `json:"content"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// Handler executes a family of tools and publishes their specs.
type Handler interface {
	// Definitions returns the specs for every tool this handler serves.
	Definitions() []Spec

	// Execute runs the named tool. Errors are reported back to the
	// model as tool output, so messages should be readable prose.
	Execute(ctx context.Context, name string, args map[string]any) (string, error)
}

// route binds a name prefix (or exact names) to a handler. A nil
// handler means the family is known but not yet initialized, e.g.
// waiting on authorization.
type route struct {
	prefix  string   // Non-empty for prefix routes
	names   []string // Non-empty for exact-name routes
	label   string   // Human name used in "not initialized" errors
	handler Handler
}

// Registry routes tool calls to handlers by name prefix or exact-name
// allow-list, and aggregates tool specs for the model.
type Registry struct {
	mu     sync.Mutex
	routes []route
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// RegisterPrefix binds every tool name starting with prefix to h.
// Registering the same prefix again replaces the handler, which is how
// a family goes live once its backend authenticates. A nil handler
// reserves the family: its tools dispatch to a "not initialized" error.
func (r *Registry) RegisterPrefix(prefix, label string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.routes {
		if r.routes[i].prefix == prefix {
			r.routes[i].handler = h
			r.routes[i].label = label
			r.logger.Debug("tool route replaced", "prefix", prefix, "initialized", h != nil)
			return
		}
	}
	r.routes = append(r.routes, route{prefix: prefix, label: label, handler: h})
	r.logger.Debug("tool route registered", "prefix", prefix, "initialized", h != nil)
}

// RegisterNames binds the exact tool names to h. Re-registering the
// same name set replaces the handler.
func (r *Registry) RegisterNames(label string, h Handler, names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.routes {
		if r.routes[i].prefix == "" && sameNames(r.routes[i].names, names) {
			r.routes[i].handler = h
			r.routes[i].label = label
			r.logger.Debug("tool route replaced", "names", names, "initialized", h != nil)
			return
		}
	}
	r.routes = append(r.routes, route{names: names, label: label, handler: h})
	r.logger.Debug("tool route registered", "names", names, "initialized", h != nil)
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// List returns a snapshot of every registered tool spec, in
// registration order. Uninitialized families are omitted so the model
// never sees a tool it cannot use yet.
func (r *Registry) List() []Spec {
	r.mu.Lock()
	defer r.mu.Unlock()

	var specs []Spec
	for _, rt := range r.routes {
		if rt.handler == nil {
			continue
		}
		specs = append(specs, rt.handler.Definitions()...)
	}
	return specs
}

// Count returns the number of currently available tools.
func (r *Registry) Count() int {
	return len(r.List())
}

// Execute dispatches a call to its handler and always returns a
// Result, for any name and any arguments. Unknown names, uninitialized
// handlers, handler errors and handler panics all come back as a
// failed Result rather than an error or a panic crossing this
// boundary.
func (r *Registry) Execute(ctx context.Context, call Call) Result {
	rt, ok := r.resolve(call.Name)
	if !ok {
		return Result{
			ToolCallID: call.ID,
			Success:    false,
			Error:      fmt.Sprintf("Unknown tool: %s", call.Name),
		}
	}
	if rt.handler == nil {
		return Result{
			ToolCallID: call.ID,
			Success:    false,
			Error:      fmt.Sprintf("%s tool not initialized", rt.label),
		}
	}

	content, err := r.executeSafe(ctx, rt.handler, call)
	if err != nil {
		r.logger.Error("tool execution failed", "tool", call.Name, "error", err)
		return Result{ToolCallID: call.ID, Success: false, Error: err.Error()}
	}
	return Result{ToolCallID: call.ID, Content: content, Success: true}
}

// executeSafe runs the handler with panic recovery. One misbehaving
// handler must never take down the dispatcher or the other tools.
func (r *Registry) executeSafe(ctx context.Context, h Handler, call Call) (content string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool handler panic", "tool", call.Name, "panic", rec)
			err = fmt.Errorf("tool %s panicked: %v", call.Name, rec)
		}
	}()
	return h.Execute(ctx, call.Name, call.Arguments)
}

func (r *Registry) resolve(name string) (route, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rt := range r.routes {
		if rt.prefix != "" {
			if strings.HasPrefix(name, rt.prefix) {
				return rt, true
			}
			continue
		}
		for _, n := range rt.names {
			if n == name {
				return rt, true
			}
		}
	}
	return route{}, false
}
