// Package capability defines the fixed set of tools the agent loop may invoke.
package capability

import (
	"context"
	"fmt"
	"sort"

	"github.com/soukhq/souk/internal/llm"
)

// Actor identifies the acting user for side-effecting capabilities. A zero
// Actor means the caller is anonymous.
type Actor struct {
	UserID string
}

// Known reports whether an acting user is present.
func (a Actor) Known() bool { return a.UserID != "" }

// Handler executes one capability. Handlers never panic or leak errors past
// their boundary: every outcome, including failure, is a JSON-serializable map
// so the agent loop can hand it back to the model as ordinary tool output.
type Handler func(ctx context.Context, actor Actor, args map[string]any) map[string]any

// Tool is one registered capability.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     Handler
}

// Registry holds the capability set keyed by name.
type Registry struct {
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Later registrations with the same name replace earlier
// ones.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Names returns the registered capability names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Defs exports the registry as tool definitions for the model, in stable order.
func (r *Registry) Defs() []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(r.tools))
	for _, name := range r.Names() {
		t := r.tools[name]
		defs = append(defs, llm.ToolDef{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return defs
}

// Execute dispatches a capability call by name. Unknown names are reported as
// a failure result, not an error, so a hallucinated tool name cannot abort the
// agent loop.
func (r *Registry) Execute(ctx context.Context, actor Actor, name string, args map[string]any) map[string]any {
	t, ok := r.tools[name]
	if !ok {
		return Failure(fmt.Sprintf("unknown capability %q", name))
	}
	if args == nil {
		args = map[string]any{}
	}
	return t.Handler(ctx, actor, args)
}

// Failure builds the standard failure envelope.
func Failure(message string) map[string]any {
	return map[string]any{"success": false, "message": message}
}

// requireActor is the shared guard for side-effecting capabilities.
func requireActor(actor Actor) (map[string]any, bool) {
	if !actor.Known() {
		return Failure("you need to be signed in for this"), false
	}
	return nil, true
}

func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func argFloat(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
