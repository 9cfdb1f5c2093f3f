package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/schema"
)

// ErrUnknownTool is returned by Execute when the model requests a tool that
// was never registered. Callers report it to the model in-band rather than
// failing the query.
var ErrUnknownTool = errors.New("tools: tool not found")

// Registry holds the registered tools, exposes their schemas for model
// binding, and routes invocations by name. Registration order is preserved
// so schema lists and aggregated citations are deterministic.
type Registry struct {
	byName map[string]Tool
	order  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Tool)}
}

// Register adds a tool. Registering two tools with the same name is a
// programming error and is rejected.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("tools: duplicate tool name %q", name)
	}
	r.byName[name] = t
	r.order = append(r.order, name)
	return nil
}

// Definitions returns the schemas of all registered tools in registration
// order, ready to bind to a tool-calling model.
func (r *Registry) Definitions(ctx context.Context) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		info, err := r.byName[name].Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tools: schema for %q: %w", name, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Execute routes one invocation to the named tool. An unknown name yields
// ErrUnknownTool: the model hallucinated a tool that was never bound.
func (r *Registry) Execute(ctx context.Context, name, argumentsInJSON string) (string, error) {
	t, ok := r.byName[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return t.InvokableRun(ctx, argumentsInJSON)
}

// LastSources aggregates the citation buffers of every source-tracking tool,
// in registration order.
func (r *Registry) LastSources() []Citation {
	var sources []Citation
	for _, name := range r.order {
		if tracker, ok := r.byName[name].(SourceTracker); ok {
			sources = append(sources, tracker.LastSources()...)
		}
	}
	return sources
}

// ResetSources clears the citation buffers of every source-tracking tool.
func (r *Registry) ResetSources() {
	for _, name := range r.order {
		if tracker, ok := r.byName[name].(SourceTracker); ok {
			tracker.ResetSources()
		}
	}
}
