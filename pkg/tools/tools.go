// Package tools provides the tool gateway: the registry of tools the engine
// can offer to the model, and their execution.
package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/nstogner/dispatch/pkg/domain"
)

// Tool defines the interface that all tools must implement.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	// Unsafe marks tools that write to or mutate the host. Unsafe tools are
	// withheld from conversations unless the caller opts in.
	Unsafe() bool
	Execute(ctx context.Context, input map[string]any) (string, error)
}

// Gateway is the engine's boundary to tool execution. Invoke honors ctx
// cancellation on a best-effort, cooperative basis.
type Gateway interface {
	// Specs returns the declarations for the requested tool names, filtered
	// by the unsafe denylist unless allowUnsafe is set. Unknown names are
	// skipped. An empty ids slice selects every exposable tool.
	Specs(ids []string, allowUnsafe bool) []domain.ToolSpec

	// Invoke executes the named tool and returns its result text.
	Invoke(ctx context.Context, name string, input map[string]any) (string, error)
}

// Registry is the in-process Gateway implementation.
type Registry struct {
	tools map[string]Tool
}

var _ Gateway = (*Registry)(nil)

// NewRegistry creates a new, empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Specs implements Gateway.
func (r *Registry) Specs(ids []string, allowUnsafe bool) []domain.ToolSpec {
	selected := make(map[string]bool)
	for _, id := range ids {
		selected[id] = true
	}

	var specs []domain.ToolSpec
	for name, t := range r.tools {
		if len(ids) > 0 && !selected[name] {
			continue
		}
		if t.Unsafe() && !allowUnsafe {
			continue
		}
		specs = append(specs, domain.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
			Unsafe:      t.Unsafe(),
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Invoke implements Gateway.
func (r *Registry) Invoke(ctx context.Context, name string, input map[string]any) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}
	return t.Execute(ctx, input)
}
