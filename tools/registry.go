// Package tools dispatches agent tool calls onto the query service.
//
// Each tool pairs a parameter declaration with a binder that turns coerced
// arguments into the tool's own request type, and a runner that executes it.
// The set of tools is fixed when the Registry is built.
package tools

import (
	"context"
	"fmt"
	"strconv"

	"github.com/archives-observability/archives/archerr"
	"github.com/archives-observability/archives/utils"
)

// Tool is a registered tool.
type Tool struct {
	Name        string
	Description string
	Params      []Param
	invoke      func(ctx context.Context, args Args) (any, error)
}

// InputSchema returns the JSON-schema description of the tool's parameters.
func (t Tool) InputSchema() map[string]any {
	return schema(t.Params)
}

// NewTool binds a typed request R to a tool name. bind runs after coercion
// and before any store access; run executes the request.
func NewTool[R any](name, description string, params []Param, bind func(Args) (R, error), run func(context.Context, R) (any, error)) Tool {
	return Tool{
		Name:        name,
		Description: description,
		Params:      params,
		invoke: func(ctx context.Context, args Args) (any, error) {
			req, err := bind(args)
			if err != nil {
				return nil, err
			}
			return run(ctx, req)
		},
	}
}

// Envelope is the uniform tool result.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
}

// Descriptor is the catalog entry for one tool.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolObserver is told the outcome of every dispatch. errKind is empty on
// success.
type ToolObserver interface {
	ObserveTool(tool, errKind string)
}

// Registry maps tool names to tools. It is immutable after construction.
type Registry struct {
	tools    map[string]Tool
	order    []string
	logger   *utils.Logger
	observer ToolObserver
}

// NewRegistry validates every declaration and builds the registry.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools:  make(map[string]Tool, len(tools)),
		order:  make([]string, 0, len(tools)),
		logger: utils.GetLogger(),
	}
	for _, t := range tools {
		if t.Name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if t.invoke == nil {
			return nil, fmt.Errorf("tool %s has no handler", t.Name)
		}
		if _, dup := r.tools[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %s", t.Name)
		}
		if err := validateParams(t.Name, t.Params); err != nil {
			return nil, err
		}
		r.tools[t.Name] = t
		r.order = append(r.order, t.Name)
	}
	return r, nil
}

// WithObserver returns a registry sharing r's tools that reports dispatches
// to o.
func (r *Registry) WithObserver(o ToolObserver) *Registry {
	clone := *r
	clone.observer = o
	return &clone
}

// Lookup returns the named tool.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Tools returns the tools in registration order.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Catalog describes every tool.
func (r *Registry) Catalog() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, t := range r.Tools() {
		out = append(out, Descriptor{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema()})
	}
	return out
}

// Call looks up, coerces and runs a tool.
func (r *Registry) Call(ctx context.Context, name string, params map[string]any) (any, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, archerr.New(archerr.UnknownTool, "unknown tool "+strconv.Quote(name))
	}
	args, err := coerce(t.Params, params)
	if err != nil {
		return nil, err
	}
	return t.invoke(ctx, args)
}

// Dispatch runs a tool and wraps the outcome in an Envelope.
func (r *Registry) Dispatch(ctx context.Context, name string, params map[string]any) Envelope {
	data, err := r.Call(ctx, name, params)
	r.observe(name, err)
	if err != nil {
		kind := archerr.KindOf(err)
		message := archerr.MessageOf(err)
		if kind == archerr.Internal {
			message = "internal error"
		}
		r.logger.WithSource("tool_registry").Warn("Tool call failed", map[string]interface{}{
			"tool":  name,
			"kind":  string(kind),
			"error": err.Error(),
		})
		return Envelope{
			Success: false,
			Error:   string(kind),
			Message: message,
			Field:   archerr.FieldOf(err),
		}
	}
	return Envelope{Success: true, Data: data}
}

func (r *Registry) observe(name string, err error) {
	if r.observer == nil {
		return
	}
	kind := archerr.KindOf(err)
	if kind == archerr.UnknownTool {
		// caller supplied names stay out of metric labels
		name = "unknown"
	}
	r.observer.ObserveTool(name, string(kind))
}
