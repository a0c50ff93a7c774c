// Package tools implements the capability suite the agent exposes to the
// LLM: browser, files, shell, pdf, spreadsheet and cron. Every tool presents
// one JSON-schema definition with an action discriminator and returns a
// single human-readable string per call. Errors never escape as Go errors;
// the registry and the tools turn every failure into a result string the
// model can react to.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/chauffeur-ai/chauffeur/model"
)

type (
	// Tool is one capability exposed to the LLM.
	Tool interface {
		// Name is the identifier the model calls the tool by.
		Name() string
		// Description is the model-facing usage summary.
		Description() string
		// Schema is the JSON schema of the tool's argument object.
		Schema() json.RawMessage
		// Execute runs one action and returns the result string. Execute
		// must not panic and must not return errors through any channel but
		// the string.
		Execute(ctx context.Context, args map[string]any) string
	}

	// Registry holds the tool set for one agent, validates arguments against
	// each tool's schema and dispatches calls.
	Registry struct {
		tools    map[string]Tool
		compiled map[string]*jsonschema.Schema
	}
)

// NewRegistry compiles every tool's schema and returns the registry.
func NewRegistry(ts ...Tool) (*Registry, error) {
	r := &Registry{
		tools:    make(map[string]Tool, len(ts)),
		compiled: make(map[string]*jsonschema.Schema, len(ts)),
	}
	for _, tool := range ts {
		name := tool.Name()
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", name)
		}
		schema, err := compileSchema(tool.Schema())
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", name, err)
		}
		r.tools[name] = tool
		r.compiled[name] = schema
	}
	return r, nil
}

// Names returns the registered tool names sorted alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Definitions renders the registry as model tool definitions.
func (r *Registry) Definitions() []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(r.tools))
	for _, name := range r.Names() {
		tool := r.tools[name]
		defs = append(defs, model.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema(),
		})
	}
	return defs
}

// Execute validates args against the tool's schema and runs it. Unknown
// tools and schema violations come back as one-line result strings.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) string {
	tool, ok := r.tools[name]
	if !ok {
		return fmt.Sprintf("Unknown tool: %s (available: %s)", name, strings.Join(r.Names(), ", "))
	}
	if args == nil {
		args = map[string]any{}
	}
	if schema := r.compiled[name]; schema != nil {
		if err := schema.Validate(normalizeForValidation(args)); err != nil {
			return fmt.Sprintf("Invalid arguments for %s: %s", name, firstValidationLine(err))
		}
	}
	return tool.Execute(ctx, args)
}

func compileSchema(raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// normalizeForValidation round-trips args through JSON so numeric types
// match what the validator expects regardless of how the arguments were
// decoded.
func normalizeForValidation(args map[string]any) any {
	data, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return args
	}
	return out
}

// firstValidationLine keeps schema violation messages to a single line.
func firstValidationLine(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}
