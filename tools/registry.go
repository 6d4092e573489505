// Package tools implements the fixed 14-tool catalogue and
// the registry that dispatches named, schema-validated calls against them
// .
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/agentichat/agentichat-go/llm"
	"github.com/agentichat/agentichat-go/sandbox"
	"github.com/invopop/jsonschema"
	jsonschemav5 "github.com/santhosh-tekuri/jsonschema/v5"
)

// Env is the shared, read-only runtime every tool executes against: the
// sandbox jail, the workspace root, and a pooled HTTP client for the two
// network-facing tools.
type Env struct {
	Sandbox *sandbox.Sandbox
	WorkDir string
	DataDir string // <workspace>/.agentichat, used by todo_write
	HTTP    *http.Client
}

// NewEnv builds an Env rooted at workDir with a sandbox jail and a default
// HTTP client timeout suitable for web_fetch/web_search.
func NewEnv(workDir, dataDir string) (*Env, error) {
	sb, err := sandbox.New(workDir)
	if err != nil {
		return nil, fmt.Errorf("sandbox: %w", err)
	}
	return &Env{
		Sandbox: sb,
		WorkDir: workDir,
		DataDir: dataDir,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Tool is a descriptor+executor pair. RequiresConfirmation is a static property of the tool, never of a
// particular call.
type Tool struct {
	Name                 string
	Description          string
	RequiresConfirmation bool

	// Params is a pointer to a zero-value struct used to derive the JSON
	// schema (via invopop/jsonschema) that both documents the tool to the
	// provider and validates incoming arguments (via jsonschema/v5) before
	// Run ever sees a typed value.
	Params any

	// Preview renders a short human-readable description of what the call
	// would do, shown by the confirmation gate before it prompts. Optional;
	// tools that don't require confirmation may leave it nil.
	Preview func(ctx context.Context, env *Env, args map[string]any) string

	// Run executes the tool. It must never panic in a way the registry
	// can't catch (the registry recovers regardless); it returns the
	// result fields to merge into a successful ToolResult, or an error.
	Run func(ctx context.Context, env *Env, args map[string]any) (map[string]any, error)

	schema   map[string]any
	compiled *jsonschemav5.Schema
}

// Result is a ToolResult: success plus either result fields or
// an error string. It marshals success/error alongside the result fields at
// the top level so the model sees one flat JSON object.
type Result struct {
	Success bool
	Error   string
	Data    map[string]any
}

func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Data)+2)
	for k, v := range r.Data {
		out[k] = v
	}
	out["success"] = r.Success
	if r.Error != "" {
		out["error"] = r.Error
	}
	return json.Marshal(out)
}

func ok(data map[string]any) Result { return Result{Success: true, Data: data} }
func fail(format string, a ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, a...)}
}

// decode re-marshals a validated argument map into a typed parameter struct.
// Schema validation against the raw map already happened in Execute (Design
// Note 1) — this only binds the now-trusted values to Go types.
func decode[T any](args map[string]any) (T, error) {
	var out T
	raw, err := json.Marshal(args)
	if err != nil {
		return out, fmt.Errorf("re-marshal arguments: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode arguments: %w", err)
	}
	return out, nil
}

// Registry holds the fixed tool catalogue, exposes JSON-schema definitions
// for the provider, and dispatches calls by name.
type Registry struct {
	env   *Env
	tools map[string]*Tool
	order []string
}

// NewRegistry builds a registry over env and registers the full built-in
// catalogue.
func NewRegistry(env *Env) *Registry {
	r := &Registry{env: env, tools: make(map[string]*Tool)}
	for _, t := range builtinTools() {
		r.register(t)
	}
	return r
}

// register compiles t's schema and inserts it. A duplicate name overrides
// the previous entry.
func (r *Registry) register(t *Tool) {
	schema, compiled, err := compileSchema(t.Params)
	if err != nil {
		panic(fmt.Sprintf("tools: bad schema for %s: %v", t.Name, err))
	}
	t.schema = schema
	t.compiled = compiled
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool in registration order.
func (r *Registry) List() []*Tool {
	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Schemas exports the catalogue in the shape the provider adapters expect
// : a function envelope of {name, description, parameters}.
func (r *Registry) Schemas() []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, llm.ToolDef{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.schema,
		})
	}
	return defs
}

// RequiresConfirmation reports whether name is a destructive tool. Unknown
// names are treated as non-destructive; Execute will report them as not
// found.
func (r *Registry) RequiresConfirmation(name string) bool {
	t, ok := r.tools[name]
	return ok && t.RequiresConfirmation
}

// Preview renders the confirmation-gate preview text for a pending call, or
// "" if the tool has none.
func (r *Registry) Preview(ctx context.Context, name string, args map[string]any) string {
	t, ok := r.tools[name]
	if !ok || t.Preview == nil {
		return ""
	}
	return t.Preview(ctx, r.env, args)
}

// Execute validates arguments against the tool's compiled schema and
// dispatches. It never returns a bare error or panics out to the caller: an
// unknown tool, a schema violation, or a fault inside Run are all rephrased
// as a Result{Success:false}.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result Result) {
	defer func() {
		if p := recover(); p != nil {
			result = fail("tool %q panicked: %v", name, p)
		}
	}()

	t, found := r.tools[name]
	if !found {
		return fail("Tool '%s' not found", name)
	}

	if t.compiled != nil {
		normalized, err := normalizeForValidation(args)
		if err != nil {
			return fail("invalid arguments for %s: %v", name, err)
		}
		if err := t.compiled.Validate(normalized); err != nil {
			return fail("invalid arguments for %s: %v", name, err)
		}
	}

	data, err := t.Run(ctx, r.env, args)
	if err != nil {
		return fail("%s", err.Error())
	}
	return ok(data)
}

// normalizeForValidation round-trips args through encoding/json so that
// schema validation sees the canonical decoded types (map[string]interface{},
// []interface{}, float64, ...) regardless of the concrete Go types callers
// used to build the map.
func normalizeForValidation(args map[string]any) (any, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, err
	}
	return normalized, nil
}

// compileSchema derives a JSON schema from params (via invopop/jsonschema)
// and compiles it for validation (via jsonschema/v5).
func compileSchema(params any) (map[string]any, *jsonschemav5.Schema, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference:             true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  true,
		RequiredFromJSONSchemaTags: true,
	}
	s := reflector.Reflect(params)
	s.Version = ""
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal schema: %w", err)
	}

	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	delete(asMap, "$schema")
	delete(asMap, "$id")

	compiled, err := jsonschemav5.CompileString("agentichat-tool.schema.json", string(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("compile schema: %w", err)
	}
	return asMap, compiled, nil
}
