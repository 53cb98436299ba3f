package tool

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/lodestar-ai/lodestar/internal/bus"
	"github.com/lodestar-ai/lodestar/internal/provider"
)

// MutatingTools names the built-in tools that can change files or run
// arbitrary commands. The step loop snapshots the working tree before the
// first such call of a turn.
var MutatingTools = map[string]bool{
	"bash":  true,
	"write": true,
	"edit":  true,
}

// IsMutating reports whether a tool name belongs to the mutating set.
// Unknown names (externally registered tools) are not in the set; callers
// that need to be conservative should treat them as mutating themselves.
func IsMutating(name string) bool {
	return MutatingTools[name]
}

// Registry maps tool IDs to implementations. It is closed: a tool exists
// only if it was explicitly registered, and its schema is compiled once at
// registration so every later validation reuses the compiled form.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, compiling its parameter schema. It fails on a
// duplicate ID or an invalid schema.
func (r *Registry) Register(t Tool) error {
	id := t.ID()
	if id == "" {
		return fmt.Errorf("tool has empty ID")
	}

	compiled, err := jsonschema.CompileString(id+".schema.json", string(t.Parameters()))
	if err != nil {
		return fmt.Errorf("tool %q has invalid parameter schema: %w", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[id]; exists {
		return fmt.Errorf("tool %q already registered", id)
	}
	r.tools[id] = t
	r.schemas[id] = compiled
	return nil
}

// MustRegister is Register that panics on error. The built-in tools carry
// constant schemas, so a failure here is a programming error.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get returns a tool by ID.
func (r *Registry) Get(id string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	return t, ok
}

// List returns all registered tools sorted by ID.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].ID() < tools[j].ID() })
	return tools
}

// IDs returns the registered tool IDs sorted alphabetically.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.tools))
	for id := range r.tools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Infos returns provider-facing tool definitions for every registered tool,
// sorted by name. The step loop hands these to the provider adapter.
func (r *Registry) Infos() []provider.ToolInfo {
	tools := r.List()
	infos := make([]provider.ToolInfo, len(tools))
	for i, t := range tools {
		infos[i] = provider.ToolInfo{
			Name:        t.ID(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		}
	}
	return infos
}

// Validate checks input against the tool's compiled schema. A missing tool
// is ErrToolNotFound; a schema violation is a *ValidationError.
func (r *Registry) Validate(id string, input json.RawMessage) error {
	r.mu.RLock()
	compiled, ok := r.schemas[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%q: %w", id, ErrToolNotFound)
	}

	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}

	var decoded any
	if err := json.Unmarshal(input, &decoded); err != nil {
		return &ValidationError{Tool: id, Err: fmt.Errorf("input is not valid JSON: %w", err)}
	}
	if err := compiled.Validate(decoded); err != nil {
		return &ValidationError{Tool: id, Err: err}
	}
	return nil
}

// Deps carries the shared dependencies the built-in tools need.
type Deps struct {
	// WorkDir is the default working directory for tools.
	WorkDir string

	// Bus receives file.edited events from the write and edit tools.
	Bus *bus.Bus

	// Todos persists per-session todo lists.
	Todos TodoStore
}

// DefaultRegistry creates a registry with the built-in tool set: bash, read,
// write, edit, glob, grep, ls, webfetch, todoread and todowrite.
func DefaultRegistry(deps Deps) *Registry {
	r := NewRegistry()
	r.MustRegister(NewBashTool(deps.WorkDir))
	r.MustRegister(NewReadTool(deps.WorkDir))
	r.MustRegister(NewWriteTool(deps.WorkDir, deps.Bus))
	r.MustRegister(NewEditTool(deps.WorkDir, deps.Bus))
	r.MustRegister(NewGlobTool(deps.WorkDir))
	r.MustRegister(NewGrepTool(deps.WorkDir))
	r.MustRegister(NewLsTool(deps.WorkDir))
	r.MustRegister(NewWebFetchTool())
	r.MustRegister(NewTodoReadTool(deps.Todos))
	r.MustRegister(NewTodoWriteTool(deps.Todos))
	return r
}
