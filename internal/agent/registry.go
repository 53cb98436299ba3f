package agent

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lodestar-ai/lodestar/internal/permission"
	"github.com/lodestar-ai/lodestar/pkg/types"
)

// Registry holds the available modes. Construction seeds the built-ins and
// applies user config overrides on top of them.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

// NewRegistry creates a registry with the built-in modes.
func NewRegistry() *Registry {
	r := &Registry{agents: make(map[string]*Agent)}
	for name, a := range BuiltIn() {
		r.agents[name] = a
	}
	return r
}

// FromConfig builds a registry with config overrides applied. Disabled
// agents are removed; unknown names create new modes based on "chat".
func FromConfig(cfg *types.Config) *Registry {
	r := NewRegistry()
	if cfg == nil {
		return r
	}
	for name, override := range cfg.Agent {
		r.Apply(name, override)
	}
	return r
}

// Apply overlays one config entry onto the named agent.
func (r *Registry) Apply(name string, cfg types.AgentConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cfg.Disable {
		delete(r.agents, name)
		return
	}

	base, ok := r.agents[name]
	if !ok {
		base = BuiltIn()["chat"]
		base.Name = name
		base.Description = ""
	}
	a := base.Clone()
	a.BuiltIn = false

	if cfg.Prompt != "" {
		a.Prompt = cfg.Prompt
	}
	if cfg.Temperature != nil {
		a.Temperature = *cfg.Temperature
	}
	if cfg.TopP != nil {
		a.TopP = *cfg.TopP
	}
	if cfg.MaxSteps > 0 {
		a.MaxSteps = cfg.MaxSteps
	}
	if cfg.Model != "" {
		providerID, modelID := splitModel(cfg.Model)
		a.Model = &types.ModelRef{ProviderID: providerID, ModelID: modelID}
	}
	if cfg.Tools != nil {
		if a.Tools == nil {
			a.Tools = make(map[string]bool, len(cfg.Tools))
		}
		for k, v := range cfg.Tools {
			a.Tools[k] = v
		}
	}
	if cfg.Permission != nil {
		a.Policy = a.Policy.Merge(permission.PolicyFromConfig(cfg.Permission))
	}

	r.agents[name] = a
}

// Get returns the named agent.
func (r *Registry) Get(name string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("agent not found: %s", name)
	}
	return a, nil
}

// Default returns the chat agent, or any agent if chat was disabled.
func (r *Registry) Default() *Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.agents["chat"]; ok {
		return a
	}
	for _, a := range r.agents {
		return a
	}
	return nil
}

// List returns all agents sorted by name.
func (r *Registry) List() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agents := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })
	return agents
}

// Names returns the agent names sorted.
func (r *Registry) Names() []string {
	agents := r.List()
	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = a.Name
	}
	return names
}

func splitModel(s string) (providerID, modelID string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return s[:i], s[i+1:]
		}
	}
	return "", s
}
