// Package agent defines the selectable modes a turn runs under: which tools
// the model may call, the permission policy applied to those calls, sampling
// parameters, and the mode's system prompt fragment.
package agent

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/lodestar-ai/lodestar/internal/permission"
	"github.com/lodestar-ai/lodestar/pkg/types"
)

// Agent is one mode configuration. The built-in modes are "chat" (full tool
// set) and "plan" (read-only); user config may override them or add more.
type Agent struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	BuiltIn     bool   `json:"builtIn"`

	// Prompt is prepended to the engine's system prompt for this mode.
	Prompt string `json:"prompt,omitempty"`

	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"topP,omitempty"`

	// MaxSteps caps provider round-trips per turn. Zero means the engine
	// default.
	MaxSteps int `json:"maxSteps,omitempty"`

	// Model pins a provider/model pair for this mode. Nil uses the
	// session default.
	Model *types.ModelRef `json:"model,omitempty"`

	// Tools enables or disables tools by ID or wildcard pattern. A tool
	// absent from the map is enabled.
	Tools map[string]bool `json:"tools,omitempty"`

	// Policy is the permission policy applied to this mode's tool calls.
	Policy permission.Policy `json:"policy"`
}

// ToolEnabled reports whether the named tool may be offered to the model
// under this mode. Exact entries win over wildcard patterns.
func (a *Agent) ToolEnabled(toolID string) bool {
	if enabled, ok := a.Tools[toolID]; ok {
		return enabled
	}
	for pattern, enabled := range a.Tools {
		if pattern == "*" {
			continue
		}
		if matchWildcard(pattern, toolID) {
			return enabled
		}
	}
	if enabled, ok := a.Tools["*"]; ok {
		return enabled
	}
	return true
}

// Clone returns a deep copy so config overrides never mutate a built-in.
func (a *Agent) Clone() *Agent {
	clone := *a
	if a.Tools != nil {
		clone.Tools = make(map[string]bool, len(a.Tools))
		for k, v := range a.Tools {
			clone.Tools[k] = v
		}
	}
	clone.Policy = permission.Policy{}.Merge(a.Policy)
	if a.Model != nil {
		ref := *a.Model
		clone.Model = &ref
	}
	return &clone
}

// matchWildcard matches simple prefix/suffix star patterns directly and
// defers anything more involved to doublestar.
func matchWildcard(pattern, s string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return pattern == s
	}
	if strings.HasSuffix(pattern, "*") && strings.Count(pattern, "*") == 1 {
		return strings.HasPrefix(s, strings.TrimSuffix(pattern, "*"))
	}
	if strings.HasPrefix(pattern, "*") && strings.Count(pattern, "*") == 1 {
		return strings.HasSuffix(s, strings.TrimPrefix(pattern, "*"))
	}
	matched, _ := doublestar.Match(pattern, s)
	return matched
}

// planPrompt steers the plan mode away from mutations.
const planPrompt = `You are in plan mode: analyze the codebase and produce a plan,
do not make changes. File edits and mutating shell commands are unavailable.
Break the task into concrete steps and explain the reasoning behind them.`

// readOnlyBash is the plan mode's bash policy: inspection commands run
// freely, anything that can write asks first.
func readOnlyBash() map[string]permission.Action {
	return map[string]permission.Action{
		"cat *":            permission.ActionAllow,
		"cut*":             permission.ActionAllow,
		"diff*":            permission.ActionAllow,
		"du*":              permission.ActionAllow,
		"file *":           permission.ActionAllow,
		"find * -delete*":  permission.ActionAsk,
		"find * -exec*":    permission.ActionAsk,
		"find *":           permission.ActionAllow,
		"git diff*":        permission.ActionAllow,
		"git log*":         permission.ActionAllow,
		"git show*":        permission.ActionAllow,
		"git status*":      permission.ActionAllow,
		"git branch":       permission.ActionAllow,
		"grep*":            permission.ActionAllow,
		"head*":            permission.ActionAllow,
		"ls*":              permission.ActionAllow,
		"pwd*":             permission.ActionAllow,
		"rg*":              permission.ActionAllow,
		"sort -o *":        permission.ActionAsk,
		"sort --output=*":  permission.ActionAsk,
		"sort*":            permission.ActionAllow,
		"stat*":            permission.ActionAllow,
		"tail*":            permission.ActionAllow,
		"tree*":            permission.ActionAllow,
		"uniq*":            permission.ActionAllow,
		"wc*":              permission.ActionAllow,
		"which*":           permission.ActionAllow,
		"*":                permission.ActionAsk,
	}
}

// BuiltIn returns the built-in modes keyed by name.
func BuiltIn() map[string]*Agent {
	return map[string]*Agent{
		"chat": {
			Name:        "chat",
			Description: "Default mode: full tool set for reading, writing and running code",
			BuiltIn:     true,
			Temperature: 0.3,
			TopP:        0.95,
			Tools:       map[string]bool{"*": true},
			Policy: permission.Policy{
				Edit:        permission.ActionAllow,
				WebFetch:    permission.ActionAllow,
				ExternalDir: permission.ActionAsk,
				DoomLoop:    permission.ActionAsk,
				Bash:        map[string]permission.Action{"*": permission.ActionAllow},
			},
		},
		"plan": {
			Name:        "plan",
			Description: "Analysis mode: read-only tools, no file mutations",
			BuiltIn:     true,
			Prompt:      planPrompt,
			Temperature: 0.5,
			TopP:        1.0,
			MaxSteps:    20,
			Tools: map[string]bool{
				"*":         true,
				"edit":      false,
				"write":     false,
				"todoread":  false,
				"todowrite": false,
			},
			Policy: permission.Policy{
				Edit:        permission.ActionDeny,
				WebFetch:    permission.ActionAllow,
				ExternalDir: permission.ActionDeny,
				DoomLoop:    permission.ActionDeny,
				Bash:        readOnlyBash(),
			},
		},
	}
}
