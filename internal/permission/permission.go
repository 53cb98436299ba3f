package permission

import (
	"errors"

	"github.com/lodestar-ai/lodestar/pkg/types"
)

// Action is the policy decision for a permission check.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
	ActionAsk   Action = "ask"
)

// Type categorizes what a request asks to do.
type Type string

const (
	TypeBash        Type = "bash"
	TypeEdit        Type = "edit"
	TypeWebFetch    Type = "webfetch"
	TypeExternalDir Type = "external_directory"
	TypeDoomLoop    Type = "doom_loop"
)

// Reply values accepted by Gate.Respond.
const (
	ReplyOnce   = "once"
	ReplyAlways = "always"
	ReplyReject = "reject"
)

// Request asks the gate to authorize one tool invocation.
type Request struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Pattern   []string       `json:"pattern,omitempty"`
	SessionID string         `json:"sessionID"`
	MessageID string         `json:"messageID"`
	CallID    string         `json:"callID,omitempty"`
	Title     string         `json:"title"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Response carries the user's reply to a suspended request.
type Response struct {
	RequestID string `json:"requestID"`
	Reply     string `json:"reply"` // ReplyOnce | ReplyAlways | ReplyReject
}

// DeniedError is returned when a request is denied by policy or by the user.
type DeniedError struct {
	SessionID string
	Type      Type
	CallID    string
	Metadata  map[string]any
	Message   string
}

func (e *DeniedError) Error() string {
	return e.Message
}

// IsDenied reports whether err is a permission denial.
func IsDenied(err error) bool {
	var denied *DeniedError
	return errors.As(err, &denied)
}

// Policy holds the actions an agent applies per permission type. Bash maps
// command patterns to actions; the other fields are scalar.
type Policy struct {
	Edit        Action            `json:"edit"`
	WebFetch    Action            `json:"webfetch"`
	ExternalDir Action            `json:"external_directory"`
	DoomLoop    Action            `json:"doom_loop"`
	Bash        map[string]Action `json:"bash"`
}

// DefaultPolicy asks for everything.
func DefaultPolicy() Policy {
	return Policy{
		Edit:        ActionAsk,
		WebFetch:    ActionAsk,
		ExternalDir: ActionAsk,
		DoomLoop:    ActionAsk,
		Bash:        map[string]Action{},
	}
}

// For returns the configured action for a non-bash permission type.
// Unset fields default to ask.
func (p Policy) For(t Type) Action {
	var action Action
	switch t {
	case TypeEdit:
		action = p.Edit
	case TypeWebFetch:
		action = p.WebFetch
	case TypeExternalDir:
		action = p.ExternalDir
	case TypeDoomLoop:
		action = p.DoomLoop
	}
	if action == "" {
		return ActionAsk
	}
	return action
}

// Merge overlays non-empty fields of other onto a copy of p. Bash patterns
// from other are added to p's map, replacing entries for the same pattern.
func (p Policy) Merge(other Policy) Policy {
	merged := p
	merged.Bash = make(map[string]Action, len(p.Bash)+len(other.Bash))
	for pattern, action := range p.Bash {
		merged.Bash[pattern] = action
	}
	if other.Edit != "" {
		merged.Edit = other.Edit
	}
	if other.WebFetch != "" {
		merged.WebFetch = other.WebFetch
	}
	if other.ExternalDir != "" {
		merged.ExternalDir = other.ExternalDir
	}
	if other.DoomLoop != "" {
		merged.DoomLoop = other.DoomLoop
	}
	for pattern, action := range other.Bash {
		merged.Bash[pattern] = action
	}
	return merged
}

// PolicyFromConfig builds a policy from user configuration. The bash field
// accepts either a single action string applied to every command or a
// pattern map.
func PolicyFromConfig(cfg *types.PermissionConfig) Policy {
	p := DefaultPolicy()
	if cfg == nil {
		return p
	}
	if cfg.Edit != "" {
		p.Edit = Action(cfg.Edit)
	}
	if cfg.WebFetch != "" {
		p.WebFetch = Action(cfg.WebFetch)
	}
	if cfg.ExternalDir != "" {
		p.ExternalDir = Action(cfg.ExternalDir)
	}
	if cfg.DoomLoop != "" {
		p.DoomLoop = Action(cfg.DoomLoop)
	}
	switch bash := cfg.Bash.(type) {
	case string:
		p.Bash["*"] = Action(bash)
	case map[string]any:
		for pattern, raw := range bash {
			if action, ok := raw.(string); ok {
				p.Bash[pattern] = Action(action)
			}
		}
	case map[string]string:
		for pattern, action := range bash {
			p.Bash[pattern] = Action(action)
		}
	}
	return p
}
