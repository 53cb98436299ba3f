package tool

import (
	"context"
	"encoding/json"
	"path/filepath"
	"time"
)

// Tool is the interface every executable tool implements. Tools are looked
// up by ID, their input is validated against Parameters before Execute is
// called, and side effects (file writes, shell commands) are the tool's own
// responsibility.
type Tool interface {
	// ID returns the tool's unique name.
	ID() string

	// Description returns the model-facing usage description.
	Description() string

	// Parameters returns the JSON Schema for the tool's input.
	Parameters() json.RawMessage

	// Execute runs the tool with validated input.
	Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error)
}

// TimeoutHinter is implemented by tools that derive their own call deadline
// from the input (bash, webfetch). The executor uses the hint instead of its
// default timeout, still capped at the executor maximum.
type TimeoutHinter interface {
	CallTimeout(input json.RawMessage) time.Duration
}

// Context carries per-call information into a tool execution.
type Context struct {
	// SessionID is the session this tool call belongs to.
	SessionID string

	// MessageID is the assistant message containing the tool call part.
	MessageID string

	// CallID is the provider-assigned tool call identifier.
	CallID string

	// Agent is the active agent mode ("chat", "plan").
	Agent string

	// WorkDir is the working directory for the call.
	WorkDir string

	// AbortCh is closed when the turn is aborted. Long-running tools should
	// check IsAborted between units of work.
	AbortCh <-chan struct{}

	// OnMetadata streams intermediate title/metadata updates to the caller
	// while the tool is still running.
	OnMetadata func(title string, metadata map[string]any)

	locks *pathLocks
	held  []*pathLock
}

// SetMetadata reports intermediate metadata if a callback is set.
func (c *Context) SetMetadata(title string, metadata map[string]any) {
	if c.OnMetadata != nil {
		c.OnMetadata(title, metadata)
	}
}

// IsAborted reports whether the turn has been aborted.
func (c *Context) IsAborted() bool {
	if c.AbortCh == nil {
		return false
	}
	select {
	case <-c.AbortCh:
		return true
	default:
		return false
	}
}

// LockPath declares the file paths this call touches. Calls touching the
// same cleaned absolute path are serialized for the remainder of the
// execution; relative paths are resolved against WorkDir. Tools must declare
// every path they touch in a single call: the paths are acquired in sorted
// order, which keeps concurrent multi-path calls deadlock-free.
func (c *Context) LockPath(paths ...string) {
	if c.locks == nil || len(paths) == 0 {
		return
	}
	cleaned := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(c.WorkDir, p)
		}
		p = filepath.Clean(p)
		if !c.holds(p) {
			cleaned = append(cleaned, p)
		}
	}
	c.held = append(c.held, c.locks.acquire(cleaned)...)
}

// holds reports whether this call already locked the path.
func (c *Context) holds(path string) bool {
	for _, l := range c.held {
		if l.path == path {
			return true
		}
	}
	return false
}

// releaseLocks releases every path lock taken during the call.
func (c *Context) releaseLocks() {
	if c.locks == nil || len(c.held) == 0 {
		return
	}
	c.locks.release(c.held)
	c.held = nil
}

// Result is the outcome of a successful tool execution.
type Result struct {
	// Title is a short human-readable summary of what happened.
	Title string `json:"title"`

	// Output is the text returned to the model.
	Output string `json:"output"`

	// Metadata carries structured details for observers (diffs, exit codes).
	Metadata map[string]any `json:"metadata,omitempty"`

	// Attachments carries binary content such as images read from disk.
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a file attachment in a tool result.
type Attachment struct {
	Filename  string `json:"filename"`
	MediaType string `json:"mediaType"`
	URL       string `json:"url"` // data: URL or file reference
}

// BaseTool adapts a function into a Tool. Dynamically discovered tools (MCP
// server tools) are built this way.
type BaseTool struct {
	id          string
	description string
	parameters  json.RawMessage
	execute     func(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error)
}

// NewBaseTool creates a function-backed tool.
func NewBaseTool(
	id, description string,
	parameters json.RawMessage,
	execute func(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error),
) *BaseTool {
	return &BaseTool{
		id:          id,
		description: description,
		parameters:  parameters,
		execute:     execute,
	}
}

func (t *BaseTool) ID() string                  { return t.id }
func (t *BaseTool) Description() string         { return t.description }
func (t *BaseTool) Parameters() json.RawMessage { return t.parameters }

func (t *BaseTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	return t.execute(ctx, input, toolCtx)
}
