package engine

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/lodestar-ai/lodestar/internal/tool"
)

// HookPoint identifies where in the turn lifecycle a hook fires.
type HookPoint int

const (
	// TurnStart fires after the assistant message is created, before the
	// first provider request.
	TurnStart HookPoint = iota
	// StepStart fires before each provider request.
	StepStart
	// ToolBefore fires before a tool call executes. A non-nil error vetoes
	// the call; it is surfaced as a denied error part.
	ToolBefore
	// ToolAfter fires after a tool call finished, successfully or not.
	ToolAfter
	// TurnEnd fires once the turn has reached a terminal state.
	TurnEnd
)

// HookContext carries turn state into hook handlers. Fields beyond SessionID
// and MessageID are populated where they apply: Step on StepStart, the tool
// fields on ToolBefore/ToolAfter.
type HookContext struct {
	SessionID string
	MessageID string
	Step      int

	Tool   string
	CallID string
	Input  json.RawMessage

	// Result and Err describe the finished call on ToolAfter.
	Result *tool.Result
	Err    error
}

// HookFunc is a synchronous hook handler.
type HookFunc func(ctx context.Context, hc *HookContext) error

// Hooks dispatches turn lifecycle callbacks. Handler errors are logged and
// swallowed everywhere except ToolBefore, where the first error vetoes the
// call.
type Hooks struct {
	mu       sync.RWMutex
	handlers map[HookPoint][]HookFunc
}

// NewHooks creates an empty hook registry.
func NewHooks() *Hooks {
	return &Hooks{handlers: make(map[HookPoint][]HookFunc)}
}

// Register adds a handler for a hook point.
func (h *Hooks) Register(point HookPoint, fn HookFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[point] = append(h.handlers[point], fn)
}

// veto runs ToolBefore handlers and returns the first error.
func (h *Hooks) veto(ctx context.Context, hc *HookContext) error {
	h.mu.RLock()
	handlers := h.handlers[ToolBefore]
	h.mu.RUnlock()

	for _, fn := range handlers {
		if err := fn(ctx, hc); err != nil {
			return err
		}
	}
	return nil
}

// run executes the handlers for a non-vetoing hook point, collecting errors
// into the returned slice for the caller to log.
func (h *Hooks) run(ctx context.Context, point HookPoint, hc *HookContext) []error {
	h.mu.RLock()
	handlers := h.handlers[point]
	h.mu.RUnlock()

	var errs []error
	for _, fn := range handlers {
		if err := fn(ctx, hc); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
