package permission

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/lodestar-ai/lodestar/internal/bus"
)

// Gate serializes permission decisions for tool execution. Approvals granted
// with ReplyAlways are remembered for the rest of the session; rejections are
// never remembered, so a rejected call can be retried and prompted again.
type Gate struct {
	mu       sync.RWMutex
	bus      *bus.Bus
	approved map[string]map[Type]bool   // sessionID -> type -> approved
	patterns map[string]map[string]bool // sessionID -> pattern -> approved
	pending  map[string]pendingAsk      // requestID -> suspended ask
}

// pendingAsk is one Ask waiting on a user reply.
type pendingAsk struct {
	sessionID string
	resp      chan Response
}

// NewGate creates a gate that publishes permission events on b.
func NewGate(b *bus.Bus) *Gate {
	return &Gate{
		bus:      b,
		approved: make(map[string]map[Type]bool),
		patterns: make(map[string]map[string]bool),
		pending:  make(map[string]pendingAsk),
	}
}

// Check applies a resolved policy action to a request. Allow passes, deny
// returns a *DeniedError, anything else asks the user.
func (g *Gate) Check(ctx context.Context, req Request, action Action) error {
	switch action {
	case ActionAllow:
		return nil
	case ActionDeny:
		return &DeniedError{
			SessionID: req.SessionID,
			Type:      req.Type,
			CallID:    req.CallID,
			Metadata:  req.Metadata,
			Message:   "permission denied by policy",
		}
	default:
		return g.Ask(ctx, req)
	}
}

// Ask suspends until the user replies to req or ctx is done. Requests covered
// by an earlier ReplyAlways resolve immediately without publishing.
func (g *Gate) Ask(ctx context.Context, req Request) error {
	if g.remembered(req) {
		return nil
	}

	if req.ID == "" {
		req.ID = ulid.Make().String()
	}

	resp := make(chan Response, 1)
	g.mu.Lock()
	g.pending[req.ID] = pendingAsk{sessionID: req.SessionID, resp: resp}
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.pending, req.ID)
		g.mu.Unlock()
	}()

	g.bus.Publish(bus.Event{
		Type: bus.PermissionUpdated,
		Data: bus.PermissionUpdatedData{
			ID:             req.ID,
			SessionID:      req.SessionID,
			PermissionType: string(req.Type),
			Pattern:        req.Pattern,
			Title:          req.Title,
		},
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-resp:
		switch r.Reply {
		case ReplyAlways:
			g.remember(req)
		case ReplyReject:
			return &DeniedError{
				SessionID: req.SessionID,
				Type:      req.Type,
				CallID:    req.CallID,
				Metadata:  req.Metadata,
				Message:   "permission rejected by user",
			}
		}
		return nil
	}
}

// Respond resolves a suspended request and reports whether requestID matched
// one. Duplicate replies to the same request are dropped.
func (g *Gate) Respond(requestID, reply string) bool {
	g.mu.RLock()
	ask, ok := g.pending[requestID]
	g.mu.RUnlock()

	if !ok {
		return false
	}

	select {
	case ask.resp <- Response{RequestID: requestID, Reply: reply}:
	default:
	}

	g.bus.Publish(bus.Event{
		Type: bus.PermissionReplied,
		Data: bus.PermissionRepliedData{
			PermissionID: requestID,
			SessionID:    ask.sessionID,
			Response:     reply,
		},
	})
	return true
}

// remembered reports whether a prior ReplyAlways covers req. Requests that
// carry patterns need every pattern approved; requests without patterns are
// covered by a type-level approval.
func (g *Gate) remembered(req Request) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.approved[req.SessionID][req.Type] {
		return true
	}
	if len(req.Pattern) == 0 {
		return false
	}
	granted := g.patterns[req.SessionID]
	for _, p := range req.Pattern {
		if !granted[p] {
			return false
		}
	}
	return true
}

// remember records a ReplyAlways. Approval is scoped to the request's
// patterns when it has any, otherwise to its type.
func (g *Gate) remember(req Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(req.Pattern) > 0 {
		if g.patterns[req.SessionID] == nil {
			g.patterns[req.SessionID] = make(map[string]bool)
		}
		for _, p := range req.Pattern {
			g.patterns[req.SessionID][p] = true
		}
		return
	}
	if g.approved[req.SessionID] == nil {
		g.approved[req.SessionID] = make(map[Type]bool)
	}
	g.approved[req.SessionID][req.Type] = true
}

// IsApproved reports whether a type-level approval exists for the session.
func (g *Gate) IsApproved(sessionID string, t Type) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.approved[sessionID][t]
}

// IsPatternApproved reports whether a pattern approval exists for the session.
func (g *Gate) IsPatternApproved(sessionID, pattern string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.patterns[sessionID][pattern]
}

// ApprovePattern grants a pattern for the session without prompting.
func (g *Gate) ApprovePattern(sessionID, pattern string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.patterns[sessionID] == nil {
		g.patterns[sessionID] = make(map[string]bool)
	}
	g.patterns[sessionID][pattern] = true
}

// ClearSession drops all approvals for a session.
func (g *Gate) ClearSession(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.approved, sessionID)
	delete(g.patterns, sessionID)
}
