// Package engine runs turns: it owns the step loop that drives a session
// from a user message through provider streaming, permission-gated tool
// execution, and message completion, back to idle. One turn per session at a
// time; everything else fails fast with the store's busy error.
package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lodestar-ai/lodestar/internal/agent"
	"github.com/lodestar-ai/lodestar/internal/bus"
	"github.com/lodestar-ai/lodestar/internal/logging"
	"github.com/lodestar-ai/lodestar/internal/permission"
	"github.com/lodestar-ai/lodestar/internal/provider"
	"github.com/lodestar-ai/lodestar/internal/snapshot"
	"github.com/lodestar-ai/lodestar/internal/store"
	"github.com/lodestar-ai/lodestar/internal/tool"
	"github.com/lodestar-ai/lodestar/pkg/types"
)

// DefaultMaxSteps caps provider round-trips per turn when neither the agent
// nor the configuration overrides it.
const DefaultMaxSteps = 50

// Engine coordinates the step loop across its collaborators. All fields are
// set at construction and never change; per-turn state lives in turn values.
type Engine struct {
	store     *store.Store
	bus       *bus.Bus
	providers *provider.Registry
	tools     *tool.Registry
	executor  *tool.Executor
	gate      *permission.Gate
	doom      *permission.DoomLoopDetector
	snapshots *snapshot.Manager
	agents    *agent.Registry
	hooks     *Hooks
	config    *types.Config
	workDir   string
	log       zerolog.Logger

	mu    sync.Mutex
	turns map[string]*turn
}

// Options wires an Engine. Store, Bus, Providers, Tools and Agents are
// required; Gate, Snapshots and Config may be nil for reduced setups.
type Options struct {
	Store     *store.Store
	Bus       *bus.Bus
	Providers *provider.Registry
	Tools     *tool.Registry
	Gate      *permission.Gate
	Snapshots *snapshot.Manager
	Agents    *agent.Registry
	Config    *types.Config
	WorkDir   string
}

// New creates an engine.
func New(opts Options) *Engine {
	return &Engine{
		store:     opts.Store,
		bus:       opts.Bus,
		providers: opts.Providers,
		tools:     opts.Tools,
		executor:  tool.NewExecutor(opts.Tools),
		gate:      opts.Gate,
		doom:      permission.NewDoomLoopDetector(),
		snapshots: opts.Snapshots,
		agents:    opts.Agents,
		hooks:     NewHooks(),
		config:    opts.Config,
		workDir:   opts.WorkDir,
		log:       logging.Component("engine"),
		turns:     make(map[string]*turn),
	}
}

// Hooks exposes the lifecycle hook registry.
func (e *Engine) Hooks() *Hooks {
	return e.hooks
}

// UpdateFunc receives the in-flight assistant message and its parts after
// every visible change during a turn.
type UpdateFunc func(msg *types.Message, parts []types.Part)

// SendOptions describes one user turn.
type SendOptions struct {
	SessionID string

	// Text is the user's message. Empty input (after trimming) is rejected
	// with ErrEmptyInput unless files are attached.
	Text string

	// Files are attachments stored as file parts on the user message.
	Files []types.FilePart

	// Agent selects the mode ("chat", "plan", or a configured name). Empty
	// uses the default mode.
	Agent string

	// Model is a "provider/model" override. Empty falls back to the
	// agent's pinned model, then the configured default.
	Model string

	// OnUpdate streams assistant message updates to the caller. It can be
	// invoked from multiple goroutines while tools run in parallel, so
	// handlers must synchronize any state they touch.
	OnUpdate UpdateFunc
}

// SendMessage runs one full turn synchronously: it persists the user
// message, drives the step loop until a terminal state, and returns the
// completed assistant message. A second call while a turn is running fails
// with store.ErrSessionBusy.
func (e *Engine) SendMessage(ctx context.Context, opts SendOptions) (*types.Message, error) {
	text := strings.TrimSpace(opts.Text)
	if text == "" && len(opts.Files) == 0 {
		return nil, ErrEmptyInput
	}

	session, err := e.store.GetSession(ctx, opts.SessionID)
	if err != nil {
		return nil, err
	}

	release, err := e.store.Locks().TryAcquire(session.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	ag, err := e.agents.Get(opts.Agent)
	if err != nil {
		if opts.Agent != "" {
			return nil, err
		}
		ag = e.agents.Default()
	}

	prov, model, err := e.resolveModel(opts.Model, ag)
	if err != nil {
		return nil, err
	}

	// Compact ahead of the turn so the new user message lands after the
	// summary. Failures here only mean the window stays large.
	if msgs, lerr := e.store.ListMessages(ctx, session.ID, 0); lerr == nil {
		if shouldCompact(summaryWindow(msgs), model) {
			if cerr := e.compact(ctx, session, ag.Name, false); cerr != nil {
				e.log.Warn().Err(cerr).Str("session", session.ID).Msg("compaction failed")
			}
		}
	}

	firstTurn := session.Revision == 0

	userMsg := &types.Message{
		Role:       types.RoleUser,
		Agent:      ag.Name,
		ProviderID: model.ProviderID,
		ModelID:    model.ID,
	}
	userParts := make([]types.Part, 0, len(opts.Files)+1)
	if text != "" {
		now := time.Now().UnixMilli()
		userParts = append(userParts, &types.TextPart{
			ID:   newPartID(),
			Type: "text",
			Text: text,
			Time: types.PartTime{Start: now, End: now},
		})
	}
	for i := range opts.Files {
		fp := opts.Files[i]
		if fp.ID == "" {
			fp.ID = newPartID()
		}
		fp.Type = "file"
		userParts = append(userParts, &fp)
	}
	if err := e.store.AppendMessage(ctx, session.ID, userMsg, userParts); err != nil {
		return nil, err
	}

	if firstTurn && text != "" {
		go e.ensureTitle(session.ID, text)
	}

	session.State = types.SessionRunning
	session.Error = nil
	session.Revert = nil
	if err := e.store.UpdateSession(ctx, session); err != nil {
		return nil, err
	}

	t := newTurn(ctx, session, ag, prov, model, opts.OnUpdate)
	e.mu.Lock()
	e.turns[session.ID] = t
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.turns, session.ID)
		e.mu.Unlock()
		t.cancel()
	}()

	runErr := e.runTurn(t)
	e.finishSession(t, runErr)
	return t.msg, runErr
}

// Abort cancels the session's active turn. The loop observes the
// cancellation at its next suspension point, marks in-flight parts
// cancelled, and returns the session to idle.
func (e *Engine) Abort(sessionID string) error {
	e.mu.Lock()
	t, ok := e.turns[sessionID]
	e.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}
	t.cancel()
	return nil
}

// Undo rolls back the session's last turn: the working tree is restored to
// the turn's pre-snapshot and the message history truncated to the pre-turn
// boundary. Fails with store.ErrSessionBusy while a turn is running.
func (e *Engine) Undo(ctx context.Context, sessionID string) error {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	release, err := e.store.Locks().TryAcquire(sessionID)
	if err != nil {
		return err
	}
	defer release()

	msgs, err := e.store.ListMessages(ctx, sessionID, 0)
	if err != nil {
		return err
	}
	last := lastUserIndex(msgs)
	if last < 0 {
		return ErrNothingToUndo
	}

	boundaryID := ""
	if last > 0 {
		boundaryID = msgs[last-1].Info.ID
	}
	targetRevision := msgs[last].Info.Revision

	revert := &types.SessionRevert{MessageID: boundaryID}
	if snap, serr := e.store.LatestSnapshot(ctx, sessionID); serr == nil && snap.Revision >= targetRevision {
		if diff, derr := e.snapshots.Diff(ctx, sessionID, snap.ID); derr == nil {
			revert.Diff = diff
		}
		if rerr := e.snapshots.Revert(ctx, sessionID, snap.ID); rerr != nil {
			return rerr
		}
		revert.SnapshotID = snap.ID
	}

	if err := e.store.TruncateAfter(ctx, sessionID, boundaryID); err != nil {
		return err
	}

	e.doom.Clear(sessionID)

	session.Revision = targetRevision
	session.State = types.SessionIdle
	session.Error = nil
	session.Revert = revert
	if err := e.store.UpdateSession(ctx, session); err != nil {
		return err
	}

	e.bus.Publish(bus.Event{
		Type: bus.SessionUndone,
		Data: bus.SessionUndoneData{
			SessionID: sessionID,
			MessageID: boundaryID,
			Revision:  session.Revision,
		},
	})
	return nil
}

// resolveModel picks the provider and model for a turn: explicit override,
// then the agent's pinned model, then the configured default.
func (e *Engine) resolveModel(override string, ag *agent.Agent) (provider.Provider, *types.Model, error) {
	modelStr := override
	if modelStr == "" && ag.Model != nil {
		modelStr = ag.Model.ProviderID + "/" + ag.Model.ModelID
	}
	return e.providers.Resolve(modelStr)
}

// finishSession bumps the revision and returns the session to idle, or
// records the failure. Runs on every turn termination.
func (e *Engine) finishSession(t *turn, runErr error) {
	// The turn context may already be cancelled; finalization must not be.
	ctx := context.Background()

	session, err := e.store.GetSession(ctx, t.session.ID)
	if err != nil {
		e.log.Error().Err(err).Str("session", t.session.ID).Msg("session finalize failed")
		return
	}

	session.Revision++
	if runErr != nil {
		session.State = types.SessionError
		session.Error = &types.SessionFailure{
			Code:    failureCode(runErr),
			Message: runErr.Error(),
		}
	} else {
		session.State = types.SessionIdle
		session.Error = nil
	}
	if err := e.store.UpdateSession(ctx, session); err != nil {
		e.log.Error().Err(err).Str("session", t.session.ID).Msg("session finalize failed")
		return
	}

	if runErr != nil {
		e.bus.Publish(bus.Event{
			Type: bus.SessionError,
			Data: bus.SessionErrorData{SessionID: session.ID, Error: session.Error},
		})
	}
	e.bus.Publish(bus.Event{
		Type: bus.SessionIdle,
		Data: bus.SessionIdleData{SessionID: session.ID, Revision: session.Revision},
	})
}

// failureCode maps a terminal turn error to its session failure code.
func failureCode(err error) string {
	switch provider.Classify(err) {
	case provider.KindAuthentication:
		return codeProviderAuth
	case provider.KindContextTooLarge, provider.KindTransient, provider.KindRateLimited:
		return codeProvider
	default:
		return codeInternal
	}
}

// newPartID mints a part identifier.
func newPartID() string {
	return store.NewID("prt")
}
