package engine

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"

	"github.com/lodestar-ai/lodestar/internal/agent"
	"github.com/lodestar-ai/lodestar/internal/provider"
	"github.com/lodestar-ai/lodestar/pkg/types"
)

// turn is the mutable state of one step loop run. It lives on the calling
// goroutine; only cancel and the abort channel are touched concurrently.
type turn struct {
	ctx     context.Context
	cancel  context.CancelFunc
	abortCh chan struct{}

	session *types.Session
	agent   *agent.Agent
	prov    provider.Provider
	model   *types.Model

	msg   *types.Message
	parts []types.Part

	// snapshotted is set once the turn's pre-mutation snapshot exists.
	snapshotted bool

	onUpdate UpdateFunc
}

func newTurn(ctx context.Context, session *types.Session, ag *agent.Agent, prov provider.Provider, model *types.Model, onUpdate UpdateFunc) *turn {
	turnCtx, cancel := context.WithCancel(ctx)
	t := &turn{
		ctx:      turnCtx,
		session:  session,
		agent:    ag,
		prov:     prov,
		model:    model,
		abortCh:  make(chan struct{}),
		onUpdate: onUpdate,
	}
	var once sync.Once
	t.cancel = func() {
		once.Do(func() {
			cancel()
			close(t.abortCh)
		})
	}
	return t
}

// notify pushes the current assistant state to the caller.
func (t *turn) notify() {
	if t.onUpdate != nil {
		t.onUpdate(t.msg, t.parts)
	}
}

// aborted reports whether the turn has been cancelled.
func (t *turn) aborted() bool {
	return t.ctx.Err() != nil
}

// runTurn drives the step loop to a terminal state. The assistant message is
// always completed before returning; the returned error is non-nil only for
// terminal failures (abort completes the message with finish "cancelled" and
// returns nil).
func (e *Engine) runTurn(t *turn) error {
	maxSteps := t.agent.MaxSteps
	if maxSteps <= 0 && e.config != nil {
		maxSteps = e.config.MaxSteps
	}
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	t.msg = &types.Message{
		Role:       types.RoleAssistant,
		Agent:      t.agent.Name,
		ProviderID: t.model.ProviderID,
		ModelID:    t.model.ID,
	}
	if err := e.store.AppendMessage(t.ctx, t.session.ID, t.msg, nil); err != nil {
		return err
	}
	t.notify()

	hc := &HookContext{SessionID: t.session.ID, MessageID: t.msg.ID}
	e.runHooks(t.ctx, TurnStart, hc)
	defer e.runHooks(context.Background(), TurnEnd, hc)

	retry := provider.NewRetryBackOff(t.ctx)
	compacted := false
	step := 0

	for {
		if t.aborted() {
			return e.finishCancelled(t)
		}
		if step >= maxSteps {
			return e.finishMaxSteps(t)
		}

		hc.Step = step
		e.runHooks(t.ctx, StepStart, hc)

		req, err := e.buildRequest(t)
		if err != nil {
			return e.failTurn(t, err)
		}

		stream, err := t.prov.Stream(t.ctx, req)
		if err == nil {
			var finish string
			finish, err = e.consumeStream(t, stream)
			stream.Close()

			if err == nil {
				retry.Reset()

				pending := t.pendingTools()
				if len(pending) > 0 {
					e.executeTools(t, pending)
					if t.aborted() {
						return e.finishCancelled(t)
					}
					step++
					continue
				}

				switch finish {
				case "max_tokens", "length":
					return e.completeMessage(t, "max_tokens")
				default:
					return e.completeMessage(t, "stop")
				}
			}
		}

		if t.aborted() {
			return e.finishCancelled(t)
		}

		kind := provider.Classify(err)
		switch {
		case kind == provider.KindContextTooLarge && !compacted:
			compacted = true
			e.sealOpenParts(t, "interrupted", "stream interrupted, compacting")
			if cerr := e.compact(t.ctx, t.session, t.agent.Name, true); cerr != nil {
				return e.failTurn(t, err)
			}

		case kind.Retryable():
			wait := retry.NextBackOff()
			if wait == backoff.Stop {
				return e.failTurn(t, err)
			}
			// The failed attempt may have streamed partial parts; close
			// them as errors so the retry starts from fresh parts instead
			// of duplicating text.
			e.sealOpenParts(t, "interrupted", "stream interrupted, retrying")
			e.log.Warn().
				Err(err).
				Str("session", t.session.ID).
				Stringer("kind", kind).
				Dur("backoff", wait).
				Msg("provider request failed, retrying")
			if serr := sleepCtx(t.ctx, wait); serr != nil {
				return e.finishCancelled(t)
			}

		default:
			return e.failTurn(t, err)
		}
	}
}

// buildRequest assembles the provider request from the session's active
// window, trimmed to the model's budget.
func (e *Engine) buildRequest(t *turn) (*provider.Request, error) {
	msgs, err := e.store.ListMessages(t.ctx, t.session.ID, 0)
	if err != nil {
		return nil, err
	}
	window := summaryWindow(msgs)

	prompt := e.systemPrompt(t.session, t.agent, t.prov.ID(), t.model.ID)

	reserve := t.model.MaxOutputTokens
	if reserve <= 0 {
		reserve = defaultReserveOutput
	}
	window, _ = fitHistory(window, prompt, t.model.ContextLength, reserve)

	return &provider.Request{
		Model:       t.model.ID,
		Messages:    provider.BuildHistory(prompt, window),
		Tools:       e.enabledTools(t.agent, t.model),
		MaxTokens:   reserve,
		Temperature: t.agent.Temperature,
		TopP:        t.agent.TopP,
	}, nil
}

// enabledTools returns the tool definitions offered to the model: the
// registry filtered by the global config and the agent's tool map.
func (e *Engine) enabledTools(ag *agent.Agent, model *types.Model) []*schema.ToolInfo {
	if !model.SupportsTools {
		return nil
	}

	var infos []provider.ToolInfo
	for _, info := range e.tools.Infos() {
		if e.config != nil {
			if enabled, ok := e.config.Tools[info.Name]; ok && !enabled {
				continue
			}
		}
		if !ag.ToolEnabled(info.Name) {
			continue
		}
		infos = append(infos, info)
	}
	if len(infos) == 0 {
		return nil
	}
	return provider.ConvertToEinoTools(infos)
}

// pendingTools returns tool parts declared by the last stream round, in
// declaration order.
func (t *turn) pendingTools() []*types.ToolPart {
	var pending []*types.ToolPart
	for _, part := range t.parts {
		if tp, ok := part.(*types.ToolPart); ok && tp.State.Status == types.ToolPending {
			pending = append(pending, tp)
		}
	}
	return pending
}

// appendPart adds a part to the assistant message and returns its index.
func (t *turn) appendPart(part types.Part) int {
	t.parts = append(t.parts, part)
	return len(t.parts) - 1
}

// persistPart writes the part at index and publishes the update.
func (e *Engine) persistPart(t *turn, index int, part types.Part, delta string) {
	if err := e.store.UpdatePart(context.Background(), t.session.ID, t.msg.ID, index, part, delta); err != nil {
		e.log.Error().Err(err).Str("session", t.session.ID).Int("index", index).Msg("part persist failed")
	}
	t.notify()
}

// partIndex locates a part in the turn's ordered list.
func (t *turn) partIndex(part types.Part) int {
	for i, p := range t.parts {
		if p == part {
			return i
		}
	}
	return -1
}

// completeMessage seals the assistant message with a finish reason.
func (e *Engine) completeMessage(t *turn, finish string) error {
	now := time.Now().UnixMilli()
	t.msg.Finish = finish
	t.msg.Time.Completed = &now
	if err := e.store.UpdateMessage(context.Background(), t.msg); err != nil {
		return err
	}
	t.notify()
	return nil
}

// finishMaxSteps ends a turn that hit the step ceiling: a synthetic text
// part tells the user why the turn stopped.
func (e *Engine) finishMaxSteps(t *turn) error {
	now := time.Now().UnixMilli()
	note := &types.TextPart{
		ID:   newPartID(),
		Type: "text",
		Text: "Stopped: the turn reached its maximum number of steps. Send a message to continue.",
		Time: types.PartTime{Start: now, End: now},
	}
	idx := t.appendPart(note)
	e.persistPart(t, idx, note, "")
	return e.completeMessage(t, "max_steps")
}

// sealOpenParts closes every part still in flight, marking it with reason.
// Finished parts are left alone.
func (e *Engine) sealOpenParts(t *turn, reason, detail string) {
	now := time.Now().UnixMilli()
	for i, part := range t.parts {
		switch pt := part.(type) {
		case *types.TextPart:
			if pt.Time.End == 0 {
				pt.Time.End = now
				pt.Error = reason
				e.persistPart(t, i, pt, "")
			}
		case *types.ReasoningPart:
			if pt.Time.End == 0 {
				pt.Time.End = now
				pt.Error = reason
				e.persistPart(t, i, pt, "")
			}
		case *types.ToolPart:
			if pt.State.Status == types.ToolPending || pt.State.Status == types.ToolRunning {
				pt.State.Status = types.ToolError
				pt.State.Reason = reason
				pt.State.Error = detail
				pt.State.Time.End = now
				e.persistPart(t, i, pt, "")
			}
		}
	}
}

// finishCancelled marks whatever was in flight as cancelled and seals the
// message. Abort is a normal termination, not an error.
func (e *Engine) finishCancelled(t *turn) error {
	e.sealOpenParts(t, "cancelled", "turn aborted")
	return e.completeMessage(t, "cancelled")
}

// failTurn records a terminal failure on the assistant message.
func (e *Engine) failTurn(t *turn, cause error) error {
	t.msg.Error = &types.MessageError{
		Code:    failureCode(cause),
		Message: cause.Error(),
	}
	if err := e.completeMessage(t, "error"); err != nil {
		e.log.Error().Err(err).Str("session", t.session.ID).Msg("failure persist failed")
	}
	return cause
}

// runHooks fires a non-vetoing hook point, logging handler errors.
func (e *Engine) runHooks(ctx context.Context, point HookPoint, hc *HookContext) {
	for _, err := range e.hooks.run(ctx, point, hc) {
		e.log.Warn().Err(err).Int("hook", int(point)).Msg("hook handler failed")
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
