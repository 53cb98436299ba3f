package engine

import (
	"io"
	"time"

	"github.com/lodestar-ai/lodestar/internal/provider"
	"github.com/lodestar-ai/lodestar/pkg/types"
)

// consumeStream drains one provider stream into the assistant message.
// Text and reasoning parts are streamed through the store as they grow;
// tool calls become pending tool parts. Returns the finish reason.
func (e *Engine) consumeStream(t *turn, stream *provider.Stream) (string, error) {
	var (
		curText   *types.TextPart
		curReason *types.ReasoningPart
		textIdx   int
		reasonIdx int

		calls      = make(map[string]*types.ToolPart)
		callIdx    = make(map[string]int)
		callArgs   = make(map[string]string)
		toolsInRound bool

		finish string
	)

	closeText := func() {
		if curText != nil {
			curText.Time.End = time.Now().UnixMilli()
			e.persistPart(t, textIdx, curText, "")
			curText = nil
		}
	}
	closeReason := func() {
		if curReason != nil {
			curReason.Time.End = time.Now().UnixMilli()
			e.persistPart(t, reasonIdx, curReason, "")
			curReason = nil
		}
	}

	for {
		d, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch d.Type {
		case provider.DeltaText:
			closeReason()
			if curText == nil {
				curText = &types.TextPart{
					ID:   newPartID(),
					Type: "text",
					Time: types.PartTime{Start: time.Now().UnixMilli()},
				}
				textIdx = t.appendPart(curText)
			}
			curText.Text += d.Text
			e.persistPart(t, textIdx, curText, d.Text)

		case provider.DeltaReasoning:
			closeText()
			if curReason == nil {
				curReason = &types.ReasoningPart{
					ID:   newPartID(),
					Type: "reasoning",
					Time: types.PartTime{Start: time.Now().UnixMilli()},
				}
				reasonIdx = t.appendPart(curReason)
			}
			curReason.Text += d.Text
			e.persistPart(t, reasonIdx, curReason, d.Text)

		case provider.DeltaToolCallStart:
			closeText()
			closeReason()
			part := &types.ToolPart{
				ID:     newPartID(),
				Type:   "tool",
				CallID: d.CallID,
				Tool:   d.ToolName,
				State: types.ToolState{
					Status: types.ToolPending,
					Time:   types.PartTime{Start: time.Now().UnixMilli()},
				},
			}
			calls[d.CallID] = part
			callIdx[d.CallID] = t.appendPart(part)
			toolsInRound = true
			e.persistPart(t, callIdx[d.CallID], part, "")

		case provider.DeltaToolCallArgs:
			callArgs[d.CallID] += d.Args

		case provider.DeltaToolCallEnd:
			part, ok := calls[d.CallID]
			if !ok {
				continue
			}
			if part.Tool == "" {
				part.Tool = d.ToolName
			}
			part.State.Input = d.Input
			if len(part.State.Input) == 0 {
				part.State.Input = []byte(callArgs[d.CallID])
			}
			e.persistPart(t, callIdx[d.CallID], part, "")

		case provider.DeltaUsage:
			if d.Usage != nil {
				t.msg.Tokens.Input += d.Usage.Input
				t.msg.Tokens.Output += d.Usage.Output
				t.msg.Tokens.Reasoning += d.Usage.Reasoning
				t.msg.Tokens.Cache.Read += d.Usage.Cache.Read
				t.msg.Tokens.Cache.Write += d.Usage.Cache.Write
				t.msg.Cost = cost(t.msg.Tokens, t.model)
				if err := e.store.UpdateMessage(t.ctx, t.msg); err != nil {
					e.log.Error().Err(err).Str("session", t.session.ID).Msg("usage persist failed")
				}
				t.notify()
			}

		case provider.DeltaDone:
			finish = d.FinishReason
		}
	}

	closeText()
	closeReason()

	if finish == "" {
		if toolsInRound {
			finish = "tool_use"
		} else {
			finish = "stop"
		}
	}
	return finish, nil
}

// cost prices a usage record against the model's per-million-token rates.
func cost(usage types.TokenUsage, model *types.Model) float64 {
	return float64(usage.Input)*model.InputPrice/1e6 +
		float64(usage.Output)*model.OutputPrice/1e6
}
