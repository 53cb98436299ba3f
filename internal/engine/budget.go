package engine

import (
	"github.com/lodestar-ai/lodestar/pkg/types"
)

const (
	// defaultContextLength is assumed when a model does not declare its
	// window size.
	defaultContextLength = 128000

	// defaultReserveOutput is held back for the model's answer when the
	// model does not declare a max output size.
	defaultReserveOutput = 8192

	// elisionMarker replaces tool outputs dropped to fit the window.
	elisionMarker = "[output elided to fit context]"

	// perMessageOverhead approximates the per-message framing cost.
	perMessageOverhead = 4
)

// estimateTokens is the local chars-per-token heuristic. It only drives
// trimming decisions; the provider's own accounting is authoritative.
func estimateTokens(text string) int {
	return len(text) / 4
}

// estimateMessage sums the token estimate of every part of a message.
func estimateMessage(m types.MessageWithParts) int {
	total := perMessageOverhead
	for _, part := range m.Parts {
		switch pt := part.(type) {
		case *types.TextPart:
			total += estimateTokens(pt.Text)
		case *types.ReasoningPart:
			total += estimateTokens(pt.Text)
		case *types.ToolPart:
			total += estimateTokens(string(pt.State.Input))
			total += estimateTokens(pt.State.Output)
		case *types.FilePart:
			total += estimateTokens(pt.Content)
		}
	}
	return total
}

// estimateHistory sums the token estimate of a prompt and history.
func estimateHistory(msgs []types.MessageWithParts, systemPrompt string) int {
	total := estimateTokens(systemPrompt)
	for _, m := range msgs {
		total += estimateMessage(m)
	}
	return total
}

// fitHistory trims msgs until the estimate fits contextLimit minus
// reserveOutput. Pass one elides completed tool outputs oldest first; pass
// two drops whole messages oldest first. Pinned messages survive both
// passes: summary messages, the latest user message, and any message still
// streaming. The system prompt is not part of msgs and is never touched.
// Trimming mutates msgs in place; callers pass freshly loaded history.
func fitHistory(msgs []types.MessageWithParts, systemPrompt string, contextLimit, reserveOutput int) ([]types.MessageWithParts, int) {
	if contextLimit <= 0 {
		contextLimit = defaultContextLength
	}
	if reserveOutput <= 0 {
		reserveOutput = defaultReserveOutput
	}
	budget := contextLimit - reserveOutput

	estimate := estimateHistory(msgs, systemPrompt)
	if estimate <= budget {
		return msgs, estimate
	}

	lastUser := lastUserIndex(msgs)

	// Pass 1: elide completed tool outputs, oldest message first. The
	// latest user message and the in-flight turn keep theirs.
	for i := range msgs {
		if estimate <= budget {
			return msgs, estimate
		}
		if i == lastUser || pinned(msgs[i].Info) {
			continue
		}
		for _, part := range msgs[i].Parts {
			tp, ok := part.(*types.ToolPart)
			if !ok || tp.State.Status != types.ToolCompleted || tp.State.Output == "" {
				continue
			}
			estimate -= estimateTokens(tp.State.Output)
			tp.State.Output = elisionMarker
			estimate += estimateTokens(elisionMarker)
		}
	}

	// Pass 2: drop whole messages, oldest first.
	for estimate > budget {
		drop := -1
		for i := range msgs {
			if i == lastUserIndex(msgs) || pinned(msgs[i].Info) {
				continue
			}
			drop = i
			break
		}
		if drop < 0 {
			break
		}
		estimate -= estimateMessage(msgs[drop])
		msgs = append(msgs[:drop], msgs[drop+1:]...)
	}

	return msgs, estimate
}

// pinned reports whether a message must never be trimmed: compaction
// summaries and messages whose turn is still streaming.
func pinned(msg *types.Message) bool {
	if msg.IsSummary {
		return true
	}
	return msg.Role == types.RoleAssistant && msg.Time.Completed == nil
}

// lastUserIndex returns the index of the newest user message, or -1.
func lastUserIndex(msgs []types.MessageWithParts) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Info.Role == types.RoleUser {
			return i
		}
	}
	return -1
}
