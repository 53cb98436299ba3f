package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/lodestar-ai/lodestar/internal/provider"
	"github.com/lodestar-ai/lodestar/pkg/types"
)

const (
	// minMessagesToKeep skips compaction on short conversations.
	minMessagesToKeep = 4

	// summaryMaxTokens caps the generated summary.
	summaryMaxTokens = 2000

	// contextThreshold is the share of the model window that triggers
	// compaction before the next turn.
	contextThreshold = 0.75

	// summaryToolOutputLimit truncates tool outputs inside the summary
	// prompt.
	summaryToolOutputLimit = 500
)

const compactionSystemPrompt = `You are a conversation summarizer. Create a concise summary of the conversation that preserves the context needed to continue the work.

Focus on:
1. What was accomplished
2. Current work in progress
3. Files involved
4. Next steps
5. Key user requests and constraints

Be concise but detailed enough that work can continue seamlessly.`

// continueText is appended as a user message after a mid-turn compaction so
// the request history ends on a user turn.
const continueText = "Continue if you have next steps."

// shouldCompact reports whether the active window has grown past the
// compaction threshold of the model's context.
func shouldCompact(window []types.MessageWithParts, model *types.Model) bool {
	if len(window) <= minMessagesToKeep {
		return false
	}

	limit := model.ContextLength
	if limit <= 0 {
		limit = defaultContextLength
	}

	// The provider's accounting from the last completed assistant turn is
	// the best signal; estimation covers sessions without one.
	used := 0
	for i := len(window) - 1; i >= 0; i-- {
		info := window[i].Info
		if info.Role == types.RoleAssistant && info.Tokens.Total() > 0 {
			used = info.Tokens.Input + info.Tokens.Output + info.Tokens.Cache.Read
			break
		}
	}
	if used == 0 {
		used = estimateHistory(window, "")
	}

	return float64(used) > contextThreshold*float64(limit)
}

// summaryWindow returns the live portion of a session's history: everything
// from the newest summary message onward, or the whole history when no
// compaction has happened yet.
func summaryWindow(msgs []types.MessageWithParts) []types.MessageWithParts {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Info.IsSummary {
			return msgs[i:]
		}
	}
	return msgs
}

// compact summarizes the session's active window into a pinned summary
// message. Subsequent requests are built from the summary onward. autoContinue
// appends a user message after the summary so a mid-turn retry has a user
// turn to respond to.
func (e *Engine) compact(ctx context.Context, session *types.Session, agentName string, autoContinue bool) error {
	msgs, err := e.store.ListMessages(ctx, session.ID, 0)
	if err != nil {
		return err
	}
	window := summaryWindow(msgs)
	if len(window) == 0 {
		return nil
	}

	prov, model, err := e.smallModel()
	if err != nil {
		return err
	}

	prompt := summaryPrompt(window)

	stream, err := prov.Stream(ctx, &provider.Request{
		Model: model.ID,
		Messages: []*schema.Message{
			{Role: schema.System, Content: compactionSystemPrompt},
			{Role: schema.User, Content: prompt},
		},
		MaxTokens: summaryMaxTokens,
	})
	if err != nil {
		return fmt.Errorf("compaction request failed: %w", err)
	}
	defer stream.Close()

	var summary strings.Builder
	for {
		d, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("compaction stream failed: %w", err)
		}
		if d.Type == provider.DeltaText {
			summary.WriteString(d.Text)
		}
	}
	if strings.TrimSpace(summary.String()) == "" {
		return fmt.Errorf("compaction produced an empty summary")
	}

	now := time.Now().UnixMilli()
	summaryMsg := &types.Message{
		Role:       types.RoleAssistant,
		Agent:      agentName,
		ProviderID: model.ProviderID,
		ModelID:    model.ID,
		IsSummary:  true,
		Finish:     "stop",
		Tokens: types.TokenUsage{
			Input:  estimateTokens(prompt),
			Output: estimateTokens(summary.String()),
		},
	}
	summaryPart := &types.TextPart{
		ID:   newPartID(),
		Type: "text",
		Text: summary.String(),
		Time: types.PartTime{Start: now, End: now},
	}
	if err := e.store.AppendMessage(ctx, session.ID, summaryMsg, []types.Part{summaryPart}); err != nil {
		return err
	}
	summaryMsg.Time.Completed = &now
	if err := e.store.UpdateMessage(ctx, summaryMsg); err != nil {
		return err
	}

	if autoContinue {
		continueMsg := &types.Message{
			Role:  types.RoleUser,
			Agent: agentName,
		}
		continuePart := &types.TextPart{
			ID:   newPartID(),
			Type: "text",
			Text: continueText,
			Time: types.PartTime{Start: now, End: now},
		}
		if err := e.store.AppendMessage(ctx, session.ID, continueMsg, []types.Part{continuePart}); err != nil {
			return err
		}
	}

	e.log.Info().
		Str("session", session.ID).
		Int("summarized", len(window)).
		Msg("history compacted")
	return nil
}

// summaryPrompt renders a window of messages for the summarizer.
func summaryPrompt(msgs []types.MessageWithParts) string {
	var b strings.Builder
	b.WriteString("Summarize the following conversation. The summary will be the only context available when the conversation continues.\n\n---\n\n")

	for _, m := range msgs {
		if m.Info.Role == types.RoleUser {
			b.WriteString("USER:\n")
		} else {
			b.WriteString("ASSISTANT:\n")
		}
		for _, part := range m.Parts {
			switch pt := part.(type) {
			case *types.TextPart:
				b.WriteString(pt.Text)
				b.WriteString("\n")
			case *types.ToolPart:
				fmt.Fprintf(&b, "[tool: %s]\n", pt.Tool)
				if pt.State.Output != "" {
					output := pt.State.Output
					if len(output) > summaryToolOutputLimit {
						output = output[:summaryToolOutputLimit] + "..."
					}
					b.WriteString(output)
					b.WriteString("\n")
				}
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
