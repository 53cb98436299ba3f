package engine

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodestar-ai/lodestar/pkg/types"
)

func textMsg(role types.MessageRole, text string) types.MessageWithParts {
	completed := int64(1)
	return types.MessageWithParts{
		Info: &types.Message{Role: role, Time: types.MessageTime{Created: 1, Completed: &completed}},
		Parts: []types.Part{
			&types.TextPart{Type: "text", Text: text},
		},
	}
}

func toolMsg(output string) types.MessageWithParts {
	completed := int64(1)
	return types.MessageWithParts{
		Info: &types.Message{Role: types.RoleAssistant, Time: types.MessageTime{Created: 1, Completed: &completed}},
		Parts: []types.Part{
			&types.ToolPart{Type: "tool", Tool: "bash", State: types.ToolState{
				Status: types.ToolCompleted,
				Input:  json.RawMessage(`{"command":"ls"}`),
				Output: output,
			}},
		},
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("abcd"))
	assert.Equal(t, 25, estimateTokens(strings.Repeat("x", 100)))
}

func TestFitHistoryNoTrimWhenUnderBudget(t *testing.T) {
	msgs := []types.MessageWithParts{
		textMsg(types.RoleUser, "hello"),
		textMsg(types.RoleAssistant, "hi there"),
	}

	fitted, estimate := fitHistory(msgs, "system", 128000, 8192)

	assert.Len(t, fitted, 2)
	assert.Equal(t, estimateHistory(msgs, "system"), estimate)
}

func TestFitHistoryElidesToolOutputsFirst(t *testing.T) {
	big := strings.Repeat("x", 4000) // ~1000 tokens
	msgs := []types.MessageWithParts{
		textMsg(types.RoleUser, "do the thing"),
		toolMsg(big),
		toolMsg(big),
		textMsg(types.RoleUser, "and another"),
	}

	// Budget fits the history only once the old tool outputs are elided.
	fitted, estimate := fitHistory(msgs, "", 1200, 200)

	require.Len(t, fitted, 4)
	for _, m := range fitted[1:3] {
		tp := m.Parts[0].(*types.ToolPart)
		assert.Equal(t, elisionMarker, tp.State.Output)
	}
	assert.LessOrEqual(t, estimate, 1000)
}

func TestFitHistoryDropsOldestMessages(t *testing.T) {
	big := strings.Repeat("x", 4000)
	msgs := []types.MessageWithParts{
		textMsg(types.RoleUser, big),
		textMsg(types.RoleAssistant, big),
		textMsg(types.RoleUser, "latest question"),
	}

	fitted, estimate := fitHistory(msgs, "", 300, 100)

	require.Len(t, fitted, 1)
	assert.Equal(t, types.RoleUser, fitted[0].Info.Role)
	assert.Equal(t, "latest question", fitted[0].Parts[0].(*types.TextPart).Text)
	assert.LessOrEqual(t, estimate, 200)
}

func TestFitHistoryPinsSummaryAndLatestUser(t *testing.T) {
	big := strings.Repeat("x", 4000)
	completed := int64(1)
	summary := types.MessageWithParts{
		Info: &types.Message{
			Role:      types.RoleAssistant,
			IsSummary: true,
			Time:      types.MessageTime{Created: 1, Completed: &completed},
		},
		Parts: []types.Part{&types.TextPart{Type: "text", Text: big}},
	}
	msgs := []types.MessageWithParts{
		summary,
		textMsg(types.RoleAssistant, big),
		textMsg(types.RoleUser, "the ask"),
	}

	fitted, _ := fitHistory(msgs, "", 300, 100)

	require.Len(t, fitted, 2)
	assert.True(t, fitted[0].Info.IsSummary)
	assert.Equal(t, types.RoleUser, fitted[1].Info.Role)
}

func TestFitHistoryPinsStreamingAssistant(t *testing.T) {
	big := strings.Repeat("x", 4000)
	inflight := types.MessageWithParts{
		Info:  &types.Message{Role: types.RoleAssistant, Time: types.MessageTime{Created: 1}},
		Parts: []types.Part{&types.TextPart{Type: "text", Text: big}},
	}
	msgs := []types.MessageWithParts{
		textMsg(types.RoleUser, big),
		textMsg(types.RoleUser, "current"),
		inflight,
	}

	fitted, _ := fitHistory(msgs, "", 300, 100)

	require.Len(t, fitted, 2)
	assert.Nil(t, fitted[1].Info.Time.Completed)
}

func TestLastUserIndex(t *testing.T) {
	msgs := []types.MessageWithParts{
		textMsg(types.RoleUser, "a"),
		textMsg(types.RoleAssistant, "b"),
		textMsg(types.RoleUser, "c"),
		textMsg(types.RoleAssistant, "d"),
	}
	assert.Equal(t, 2, lastUserIndex(msgs))
	assert.Equal(t, -1, lastUserIndex(nil))
}

func TestSummaryWindow(t *testing.T) {
	completed := int64(1)
	summary := types.MessageWithParts{
		Info: &types.Message{Role: types.RoleAssistant, IsSummary: true, Time: types.MessageTime{Created: 1, Completed: &completed}},
	}

	t.Run("no summary returns everything", func(t *testing.T) {
		msgs := []types.MessageWithParts{
			textMsg(types.RoleUser, "a"),
			textMsg(types.RoleAssistant, "b"),
		}
		assert.Len(t, summaryWindow(msgs), 2)
	})

	t.Run("window starts at newest summary", func(t *testing.T) {
		msgs := []types.MessageWithParts{
			textMsg(types.RoleUser, "old"),
			summary,
			textMsg(types.RoleUser, "new"),
		}
		window := summaryWindow(msgs)
		require.Len(t, window, 2)
		assert.True(t, window[0].Info.IsSummary)
	})
}

func TestShouldCompact(t *testing.T) {
	model := &types.Model{ContextLength: 1000}

	mk := func(n int, used int) []types.MessageWithParts {
		msgs := make([]types.MessageWithParts, 0, n)
		for i := 0; i < n; i++ {
			msgs = append(msgs, textMsg(types.RoleUser, "q"))
			assistant := textMsg(types.RoleAssistant, "a")
			assistant.Info.Tokens = types.TokenUsage{Input: used, Output: 0}
			msgs = append(msgs, assistant)
		}
		return msgs
	}

	t.Run("small windows never compact", func(t *testing.T) {
		assert.False(t, shouldCompact(mk(2, 999), model))
	})

	t.Run("measured usage over threshold compacts", func(t *testing.T) {
		assert.True(t, shouldCompact(mk(4, 800), model))
	})

	t.Run("measured usage under threshold does not", func(t *testing.T) {
		assert.False(t, shouldCompact(mk(4, 500), model))
	})

	t.Run("falls back to estimation without usage", func(t *testing.T) {
		big := strings.Repeat("x", 4000)
		msgs := []types.MessageWithParts{
			textMsg(types.RoleUser, big),
			textMsg(types.RoleUser, big),
			textMsg(types.RoleUser, big),
			textMsg(types.RoleUser, big),
			textMsg(types.RoleUser, "latest"),
		}
		assert.True(t, shouldCompact(msgs, model))
	})
}
