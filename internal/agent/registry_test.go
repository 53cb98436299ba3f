package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lodestar-ai/lodestar/internal/permission"
	"github.com/lodestar-ai/lodestar/pkg/types"
)

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, []string{"chat", "plan"}, r.Names())
	assert.Equal(t, "chat", r.Default().Name)

	_, err := r.Get("nope")
	assert.Error(t, err)
}

func TestFromConfigOverride(t *testing.T) {
	temp := 0.1
	cfg := &types.Config{
		Agent: map[string]types.AgentConfig{
			"chat": {
				Temperature: &temp,
				MaxSteps:    7,
				Model:       "anthropic/claude-sonnet-4-20250514",
				Tools:       map[string]bool{"webfetch": false},
				Permission:  &types.PermissionConfig{Edit: "ask"},
			},
		},
	}

	r := FromConfig(cfg)
	chat, err := r.Get("chat")
	assert.NoError(t, err)
	assert.False(t, chat.BuiltIn)
	assert.Equal(t, 0.1, chat.Temperature)
	assert.Equal(t, 7, chat.MaxSteps)
	assert.Equal(t, "anthropic", chat.Model.ProviderID)
	assert.Equal(t, "claude-sonnet-4-20250514", chat.Model.ModelID)
	assert.False(t, chat.ToolEnabled("webfetch"))
	assert.True(t, chat.ToolEnabled("bash"))
	assert.Equal(t, permission.ActionAsk, chat.Policy.For(permission.TypeEdit))

	// The built-in definition is untouched.
	assert.Equal(t, permission.ActionAllow, BuiltIn()["chat"].Policy.For(permission.TypeEdit))
}

func TestFromConfigNewAgent(t *testing.T) {
	cfg := &types.Config{
		Agent: map[string]types.AgentConfig{
			"review": {Prompt: "Review code for defects.", MaxSteps: 5},
		},
	}

	r := FromConfig(cfg)
	review, err := r.Get("review")
	assert.NoError(t, err)
	assert.Equal(t, "review", review.Name)
	assert.Equal(t, "Review code for defects.", review.Prompt)
	assert.Equal(t, 5, review.MaxSteps)
}

func TestFromConfigDisable(t *testing.T) {
	cfg := &types.Config{
		Agent: map[string]types.AgentConfig{
			"plan": {Disable: true},
		},
	}

	r := FromConfig(cfg)
	_, err := r.Get("plan")
	assert.Error(t, err)
	assert.Equal(t, []string{"chat"}, r.Names())
}
