package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"

	"github.com/lodestar-ai/lodestar/pkg/types"
)

// stubProvider is a minimal Provider for registry tests.
type stubProvider struct {
	id     string
	name   string
	models []types.Model
}

func (p *stubProvider) ID() string            { return p.id }
func (p *stubProvider) Name() string          { return p.name }
func (p *stubProvider) Models() []types.Model { return p.models }

func (p *stubProvider) ChatModel() model.ToolCallingChatModel { return nil }

func (p *stubProvider) Stream(ctx context.Context, req *Request) (*Stream, error) {
	return nil, errors.New("stub provider cannot stream")
}

func stubAnthropicProvider() *stubProvider {
	return &stubProvider{
		id:   "anthropic",
		name: "Anthropic",
		models: []types.Model{
			{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ProviderID: "anthropic"},
			{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", ProviderID: "anthropic"},
		},
	}
}

func stubOpenAIProvider() *stubProvider {
	return &stubProvider{
		id:   "openai",
		name: "OpenAI",
		models: []types.Model{
			{ID: "gpt-5", Name: "GPT-5", ProviderID: "openai"},
			{ID: "gpt-4o", Name: "GPT-4o", ProviderID: "openai"},
		},
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := NewRegistry(&types.Config{})
	registry.Register(stubAnthropicProvider())

	p, err := registry.Get("anthropic")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if p.ID() != "anthropic" {
		t.Errorf("ID = %q, want 'anthropic'", p.ID())
	}

	if _, err := registry.Get("missing"); err == nil {
		t.Error("Expected error for unknown provider")
	}
}

func TestRegistryList(t *testing.T) {
	registry := NewRegistry(&types.Config{})
	registry.Register(stubAnthropicProvider())
	registry.Register(stubOpenAIProvider())

	providers := registry.List()
	if len(providers) != 2 {
		t.Errorf("List() returned %d providers, want 2", len(providers))
	}
}

func TestRegistryGetModel(t *testing.T) {
	registry := NewRegistry(&types.Config{})
	registry.Register(stubAnthropicProvider())

	m, err := registry.GetModel("anthropic", "claude-sonnet-4-20250514")
	if err != nil {
		t.Fatalf("GetModel() error = %v", err)
	}
	if m.Name != "Claude Sonnet 4" {
		t.Errorf("Name = %q", m.Name)
	}

	if _, err := registry.GetModel("anthropic", "nope"); err == nil {
		t.Error("Expected error for unknown model")
	}
	if _, err := registry.GetModel("missing", "claude-sonnet-4-20250514"); err == nil {
		t.Error("Expected error for unknown provider")
	}
}

func TestRegistryAllModelsPriorityOrder(t *testing.T) {
	registry := NewRegistry(&types.Config{})
	registry.Register(stubAnthropicProvider())
	registry.Register(stubOpenAIProvider())

	models := registry.AllModels()
	if len(models) != 4 {
		t.Fatalf("AllModels() returned %d, want 4", len(models))
	}

	// gpt-5 outranks claude-sonnet-4 outranks gpt-4o.
	if models[0].ID != "gpt-5" {
		t.Errorf("First model = %q, want 'gpt-5'", models[0].ID)
	}
	if models[1].ID != "claude-sonnet-4-20250514" {
		t.Errorf("Second model = %q, want 'claude-sonnet-4-20250514'", models[1].ID)
	}
}

func TestRegistryDefaultModel(t *testing.T) {
	t.Run("from config", func(t *testing.T) {
		registry := NewRegistry(&types.Config{Model: "openai/gpt-4o"})
		registry.Register(stubOpenAIProvider())

		m, err := registry.DefaultModel()
		if err != nil {
			t.Fatalf("DefaultModel() error = %v", err)
		}
		if m.ID != "gpt-4o" {
			t.Errorf("ID = %q, want 'gpt-4o'", m.ID)
		}
	})

	t.Run("prefers claude sonnet", func(t *testing.T) {
		registry := NewRegistry(&types.Config{})
		registry.Register(stubAnthropicProvider())
		registry.Register(stubOpenAIProvider())

		m, err := registry.DefaultModel()
		if err != nil {
			t.Fatalf("DefaultModel() error = %v", err)
		}
		if m.ID != "claude-sonnet-4-20250514" {
			t.Errorf("ID = %q, want 'claude-sonnet-4-20250514'", m.ID)
		}
	})

	t.Run("falls back to best available", func(t *testing.T) {
		registry := NewRegistry(&types.Config{})
		registry.Register(stubOpenAIProvider())

		m, err := registry.DefaultModel()
		if err != nil {
			t.Fatalf("DefaultModel() error = %v", err)
		}
		if m.ID != "gpt-5" {
			t.Errorf("ID = %q, want 'gpt-5'", m.ID)
		}
	})

	t.Run("no providers", func(t *testing.T) {
		registry := NewRegistry(&types.Config{})
		if _, err := registry.DefaultModel(); err == nil {
			t.Error("Expected error with no providers")
		}
	})
}

func TestRegistryResolve(t *testing.T) {
	registry := NewRegistry(&types.Config{})
	registry.Register(stubAnthropicProvider())
	registry.Register(stubOpenAIProvider())

	t.Run("qualified", func(t *testing.T) {
		p, m, err := registry.Resolve("openai/gpt-4o")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if p.ID() != "openai" || m.ID != "gpt-4o" {
			t.Errorf("Resolve() = %q/%q", p.ID(), m.ID)
		}
	})

	t.Run("bare model searches catalogs", func(t *testing.T) {
		p, m, err := registry.Resolve("claude-3-5-haiku-20241022")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if p.ID() != "anthropic" || m.ID != "claude-3-5-haiku-20241022" {
			t.Errorf("Resolve() = %q/%q", p.ID(), m.ID)
		}
	})

	t.Run("empty resolves default", func(t *testing.T) {
		p, m, err := registry.Resolve("")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if p.ID() != "anthropic" || m.ID != "claude-sonnet-4-20250514" {
			t.Errorf("Resolve() = %q/%q", p.ID(), m.ID)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if _, _, err := registry.Resolve("nope/nothing"); err == nil {
			t.Error("Expected error for unknown provider")
		}
		if _, _, err := registry.Resolve("does-not-exist"); err == nil {
			t.Error("Expected error for unknown bare model")
		}
	})
}

func TestInitializeProviders(t *testing.T) {
	ctx := context.Background()

	config := &types.Config{
		Provider: map[string]types.ProviderConfig{
			"anthropic": {APIKey: "test-key", Disable: true},
			"openai":    {APIKey: "test-key"},
			// ark has no endpoint configured; initialization fails and
			// the provider stays unregistered.
			"ark": {APIKey: "test-key"},
		},
	}

	// Endpoint resolution must not fall back to ambient env.
	t.Setenv("ARK_MODEL_ID", "")

	registry, err := InitializeProviders(ctx, config)
	if err != nil {
		t.Fatalf("InitializeProviders() error = %v", err)
	}

	if _, err := registry.Get("openai"); err != nil {
		t.Errorf("openai should be registered: %v", err)
	}
	if _, err := registry.Get("anthropic"); err == nil {
		t.Error("anthropic is disabled and should not be registered")
	}
	if _, err := registry.Get("ark"); err == nil {
		t.Error("ark without endpoint should not be registered")
	}
}

func TestInitializeProviders_Empty(t *testing.T) {
	registry, err := InitializeProviders(context.Background(), &types.Config{})
	if err != nil {
		t.Fatalf("InitializeProviders() error = %v", err)
	}
	if got := len(registry.List()); got != 0 {
		t.Errorf("Expected empty registry, got %d providers", got)
	}
}
