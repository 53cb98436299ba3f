package provider

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/joho/godotenv"

	"github.com/lodestar-ai/lodestar/pkg/types"
)

// liveProviderCase describes one provider exercised against its real API.
type liveProviderCase struct {
	Name           string
	ProviderID     string
	APIKeyEnv      string
	BaseURLEnv     string
	ModelIDEnv     string
	DefaultModelID string
	SkipToolTest   bool
}

var liveProviderCases = []liveProviderCase{
	{
		Name:           "Anthropic",
		ProviderID:     "anthropic",
		APIKeyEnv:      "ANTHROPIC_API_KEY",
		ModelIDEnv:     "ANTHROPIC_MODEL_ID",
		DefaultModelID: "claude-3-5-haiku-20241022",
	},
	{
		Name:           "OpenAI",
		ProviderID:     "openai",
		APIKeyEnv:      "OPENAI_API_KEY",
		BaseURLEnv:     "OPENAI_BASE_URL",
		ModelIDEnv:     "OPENAI_MODEL_ID",
		DefaultModelID: "gpt-4o-mini",
	},
	{
		Name:         "Ark",
		ProviderID:   "ark",
		APIKeyEnv:    "ARK_API_KEY",
		BaseURLEnv:   "ARK_BASE_URL",
		ModelIDEnv:   "ARK_MODEL_ID",
		SkipToolTest: true,
	},
}

func TestProviders_LiveIntegration(t *testing.T) {
	_ = godotenv.Load("../../.env")

	for _, tc := range liveProviderCases {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			if os.Getenv(tc.APIKeyEnv) == "" {
				t.Skipf("%s not set, skipping %s integration test", tc.APIKeyEnv, tc.Name)
			}

			modelID := os.Getenv(tc.ModelIDEnv)
			if modelID == "" {
				if tc.DefaultModelID == "" {
					t.Skipf("%s not set and no default, skipping %s test", tc.ModelIDEnv, tc.Name)
				}
				modelID = tc.DefaultModelID
			}

			ctx := context.Background()
			registry, err := InitializeProviders(ctx, liveConfig(tc, modelID))
			if err != nil {
				t.Fatalf("Failed to initialize providers: %v", err)
			}

			p, err := registry.Get(tc.ProviderID)
			if err != nil {
				t.Fatalf("Failed to get provider %s: %v", tc.ProviderID, err)
			}

			t.Run("SimpleCompletion", func(t *testing.T) {
				testLiveCompletion(t, ctx, p, modelID)
			})
			t.Run("MultiTurnConversation", func(t *testing.T) {
				testLiveMultiTurn(t, ctx, p, modelID)
			})
			if !tc.SkipToolTest {
				t.Run("ToolRoundTrip", func(t *testing.T) {
					testLiveToolCall(t, ctx, p, modelID)
				})
			}
		})
	}
}

func liveConfig(tc liveProviderCase, modelID string) *types.Config {
	baseURL := ""
	if tc.BaseURLEnv != "" {
		baseURL = os.Getenv(tc.BaseURLEnv)
	}
	return &types.Config{
		Model: tc.ProviderID + "/" + modelID,
		Provider: map[string]types.ProviderConfig{
			tc.ProviderID: {
				APIKey:  os.Getenv(tc.APIKeyEnv),
				BaseURL: baseURL,
				Model:   modelID,
			},
		},
	}
}

// drainLive collects deltas until EOF, failing the test on stream errors.
func drainLive(t *testing.T, stream *Stream) []Delta {
	t.Helper()
	defer stream.Close()

	var out []Delta
	for {
		d, err := stream.Recv()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		out = append(out, d)
	}
}

func liveText(deltas []Delta) string {
	var b strings.Builder
	for _, d := range deltas {
		if d.Type == DeltaText {
			b.WriteString(d.Text)
		}
	}
	return b.String()
}

func testLiveCompletion(t *testing.T, ctx context.Context, p Provider, modelID string) {
	stream, err := p.Stream(ctx, &Request{
		Model: modelID,
		Messages: []*schema.Message{
			{Role: schema.User, Content: "Say 'Hello, World!' and nothing else."},
		},
		MaxTokens:   100,
		Temperature: 0.0,
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	deltas := drainLive(t, stream)
	text := liveText(deltas)
	if text == "" {
		t.Error("Expected non-empty response")
	}
	if last := deltas[len(deltas)-1]; last.Type != DeltaDone {
		t.Errorf("Last delta = %v, want done", last.Type)
	}
	t.Logf("[%s] Response: %s", p.Name(), text)
}

func testLiveMultiTurn(t *testing.T, ctx context.Context, p Provider, modelID string) {
	stream, err := p.Stream(ctx, &Request{
		Model: modelID,
		Messages: []*schema.Message{
			{Role: schema.User, Content: "Remember the number 42."},
			{Role: schema.Assistant, Content: "I'll remember the number 42."},
			{Role: schema.User, Content: "What number did I ask you to remember? Reply with just the number."},
		},
		MaxTokens:   50,
		Temperature: 0.0,
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	text := liveText(drainLive(t, stream))
	if !strings.Contains(text, "42") {
		t.Errorf("Expected response to contain 42, got %q", text)
	}
}

func testLiveToolCall(t *testing.T, ctx context.Context, p Provider, modelID string) {
	tools := ConvertToEinoTools([]ToolInfo{
		{
			Name:        "get_weather",
			Description: "Returns the current weather for a city",
			Parameters:  []byte(`{"type":"object","properties":{"city":{"type":"string","description":"City name"}},"required":["city"]}`),
		},
	})

	stream, err := p.Stream(ctx, &Request{
		Model: modelID,
		Messages: []*schema.Message{
			{Role: schema.User, Content: "What's the weather in Paris? Use the get_weather tool."},
		},
		Tools:       tools,
		MaxTokens:   200,
		Temperature: 0.0,
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	deltas := drainLive(t, stream)

	var starts, ends int
	for _, d := range deltas {
		switch d.Type {
		case DeltaToolCallStart:
			starts++
		case DeltaToolCallEnd:
			ends++
			if d.ToolName != "get_weather" {
				t.Errorf("ToolName = %q, want 'get_weather'", d.ToolName)
			}
			if len(d.Input) == 0 {
				t.Error("Expected non-empty assembled input")
			}
		}
	}

	if starts == 0 {
		t.Skip("Model did not call the tool; nothing to verify")
	}
	if starts != ends {
		t.Errorf("Tool call starts = %d, ends = %d; every start must close", starts, ends)
	}
}
