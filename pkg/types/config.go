package types

// Config is the merged Lodestar configuration.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty"`

	// Model is the default model as a "provider/model" pair.
	Model string `json:"model,omitempty"`
	// SmallModel is used for cheap background work (titles, summaries).
	SmallModel string `json:"small_model,omitempty"`

	// MaxSteps caps provider round-trips per turn (0 = engine default).
	MaxSteps int `json:"maxSteps,omitempty"`

	// Tools globally enables or disables tools by ID.
	Tools map[string]bool `json:"tools,omitempty"`

	// Instructions lists extra rule files appended to the system prompt.
	Instructions []string `json:"instructions,omitempty"`

	// Provider configures model backends by provider ID.
	Provider map[string]ProviderConfig `json:"provider,omitempty"`

	// Agent overrides the built-in agent modes by name.
	Agent map[string]AgentConfig `json:"agent,omitempty"`

	// Permission is the global permission policy.
	Permission *PermissionConfig `json:"permission,omitempty"`

	// MCP declares external tool servers.
	MCP map[string]MCPConfig `json:"mcp,omitempty"`
}

// ProviderConfig holds configuration for one model backend.
type ProviderConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`

	// Model pins an endpoint ID for providers that require one (Ark).
	Model string `json:"model,omitempty"`

	Disable bool `json:"disable,omitempty"`
}

// AgentConfig overrides an agent mode.
type AgentConfig struct {
	Model       string            `json:"model,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	TopP        *float64          `json:"top_p,omitempty"`
	Prompt      string            `json:"prompt,omitempty"`
	MaxSteps    int               `json:"maxSteps,omitempty"`
	Tools       map[string]bool   `json:"tools,omitempty"`
	Permission  *PermissionConfig `json:"permission,omitempty"`
	Disable     bool              `json:"disable,omitempty"`
}

// PermissionConfig holds "allow" | "deny" | "ask" policies per concern. Bash
// accepts either a single policy string or a pattern map
// {"git *": "allow", "rm *": "deny"}.
type PermissionConfig struct {
	Edit        string `json:"edit,omitempty"`
	Bash        any    `json:"bash,omitempty"`
	WebFetch    string `json:"webfetch,omitempty"`
	ExternalDir string `json:"external_directory,omitempty"`
	DoomLoop    string `json:"doom_loop,omitempty"`
}

// MCPConfig declares one MCP tool server.
type MCPConfig struct {
	Type        string            `json:"type,omitempty"` // "local" | "remote"
	Command     []string          `json:"command,omitempty"`
	URL         string            `json:"url,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	Enabled     *bool             `json:"enabled,omitempty"`
	Timeout     int               `json:"timeout,omitempty"` // seconds
}

// Model describes an LLM model available from a provider.
type Model struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	ProviderID        string  `json:"providerID"`
	ContextLength     int     `json:"contextLength"`
	MaxOutputTokens   int     `json:"maxOutputTokens,omitempty"`
	SupportsTools     bool    `json:"supportsTools"`
	SupportsReasoning bool    `json:"supportsReasoning,omitempty"`
	InputPrice        float64 `json:"inputPrice,omitempty"`  // per 1M tokens
	OutputPrice       float64 `json:"outputPrice,omitempty"` // per 1M tokens
}

// ModelRef selects a provider/model pair on a per-message basis.
type ModelRef struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}
