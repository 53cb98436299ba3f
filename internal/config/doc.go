// Package config provides configuration loading, merging, and path management
// for Lodestar.
//
// Configuration is assembled from several sources with a fixed precedence, so
// that more specific settings override more general ones.
//
// # Configuration Loading
//
// The Load function searches for and merges configuration from multiple
// sources in priority order:
//
//  1. Global config (~/.config/lodestar/ - XDG compatible)
//  2. Project configs discovered while walking up from the working directory
//     (lodestar.json/lodestar.jsonc and .lodestar/lodestar.json/lodestar.jsonc)
//  3. LODESTAR_CONFIG file
//  4. LODESTAR_CONFIG_CONTENT inline JSON
//  5. Environment variables
//
// The walk up the directory tree stops at either a directory containing a
// .git folder (the repository root) or the filesystem root, and ancestor
// configs are applied outermost first so that the config nearest to the
// working directory wins.
//
// # Supported Formats
//
// Both JSON and JSONC (JSON with Comments) are accepted:
//   - lodestar.json - Standard JSON configuration
//   - lodestar.jsonc - JSON with comments, processed using tidwall/jsonc
//
// # Variable Interpolation
//
// Configuration files support two kinds of placeholder:
//   - {env:VAR_NAME} - Expands to environment variable values
//   - {file:path} - Expands to file contents (properly escaped for JSON)
//
// File paths in {file:path} placeholders support:
//   - Absolute paths
//   - Relative paths (resolved relative to the config file directory)
//   - Home directory expansion (~/)
//
// Example configuration with interpolation:
//
//	{
//	  "provider": {
//	    "anthropic": {
//	      "apiKey": "{env:ANTHROPIC_API_KEY}"
//	    }
//	  },
//	  "instructions": [
//	    "{file:~/custom-instructions.txt}"
//	  ]
//	}
//
// # Configuration Merging
//
// When multiple sources are found, they are merged so that:
//   - Scalar values (strings, numbers) are overwritten by later sources
//   - Maps (tools, provider, agent, mcp) are merged key by key
//   - Instructions accumulate across sources
//   - The permission block is replaced wholesale by the last source that
//     sets it
//
// # Path Management
//
// The Paths type provides XDG Base Directory compliant locations:
//   - Data: ~/.local/share/lodestar (XDG_DATA_HOME)
//   - Config: ~/.config/lodestar (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/lodestar (XDG_CACHE_HOME)
//   - State: ~/.local/state/lodestar (XDG_STATE_HOME)
//
// On Windows, these paths fall back to APPDATA as appropriate. Session
// records live under Paths.StoragePath and log files under Paths.LogsPath.
//
// # Environment Variable Overrides
//
// Several environment variables provide direct overrides:
//   - LODESTAR_MODEL - Override the default model
//   - LODESTAR_SMALL_MODEL - Override the small model
//   - LODESTAR_PERMISSION - JSON string for permission configuration
//   - LODESTAR_CONFIG - Path to a specific config file
//   - LODESTAR_CONFIG_CONTENT - Inline JSON configuration
//   - LODESTAR_CONFIG_DIR - Override the config directory location
//
// Provider API keys (ANTHROPIC_API_KEY, OPENAI_API_KEY, ARK_API_KEY) are
// picked up from the environment when the config file does not set them.
//
// # Usage Example
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	paths := config.GetPaths()
//	if err := paths.EnsurePaths(); err != nil {
//	    log.Fatal(err)
//	}
package config
