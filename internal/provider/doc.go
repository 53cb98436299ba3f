// Package provider provides the LLM provider abstraction layer for Lodestar.
//
// This package implements a unified interface for different Large Language Model
// providers using the Eino framework. It supports multiple providers including
// Anthropic Claude, OpenAI GPT, and Volcengine ARK models.
//
// # Core Components
//
// The package is built around several key interfaces and types:
//
//   - Provider: Core interface that all LLM providers must implement
//   - Registry: Manages and coordinates multiple providers
//   - Request/Stream: Streaming chat completions normalized to Delta events
//   - Classify: Maps provider errors onto a retry taxonomy
//   - Tool and message conversion utilities for function calling
//
// # Supported Providers
//
// ## Anthropic (Claude)
//
// Supports Claude models including Claude 4 Sonnet, Claude 4 Opus, and the
// Claude 3.5 series. Features include:
//
//   - Direct API access or AWS Bedrock integration
//
//   - Extended thinking support for reasoning tasks
//
//   - Tool calling capabilities
//
//     provider, err := NewAnthropicProvider(ctx, &AnthropicConfig{
//     ID:        "anthropic",
//     APIKey:    "sk-...",
//     Model:     "claude-sonnet-4-20250514",
//     MaxTokens: 8192,
//     })
//
// ## OpenAI (GPT)
//
// Supports OpenAI models and OpenAI-compatible endpoints including:
//
//   - Native OpenAI API access
//
//   - Azure OpenAI Service
//
//   - Local and self-hosted OpenAI-compatible servers
//
//     provider, err := NewOpenAIProvider(ctx, &OpenAIConfig{
//     ID:        "openai",
//     APIKey:    "sk-...",
//     Model:     "gpt-4o",
//     MaxTokens: 4096,
//     })
//
// ## Volcengine ARK
//
// Supports Volcengine's ARK platform for accessing Doubao models:
//
//	provider, err := NewArkProvider(ctx, &ArkConfig{
//	    APIKey:    "...",
//	    Model:     "endpoint-id",
//	    MaxTokens: 4096,
//	})
//
// # Registry Usage
//
// The Registry manages all configured providers and provides unified access:
//
//	registry, err := InitializeProviders(ctx, config)
//
//	// Get a specific provider
//	provider, err := registry.Get("anthropic")
//
//	// Get a specific model
//	model, err := registry.GetModel("anthropic", "claude-sonnet-4-20250514")
//
//	// Resolve a "provider/model" string (empty string = default model)
//	provider, model, err := registry.Resolve("openai/gpt-4o")
//
//	// List all available models across providers
//	models := registry.AllModels()
//
// # Streaming Completions
//
// All providers expose the same streaming surface. A Stream yields Delta
// events in a fixed grammar: text and reasoning chunks interleave freely,
// every tool call opens with DeltaToolCallStart, streams zero or more
// DeltaToolCallArgs fragments, and is closed by DeltaToolCallEnd carrying
// the assembled arguments. A single DeltaDone terminates the stream, after
// which Recv returns io.EOF.
//
//	stream, err := provider.Stream(ctx, &Request{
//	    Model:     "claude-sonnet-4-20250514",
//	    Messages:  messages,
//	    Tools:     tools,
//	    MaxTokens: 4096,
//	})
//	defer stream.Close()
//
//	for {
//	    delta, err := stream.Recv()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    switch delta.Type {
//	    case DeltaText:
//	        // append delta.Text
//	    case DeltaToolCallEnd:
//	        // execute delta.ToolName with delta.Input
//	    }
//	}
//
// Recv honors context cancellation at every yield, so an aborted turn stops
// consuming the wire immediately.
//
// # Error Handling
//
// Classify maps raw provider errors onto a small taxonomy used by the retry
// loop: transient faults and rate limits are retryable, authentication and
// oversized-context errors are not. NewRetryBackOff builds the exponential
// backoff policy used when a retryable error is seen:
//
//	err := backoff.Retry(attempt, NewRetryBackOff(ctx))
//
// # Tool Calling
//
// The package provides utilities for converting between tool calling formats:
//
//	// Convert registry tool definitions to Eino format
//	einoTools := ConvertToEinoTools(tools)
//
//	// Rebuild provider history from stored messages and parts
//	einoMessages := BuildHistory(systemPrompt, messages)
//
// # Integration with Eino
//
// This package is built on top of the Eino framework (https://github.com/cloudwego/eino),
// which provides:
//   - Standardized LLM interfaces
//   - Built-in tool calling support
//   - Streaming capabilities
//   - Message schema definitions
//
// The abstraction allows Lodestar to support multiple providers through a
// single, consistent interface while leveraging Eino's robust foundation.
package provider
