// MockLLMServer mimics the OpenAI and Anthropic streaming APIs with
// deterministic canned responses, so adapter behavior can be tested without
// network access or credentials.
package provider_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// MockResponse is the canned completion returned when a prompt matches.
type MockResponse struct {
	Text      string
	ToolCalls []MockToolCall
}

// MockToolCall describes one tool invocation in a canned response.
type MockToolCall struct {
	ID   string
	Name string
	Args string
}

// RecordedRequest captures one request for later verification.
type RecordedRequest struct {
	Path string
	Body map[string]any
}

// MockLLMServer serves the OpenAI chat-completions and Anthropic messages
// wire formats. Responses are selected by substring match against the last
// user message; unmatched prompts get the fallback.
type MockLLMServer struct {
	server    *httptest.Server
	responses map[string]MockResponse
	fallback  string

	mu       sync.Mutex
	requests []RecordedRequest
}

// NewMockLLMServer starts a mock server with the given canned responses.
func NewMockLLMServer(responses map[string]MockResponse, fallback string) *MockLLMServer {
	m := &MockLLMServer{
		responses: responses,
		fallback:  fallback,
	}

	mux := http.NewServeMux()
	// OpenAI-compatible endpoints (also used by Ark).
	mux.HandleFunc("/v1/chat/completions", m.handleOpenAI)
	mux.HandleFunc("/chat/completions", m.handleOpenAI)
	// Anthropic messages endpoint.
	mux.HandleFunc("/v1/messages", m.handleAnthropic)

	m.server = httptest.NewServer(mux)
	return m
}

// URL returns the mock server's base URL.
func (m *MockLLMServer) URL() string { return m.server.URL }

// Close shuts the server down.
func (m *MockLLMServer) Close() { m.server.Close() }

// Requests returns a copy of all recorded requests.
func (m *MockLLMServer) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *MockLLMServer) record(path string, body map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, RecordedRequest{Path: path, Body: body})
}

// pick selects the canned response for a prompt.
func (m *MockLLMServer) pick(prompt string) MockResponse {
	prompt = strings.ToLower(strings.TrimSpace(prompt))
	for key, resp := range m.responses {
		if strings.Contains(prompt, strings.ToLower(key)) {
			return resp
		}
	}
	return MockResponse{Text: m.fallback}
}

func readBody(r *http.Request) (map[string]any, error) {
	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, err
	}
	return body, nil
}

// lastUserPrompt digs the last user message's text out of a request body.
// Handles both the OpenAI string form and the Anthropic content-block form.
func lastUserPrompt(body map[string]any) string {
	messages, ok := body["messages"].([]any)
	if !ok {
		return ""
	}
	for i := len(messages) - 1; i >= 0; i-- {
		msg, ok := messages[i].(map[string]any)
		if !ok || msg["role"] != "user" {
			continue
		}
		switch content := msg["content"].(type) {
		case string:
			return content
		case []any:
			for _, item := range content {
				if block, ok := item.(map[string]any); ok && block["type"] == "text" {
					if text, ok := block["text"].(string); ok {
						return text
					}
				}
			}
		}
	}
	return ""
}

// handleOpenAI streams a canned response in the chat-completions SSE format.
func (m *MockLLMServer) handleOpenAI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := readBody(r)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	m.record(r.URL.Path, body)

	if stream, _ := body["stream"].(bool); !stream {
		http.Error(w, "mock server only supports streaming", http.StatusBadRequest)
		return
	}

	resp := m.pick(lastUserPrompt(body))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher := w.(http.Flusher)

	emit := func(chunk map[string]any) {
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	delta := func(d map[string]any) map[string]any {
		return map[string]any{
			"id":      "chatcmpl-mock",
			"object":  "chat.completion.chunk",
			"model":   "mock-model",
			"choices": []map[string]any{{"index": 0, "delta": d}},
		}
	}

	emit(delta(map[string]any{"role": "assistant"}))

	for _, word := range splitWords(resp.Text) {
		emit(delta(map[string]any{"content": word}))
	}

	for i, tc := range resp.ToolCalls {
		emit(delta(map[string]any{
			"tool_calls": []map[string]any{{
				"index":    i,
				"id":       tc.ID,
				"type":     "function",
				"function": map[string]any{"name": tc.Name, "arguments": ""},
			}},
		}))
		// Arguments arrive in fragments, like the real API.
		for _, frag := range splitArgs(tc.Args) {
			emit(delta(map[string]any{
				"tool_calls": []map[string]any{{
					"index":    i,
					"function": map[string]any{"arguments": frag},
				}},
			}))
		}
	}

	finishReason := "stop"
	if len(resp.ToolCalls) > 0 {
		finishReason = "tool_calls"
	}
	finish := map[string]any{
		"id":      "chatcmpl-mock",
		"object":  "chat.completion.chunk",
		"model":   "mock-model",
		"choices": []map[string]any{{"index": 0, "delta": map[string]any{}, "finish_reason": finishReason}},
		"usage":   map[string]any{"prompt_tokens": 100, "completion_tokens": 50, "total_tokens": 150},
	}
	emit(finish)

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// handleAnthropic streams a canned response in the messages SSE format.
func (m *MockLLMServer) handleAnthropic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := readBody(r)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	m.record(r.URL.Path, body)

	if stream, _ := body["stream"].(bool); !stream {
		http.Error(w, "mock server only supports streaming", http.StatusBadRequest)
		return
	}

	resp := m.pick(lastUserPrompt(body))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher := w.(http.Flusher)

	emit := func(event string, payload map[string]any) {
		data, _ := json.Marshal(payload)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	emit("message_start", map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id":      "msg_mock",
			"type":    "message",
			"role":    "assistant",
			"model":   "mock-model",
			"content": []any{},
			"usage":   map[string]any{"input_tokens": 100, "output_tokens": 0},
		},
	})

	block := 0
	if resp.Text != "" {
		emit("content_block_start", map[string]any{
			"type":          "content_block_start",
			"index":         block,
			"content_block": map[string]any{"type": "text", "text": ""},
		})
		for _, word := range splitWords(resp.Text) {
			emit("content_block_delta", map[string]any{
				"type":  "content_block_delta",
				"index": block,
				"delta": map[string]any{"type": "text_delta", "text": word},
			})
		}
		emit("content_block_stop", map[string]any{"type": "content_block_stop", "index": block})
		block++
	}

	for _, tc := range resp.ToolCalls {
		emit("content_block_start", map[string]any{
			"type":  "content_block_start",
			"index": block,
			"content_block": map[string]any{
				"type":  "tool_use",
				"id":    tc.ID,
				"name":  tc.Name,
				"input": map[string]any{},
			},
		})
		for _, frag := range splitArgs(tc.Args) {
			emit("content_block_delta", map[string]any{
				"type":  "content_block_delta",
				"index": block,
				"delta": map[string]any{"type": "input_json_delta", "partial_json": frag},
			})
		}
		emit("content_block_stop", map[string]any{"type": "content_block_stop", "index": block})
		block++
	}

	stopReason := "end_turn"
	if len(resp.ToolCalls) > 0 {
		stopReason = "tool_use"
	}
	emit("message_delta", map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": stopReason, "stop_sequence": nil},
		"usage": map[string]any{"output_tokens": 50},
	})
	emit("message_stop", map[string]any{"type": "message_stop"})
}

// splitWords chunks text by words, preserving separators, so streaming
// yields multiple content deltas.
func splitWords(text string) []string {
	words := strings.Fields(text)
	out := make([]string, len(words))
	for i, word := range words {
		if i < len(words)-1 {
			word += " "
		}
		out[i] = word
	}
	return out
}

// splitArgs halves an argument payload so tool-call arguments stream as
// more than one fragment.
func splitArgs(args string) []string {
	if args == "" {
		return nil
	}
	if len(args) < 2 {
		return []string{args}
	}
	mid := len(args) / 2
	return []string{args[:mid], args[mid:]}
}
