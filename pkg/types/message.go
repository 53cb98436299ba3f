package types

// MessageRole identifies who produced a message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one entry in a session's conversation history. A message owns an
// ordered sequence of parts; once its final part is complete the message is
// immutable.
type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionID"`
	Role      MessageRole `json:"role"`

	// Revision is the session revision the message was created under, used
	// by clients to resume history incrementally.
	Revision int64 `json:"revision"`

	// Agent is the mode the message was produced under ("chat", "plan").
	Agent string `json:"agent,omitempty"`

	// ProviderID and ModelID identify the backend that produced an
	// assistant message, or the requested backend on a user message.
	ProviderID string `json:"providerID,omitempty"`
	ModelID    string `json:"modelID,omitempty"`

	// Finish is the provider finish reason for assistant messages:
	// "stop", "tool_use", "max_tokens", "max_steps", "cancelled", "error".
	Finish string `json:"finish,omitempty"`

	// IsSummary marks compaction summary messages; they are pinned and
	// replace the history that preceded them when building requests.
	IsSummary bool `json:"isSummary,omitempty"`

	Tokens TokenUsage    `json:"tokens,omitzero"`
	Cost   float64       `json:"cost,omitempty"`
	Error  *MessageError `json:"error,omitempty"`

	Time MessageTime `json:"time"`
}

// MessageTime contains message timestamps in Unix milliseconds. Completed is
// set when the final part is marked complete.
type MessageTime struct {
	Created   int64  `json:"created"`
	Completed *int64 `json:"completed,omitempty"`
}

// TokenUsage is the provider-reported token accounting for one message.
type TokenUsage struct {
	Input     int        `json:"input"`
	Output    int        `json:"output"`
	Reasoning int        `json:"reasoning,omitempty"`
	Cache     CacheUsage `json:"cache,omitzero"`
}

// CacheUsage counts prompt-cache reads and writes.
type CacheUsage struct {
	Read  int `json:"read,omitempty"`
	Write int `json:"write,omitempty"`
}

// Total returns the combined token count of a usage record.
func (u TokenUsage) Total() int {
	return u.Input + u.Output + u.Reasoning + u.Cache.Read + u.Cache.Write
}

// MessageError is a terminal turn failure persisted on the in-flight
// assistant message.
type MessageError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MessageWithParts bundles a message with its ordered parts for transport.
type MessageWithParts struct {
	Info  *Message `json:"info"`
	Parts []Part   `json:"parts"`
}
