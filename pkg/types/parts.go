package types

import (
	"encoding/json"
	"fmt"
)

// Part is a typed fragment of a message. Parts are append-only within a
// message; while a turn is streaming, only the last part mutates.
type Part interface {
	// PartType returns the discriminator: "text", "reasoning", "tool", "file".
	PartType() string
	// PartID returns the part's unique identifier.
	PartID() string
}

// PartTime brackets a part's lifetime in Unix milliseconds. End is zero while
// the part is still streaming; a non-zero End is the completion marker.
type PartTime struct {
	Start int64 `json:"start"`
	End   int64 `json:"end,omitempty"`
}

// TextPart is a streamed text fragment of an assistant or user message.
type TextPart struct {
	ID   string   `json:"id"`
	Type string   `json:"type"` // "text"
	Text string   `json:"text"`
	Time PartTime `json:"time,omitzero"`

	// Error holds a reason code ("cancelled") when streaming was
	// interrupted before the part completed.
	Error string `json:"error,omitempty"`
}

func (p *TextPart) PartType() string { return "text" }
func (p *TextPart) PartID() string   { return p.ID }

// ReasoningPart is streamed model reasoning, kept separate from answer text.
type ReasoningPart struct {
	ID    string   `json:"id"`
	Type  string   `json:"type"` // "reasoning"
	Text  string   `json:"text"`
	Time  PartTime `json:"time,omitzero"`
	Error string   `json:"error,omitempty"`
}

func (p *ReasoningPart) PartType() string { return "reasoning" }
func (p *ReasoningPart) PartID() string   { return p.ID }

// ToolStatus is the lifecycle state of a tool part.
type ToolStatus string

const (
	ToolPending   ToolStatus = "pending"
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolError     ToolStatus = "error"
)

// ToolState carries everything that changes over a tool part's lifecycle.
type ToolState struct {
	Status ToolStatus `json:"status"`

	// Input is the complete argument object, set when the provider finishes
	// emitting the call.
	Input json.RawMessage `json:"input,omitempty"`

	// Output, Title and Metadata are set on completion.
	Output   string         `json:"output,omitempty"`
	Title    string         `json:"title,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// Reason is a short code on error status: "denied", "cancelled",
	// "timeout", "invalid_arguments", "execution_error", "not_found".
	Reason string `json:"reason,omitempty"`
	// Error is the human-readable failure description.
	Error string `json:"error,omitempty"`

	Time PartTime `json:"time,omitzero"`
}

// ToolPart records one tool invocation requested by the model: the call as
// declared, its execution state, and its result.
type ToolPart struct {
	ID     string    `json:"id"`
	Type   string    `json:"type"` // "tool"
	CallID string    `json:"callID"`
	Tool   string    `json:"tool"`
	State  ToolState `json:"state"`
}

func (p *ToolPart) PartType() string { return "tool" }
func (p *ToolPart) PartID() string   { return p.ID }

// FilePart attaches a file to a message, either by literal content or by
// reference.
type FilePart struct {
	ID      string `json:"id"`
	Type    string `json:"type"` // "file"
	Path    string `json:"path"`
	MIME    string `json:"mime,omitempty"`
	Content string `json:"content,omitempty"`
	URL     string `json:"url,omitempty"`
}

func (p *FilePart) PartType() string { return "file" }
func (p *FilePart) PartID() string   { return p.ID }

// UnmarshalPart decodes a JSON part using its "type" discriminator.
func UnmarshalPart(data []byte) (Part, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to probe part type: %w", err)
	}

	switch probe.Type {
	case "text":
		var p TextPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "reasoning":
		var p ReasoningPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "tool":
		var p ToolPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "file":
		var p FilePart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("unknown part type: %q", probe.Type)
	}
}
