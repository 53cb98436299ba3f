package bus

import "github.com/lodestar-ai/lodestar/pkg/types"

// SessionCreatedData is the payload for session.created events.
type SessionCreatedData struct {
	Info *types.Session `json:"info"`
}

// SessionUpdatedData is the payload for session.updated events.
type SessionUpdatedData struct {
	Info *types.Session `json:"info"`
}

// SessionDeletedData is the payload for session.deleted events.
type SessionDeletedData struct {
	Info *types.Session `json:"info"`
}

// SessionIdleData is the payload for session.idle events, published when a
// turn finishes and the session accepts input again.
type SessionIdleData struct {
	SessionID string `json:"sessionID"`
	Revision  int64  `json:"revision"`
}

// SessionErrorData is the payload for session.error events.
type SessionErrorData struct {
	SessionID string                `json:"sessionID,omitempty"`
	Error     *types.SessionFailure `json:"error,omitempty"`
}

// SessionUndoneData is the payload for session.undone events.
type SessionUndoneData struct {
	SessionID string `json:"sessionID"`
	// MessageID is the last message retained by the undo.
	MessageID string `json:"messageID"`
	Revision  int64  `json:"revision"`
}

// MessageCreatedData is the payload for message.created events.
type MessageCreatedData struct {
	Info *types.Message `json:"info"`
}

// MessageUpdatedData is the payload for message.updated events.
type MessageUpdatedData struct {
	Info *types.Message `json:"info"`
}

// MessageCompletedData is the payload for message.completed events, published
// once a message's final part is complete and the message becomes immutable.
type MessageCompletedData struct {
	Info  *types.Message `json:"info"`
	Parts []types.Part   `json:"parts"`
}

// MessageRemovedData is the payload for message.removed events.
type MessageRemovedData struct {
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
}

// PartUpdatedData is the payload for message.part.updated events.
type PartUpdatedData struct {
	SessionID string     `json:"sessionID"`
	MessageID string     `json:"messageID"`
	Part      types.Part `json:"part"`
	// Delta carries the incremental text for streaming observers.
	Delta string `json:"delta,omitempty"`
}

// PartRemovedData is the payload for message.part.removed events.
type PartRemovedData struct {
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	PartID    string `json:"partID"`
}

// PermissionUpdatedData is the payload for permission.updated events,
// published when the gate suspends a tool call pending user approval.
type PermissionUpdatedData struct {
	ID             string   `json:"id"`
	SessionID      string   `json:"sessionID"`
	PermissionType string   `json:"permissionType"`
	Pattern        []string `json:"pattern"`
	Title          string   `json:"title"`
}

// PermissionRepliedData is the payload for permission.replied events.
type PermissionRepliedData struct {
	PermissionID string `json:"permissionID"`
	SessionID    string `json:"sessionID"`
	Response     string `json:"response"` // "once" | "always" | "reject"
}

// FileEditedData is the payload for file.edited events.
type FileEditedData struct {
	File string `json:"file"`
}

// TodoUpdatedData is the payload for todo.updated events.
type TodoUpdatedData struct {
	SessionID string       `json:"sessionID"`
	Todos     []types.Todo `json:"todos"`
}

// BranchUpdatedData is the payload for vcs.branch.updated events.
type BranchUpdatedData struct {
	Directory string `json:"directory"`
	Branch    string `json:"branch"`
}

// SnapshotCreatedData is the payload for snapshot.created events.
type SnapshotCreatedData struct {
	Info *types.Snapshot `json:"info"`
}
