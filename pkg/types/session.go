// Package types provides the core data types for the Lodestar engine.
package types

// SessionState describes what a session is currently doing.
type SessionState string

const (
	// SessionIdle means no turn is running and the session accepts input.
	SessionIdle SessionState = "idle"
	// SessionRunning means a step loop is actively processing a turn.
	SessionRunning SessionState = "running"
	// SessionError means the last turn ended with a terminal failure.
	SessionError SessionState = "error"
)

// Session represents a conversation session with the model.
type Session struct {
	ID        string       `json:"id"`
	ProjectID string       `json:"projectID"`
	Directory string       `json:"directory"`
	ParentID  *string      `json:"parentID,omitempty"`
	Title     string       `json:"title"`
	State     SessionState `json:"state"`

	// Revision increases by one every time a turn completes (or is undone).
	// It is the optimistic-concurrency token for resumption and undo.
	Revision int64 `json:"revision"`

	Time   SessionTime     `json:"time"`
	Revert *SessionRevert  `json:"revert,omitempty"`
	Error  *SessionFailure `json:"error,omitempty"`
}

// SessionTime contains timestamps for a session, in Unix milliseconds.
type SessionTime struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
}

// SessionRevert records an undo that is currently in effect.
type SessionRevert struct {
	// MessageID is the last message retained by the undo.
	MessageID string `json:"messageID"`
	// SnapshotID is the snapshot the working tree was restored to.
	SnapshotID string `json:"snapshotID,omitempty"`
	// Diff summarizes the file changes that were rolled back.
	Diff string `json:"diff,omitempty"`
}

// SessionFailure describes a terminal turn failure surfaced to clients.
type SessionFailure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Snapshot is a reversible checkpoint of the working tree, captured before
// the first mutating tool call of a turn.
type Snapshot struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	// Revision is the session revision the snapshot was taken at.
	Revision int64 `json:"revision"`
	// Ref is the VCS object holding the tree state. Empty when the tree was
	// clean or the directory is not under version control.
	Ref  string `json:"ref,omitempty"`
	Time int64  `json:"time"`
}
