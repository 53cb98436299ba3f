package engine

import "errors"

// ErrEmptyInput is returned when a turn is requested with no usable content.
// Nothing is persisted and no provider call is made.
var ErrEmptyInput = errors.New("message text is empty")

// ErrNotRunning is returned by Abort when the session has no active turn.
var ErrNotRunning = errors.New("session has no active turn")

// ErrNothingToUndo is returned by Undo on a session with no completed turn.
var ErrNothingToUndo = errors.New("nothing to undo")

// Terminal failure codes recorded on the assistant message and session.
const (
	codeProvider     = "provider"
	codeProviderAuth = "provider_auth"
	codeInternal     = "internal"
)
