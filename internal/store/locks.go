package store

import (
	"errors"
	"sync"
)

// ErrSessionBusy is returned when a turn is requested on a session that is
// already running one. Callers never queue; they fail fast and retry later.
var ErrSessionBusy = errors.New("session busy: a turn is already in progress")

// SessionLocks enforces the at-most-one-active-turn-per-session invariant.
// Acquisition is strictly non-blocking.
type SessionLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewSessionLocks creates an empty lock manager.
func NewSessionLocks() *SessionLocks {
	return &SessionLocks{held: make(map[string]struct{})}
}

// TryAcquire takes the run lock for a session. It returns a release function
// on success and ErrSessionBusy when the lock is already held. The release
// function is idempotent.
func (l *SessionLocks) TryAcquire(sessionID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[sessionID]; ok {
		return nil, ErrSessionBusy
	}
	l.held[sessionID] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, sessionID)
			l.mu.Unlock()
		})
	}
	return release, nil
}

// Held reports whether a session's run lock is currently taken.
func (l *SessionLocks) Held(sessionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[sessionID]
	return ok
}
