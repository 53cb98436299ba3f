package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/lodestar-ai/lodestar/internal/bus"
	"github.com/lodestar-ai/lodestar/pkg/types"
)

// ErrSessionNotFound is returned for operations on a session that does not
// exist. Nothing is mutated in that case.
var ErrSessionNotFound = errors.New("session not found")

// CreateSessionOptions configures a new session.
type CreateSessionOptions struct {
	Directory string
	Title     string
	ParentID  *string
}

// CreateSession creates and persists a new idle session at revision zero.
func (s *Store) CreateSession(ctx context.Context, opts CreateSessionOptions) (*types.Session, error) {
	if opts.Directory == "" {
		return nil, fmt.Errorf("directory is required")
	}

	now := nowMillis()
	session := &types.Session{
		ID:        NewID("ses"),
		ProjectID: ProjectID(opts.Directory),
		Directory: opts.Directory,
		ParentID:  opts.ParentID,
		Title:     opts.Title,
		State:     types.SessionIdle,
		Revision:  0,
		Time: types.SessionTime{
			Created: now,
			Updated: now,
		},
	}
	if session.Title == "" {
		session.Title = "New session"
	}

	if err := s.fs.put(ctx, []string{"session", session.ProjectID, session.ID}, session); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	s.bus.Publish(bus.Event{
		Type: bus.SessionCreated,
		Data: bus.SessionCreatedData{Info: session},
	})
	return session, nil
}

// GetSession loads a session by ID, searching all projects.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	projects, err := s.fs.list(ctx, []string{"session"})
	if err != nil {
		return nil, err
	}

	for _, projectID := range projects {
		path := []string{"session", projectID, sessionID}
		if !s.fs.exists(ctx, path) {
			continue
		}
		var session types.Session
		if err := s.fs.get(ctx, path, &session); err != nil {
			return nil, err
		}
		return &session, nil
	}
	return nil, ErrSessionNotFound
}

// ListSessions returns every session, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]*types.Session, error) {
	projects, err := s.fs.list(ctx, []string{"session"})
	if err != nil {
		return nil, err
	}

	var sessions []*types.Session
	for _, projectID := range projects {
		err := s.fs.scan(ctx, []string{"session", projectID}, func(key string, data json.RawMessage) error {
			var session types.Session
			if err := json.Unmarshal(data, &session); err != nil {
				return nil // skip unreadable records
			}
			sessions = append(sessions, &session)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Time.Created > sessions[j].Time.Created
	})
	return sessions, nil
}

// ListChildren returns the sub-agent sessions spawned from a parent.
func (s *Store) ListChildren(ctx context.Context, parentID string) ([]*types.Session, error) {
	all, err := s.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	var children []*types.Session
	for _, session := range all {
		if session.ParentID != nil && *session.ParentID == parentID {
			children = append(children, session)
		}
	}
	return children, nil
}

// UpdateSession persists a modified session and publishes session.updated.
// The Updated timestamp is refreshed.
func (s *Store) UpdateSession(ctx context.Context, session *types.Session) error {
	if _, err := s.GetSession(ctx, session.ID); err != nil {
		return err
	}

	mu := s.writeLock(session.ID)
	mu.Lock()
	defer mu.Unlock()

	return s.putSession(ctx, session)
}

// MutateSession applies fn to the freshly loaded session and persists the
// result, all under the session's write lock. Background writers use this so
// their edits never clobber a concurrent turn's revision or state change
// with a stale copy. fn returning an error abandons the write.
func (s *Store) MutateSession(ctx context.Context, sessionID string, fn func(*types.Session) error) (*types.Session, error) {
	mu := s.writeLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := fn(session); err != nil {
		return nil, err
	}
	if err := s.putSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Store) putSession(ctx context.Context, session *types.Session) error {
	session.Time.Updated = nowMillis()
	if err := s.fs.put(ctx, []string{"session", session.ProjectID, session.ID}, session); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	s.bus.Publish(bus.Event{
		Type: bus.SessionUpdated,
		Data: bus.SessionUpdatedData{Info: session},
	})
	return nil
}

// DeleteSession removes a session with its messages, parts, and snapshots.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	if err := s.fs.deleteAll(ctx, []string{"part", sessionID}); err != nil {
		return err
	}
	if err := s.fs.deleteAll(ctx, []string{"message", sessionID}); err != nil {
		return err
	}
	if err := s.fs.deleteAll(ctx, []string{"snapshot", sessionID}); err != nil {
		return err
	}
	if err := s.fs.delete(ctx, []string{"todo", sessionID}); err != nil {
		return err
	}
	if err := s.fs.delete(ctx, []string{"session", session.ProjectID, sessionID}); err != nil {
		return err
	}

	s.bus.Publish(bus.Event{
		Type: bus.SessionDeleted,
		Data: bus.SessionDeletedData{Info: session},
	})
	return nil
}
