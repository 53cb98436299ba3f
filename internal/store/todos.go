package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/lodestar-ai/lodestar/internal/bus"
	"github.com/lodestar-ai/lodestar/pkg/types"
)

// GetTodos returns the session's current todo list. A session with no list
// yet yields an empty slice, not an error.
func (s *Store) GetTodos(ctx context.Context, sessionID string) ([]types.Todo, error) {
	var todos []types.Todo
	err := s.fs.get(ctx, []string{"todo", sessionID}, &todos)
	if errors.Is(err, ErrNotFound) {
		return []types.Todo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load todos: %w", err)
	}
	return todos, nil
}

// PutTodos replaces the session's todo list and publishes todo.updated.
func (s *Store) PutTodos(ctx context.Context, sessionID string, todos []types.Todo) error {
	if err := s.fs.put(ctx, []string{"todo", sessionID}, todos); err != nil {
		return fmt.Errorf("failed to persist todos: %w", err)
	}

	s.bus.Publish(bus.Event{
		Type: bus.TodoUpdated,
		Data: bus.TodoUpdatedData{SessionID: sessionID, Todos: todos},
	})
	return nil
}
