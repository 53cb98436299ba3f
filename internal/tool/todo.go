package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lodestar-ai/lodestar/pkg/types"
)

// TodoStore persists per-session todo lists. The store package implements it.
type TodoStore interface {
	GetTodos(ctx context.Context, sessionID string) ([]types.Todo, error)
	PutTodos(ctx context.Context, sessionID string, todos []types.Todo) error
}

// TodoReadTool returns the current todo list for the session.
type TodoReadTool struct {
	todos TodoStore
}

func NewTodoReadTool(todos TodoStore) *TodoReadTool {
	return &TodoReadTool{todos: todos}
}

func (t *TodoReadTool) ID() string {
	return "todoread"
}

func (t *TodoReadTool) Description() string {
	return `Reads the current todo list for the session.

Usage:
- Takes no parameters
- Use this to review planned work before deciding what to do next`
}

func (t *TodoReadTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {}
	}`)
}

func (t *TodoReadTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	if t.todos == nil {
		return nil, fmt.Errorf("todo storage is not configured")
	}
	if toolCtx == nil || toolCtx.SessionID == "" {
		return nil, fmt.Errorf("no session in tool context")
	}

	todos, err := t.todos.GetTodos(ctx, toolCtx.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read todos: %w", err)
	}

	if len(todos) == 0 {
		return &Result{
			Title:    "0 todos",
			Output:   "No todos found",
			Metadata: map[string]any{"count": 0},
		}, nil
	}

	out, err := json.MarshalIndent(todos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode todos: %w", err)
	}

	return &Result{
		Title:    todoTitle(todos),
		Output:   string(out),
		Metadata: map[string]any{"count": len(todos)},
	}, nil
}

// TodoWriteTool replaces the session todo list.
type TodoWriteTool struct {
	todos TodoStore
}

// TodoWriteInput is the input schema for the todowrite tool.
type TodoWriteInput struct {
	Todos []types.Todo `json:"todos"`
}

func NewTodoWriteTool(todos TodoStore) *TodoWriteTool {
	return &TodoWriteTool{todos: todos}
}

func (t *TodoWriteTool) ID() string {
	return "todowrite"
}

func (t *TodoWriteTool) Description() string {
	return `Creates or replaces the todo list for the session.

Usage:
- Provide the complete list; it replaces whatever was stored before
- Mark todos completed as soon as they are done
- Only one todo should be in_progress at a time`
}

func (t *TodoWriteTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"todos": {
				"type": "array",
				"description": "The complete todo list",
				"items": {
					"type": "object",
					"properties": {
						"id": {
							"type": "string",
							"description": "Unique identifier for the todo"
						},
						"content": {
							"type": "string",
							"description": "Short description of the task"
						},
						"status": {
							"type": "string",
							"enum": ["pending", "in_progress", "completed"]
						},
						"priority": {
							"type": "string",
							"enum": ["high", "medium", "low"]
						}
					},
					"required": ["id", "content", "status", "priority"]
				}
			}
		},
		"required": ["todos"]
	}`)
}

func (t *TodoWriteTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	if t.todos == nil {
		return nil, fmt.Errorf("todo storage is not configured")
	}
	if toolCtx == nil || toolCtx.SessionID == "" {
		return nil, fmt.Errorf("no session in tool context")
	}

	var params TodoWriteInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	if err := t.todos.PutTodos(ctx, toolCtx.SessionID, params.Todos); err != nil {
		return nil, fmt.Errorf("failed to store todos: %w", err)
	}

	out, err := json.MarshalIndent(params.Todos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode todos: %w", err)
	}

	return &Result{
		Title:    todoTitle(params.Todos),
		Output:   string(out),
		Metadata: map[string]any{"count": len(params.Todos)},
	}, nil
}

// todoTitle counts the todos that still need work.
func todoTitle(todos []types.Todo) string {
	open := 0
	for _, td := range todos {
		if td.Status != types.TodoCompleted {
			open++
		}
	}
	return fmt.Sprintf("%d todos", open)
}
