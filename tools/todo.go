package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type todoItem struct {
	Content    string `json:"content" jsonschema:"required"`
	Status     string `json:"status" jsonschema:"enum=pending,enum=in_progress,enum=completed"`
	ActiveForm string `json:"active_form"`
}

type todoWriteParams struct {
	Todos []todoItem `json:"todos"`
}

// todoFile is the on-disk shape of current_todos.json.
type todoFile struct {
	Todos []todoItem `json:"todos"`
}

func todoWriteTool() *Tool {
	return &Tool{
		Name:        "todo_write",
		Description: "Overwrite the project's todo list with the given items, each carrying a content string, a pending/in_progress/completed status, and a present-continuous active_form.",
		Params:      &todoWriteParams{},
		Run: func(ctx context.Context, env *Env, args map[string]any) (map[string]any, error) {
			p, err := decode[todoWriteParams](args)
			if err != nil {
				return nil, err
			}

			if err := os.MkdirAll(env.DataDir, 0o755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}

			payload, err := json.MarshalIndent(todoFile{Todos: p.Todos}, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("encode todos: %w", err)
			}

			path := filepath.Join(env.DataDir, "current_todos.json")
			if err := os.WriteFile(path, payload, 0o644); err != nil {
				return nil, fmt.Errorf("write todos: %w", err)
			}

			return map[string]any{"count": len(p.Todos)}, nil
		},
	}
}
