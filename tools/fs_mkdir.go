package tools

import (
	"context"
	"fmt"
	"os"
)

type createDirectoryParams struct {
	Path    string `json:"path" jsonschema:"required,description=Directory to create relative to the workspace root."`
	Parents bool   `json:"parents" jsonschema:"description=Create missing parent directories instead of failing."`
}

func createDirectoryTool() *Tool {
	return &Tool{
		Name:        "create_directory",
		Description: "Create a directory. Fails if it already exists.",
		Params:      &createDirectoryParams{},
		Run: func(ctx context.Context, env *Env, args map[string]any) (map[string]any, error) {
			p, err := decode[createDirectoryParams](args)
			if err != nil {
				return nil, err
			}
			if p.Path == "" {
				return nil, fmt.Errorf("path is required")
			}

			abs, err := env.Sandbox.ValidateForWrite(p.Path)
			if err != nil {
				return nil, err
			}
			if _, statErr := os.Stat(abs); statErr == nil {
				return nil, fmt.Errorf("%s already exists", p.Path)
			}

			if p.Parents {
				err = os.MkdirAll(abs, 0o755)
			} else {
				err = os.Mkdir(abs, 0o755)
			}
			if err != nil {
				return nil, fmt.Errorf("create directory %s: %w", p.Path, err)
			}
			return map[string]any{"path": p.Path}, nil
		},
	}
}
