package tools

import (
	"context"
	"fmt"
	"os"
)

type deleteFileParams struct {
	Path string `json:"path" jsonschema:"required,description=Regular file to delete relative to the workspace root."`
}

func deleteFileTool() *Tool {
	return &Tool{
		Name:                 "delete_file",
		Description:          "Delete a regular file.",
		RequiresConfirmation: true,
		Params:               &deleteFileParams{},
		Preview: func(ctx context.Context, env *Env, args map[string]any) string {
			p, err := decode[deleteFileParams](args)
			if err != nil {
				return "delete_file"
			}
			return fmt.Sprintf("delete_file: %s", p.Path)
		},
		Run: func(ctx context.Context, env *Env, args map[string]any) (map[string]any, error) {
			p, err := decode[deleteFileParams](args)
			if err != nil {
				return nil, err
			}
			abs, err := env.Sandbox.Validate(p.Path)
			if err != nil {
				return nil, err
			}
			info, err := os.Stat(abs)
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", p.Path, err)
			}
			if info.IsDir() {
				return nil, fmt.Errorf("%s is a directory; use delete_directory", p.Path)
			}
			if err := os.Remove(abs); err != nil {
				return nil, fmt.Errorf("delete %s: %w", p.Path, err)
			}
			return map[string]any{"path": p.Path}, nil
		},
	}
}
