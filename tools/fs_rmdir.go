package tools

import (
	"context"
	"fmt"
	"os"
)

type deleteDirectoryParams struct {
	Path      string `json:"path" jsonschema:"required,description=Directory to remove relative to the workspace root."`
	Recursive bool   `json:"recursive" jsonschema:"description=Remove a nonempty directory and its contents; without this a nonempty directory is refused."`
}

func deleteDirectoryTool() *Tool {
	return &Tool{
		Name:                 "delete_directory",
		Description:          "Remove a directory. Refuses a nonempty directory unless recursive is set.",
		RequiresConfirmation: true,
		Params:               &deleteDirectoryParams{},
		Preview: func(ctx context.Context, env *Env, args map[string]any) string {
			p, err := decode[deleteDirectoryParams](args)
			if err != nil {
				return "delete_directory"
			}
			if p.Recursive {
				return fmt.Sprintf("delete_directory: %s (recursive)", p.Path)
			}
			return fmt.Sprintf("delete_directory: %s", p.Path)
		},
		Run: func(ctx context.Context, env *Env, args map[string]any) (map[string]any, error) {
			p, err := decode[deleteDirectoryParams](args)
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
			if !info.IsDir() {
				return nil, fmt.Errorf("%s is not a directory", p.Path)
			}

			if p.Recursive {
				if err := os.RemoveAll(abs); err != nil {
					return nil, fmt.Errorf("delete directory %s: %w", p.Path, err)
				}
			} else {
				if err := os.Remove(abs); err != nil {
					return nil, fmt.Errorf("delete directory %s (use recursive=true if nonempty): %w", p.Path, err)
				}
			}
			return map[string]any{"path": p.Path}, nil
		},
	}
}
