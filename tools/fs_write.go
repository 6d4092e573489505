package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

type writeFileParams struct {
	Path    string `json:"path" jsonschema:"required,description=File to write relative to the workspace root."`
	Content string `json:"content" jsonschema:"description=Text content to write."`
	Mode    string `json:"mode" jsonschema:"enum=create,enum=overwrite,enum=append,description=create fails if the file exists; overwrite replaces it; append adds to the end."`
}

func writeFileTool() *Tool {
	return &Tool{
		Name:                 "write_file",
		Description:          "Write text to a file. mode=create refuses to clobber an existing file; overwrite replaces it; append adds to the end. Parent directories are created as needed.",
		RequiresConfirmation: true,
		Params:               &writeFileParams{},
		Preview: func(ctx context.Context, env *Env, args map[string]any) string {
			p, err := decode[writeFileParams](args)
			if err != nil {
				return "write_file"
			}
			return fmt.Sprintf("write_file: %s %s (%d bytes)", writeMode(p.Mode), p.Path, len(p.Content))
		},
		Run: func(ctx context.Context, env *Env, args map[string]any) (map[string]any, error) {
			p, err := decode[writeFileParams](args)
			if err != nil {
				return nil, err
			}
			if p.Path == "" {
				return nil, fmt.Errorf("path is required")
			}
			mode := writeMode(p.Mode)

			abs, err := env.Sandbox.ValidateForWrite(p.Path)
			if err != nil {
				return nil, err
			}

			if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
				return nil, fmt.Errorf("create parent directories: %w", err)
			}

			switch mode {
			case "create":
				if _, err := os.Stat(abs); err == nil {
					return nil, fmt.Errorf("%s already exists; use mode=overwrite or mode=append", p.Path)
				}
				if err := os.WriteFile(abs, []byte(p.Content), 0o644); err != nil {
					return nil, fmt.Errorf("write %s: %w", p.Path, err)
				}
			case "append":
				f, err := os.OpenFile(abs, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
				if err != nil {
					return nil, fmt.Errorf("open %s: %w", p.Path, err)
				}
				defer f.Close()
				if _, err := f.WriteString(p.Content); err != nil {
					return nil, fmt.Errorf("append %s: %w", p.Path, err)
				}
			default: // overwrite
				if err := os.WriteFile(abs, []byte(p.Content), 0o644); err != nil {
					return nil, fmt.Errorf("write %s: %w", p.Path, err)
				}
			}

			return map[string]any{"path": p.Path, "bytesWritten": len(p.Content)}, nil
		},
	}
}

func writeMode(m string) string {
	switch m {
	case "create", "append":
		return m
	default:
		return "overwrite"
	}
}
