package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

type moveFileParams struct {
	Src       string `json:"src" jsonschema:"required,description=Existing path relative to the workspace root."`
	Dst       string `json:"dst" jsonschema:"required,description=Destination path relative to the workspace root."`
	Overwrite bool   `json:"overwrite" jsonschema:"description=Replace dst if it already exists."`
}

func moveFileTool() *Tool {
	return &Tool{
		Name:        "move_file",
		Description: "Rename or move a file or directory within the workspace.",
		Params:      &moveFileParams{},
		Run: func(ctx context.Context, env *Env, args map[string]any) (map[string]any, error) {
			p, err := decode[moveFileParams](args)
			if err != nil {
				return nil, err
			}
			if p.Src == "" || p.Dst == "" {
				return nil, fmt.Errorf("src and dst are required")
			}

			srcAbs, err := env.Sandbox.Validate(p.Src)
			if err != nil {
				return nil, err
			}
			dstAbs, err := env.Sandbox.ValidateForWrite(p.Dst)
			if err != nil {
				return nil, err
			}

			if _, statErr := os.Stat(dstAbs); statErr == nil && !p.Overwrite {
				return nil, fmt.Errorf("%s already exists; pass overwrite=true to replace it", p.Dst)
			}

			if err := os.MkdirAll(filepath.Dir(dstAbs), 0o755); err != nil {
				return nil, fmt.Errorf("create parent directories: %w", err)
			}
			if err := os.Rename(srcAbs, dstAbs); err != nil {
				return nil, fmt.Errorf("move %s to %s: %w", p.Src, p.Dst, err)
			}
			return map[string]any{"src": p.Src, "dst": p.Dst}, nil
		},
	}
}
