package tools

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type copyFileParams struct {
	Src       string `json:"src" jsonschema:"required,description=Existing file or directory relative to the workspace root."`
	Dst       string `json:"dst" jsonschema:"required,description=Destination path relative to the workspace root."`
	Overwrite bool   `json:"overwrite" jsonschema:"description=Replace dst if it already exists."`
}

func copyFileTool() *Tool {
	return &Tool{
		Name:        "copy_file",
		Description: "Copy a file, or recursively copy a directory, within the workspace.",
		Params:      &copyFileParams{},
		Run: func(ctx context.Context, env *Env, args map[string]any) (map[string]any, error) {
			p, err := decode[copyFileParams](args)
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

			info, err := os.Stat(srcAbs)
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", p.Src, err)
			}

			if _, statErr := os.Stat(dstAbs); statErr == nil && !p.Overwrite {
				return nil, fmt.Errorf("%s already exists; pass overwrite=true to replace it", p.Dst)
			}

			if info.IsDir() {
				if err := copyDir(srcAbs, dstAbs); err != nil {
					return nil, fmt.Errorf("copy directory %s to %s: %w", p.Src, p.Dst, err)
				}
			} else {
				if err := copyFile(srcAbs, dstAbs); err != nil {
					return nil, fmt.Errorf("copy %s to %s: %w", p.Src, p.Dst, err)
				}
			}
			return map[string]any{"src": p.Src, "dst": p.Dst}, nil
		},
	}
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}
