package tools

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

type readFileParams struct {
	Path      string `json:"path" jsonschema:"required,description=File to read relative to the workspace root."`
	StartLine int    `json:"start_line" jsonschema:"description=1-indexed inclusive start line. 0 means from the beginning."`
	EndLine   int    `json:"end_line" jsonschema:"description=1-indexed inclusive end line. 0 means through EOF."`
}

func readFileTool() *Tool {
	return &Tool{
		Name:        "read_file",
		Description: "Read a UTF-8 text file, optionally restricted to a 1-indexed inclusive line range.",
		Params:      &readFileParams{},
		Run: func(ctx context.Context, env *Env, args map[string]any) (map[string]any, error) {
			p, err := decode[readFileParams](args)
			if err != nil {
				return nil, err
			}
			if p.Path == "" {
				return nil, fmt.Errorf("path is required")
			}

			abs, err := env.Sandbox.Validate(p.Path)
			if err != nil {
				return nil, err
			}
			if err := env.Sandbox.CheckSize(abs); err != nil {
				return nil, err
			}

			raw, err := os.ReadFile(abs)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", p.Path, err)
			}

			text := toValidUTF8(raw)
			content, lineCount := sliceLines(text, p.StartLine, p.EndLine)

			return map[string]any{
				"content":   content,
				"lineCount": lineCount,
			}, nil
		},
	}
}

// toValidUTF8 replaces invalid byte sequences with U+FFFD, the "lossy
// replacement" decoding rather than failing outright.
func toValidUTF8(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	return strings.ToValidUTF8(string(raw), "�")
}

// sliceLines returns the 1-indexed inclusive [start, end] line range of
// text. start<=0 means from line 1; end<=0 or past EOF returns through the
// last line present.
func sliceLines(text string, start, end int) (string, int) {
	lines := strings.Split(text, "\n")
	// strings.Split on a trailing "\n" yields a spurious empty final
	// element; trim it unless the caller's text genuinely had no newline.
	if len(lines) > 0 && lines[len(lines)-1] == "" && strings.HasSuffix(text, "\n") {
		lines = lines[:len(lines)-1]
	}
	total := len(lines)

	if start <= 0 {
		start = 1
	}
	if end <= 0 || end > total {
		end = total
	}
	if start > total || start > end {
		return "", total
	}
	return strings.Join(lines[start-1:end], "\n"), total
}
