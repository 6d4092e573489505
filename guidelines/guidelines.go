// Package guidelines implements the Guidelines Pipeline: detecting a user's
// project markdown file, compiling it into a terse LLM-oriented preamble via
// a one-shot model call, and injecting/re-injecting it as a system message.
package guidelines

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/agentichat/agentichat-go/llm"
	"github.com/agentichat/agentichat-go/obslog"
)

const (
	// SourceFileName is the conventional project guidelines path, relative
	// to the workspace root.
	SourceFileName = "AGENTICHAT.md"

	// CompiledFileName is the compiled form's name under the workspace's
	// tool-data directory.
	CompiledFileName = "consignes.atc"

	beginDelim = "[User Project Guidelines]"
	endDelim   = "[End of Guidelines]"
)

// LoadMode governs automatic compile/inject behavior on startup and after
// compression or a session reset.
type LoadMode string

const (
	LoadConfirm LoadMode = "confirm"
	LoadAuto    LoadMode = "auto"
	LoadOff     LoadMode = "off"
)

// Pipeline resolves and compiles one workspace's project guidelines.
type Pipeline struct {
	sourcePath   string
	compiledPath string
	log          *obslog.Component
}

// New returns a Pipeline rooted at workspaceRoot, with the compiled form
// stored under dataDir (the workspace's <root>/.agentichat directory).
func New(workspaceRoot, dataDir string, logger *obslog.Logger) *Pipeline {
	if logger == nil {
		logger = obslog.Nop()
	}
	return &Pipeline{
		sourcePath:   joinPath(workspaceRoot, SourceFileName),
		compiledPath: joinPath(dataDir, CompiledFileName),
		log:          logger.With("guidelines"),
	}
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	if strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}

// HasSource reports whether the source file exists and parses as
// well-formed, non-empty markdown. A syntactically empty or binary file is
// treated as absent.
func (p *Pipeline) HasSource() bool {
	data, err := os.ReadFile(p.sourcePath)
	if err != nil {
		return false
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false
	}
	if bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data) {
		return false
	}
	return parsesAsMarkdown(data)
}

func parsesAsMarkdown(data []byte) bool {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(data))
	return doc.ChildCount() > 0
}

// HasCompiled reports whether a compiled form already exists on disk.
func (p *Pipeline) HasCompiled() bool {
	_, err := os.Stat(p.compiledPath)
	return err == nil
}

// NeedsCompile is true when a source exists and the compiled form is either
// absent or older than the source (by mtime).
func (p *Pipeline) NeedsCompile() bool {
	if !p.HasSource() {
		return false
	}
	srcInfo, err := os.Stat(p.sourcePath)
	if err != nil {
		return false
	}
	compInfo, err := os.Stat(p.compiledPath)
	if err != nil {
		return true
	}
	return srcInfo.ModTime().After(compInfo.ModTime())
}

// Compile asks backend to rewrite the source into a structured, concise,
// LLM-oriented format and saves the result as the compiled form.
func (p *Pipeline) Compile(ctx context.Context, backend llm.Backend) error {
	start := time.Now()
	p.log.Debug().Str("source", p.sourcePath).Msg("compiling guidelines")

	data, err := os.ReadFile(p.sourcePath)
	if err != nil {
		return fmt.Errorf("read guidelines source: %w", err)
	}

	outline := headingOutline(data)
	prompt := buildCompilePrompt(outline, string(data))

	resp, err := backend.Chat(ctx, []llm.Message{llm.TextMessage("user", prompt)}, nil)
	if err != nil {
		p.log.Error().Err(err).Msg("guidelines compile call failed")
		return fmt.Errorf("compile guidelines: %w", err)
	}

	compiled := strings.TrimSpace(resp.Content)
	if compiled == "" {
		return fmt.Errorf("compile guidelines: model returned empty output")
	}

	if err := os.WriteFile(p.compiledPath, []byte(compiled), 0o644); err != nil {
		return fmt.Errorf("write compiled guidelines: %w", err)
	}

	p.log.Info().Dur("elapsed", time.Since(start)).Msg("guidelines compiled")
	return nil
}

func buildCompilePrompt(outline, source string) string {
	var b strings.Builder
	b.WriteString("Rewrite the following project guidelines into a structured, concise, ")
	b.WriteString("English, LLM-oriented preamble. Preserve every constraint and decision; ")
	b.WriteString("drop narrative filler. Output only the rewritten guidelines.\n\n")
	if outline != "" {
		b.WriteString("Outline: ")
		b.WriteString(outline)
		b.WriteString("\n\n")
	}
	b.WriteString(source)
	return b.String()
}

// headingOutline extracts a one-line "> " joined outline of the document's
// heading text, used to hint the compile prompt about structure rather than
// sending the raw byte stream blind.
func headingOutline(data []byte) string {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(data))

	var headings []string
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if _, ok := n.(*ast.Heading); ok {
			headings = append(headings, headingText(n, data))
		}
		return ast.WalkContinue, nil
	})
	if err != nil || len(headings) == 0 {
		return ""
	}
	return strings.Join(headings, " > ")
}

// headingText concatenates the plain-text content of a heading node's
// inline children (ast.Text segments), skipping formatting markup.
func headingText(heading ast.Node, source []byte) string {
	var b strings.Builder
	for c := heading.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Segment.Value(source))
		}
	}
	return strings.TrimSpace(b.String())
}

// SystemMessage reads the compiled form and wraps it as a delimited
// system-role message.
func (p *Pipeline) SystemMessage() (llm.Message, error) {
	data, err := os.ReadFile(p.compiledPath)
	if err != nil {
		return llm.Message{}, fmt.Errorf("read compiled guidelines: %w", err)
	}
	content := fmt.Sprintf("%s\n%s\n%s", beginDelim, strings.TrimSpace(string(data)), endDelim)
	return llm.TextMessage("system", content), nil
}

// Inject removes any prior guidelines system message (identified by its
// delimiter) from transcript, then prepends a fresh one. Applying Inject
// twice in a row is equivalent to applying it once.
func (p *Pipeline) Inject(transcript []llm.Message) ([]llm.Message, error) {
	msg, err := p.SystemMessage()
	if err != nil {
		return nil, err
	}

	filtered := make([]llm.Message, 0, len(transcript)+1)
	for _, m := range transcript {
		if m.Role == "system" && strings.Contains(m.ContentString(), beginDelim) {
			continue
		}
		filtered = append(filtered, m)
	}

	out := make([]llm.Message, 0, len(filtered)+1)
	out = append(out, msg)
	out = append(out, filtered...)
	return out, nil
}
