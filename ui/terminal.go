// Package ui provides terminal output formatting, colorized diffs, and
// keyboard interrupt handling for the agentic loop's CLI frontend.
package ui

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/agentichat/agentichat-go/llm"
)

// ANSI color codes
const (
	Reset   = "\033[0m"
	Bold    = "\033[1m"
	Dim     = "\033[2m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	Gray    = "\033[90m"
	White   = "\033[97m"
)

// Terminal handles all user-facing output.
type Terminal struct {
	color bool
}

// NewTerminal creates a terminal with color detection.
func NewTerminal() *Terminal {
	return &Terminal{
		color: isTerminal(),
	}
}

func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func (t *Terminal) c(code, text string) string {
	if !t.color {
		return text
	}
	return code + text + Reset
}

// PrintBanner prints the startup banner.
func (t *Terminal) PrintBanner(backend, model, workDir, version string) {
	banner := `
    _                  _   _      _           _
   / \   __ _  ___ _ _ | |_(_) ___| |__   __ _| |_
  / _ \ / _' |/ _ \ '_ \| __| |/ __| '_ \ / _' | __|
 / ___ \ (_| |  __/ | | | |_| | (__| | | | (_| | |_
/_/   \_\__, |\___|_| |_|\__|_|\___|_| |_|\__,_|\__|
        |___/
`
	fmt.Print(t.c(Bold+Cyan, banner))

	versionStr := ""
	if version != "" && version != "dev" {
		versionStr = " v" + version
	}

	fmt.Println(t.c(Bold+White, "agentic coding assistant") + t.c(Gray, versionStr))
	fmt.Println()
	fmt.Println(t.c(Gray, "  Backend: ") + t.c(Cyan, backend))
	fmt.Println(t.c(Gray, "  Model:   ") + t.c(Cyan, model))
	fmt.Println(t.c(Gray, "  Dir:     ") + t.c(White, workDir))
	fmt.Println()
	fmt.Println(t.c(Gray, "  Type ") + t.c(Cyan, "/help") + t.c(Gray, " for commands"))
	fmt.Println()
}

// Prompt returns the formatted prompt string.
func (t *Terminal) Prompt() string {
	return t.c(Bold+Blue, "> ")
}

// PrintPrompt prints the input prompt.
func (t *Terminal) PrintPrompt() {
	fmt.Print(t.Prompt())
}

// ReadLine reads a line of input using standard buffered I/O. The OS
// terminal handles line editing (arrow keys, Home/End, backspace).
func (t *Terminal) ReadLine(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// PrintAssistant prints assistant text.
func (t *Terminal) PrintAssistant(text string) {
	fmt.Print(text)
}

// PrintAssistantDone signals end of assistant output.
func (t *Terminal) PrintAssistantDone() {
	fmt.Println()
	fmt.Println()
}

// PrintToolCall prints a tool invocation.
func (t *Terminal) PrintToolCall(name string, args string) {
	fmt.Println(t.c(Yellow, fmt.Sprintf("  ↳ %s", name)) + t.c(Gray, fmt.Sprintf(" %s", truncate(args, 100))))
}

// PrintToolResult prints a tool's result (truncated).
func (t *Terminal) PrintToolResult(result string) {
	lines := strings.Split(result, "\n")
	if len(lines) > 5 {
		for _, line := range lines[:5] {
			fmt.Println(t.c(Gray, "    "+truncate(line, 120)))
		}
		fmt.Println(t.c(Gray, fmt.Sprintf("    ... (%d more lines)", len(lines)-5)))
	} else {
		for _, line := range lines {
			fmt.Println(t.c(Gray, "    "+truncate(line, 120)))
		}
	}
}

// PrintError prints an error message.
func (t *Terminal) PrintError(err error) {
	fmt.Fprintln(os.Stderr, t.c(Red, "Error: "+err.Error()))
	fmt.Println()
}

// PrintWarning prints a warning message.
func (t *Terminal) PrintWarning(msg string) {
	fmt.Println(t.c(Yellow, "Warning: "+msg))
}

// PrintSpinner prints a thinking indicator.
func (t *Terminal) PrintSpinner() {
	fmt.Print(t.c(Gray, "  thinking..."))
}

// ClearSpinner clears the thinking indicator.
func (t *Terminal) ClearSpinner() {
	fmt.Print("\r\033[K")
}

// PrintHelp prints all available slash commands.
func (t *Terminal) PrintHelp() {
	fmt.Println(t.c(Bold, "Commands"))
	fmt.Println(t.c(Cyan, "  /help    ") + " Show this help message")
	fmt.Println(t.c(Cyan, "  /model   ") + " Switch LLM model")
	fmt.Println(t.c(Cyan, "  /backend ") + " Switch provider backend")
	fmt.Println(t.c(Cyan, "  /compact ") + " Compact conversation (LLM summarizes history)")
	fmt.Println(t.c(Cyan, "  /clear   ") + " Clear conversation history")
	fmt.Println(t.c(Cyan, "  /context ") + " Show context window usage")
	fmt.Println(t.c(Cyan, "  /tasks   ") + " Show current task list")
	fmt.Println(t.c(Cyan, "  /mode    ") + " Cycle the confirmation gate mode (ask/auto/force)")
	fmt.Println(t.c(Cyan, "  /resume  ") + " Resume a previous session")
	fmt.Println(t.c(Cyan, "  /quit    ") + " Exit")
	fmt.Println()
}

// ModelOption represents a model choice in the /model menu.
type ModelOption struct {
	Label   string
	Current bool
}

// PrintModelMenu prints the numbered model selection menu.
func (t *Terminal) PrintModelMenu(options []ModelOption) {
	fmt.Println(t.c(Bold, "Select a model:"))
	for i, opt := range options {
		marker := "  "
		if opt.Current {
			marker = t.c(Green, "→ ")
		}
		fmt.Printf("%s%s %s\n", marker, t.c(Cyan, fmt.Sprintf("[%d]", i+1)), opt.Label)
	}
	fmt.Printf("  %s %s\n", t.c(Cyan, "[0]"), "Enter a custom model name")
	fmt.Println(t.c(Gray, "  Ctrl+C to cancel"))
	fmt.Println()
}

// PrintModelSwitch prints a model switch confirmation.
func (t *Terminal) PrintModelSwitch(model string) {
	fmt.Println(t.c(Green, fmt.Sprintf("Switched to %s", model)))
	fmt.Println()
}

// PrintModeSwitch prints a confirmation-gate mode change.
func (t *Terminal) PrintModeSwitch(mode string) {
	fmt.Println(t.c(Green, fmt.Sprintf("Confirmation mode: %s", mode)))
	fmt.Println()
}

// PrintContextUsage prints context usage statistics.
func (t *Terminal) PrintContextUsage(total, window, threshold, msgCount int) {
	fmt.Println(t.c(Bold, "Context Usage"))
	pct := 0.0
	if window > 0 {
		pct = float64(total) / float64(window) * 100
	}
	fmt.Printf("  Tokens: %s / %s (%.1f%%)\n", formatNum(total), formatNum(window), pct)
	fmt.Printf("  Compress at: %s\n", formatNum(threshold))
	fmt.Printf("  Messages: %d\n", msgCount)
	fmt.Println()
}

func formatNum(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%d,%03d", n/1000, n%1000)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// EscapeListener controls an escape key listener during agent execution.
type EscapeListener interface {
	Stop()
	Pause()
	Resume()
}

var _ EscapeListener = (*escapeListener)(nil)

// escapeListener watches for Esc key presses during agent execution and
// cancels a derived context when detected. Raw-mode ownership is acquired
// via golang.org/x/term rather than a per-OS termios/ioctl file.
type escapeListener struct {
	fd     int
	state  *term.State
	cancel context.CancelFunc
	stopCh chan struct{}
	done   chan struct{}
	mu     sync.Mutex
	active bool
}

// StartEscapeListener creates a derived context that cancels when Esc is
// pressed. Returns the derived context, the listener (for Pause/Resume/Stop),
// and any error. If raw mode cannot be initialized (e.g., no TTY), returns
// the original context and a nil listener.
func (t *Terminal) StartEscapeListener(parent context.Context) (context.Context, EscapeListener, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return parent, nil, fmt.Errorf("stdin is not a terminal")
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return parent, nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	el := &escapeListener{
		fd:     fd,
		state:  state,
		cancel: cancel,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		active: true,
	}

	go el.readLoop()

	return ctx, el, nil
}

func (el *escapeListener) readLoop() {
	defer close(el.done)
	buf := make([]byte, 1)
	for {
		select {
		case <-el.stopCh:
			return
		default:
		}
		n, err := os.Stdin.Read(buf)
		if err != nil || n == 0 {
			return
		}

		el.mu.Lock()
		active := el.active
		el.mu.Unlock()
		if !active {
			continue
		}

		if buf[0] == 0x1B {
			el.cancel()
			return
		}
	}
}

// Stop shuts down the listener and restores terminal mode.
func (el *escapeListener) Stop() {
	el.mu.Lock()
	el.active = false
	el.mu.Unlock()
	term.Restore(el.fd, el.state)
	close(el.stopCh)
	el.cancel()
}

// Pause temporarily disables the listener (e.g., for confirmation prompts,
// which take over raw-mode ownership themselves).
func (el *escapeListener) Pause() {
	el.mu.Lock()
	el.active = false
	el.mu.Unlock()
	term.Restore(el.fd, el.state)
}

// Resume re-enables raw mode after a Pause.
func (el *escapeListener) Resume() {
	state, err := term.MakeRaw(el.fd)
	if err == nil {
		el.mu.Lock()
		el.state = state
		el.active = true
		el.mu.Unlock()
	}
}

// SessionListItem represents a session entry for display.
type SessionListItem struct {
	ID       string
	Updated  time.Time
	Preview  string
	MsgCount int
}

// PrintSessionList displays a numbered list of recent sessions.
func (t *Terminal) PrintSessionList(items []SessionListItem) {
	fmt.Println(t.c(Bold, "Recent sessions:"))
	for i, item := range items {
		age := formatAge(item.Updated)
		preview := item.Preview
		if len(preview) > 60 {
			preview = preview[:60] + "..."
		}
		fmt.Printf("  %s  %s  %s  %s\n",
			t.c(Cyan, fmt.Sprintf("[%d]", i+1)),
			t.c(Gray, fmt.Sprintf("%-8s", age)),
			t.c(White, fmt.Sprintf("%q", preview)),
			t.c(Gray, fmt.Sprintf("(%d messages)", item.MsgCount)),
		)
	}
	fmt.Println(t.c(Gray, "  Ctrl+C to cancel"))
	fmt.Println()
}

// PrintSessionResumed prints a confirmation after resuming a session.
func (t *Terminal) PrintSessionResumed(msgCount int, preview string) {
	if len(preview) > 60 {
		preview = preview[:60] + "..."
	}
	fmt.Println(t.c(Green, fmt.Sprintf("Resumed session: %q (%d messages)", preview, msgCount)))
	fmt.Println()
}

func formatAge(tm time.Time) string {
	d := time.Since(tm)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// PrintConversationHistory replays a stored conversation to the terminal.
func (t *Terminal) PrintConversationHistory(messages []llm.Message) {
	fmt.Println(t.c(Gray, "--- Conversation history ---"))
	fmt.Println()
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			continue
		case "user":
			if msg.ContentString() != "" {
				fmt.Println(t.c(Bold+Blue, "> ") + msg.ContentString())
				fmt.Println()
			}
		case "assistant":
			if msg.ContentString() != "" {
				t.PrintAssistant(msg.ContentString())
				t.PrintAssistantDone()
			}
			for _, tc := range msg.ToolCalls {
				args, _ := json.Marshal(tc.Arguments)
				t.PrintToolCall(tc.Name, string(args))
			}
		case "tool":
			t.PrintToolResult(msg.ContentString())
		}
	}
	fmt.Println(t.c(Gray, "--- End of history ---"))
	fmt.Println()
}

// TaskListItem represents a task entry for display.
type TaskListItem struct {
	ID         int
	Content    string
	Status     string
	ActiveForm string
}

// PrintTaskList displays the current task list grouped by status.
func (t *Terminal) PrintTaskList(tasks []TaskListItem) {
	fmt.Println(t.c(Bold, "Tasks"))

	pending, inProgress, completed := 0, 0, 0
	for _, task := range tasks {
		var marker string
		switch task.Status {
		case "in_progress":
			inProgress++
			marker = t.c(Yellow, "● ")
		case "completed":
			completed++
			marker = t.c(Green, "✓ ")
		default:
			pending++
			marker = t.c(Cyan, "○ ")
		}
		label := task.Content
		if task.Status == "in_progress" && task.ActiveForm != "" {
			label = task.ActiveForm
		}
		fmt.Printf("  %s%s %s\n", marker, t.c(Gray, fmt.Sprintf("[%d]", task.ID)), label)
	}
	fmt.Println()
	fmt.Printf("  %d tasks (%d pending, %d in progress, %d completed)\n",
		len(tasks), pending, inProgress, completed)
	fmt.Println()
}
