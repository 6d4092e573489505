package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/agentichat/agentichat-go/ui"
)

// dispatchCommand handles a "/"-prefixed slash command or the bare
// exit/quit aliases. It returns done=true when the REPL should stop.
func dispatchCommand(ctx context.Context, sess *session, input string) (done bool, err error) {
	switch input {
	case "exit", "quit", "/quit", "/exit":
		return true, nil
	}

	fields := strings.Fields(input)
	cmd := fields[0]
	rest := strings.TrimSpace(strings.TrimPrefix(input, cmd))

	switch cmd {
	case "/help":
		sess.term.PrintHelp()
	case "/mode":
		mode := sess.gate.CycleMode()
		sess.term.PrintModeSwitch(mode.String())
	case "/clear":
		sess.ag.Clear()
	case "/context":
		stats := sess.ag.ContextUsage()
		sess.term.PrintContextUsage(stats.TotalTokens, stats.ContextWindow, stats.Threshold, stats.MessageCount)
	case "/compact":
		return false, sess.ag.Compress(ctx)
	case "/tasks":
		return false, printTasks(sess)
	case "/model":
		return false, switchModel(ctx, sess, rest)
	case "/backend":
		return false, switchBackend(ctx, sess, rest)
	case "/resume":
		return false, resumeSession(ctx, sess)
	default:
		return false, fmt.Errorf("unrecognized command %q (try /help)", cmd)
	}
	return false, nil
}

// printTasks reads current_todos.json (written by the todo_write tool) and
// renders it via the Terminal's task-list printer.
func printTasks(sess *session) error {
	path := filepath.Join(sess.dataDir, "current_todos.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			sess.term.PrintWarning("No tasks yet.")
			return nil
		}
		return fmt.Errorf("read task list: %w", err)
	}

	var tf struct {
		Todos []struct {
			Content    string `json:"content"`
			Status     string `json:"status"`
			ActiveForm string `json:"active_form"`
		} `json:"todos"`
	}
	if err := json.Unmarshal(data, &tf); err != nil {
		return fmt.Errorf("parse task list: %w", err)
	}

	items := make([]ui.TaskListItem, len(tf.Todos))
	for i, t := range tf.Todos {
		items[i] = ui.TaskListItem{ID: i + 1, Content: t.Content, Status: t.Status, ActiveForm: t.ActiveForm}
	}
	sess.term.PrintTaskList(items)
	return nil
}

// switchModel lists the current backend's available models (or accepts a
// name passed directly after the command) and swaps the live backend over.
func switchModel(ctx context.Context, sess *session, arg string) error {
	model := strings.TrimSpace(arg)
	if model == "" {
		models, err := sess.ag.Backend.ListModels(ctx)
		if err != nil {
			return fmt.Errorf("list models: %w", err)
		}
		opts := make([]ui.ModelOption, len(models))
		for i, m := range models {
			opts[i] = ui.ModelOption{Label: m, Current: m == sess.ag.Backend.Model()}
		}
		sess.term.PrintModelMenu(opts)
		choice, err := sess.term.ReadLine("> ")
		if err != nil {
			return nil
		}
		idx, convErr := strconv.Atoi(strings.TrimSpace(choice))
		switch {
		case convErr == nil && idx >= 1 && idx <= len(models):
			model = models[idx-1]
		case convErr == nil && idx == 0:
			custom, err := sess.term.ReadLine("Model name: ")
			if err != nil {
				return nil
			}
			model = strings.TrimSpace(custom)
		default:
			model = strings.TrimSpace(choice)
		}
	}
	if model == "" {
		return fmt.Errorf("no model selected")
	}

	sess.ag.Backend.SetModel(model)
	sess.backendCfg.Model = model
	sess.ag.ContextWindow = sess.backendCfg.EffectiveContextWindow()
	sess.term.PrintModelSwitch(model)

	sess.cfg.Backends[sess.backendKey] = sess.backendCfg
	if err := sess.cfg.Save(); err != nil {
		sess.term.PrintWarning(fmt.Sprintf("failed to persist model choice: %s", err))
	}
	return nil
}

// switchBackend swaps the live backend for another configured entry in
// cfg.Backends, rebuilding the adapter and re-pointing the Agent at it.
func switchBackend(ctx context.Context, sess *session, arg string) error {
	name := strings.TrimSpace(arg)
	if name == "" {
		names := make([]string, 0, len(sess.cfg.Backends))
		for n := range sess.cfg.Backends {
			names = append(names, n)
		}
		opts := make([]ui.ModelOption, len(names))
		for i, n := range names {
			opts[i] = ui.ModelOption{Label: n, Current: n == sess.backendKey}
		}
		sess.term.PrintModelMenu(opts)
		choice, err := sess.term.ReadLine("> ")
		if err != nil {
			return nil
		}
		idx, convErr := strconv.Atoi(strings.TrimSpace(choice))
		if convErr == nil && idx >= 1 && idx <= len(names) {
			name = names[idx-1]
		} else {
			name = strings.TrimSpace(choice)
		}
	}

	bc, ok := sess.cfg.Backends[name]
	if !ok {
		return fmt.Errorf("backend %q is not configured", name)
	}

	backend, err := buildBackend(bc)
	if err != nil {
		return fmt.Errorf("build backend %q: %w", name, err)
	}
	applyLearnedConstraint(backend, bc)

	sess.ag.Backend = backend
	sess.ag.BackendName = name
	sess.ag.ContextWindow = bc.EffectiveContextWindow()
	sess.backendCfg = bc
	sess.backendKey = name

	sess.term.PrintModelSwitch(fmt.Sprintf("%s (%s)", bc.Model, name))
	return nil
}

// resumeSession lists persisted sessions from the store and loads the one
// the user selects.
func resumeSession(ctx context.Context, sess *session) error {
	sessions, err := sess.store.ListSessions(ctx, 20)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		sess.term.PrintWarning("No saved sessions yet.")
		return nil
	}

	items := make([]ui.SessionListItem, len(sessions))
	for i, s := range sessions {
		count, _ := sess.store.MessageCount(ctx, s.ID)
		items[i] = ui.SessionListItem{ID: s.ID, Updated: s.UpdatedAt, Preview: s.Model, MsgCount: count}
	}
	sess.term.PrintSessionList(items)

	choice, err := sess.term.ReadLine("> ")
	if err != nil {
		return nil
	}
	idx, convErr := strconv.Atoi(strings.TrimSpace(choice))
	if convErr != nil || idx < 1 || idx > len(sessions) {
		return fmt.Errorf("no such session %q", choice)
	}

	chosen := sessions[idx-1]
	if err := sess.ag.Resume(ctx, chosen.ID); err != nil {
		return fmt.Errorf("resume session: %w", err)
	}
	sess.term.PrintSessionResumed(len(sess.ag.Messages), firstUserPreview(sess.ag.Messages))
	sess.term.PrintConversationHistory(sess.ag.Messages)
	return nil
}
