// Package agent implements the Agentic Loop, the Compression
// Routine (§4.H), and the token-estimation and default-preamble helpers both
// depend on.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agentichat/agentichat-go/config"
	"github.com/agentichat/agentichat-go/confirm"
	"github.com/agentichat/agentichat-go/guidelines"
	"github.com/agentichat/agentichat-go/llm"
	"github.com/agentichat/agentichat-go/obslog"
	"github.com/agentichat/agentichat-go/store"
	"github.com/agentichat/agentichat-go/tools"
)

// Agent drives one session's worth of turns through the state machine in
// one user turn, wiring together a single provider backend, the tool
// registry, the confirmation gate, the session store, and the guidelines
// pipeline. It is not safe for concurrent use — a session serves one turn at
// a time.
type Agent struct {
	Backend     llm.Backend
	BackendName string
	Registry    *tools.Registry
	Gate        *confirm.Gate
	Store       *store.Store
	Guidelines  *guidelines.Pipeline
	WorkDir     string

	MaxIterations int
	Compression   config.CompressionConfig
	ContextWindow int

	// Suspend is paused/resumed around confirmation prompts. Built by the
	// CLI layer with confirm.Multi(spinner, escapeListener) so both the
	// spinner's repaint loop and the escape listener's raw-mode ownership
	// step aside while a prompt is drawn. Nil is a valid no-op.
	Suspend confirm.Suspendable

	SessionID string
	Messages  []llm.Message

	persistedCount int
	log            *obslog.Component
}

// New builds an Agent. logger may be obslog.Nop() in tests.
func New(
	backend llm.Backend,
	backendName string,
	registry *tools.Registry,
	gate *confirm.Gate,
	st *store.Store,
	gp *guidelines.Pipeline,
	workDir string,
	maxIterations int,
	compression config.CompressionConfig,
	contextWindow int,
	logger *obslog.Logger,
) *Agent {
	return &Agent{
		Backend:       backend,
		BackendName:   backendName,
		Registry:      registry,
		Gate:          gate,
		Store:         st,
		Guidelines:    gp,
		WorkDir:       workDir,
		MaxIterations: maxIterations,
		Compression:   compression,
		ContextWindow: contextWindow,
		log:           logger.With("agent"),
	}
}

// StartSession mints a fresh session id, records it in the store, and resets
// the in-memory transcript.
func (a *Agent) StartSession(ctx context.Context, model string) error {
	a.SessionID = generateSessionID()
	a.Messages = nil
	a.persistedCount = 0
	now := time.Now()
	if err := a.Store.CreateSession(ctx, store.Session{
		ID:        a.SessionID,
		Backend:   a.BackendName,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	a.injectGuidelinesIfCompiled()
	a.log.Info().Str("session_id", a.SessionID).Str("model", model).Msg("session started")
	return nil
}

// Resume loads a previously persisted session's transcript into memory so
// the next Run call continues it.
func (a *Agent) Resume(ctx context.Context, sessionID string) error {
	msgs, err := a.Store.LoadSessionMessages(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("resume session %s: %w", sessionID, err)
	}
	a.SessionID = sessionID
	a.Messages = msgs
	a.persistedCount = len(msgs)
	a.log.Info().Str("session_id", sessionID).Int("messages", len(msgs)).Msg("session resumed")
	return nil
}

// Clear empties the transcript and returns the confirmation gate to ASK,
// without minting a new session id.
func (a *Agent) Clear() {
	a.Messages = nil
	a.persistedCount = 0
	a.Gate.Reset()
}

// PrepareGuidelines applies the guidelines load policy that doesn't need a
// user prompt. load_mode "confirm" is the CLI's responsibility: it must ask
// the user and, on acceptance, call CompileAndInjectGuidelines itself.
func (a *Agent) PrepareGuidelines(ctx context.Context, mode guidelines.LoadMode) error {
	if a.Guidelines == nil || mode == guidelines.LoadOff || mode == guidelines.LoadConfirm {
		return nil
	}
	return a.CompileAndInjectGuidelines(ctx)
}

// CompileAndInjectGuidelines compiles the source guidelines file if it's
// missing or stale, then injects the compiled form as a system message.
// It is a no-op if there is no source file at all.
func (a *Agent) CompileAndInjectGuidelines(ctx context.Context) error {
	if a.Guidelines == nil || !a.Guidelines.HasSource() {
		return nil
	}
	if a.Guidelines.NeedsCompile() {
		if err := a.Guidelines.Compile(ctx, a.Backend); err != nil {
			return fmt.Errorf("compile guidelines: %w", err)
		}
		a.log.Info().Msg("compiled project guidelines")
	}
	a.injectGuidelinesIfCompiled()
	return nil
}

// injectGuidelinesIfCompiled prepends the compiled guidelines as a system
// message. It must only be called when every message currently in the
// transcript is already persisted (session start, resume, or right after a
// compression splice) — the injected message itself is derived, reproducible
// scaffolding, not a genuine conversation turn, so it is deliberately never
// written to the raw message log; persistedCount is advanced past it instead
// of flushing it.
func (a *Agent) injectGuidelinesIfCompiled() {
	if a.Guidelines == nil || !a.Guidelines.HasCompiled() {
		return
	}
	injected, err := a.Guidelines.Inject(a.Messages)
	if err != nil {
		a.log.Warn().Err(err).Msg("inject guidelines")
		return
	}
	a.Messages = injected
	a.persistedCount = len(a.Messages)
}

// Run drives one user turn to completion and returns the
// assistant's final reply text.
func (a *Agent) Run(ctx context.Context, userInput string) (string, error) {
	a.Backend.ResetUsage()
	a.Messages = append(a.Messages, llm.TextMessage("user", userInput))
	a.flush(context.Background())

	if a.Compression.AutoEnabled && a.Compression.AutoThreshold > 0 && len(a.Messages) >= a.Compression.AutoThreshold {
		if err := a.Compress(ctx); err != nil {
			a.log.Warn().Err(err).Msg("auto-compression skipped")
		}
	}

	reply, err := a.iterate(ctx)
	if err != nil {
		a.log.Error().Err(err).Msg("turn ended with error")
	}
	return reply, err
}

// iterate is the bounded call/execute-tools loop.
func (a *Agent) iterate(ctx context.Context) (string, error) {
	toolDefs := a.Registry.Schemas()

	// The default preamble is sent with each request but is not part of the
	// transcript, so it is never persisted or compressed.
	var preamble []llm.Message
	if !hasSystemMessage(a.Messages) && len(a.Registry.List()) > 0 {
		preamble = []llm.Message{llm.TextMessage("system", defaultSystemPreamble(a.WorkDir, toolDefs))}
	}

	for i := 0; i < a.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		request := append(append([]llm.Message{}, preamble...), a.Messages...)
		resp, err := a.Backend.Chat(ctx, request, toolDefs)
		if err != nil {
			a.learnModelConstraint(err)
			return "", fmt.Errorf("chat: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			a.Messages = append(a.Messages, llm.TextMessage("assistant", resp.Content))
			a.flush(context.Background())
			return resp.Content, nil
		}

		a.Messages = append(a.Messages, llm.AssistantMessage(contentOrNil(resp.Content), resp.ToolCalls))
		a.flush(context.Background())

		for _, call := range resp.ToolCalls {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			result := a.executeOne(ctx, call)
			a.Messages = append(a.Messages, llm.ToolResultMessage(call.ID, result))
			a.flush(context.Background())
		}
	}

	capMsg := fmt.Sprintf(
		"Reached the limit of %d tool-call iterations for this turn without finishing. "+
			"Send another message to continue.", a.MaxIterations)
	a.Messages = append(a.Messages, llm.TextMessage("assistant", capMsg))
	a.flush(context.Background())
	return capMsg, nil
}

// executeOne looks up, confirms, and dispatches a single tool call,
// returning the JSON-encoded ToolResult text to append to the transcript.
// It never returns a bare error — every failure mode (unknown tool,
// rejected confirmation, a panic inside Run) becomes a Result{success:false}.
func (a *Agent) executeOne(ctx context.Context, call llm.ToolCall) string {
	t, found := a.Registry.Get(call.Name)
	if !found {
		a.log.Warn().Str("tool", call.Name).Msg("tool not found")
		return toolResultJSON(tools.Result{Success: false, Error: "tool not found"})
	}

	if t.RequiresConfirmation {
		preview := a.Registry.Preview(ctx, call.Name, call.Arguments)
		if err := a.Gate.Confirm(ctx, call.Name, preview, a.Suspend); err != nil {
			if errors.Is(err, confirm.ErrRejected) {
				a.log.Info().Str("tool", call.Name).Msg("tool call rejected by user")
				return toolResultJSON(tools.Result{Success: false, Error: "USER_REJECTED"})
			}
			return toolResultJSON(tools.Result{Success: false, Error: err.Error()})
		}
	}

	result := a.Registry.Execute(ctx, call.Name, call.Arguments)
	if !result.Success {
		a.log.Error().Str("tool", call.Name).Str("error", result.Error).Msg("tool dispatch failed")
	}
	return toolResultJSON(result)
}

func toolResultJSON(r tools.Result) string {
	raw, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"error":"failed to encode tool result"}`
	}
	return string(raw)
}

// learnModelConstraint implements the one automatic inference from
// error prose: on a server error reporting the model only supports one tool
// call per turn, persist that constraint against the current model name and
// apply it to the live backend. The caller still surfaces the original
// error to the CLI, which prompts the user to retry.
func (a *Agent) learnModelConstraint(err error) {
	if err == nil || !strings.Contains(strings.ToLower(err.Error()), "only supports single tool-calls") {
		return
	}
	model := a.Backend.Model()
	meta, loadErr := config.LoadModelMetadata()
	if loadErr != nil {
		a.log.Warn().Err(loadErr).Msg("load model metadata")
		return
	}
	meta.Models[model] = config.ModelConstraint{MaxParallelTools: 1}
	if saveErr := meta.Save(); saveErr != nil {
		a.log.Warn().Err(saveErr).Msg("save model metadata")
		return
	}
	a.Backend.SetMaxParallelTools(1)
	a.log.Info().Str("model", model).Msg("learned max_parallel_tools=1 from provider error")
}

// flush persists every message appended since the last flush. It takes its
// own context (usually context.Background()) rather than the turn's ctx, so
// a cancelled turn still leaves its partial transcript durable.
func (a *Agent) flush(ctx context.Context) {
	if a.persistedCount >= len(a.Messages) {
		return
	}
	fresh := a.Messages[a.persistedCount:]
	counts := make([]int, len(fresh))
	for i, m := range fresh {
		counts[i] = estimateMessageTokens(m)
	}
	if err := a.Store.AppendMessages(ctx, a.SessionID, fresh, counts); err != nil {
		a.log.Error().Err(err).Msg("persist messages")
		return
	}
	a.persistedCount = len(a.Messages)

	model := a.Backend.Model()
	if err := a.Store.TouchSession(ctx, a.SessionID, model, time.Now()); err != nil {
		a.log.Warn().Err(err).Msg("touch session")
	}
}

func hasSystemMessage(messages []llm.Message) bool {
	for _, m := range messages {
		if m.Role == "system" {
			return true
		}
	}
	return false
}

func contentOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ContextStats is a snapshot of the transcript's estimated token footprint
// against the model's context window, used by the `/context` command.
type ContextStats struct {
	TotalTokens   int // actual, from the latest API response, or estimated
	ContextWindow int
	Threshold     int // ContextWindow * Compression.WarningThreshold
	MessageCount  int
	SystemTokens  int
	ToolDefTokens int
	MessageTokens int
	ActualTokens  int
}

// ContextUsage computes the current ContextStats.
func (a *Agent) ContextUsage() ContextStats {
	stats := ContextStats{
		ContextWindow: a.ContextWindow,
		Threshold:     int(float64(a.ContextWindow) * a.Compression.WarningThreshold),
		MessageCount:  len(a.Messages),
	}
	for _, msg := range a.Messages {
		tokens := estimateMessageTokens(msg)
		if msg.Role == "system" {
			stats.SystemTokens += tokens
		} else {
			stats.MessageTokens += tokens
		}
	}
	stats.ToolDefTokens = estimateToolDefTokens(a.Registry.Schemas())

	usage, _ := a.Backend.CumulativeUsage()
	stats.ActualTokens = usage.TotalTokens
	stats.TotalTokens = stats.ActualTokens
	if stats.TotalTokens == 0 {
		stats.TotalTokens = stats.SystemTokens + stats.ToolDefTokens + stats.MessageTokens
	}
	return stats
}
