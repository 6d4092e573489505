// Package llm provides the canonical message/tool-call data model, the two
// concrete provider adapters (openai-compat, local-runtime), shared retry
// and fallback tool-call extraction, and streaming accumulation.
package llm

import (
	"context"
	"fmt"
)

// Message is the canonical in-memory chat message shape.
// Content is a pointer so an assistant message containing only tool calls
// can be distinguished from one with empty text content.
type Message struct {
	Role       string     `json:"role"`
	Content    *string    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

func TextMessage(role, content string) Message {
	return Message{Role: role, Content: &content}
}

func ToolResultMessage(toolCallID, content string) Message {
	return Message{Role: "tool", Content: &content, ToolCallID: toolCallID}
}

func AssistantMessage(content *string, toolCalls []ToolCall) Message {
	return Message{Role: "assistant", Content: content, ToolCalls: toolCalls}
}

func (m Message) ContentString() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// ToolCall is the canonical in-memory shape: arguments are always a decoded
// JSON object, never a wire-format string. Adapters are responsible for the
// string<->object asymmetry at their own wire boundary.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDef is what the registry hands the adapter to advertise a tool.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema object
}

// TokenUsage is cumulative, reset at the start of each turn.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}

// FinishReason values.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
	FinishLength    = "length"
	FinishError     = "error"
)

// ChatResponse is one adapter call's result. If ToolCalls is non-empty,
// FinishReason is forced to FinishToolCalls by the adapter.
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        TokenUsage
}

// ErrorType classifies a BackendError.
type ErrorType string

const (
	ErrRateLimit      ErrorType = "rate_limit"
	ErrContextTooLong ErrorType = "context_too_long"
	ErrModelNotFound  ErrorType = "model_not_found"
	ErrTimeout        ErrorType = "timeout"
	ErrServerError    ErrorType = "server_error"
	ErrAuthError      ErrorType = "auth_error"
	ErrUnknown        ErrorType = "unknown"
)

// BackendError is the tagged adapter error type.
type BackendError struct {
	Type       ErrorType
	StatusCode int
	Message    string
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Retryable reports whether the error classification permits a retry.
func (e *BackendError) Retryable() bool {
	switch e.Type {
	case ErrRateLimit, ErrServerError, ErrTimeout:
		return true
	default:
		return false
	}
}

// RetryState exposes in-flight retry bookkeeping so the UI spinner can
// display "retrying in Ns (attempt N/M)..." without adapters depending on
// the UI package.
type RetryState struct {
	Attempt       int // 1-based, current attempt number
	MaxAttempts   int // total attempts including the original
	NextDelay     string
	TriggerStatus int
}

// RetryObserver is called before each retry sleep.
type RetryObserver func(RetryState)

// Backend is the narrow capability set every adapter satisfies.
// Adapters are values, not a class hierarchy: retry, fallback extraction, and
// usage accumulation are library functions each adapter calls, not behavior
// inherited from a base type.
type Backend interface {
	// Chat issues one non-streaming call.
	Chat(ctx context.Context, messages []Message, tools []ToolDef) (*ChatResponse, error)
	// ChatStream issues a streaming call. Mutually exclusive with tools —
	// callers must not pass tools to a streaming call.
	ChatStream(ctx context.Context, messages []Message) (<-chan StreamEvent, error)
	ListModels(ctx context.Context) ([]string, error)
	HealthCheck(ctx context.Context) bool
	SetModel(model string)
	Model() string
	// MaxParallelTools is the optional per-model cap (0 = unlimited).
	MaxParallelTools() int
	SetMaxParallelTools(n int)
	// CumulativeUsage returns the usage accumulated since the last ResetUsage.
	CumulativeUsage() (TokenUsage, int) // usage, api_calls
	ResetUsage()
}

// StreamEvent is one chunk of a streaming chat response.
type StreamEvent struct {
	TextDelta    string
	Done         bool
	Err          error
	Usage        *TokenUsage
	FinishReason string
}
