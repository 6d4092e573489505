package llm

import (
	"net/http"
	"strings"
)

// classifyHTTPError maps an HTTP status + response body to a BackendError
// by status code, falling back to well-known substrings in the body.
func classifyHTTPError(status int, body string) *BackendError {
	lower := strings.ToLower(body)

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return &BackendError{Type: ErrAuthError, StatusCode: status, Message: body}
	case status == http.StatusNotFound:
		return &BackendError{Type: ErrModelNotFound, StatusCode: status, Message: body}
	case status == http.StatusTooManyRequests:
		return &BackendError{Type: ErrRateLimit, StatusCode: status, Message: body}
	case status >= 500:
		return &BackendError{Type: ErrServerError, StatusCode: status, Message: body}
	case strings.Contains(lower, "context length") || strings.Contains(lower, "context_length") || strings.Contains(lower, "maximum context"):
		return &BackendError{Type: ErrContextTooLong, StatusCode: status, Message: body}
	case strings.Contains(lower, "tokens per minute") || strings.Contains(lower, "rate limit"):
		return &BackendError{Type: ErrRateLimit, StatusCode: status, Message: body}
	default:
		return &BackendError{Type: ErrUnknown, StatusCode: status, Message: body}
	}
}

// classifyNetError maps a transport-level failure (socket error, read
// timeout) to a BackendError.
func classifyNetError(err error, timedOut bool) *BackendError {
	if timedOut {
		return &BackendError{Type: ErrTimeout, Message: err.Error(), Err: err}
	}
	return &BackendError{Type: ErrServerError, Message: err.Error(), Err: err}
}
