package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrorType classifies LLM errors for retry and fallback decisions.
type ErrorType int

const (
	ErrorUnknown       ErrorType = iota
	ErrorRateLimit               // 429
	ErrorAuth                    // 401/403
	ErrorInvalidInput            // 400/404/422
	ErrorServerError             // 500/502/503/504, overloaded
	ErrorTimeout                 // 408, transport deadline
	ErrorEmptyResponse           // success status without usable content
	ErrorNotConfigured           // missing credential
	ErrorNoProviders             // nothing configured at all
	ErrorCanceled                // caller went away
	ErrorExhausted               // primary and every fallback failed
)

var errorTypeNames = map[ErrorType]string{
	ErrorUnknown:       "unknown",
	ErrorRateLimit:     "rate_limit",
	ErrorAuth:          "auth",
	ErrorInvalidInput:  "invalid_input",
	ErrorServerError:   "server_error",
	ErrorTimeout:       "timeout",
	ErrorEmptyResponse: "empty_response",
	ErrorNotConfigured: "not_configured",
	ErrorNoProviders:   "no_providers",
	ErrorCanceled:      "canceled",
	ErrorExhausted:     "exhausted",
}

func (t ErrorType) String() string {
	if name, ok := errorTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("error_type(%d)", int(t))
}

// IsConfiguration reports whether t means no usable backend is set up.
func (t ErrorType) IsConfiguration() bool {
	return t == ErrorNotConfigured || t == ErrorNoProviders
}

// LLMError is the normalized error every adapter, the executor and the
// orchestrator return.
type LLMError struct {
	Type     ErrorType
	Message  string
	Provider ProviderID
	// StatusCode is the backend HTTP status, 0 when there was none.
	StatusCode int
	Retryable  bool
	// Attempts is the number of calls made against Provider before giving up.
	Attempts int
	// Causes holds the per-provider failures folded into an ErrorExhausted error.
	Causes []*LLMError
	Err    error
}

func (e *LLMError) Error() string {
	if e.Type == ErrorExhausted || e.Type == ErrorNoProviders {
		return e.Message
	}
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(string(e.Provider))
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	return b.String()
}

func (e *LLMError) Unwrap() error {
	return e.Err
}

// withAttempts returns a copy of e annotated with the attempt count.
func (e *LLMError) withAttempts(n int) *LLMError {
	clone := *e
	clone.Attempts = n
	return &clone
}

// AsLLMError extracts the normalized error from err's chain.
func AsLLMError(err error) (*LLMError, bool) {
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr, true
	}
	return nil, false
}

// IsRetryable reports whether err is a normalized error marked retryable.
// Unknown errors are never retried.
func IsRetryable(err error) bool {
	llmErr, ok := AsLLMError(err)
	return ok && llmErr.Retryable
}

func notConfiguredError(p ProviderID) *LLMError {
	return &LLMError{
		Type:     ErrorNotConfigured,
		Message:  fmt.Sprintf("provider %s is not configured: set its API key", p),
		Provider: p,
	}
}

func noProvidersError() *LLMError {
	return &LLMError{
		Type:    ErrorNoProviders,
		Message: "no LLM providers configured: set an API key for at least one of " + joinIDs(KnownProviders),
	}
}

// isEmptyBody reports whether an SDK failed to decode a success response
// because the body was empty or cut short.
func isEmptyBody(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

func emptyResponseError(p ProviderID) *LLMError {
	return &LLMError{
		Type:      ErrorEmptyResponse,
		Message:   "empty response from backend",
		Provider:  p,
		Retryable: true,
	}
}

func unexpectedError(p ProviderID, err error) *LLMError {
	return &LLMError{
		Type:     ErrorUnknown,
		Message:  "unexpected error: " + err.Error(),
		Provider: p,
		Err:      err,
	}
}

// classifyStatus maps a backend HTTP status onto the taxonomy.
func classifyStatus(p ProviderID, status int, msg string, err error) *LLMError {
	llmErr := &LLMError{Provider: p, StatusCode: status, Err: err}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		llmErr.Type = ErrorAuth
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		llmErr.Type = ErrorInvalidInput
	case http.StatusTooManyRequests:
		llmErr.Type = ErrorRateLimit
		llmErr.Retryable = true
	case http.StatusRequestTimeout:
		llmErr.Type = ErrorTimeout
		llmErr.Retryable = true
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout,
		statusOverloaded:
		llmErr.Type = ErrorServerError
		llmErr.Retryable = true
	default:
		llmErr.Type = ErrorUnknown
	}

	if msg == "" {
		msg = defaultStatusMessage(llmErr.Type, status)
	}
	llmErr.Message = msg
	return llmErr
}

// statusOverloaded is the non-standard status Anthropic uses when busy.
const statusOverloaded = 529

func defaultStatusMessage(t ErrorType, status int) string {
	switch t {
	case ErrorAuth:
		return "backend rejected the credential"
	case ErrorInvalidInput:
		return "backend rejected the request"
	case ErrorRateLimit:
		return "rate limited by backend"
	case ErrorTimeout:
		return "backend timed out"
	case ErrorServerError:
		return "backend unavailable"
	default:
		return fmt.Sprintf("unexpected backend status %d", status)
	}
}

// classifyTransport handles failures that carry no HTTP status.
func classifyTransport(p ProviderID, err error) *LLMError {
	if errors.Is(err, context.Canceled) {
		return &LLMError{Type: ErrorCanceled, Message: "request canceled", Provider: p, Err: err}
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &LLMError{Type: ErrorTimeout, Message: "transport timeout: " + err.Error(), Provider: p, Retryable: true, Err: err}
	}
	return unexpectedError(p, err)
}

// extractErrorMessage pulls a readable message out of a backend error body.
func extractErrorMessage(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return strings.TrimSpace(truncate(string(body), 512))
	}
	for _, path := range []string{"error.message", "error", "message"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func joinIDs(ids []ProviderID) string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}
	return strings.Join(names, ", ")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
