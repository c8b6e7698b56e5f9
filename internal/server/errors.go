package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"planforge/internal/llm"
	"planforge/internal/prompt"
)

// statusClientClosed is the nginx convention for a caller that went away.
const statusClientClosed = 499

type apiError struct {
	Type       string     `json:"type"`
	Message    string     `json:"message"`
	Provider   string     `json:"provider,omitempty"`
	StatusCode int        `json:"status_code,omitempty"`
	Attempts   int        `json:"attempts,omitempty"`
	Causes     []apiError `json:"causes,omitempty"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

// toAPIError maps err onto an HTTP status and error body. Configuration
// problems are 503, bad input is 400, backend failures are 502.
func toAPIError(err error) (int, apiError) {
	if errors.Is(err, prompt.ErrEmptyTask) || errors.Is(err, prompt.ErrTaskTooLong) {
		return http.StatusBadRequest, apiError{Type: "invalid_request", Message: err.Error()}
	}

	if llmErr, ok := llm.AsLLMError(err); ok {
		body := fromLLMError(llmErr)
		switch {
		case llmErr.Type.IsConfiguration():
			return http.StatusServiceUnavailable, body
		case llmErr.Type == llm.ErrorInvalidInput:
			return http.StatusBadRequest, body
		case llmErr.Type == llm.ErrorCanceled:
			return statusClientClosed, body
		default:
			return http.StatusBadGateway, body
		}
	}

	if errors.Is(err, context.Canceled) {
		return statusClientClosed, apiError{Type: "canceled", Message: err.Error()}
	}
	return http.StatusBadGateway, apiError{Type: "upstream_error", Message: err.Error()}
}

func fromLLMError(e *llm.LLMError) apiError {
	out := apiError{
		Type:       e.Type.String(),
		Message:    e.Error(),
		Provider:   string(e.Provider),
		StatusCode: e.StatusCode,
		Attempts:   e.Attempts,
	}
	for _, cause := range e.Causes {
		out.Causes = append(out.Causes, fromLLMError(cause))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, e apiError) {
	writeJSON(w, status, errorResponse{Error: e})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, apiError{Type: "invalid_request", Message: msg})
}
