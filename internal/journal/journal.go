// Package journal records every provider attempt the orchestrator makes.
package journal

import (
	"context"
	"time"
)

// Outcome values stored per attempt.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Attempt is one call against one provider.
type Attempt struct {
	ID               int64     `json:"id"`
	RequestID        string    `json:"request_id"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model,omitempty"`
	Attempt          int       `json:"attempt"`
	Fallback         bool      `json:"fallback"`
	Outcome          string    `json:"outcome"`
	ErrorType        string    `json:"error_type,omitempty"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	StatusCode       int       `json:"status_code,omitempty"`
	LatencyMS        int64     `json:"latency_ms"`
	PromptTokens     int       `json:"prompt_tokens,omitempty"`
	CompletionTokens int       `json:"completion_tokens,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Query filters Recent. Zero fields match everything.
type Query struct {
	RequestID string
	Provider  string
	Limit     int
}

// ProviderStats aggregates attempts per provider.
type ProviderStats struct {
	Provider     string  `json:"provider"`
	Attempts     int     `json:"attempts"`
	Failures     int     `json:"failures"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}

// Journal is the interface for the attempt store.
type Journal interface {
	Record(ctx context.Context, a Attempt) error
	Recent(ctx context.Context, q Query) ([]Attempt, error)
	Stats(ctx context.Context, since time.Time) ([]ProviderStats, error)
	Close() error
}
