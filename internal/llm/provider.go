package llm

import (
	"context"
	"fmt"
	"strings"
)

// ProviderID names one of the supported text-generation backends.
type ProviderID string

const (
	ProviderOpenAI     ProviderID = "openai"
	ProviderAnthropic  ProviderID = "anthropic"
	ProviderGemini     ProviderID = "gemini"
	ProviderOpenRouter ProviderID = "openrouter"
)

// KnownProviders lists every supported backend in default registration order.
var KnownProviders = []ProviderID{
	ProviderOpenAI,
	ProviderAnthropic,
	ProviderGemini,
	ProviderOpenRouter,
}

func (p ProviderID) String() string { return string(p) }

// Valid reports whether p is one of KnownProviders.
func (p ProviderID) Valid() bool {
	for _, known := range KnownProviders {
		if p == known {
			return true
		}
	}
	return false
}

// ParseProviderID converts a user supplied name into a ProviderID.
// The empty string parses to the empty ID, meaning "no preference".
func ParseProviderID(s string) (ProviderID, error) {
	id := ProviderID(strings.ToLower(strings.TrimSpace(s)))
	if id == "" || id.Valid() {
		return id, nil
	}
	return "", fmt.Errorf("unknown LLM provider: %s", s)
}

// Provider is the interface all LLM backends must implement.
//
// Implementations hold no per-request state and never retry on their own;
// retry policy belongs to Executor.
type Provider interface {
	// ID returns the backend this adapter talks to. It never changes.
	ID() ProviderID

	// IsConfigured reports whether the credential for this backend is present.
	IsConfigured() bool

	// Generate sends one completion request. Failures are returned as *LLMError.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// isBlank reports whether content holds no text once whitespace and an empty
// ``` or ```markdown fence are removed. Such replies count as empty
// responses so they are retried like a missing body.
func isBlank(content string) bool {
	text := strings.TrimSpace(content)
	if text == "" {
		return true
	}
	first, rest, ok := strings.Cut(text, "\n")
	if !ok || !strings.HasPrefix(first, "```") || strings.TrimSpace(rest) != "```" {
		return false
	}
	switch strings.TrimSpace(first[3:]) {
	case "", "markdown", "md":
		return true
	}
	return false
}
