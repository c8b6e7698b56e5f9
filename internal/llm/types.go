package llm

import "time"

// ModelConfig selects the backend model and its sampling limits.
type ModelConfig struct {
	Provider  ProviderID `json:"provider" yaml:"provider"`
	Model     string     `json:"model" yaml:"model"`
	MaxTokens int        `json:"max_tokens" yaml:"max_tokens"`
	// Temperature is nil when the backend default applies; 0 is a valid
	// setting.
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
}

// Float returns a pointer to v, for optional settings such as
// ModelConfig.Temperature.
func Float(v float64) *float64 {
	return &v
}

// withOverrides returns m with the set fields of o applied: a non-empty
// model, a positive MaxTokens and a non-nil Temperature.
// The model id is only carried over when keepModel is set, since model ids
// are specific to one backend.
func (m ModelConfig) withOverrides(o ModelConfig, keepModel bool) ModelConfig {
	if keepModel && o.Model != "" {
		m.Model = o.Model
	}
	if o.MaxTokens > 0 {
		m.MaxTokens = o.MaxTokens
	}
	if o.Temperature != nil {
		m.Temperature = Float(*o.Temperature)
	}
	return m
}

// RetryPolicy bounds how often the executor re-invokes one provider.
type RetryPolicy struct {
	MaxRetries int           `json:"max_retries" yaml:"max_retries"`
	BaseDelay  time.Duration `json:"base_delay" yaml:"base_delay"`
}

// Request is the input for one logical generation call.
type Request struct {
	// ID correlates log lines, events and journal rows of one call chain.
	ID           string      `json:"id,omitempty"`
	Prompt       string      `json:"prompt"`
	SystemPrompt string      `json:"system_prompt,omitempty"`
	Model        ModelConfig `json:"model"`
	// Retry overrides the executor defaults when non-nil.
	Retry *RetryPolicy `json:"retry,omitempty"`
	// IsFallbackAttempt marks a request issued by the orchestrator against an
	// alternate provider. Requests carrying it are never fanned out again.
	IsFallbackAttempt bool `json:"is_fallback_attempt"`
}

// withModel clones r with a new model config. The fallback flag is sticky:
// once set on r it stays set on every clone.
func (r *Request) withModel(model ModelConfig, fallback bool) *Request {
	clone := *r
	clone.Model = model
	clone.IsFallbackAttempt = r.IsFallbackAttempt || fallback
	if r.Retry != nil {
		policy := *r.Retry
		clone.Retry = &policy
	}
	return &clone
}

// Response is the result of a successful generation.
type Response struct {
	Content      string     `json:"content"`
	Provider     ProviderID `json:"provider"`
	Model        string     `json:"model"`
	Usage        *Usage     `json:"usage,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`
	// Attempts is the number of calls made against Provider, set by Executor.
	Attempts int `json:"attempts"`
	// FallbackFrom names the primary provider when an alternate produced
	// this response.
	FallbackFrom ProviderID `json:"fallback_from,omitempty"`
}

// Usage tracks token consumption as reported by the backend.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func newUsage(prompt, completion, total int64) *Usage {
	if prompt == 0 && completion == 0 && total == 0 {
		return nil
	}
	if total == 0 {
		total = prompt + completion
	}
	return &Usage{
		PromptTokens:     int(prompt),
		CompletionTokens: int(completion),
		TotalTokens:      int(total),
	}
}
