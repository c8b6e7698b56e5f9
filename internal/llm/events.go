package llm

import "time"

// AttemptEvent is published on eventbus.TopicLLMAttempt after every provider call.
type AttemptEvent struct {
	RequestID string
	Provider  ProviderID
	Model     string
	Attempt   int
	Fallback  bool
	Duration  time.Duration
	Usage     *Usage
	// Err is nil when the call succeeded.
	Err *LLMError
}

// RetryEvent is published on eventbus.TopicLLMRetry before the executor sleeps.
type RetryEvent struct {
	RequestID string
	Provider  ProviderID
	Attempt   int
	Delay     time.Duration
	Err       *LLMError
}

// FallbackEvent is published on eventbus.TopicLLMFallback when the
// orchestrator moves from the primary to an alternate provider.
type FallbackEvent struct {
	RequestID string
	From      ProviderID
	To        ProviderID
	Err       *LLMError
}

// FailureEvent is published on eventbus.TopicLLMFailure when a generation
// fails for good.
type FailureEvent struct {
	RequestID string
	Provider  ProviderID
	Err       *LLMError
}
