package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planforge/internal/eventbus"
)

func TestBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, 100*time.Millisecond, Backoff(base, 1))
	assert.Equal(t, 200*time.Millisecond, Backoff(base, 2))
	assert.Equal(t, 400*time.Millisecond, Backoff(base, 3))
	assert.Equal(t, 100*time.Millisecond, Backoff(base, 0))
	assert.Equal(t, Backoff(base, 31), Backoff(base, 500))
	assert.Zero(t, Backoff(0, 4))
}

// A provider that is always rate limited is called maxRetries+1 times and the
// error names it together with the attempt count.
func TestExecuteExhaustsRetries(t *testing.T) {
	x := newFake(ProviderOpenAI, rateLimited(ProviderOpenAI))
	h := newHarness(RetryPolicy{MaxRetries: 2, BaseDelay: 50 * time.Millisecond}, FallbackConfig{Enabled: false}, x)

	_, err := h.orchestrator.Generate(context.Background(), &Request{ID: "r1", Prompt: "plan"})
	require.Error(t, err)

	assert.Equal(t, 3, x.callCount())
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 100 * time.Millisecond}, h.sleeper.recorded())

	llmErr, ok := AsLLMError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorRateLimit, llmErr.Type)
	assert.Equal(t, ProviderOpenAI, llmErr.Provider)
	assert.Equal(t, 3, llmErr.Attempts)
	assert.True(t, llmErr.Retryable)
	assert.Contains(t, err.Error(), "openai")
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestExecuteStopsOnNonRetryable(t *testing.T) {
	x := newFake(ProviderOpenAI, badCredential(ProviderOpenAI))
	h := newHarness(RetryPolicy{MaxRetries: 5, BaseDelay: time.Second}, FallbackConfig{}, x)

	_, err := h.executor.Execute(context.Background(), x, ModelConfig{}, &Request{Prompt: "plan"})
	require.Error(t, err)

	assert.Equal(t, 1, x.callCount())
	assert.Empty(t, h.sleeper.recorded())

	llmErr, _ := AsLLMError(err)
	assert.Equal(t, ErrorAuth, llmErr.Type)
	assert.Equal(t, 1, llmErr.Attempts)
	assert.NotContains(t, err.Error(), "attempts")
}

func TestExecuteSucceedsAfterRetry(t *testing.T) {
	x := newFake(ProviderGemini,
		fail(classifyStatus(ProviderGemini, 503, "", nil)),
		fail(emptyResponseError(ProviderGemini)),
		succeed(ProviderGemini, "# Plan"),
	)
	h := newHarness(RetryPolicy{MaxRetries: 3, BaseDelay: 10 * time.Millisecond}, FallbackConfig{}, x)

	resp, err := h.executor.Execute(context.Background(), x, ModelConfig{}, &Request{Prompt: "plan"})
	require.NoError(t, err)

	assert.Equal(t, "# Plan", resp.Content)
	assert.Equal(t, 3, resp.Attempts)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, h.sleeper.recorded())
}

func TestExecuteRequestPolicyOverridesDefault(t *testing.T) {
	x := newFake(ProviderOpenAI, rateLimited(ProviderOpenAI))
	h := newHarness(RetryPolicy{MaxRetries: 5, BaseDelay: time.Second}, FallbackConfig{}, x)

	req := &Request{Prompt: "plan", Retry: &RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond}}
	_, err := h.executor.Execute(context.Background(), x, ModelConfig{}, req)
	require.Error(t, err)

	assert.Equal(t, 2, x.callCount())
	assert.Equal(t, []time.Duration{time.Millisecond}, h.sleeper.recorded())
}

func TestExecuteZeroRetries(t *testing.T) {
	x := newFake(ProviderOpenAI, rateLimited(ProviderOpenAI))
	h := newHarness(RetryPolicy{MaxRetries: 0}, FallbackConfig{}, x)

	_, err := h.executor.Execute(context.Background(), x, ModelConfig{}, &Request{Prompt: "plan"})
	require.Error(t, err)
	assert.Equal(t, 1, x.callCount())
	assert.Empty(t, h.sleeper.recorded())
}

func TestExecuteWrapsForeignErrors(t *testing.T) {
	boom := errors.New("socket exploded")
	x := newFake(ProviderAnthropic, fail(boom))
	h := newHarness(RetryPolicy{MaxRetries: 3}, FallbackConfig{}, x)

	_, err := h.executor.Execute(context.Background(), x, ModelConfig{}, &Request{Prompt: "plan"})
	require.Error(t, err)

	assert.Equal(t, 1, x.callCount(), "unknown errors are not retried")
	assert.ErrorIs(t, err, boom)
	llmErr, ok := AsLLMError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorUnknown, llmErr.Type)
	assert.Equal(t, ProviderAnthropic, llmErr.Provider)
}

func TestExecutePinsModelProvider(t *testing.T) {
	x := newFake(ProviderAnthropic)
	h := newHarness(RetryPolicy{}, FallbackConfig{}, x)

	req := &Request{Prompt: "plan", Model: ModelConfig{Provider: ProviderOpenAI, Model: "gpt"}}
	_, err := h.executor.Execute(context.Background(), x, ModelConfig{Provider: ProviderOpenAI, Model: "claude"}, req)
	require.NoError(t, err)

	sent := x.call(0)
	assert.Equal(t, ProviderAnthropic, sent.Model.Provider)
	assert.Equal(t, "claude", sent.Model.Model)
	assert.Equal(t, ProviderOpenAI, req.Model.Provider, "caller request must not be mutated")
}

func TestExecuteCanceledDuringBackoff(t *testing.T) {
	x := newFake(ProviderOpenAI, rateLimited(ProviderOpenAI))
	executor := NewExecutor(ExecutorConfig{
		Policy: RetryPolicy{MaxRetries: 3, BaseDelay: time.Second},
		Logger: discardLogger(),
		Sleep: func(context.Context, time.Duration) error {
			return context.Canceled
		},
	})

	_, err := executor.Execute(context.Background(), x, ModelConfig{}, &Request{Prompt: "plan"})
	require.Error(t, err)

	assert.Equal(t, 1, x.callCount())
	assert.ErrorIs(t, err, context.Canceled)
	llmErr, _ := AsLLMError(err)
	assert.Equal(t, ErrorCanceled, llmErr.Type)
	assert.False(t, llmErr.Retryable)
}

func TestExecutePublishesEvents(t *testing.T) {
	x := newFake(ProviderOpenAI, rateLimited(ProviderOpenAI), succeed(ProviderOpenAI, "ok"))
	h := newHarness(RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}, FallbackConfig{}, x)

	var attempts []AttemptEvent
	var retries []RetryEvent
	h.bus.Subscribe(eventbus.TopicLLMAttempt, func(e eventbus.Event) {
		attempts = append(attempts, e.Payload.(AttemptEvent))
	})
	h.bus.Subscribe(eventbus.TopicLLMRetry, func(e eventbus.Event) {
		retries = append(retries, e.Payload.(RetryEvent))
	})

	_, err := h.executor.Execute(context.Background(), x, ModelConfig{}, &Request{ID: "req-7", Prompt: "plan"})
	require.NoError(t, err)

	require.Len(t, attempts, 2)
	assert.Equal(t, 1, attempts[0].Attempt)
	require.NotNil(t, attempts[0].Err)
	assert.Equal(t, ErrorRateLimit, attempts[0].Err.Type)
	assert.Equal(t, 2, attempts[1].Attempt)
	assert.Nil(t, attempts[1].Err)
	assert.Equal(t, "req-7", attempts[1].RequestID)

	require.Len(t, retries, 1)
	assert.Equal(t, time.Millisecond, retries[0].Delay)
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sleepContext(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}
