package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"planforge/internal/eventbus"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second

	// maxBackoffShift keeps base<<shift from overflowing.
	maxBackoffShift = 30
)

// Sleeper waits for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	// Policy applies to requests that carry no RetryPolicy of their own.
	Policy RetryPolicy
	Bus    *eventbus.Bus
	Logger *slog.Logger
	// Sleep replaces the real timer in tests.
	Sleep Sleeper
}

// Executor runs a request against a single provider, re-invoking it on
// retryable failures with exponential backoff.
type Executor struct {
	policy RetryPolicy
	bus    *eventbus.Bus
	logger *slog.Logger
	sleep  Sleeper
}

// NewExecutor creates an executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	e := &Executor{
		policy: normalizePolicy(cfg.Policy),
		bus:    cfg.Bus,
		logger: cfg.Logger,
		sleep:  cfg.Sleep,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "executor")
	if e.sleep == nil {
		e.sleep = sleepContext
	}
	return e
}

// Policy returns the executor's default retry policy.
func (e *Executor) Policy() RetryPolicy {
	return e.policy
}

func normalizePolicy(p RetryPolicy) RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	return p
}

// Backoff returns the wait before the retry that follows failed attempt n
// (1-based): base * 2^(n-1).
func Backoff(base time.Duration, n int) time.Duration {
	if n < 1 {
		n = 1
	}
	shift := n - 1
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	return base << shift
}

// Execute calls p at most MaxRetries+1 times. It stops at the first success,
// the first non-retryable error or when ctx is done. The returned error is
// always an *LLMError annotated with the number of attempts made.
func (e *Executor) Execute(ctx context.Context, p Provider, model ModelConfig, req *Request) (*Response, error) {
	id := p.ID()
	model.Provider = id
	req = req.withModel(model, false)

	policy := e.policy
	if req.Retry != nil {
		policy = normalizePolicy(*req.Retry)
	}
	maxAttempts := policy.MaxRetries + 1

	log := e.logger.With("request_id", req.ID, "provider", id, "fallback", req.IsFallbackAttempt)

	var lastErr *LLMError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := time.Now()
		resp, err := p.Generate(ctx, req)
		elapsed := time.Since(start)

		if err == nil && resp == nil {
			err = emptyResponseError(id)
		}
		if err == nil {
			resp.Attempts = attempt
			if resp.Provider == "" {
				resp.Provider = id
			}
			e.bus.Publish(eventbus.TopicLLMAttempt, AttemptEvent{
				RequestID: req.ID,
				Provider:  id,
				Model:     resp.Model,
				Attempt:   attempt,
				Fallback:  req.IsFallbackAttempt,
				Duration:  elapsed,
				Usage:     resp.Usage,
			})
			if attempt > 1 {
				log.Info("provider call succeeded after retry", "attempts", attempt)
			}
			return resp, nil
		}

		llmErr := normalizeError(id, err)
		e.bus.Publish(eventbus.TopicLLMAttempt, AttemptEvent{
			RequestID: req.ID,
			Provider:  id,
			Model:     req.Model.Model,
			Attempt:   attempt,
			Fallback:  req.IsFallbackAttempt,
			Duration:  elapsed,
			Err:       llmErr,
		})
		lastErr = llmErr

		if !llmErr.Retryable {
			log.Warn("provider call failed, not retryable",
				"attempt", attempt, "error_type", llmErr.Type.String(), "error", llmErr.Error())
			return nil, llmErr.withAttempts(attempt)
		}
		if attempt == maxAttempts {
			break
		}

		delay := Backoff(policy.BaseDelay, attempt)
		log.Warn("provider call failed, retrying",
			"attempt", attempt, "max_attempts", maxAttempts, "delay", delay,
			"error_type", llmErr.Type.String(), "error", llmErr.Error())
		e.bus.Publish(eventbus.TopicLLMRetry, RetryEvent{
			RequestID: req.ID,
			Provider:  id,
			Attempt:   attempt,
			Delay:     delay,
			Err:       llmErr,
		})

		if err := e.sleep(ctx, delay); err != nil {
			return nil, &LLMError{
				Type:     ErrorCanceled,
				Message:  fmt.Sprintf("retry wait interrupted: %v", err),
				Provider: id,
				Attempts: attempt,
				Err:      err,
			}
		}
	}

	log.Error("provider retries exhausted",
		"attempts", maxAttempts, "error_type", lastErr.Type.String(), "error", lastErr.Error())
	return nil, lastErr.withAttempts(maxAttempts)
}

// normalizeError folds anything an adapter returns into an *LLMError.
// Errors outside the taxonomy are wrapped as unknown and never retried.
func normalizeError(id ProviderID, err error) *LLMError {
	llmErr, ok := AsLLMError(err)
	if !ok {
		return unexpectedError(id, err)
	}
	if llmErr.Provider == "" {
		clone := *llmErr
		clone.Provider = id
		return &clone
	}
	return llmErr
}
