package journal

import (
	"context"
	"log/slog"
	"time"

	"planforge/internal/eventbus"
	"planforge/internal/llm"
)

const recordTimeout = 2 * time.Second

// Subscribe records every llm.AttemptEvent published on bus into j.
// Write failures are logged and never reach the caller of the provider.
func Subscribe(bus *eventbus.Bus, j Journal, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "journal")

	bus.Subscribe(eventbus.TopicLLMAttempt, func(e eventbus.Event) {
		ev, ok := e.Payload.(llm.AttemptEvent)
		if !ok {
			return
		}
		a := FromEvent(ev, e.Timestamp)

		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := j.Record(ctx, a); err != nil {
			logger.Warn("failed to record attempt",
				"request_id", a.RequestID, "provider", a.Provider, "error", err)
		}
	})
}

// FromEvent converts an attempt event into a journal row.
func FromEvent(ev llm.AttemptEvent, at time.Time) Attempt {
	a := Attempt{
		RequestID: ev.RequestID,
		Provider:  string(ev.Provider),
		Model:     ev.Model,
		Attempt:   ev.Attempt,
		Fallback:  ev.Fallback,
		Outcome:   OutcomeSuccess,
		LatencyMS: ev.Duration.Milliseconds(),
		CreatedAt: at,
	}
	if ev.Usage != nil {
		a.PromptTokens = ev.Usage.PromptTokens
		a.CompletionTokens = ev.Usage.CompletionTokens
	}
	if ev.Err != nil {
		a.Outcome = OutcomeFailure
		a.ErrorType = ev.Err.Type.String()
		a.ErrorMessage = ev.Err.Message
		a.StatusCode = ev.Err.StatusCode
	}
	return a
}
