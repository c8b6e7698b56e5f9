package observability

import (
	"planforge/internal/eventbus"
	"planforge/internal/llm"
)

const unknownModel = "unknown"

// Subscribe feeds orchestration events from bus into the metrics.
func Subscribe(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.TopicLLMAttempt, func(e eventbus.Event) {
		if ev, ok := e.Payload.(llm.AttemptEvent); ok {
			ObserveAttempt(ev)
		}
	})
	bus.Subscribe(eventbus.TopicLLMRetry, func(e eventbus.Event) {
		if ev, ok := e.Payload.(llm.RetryEvent); ok {
			ProviderRetriesTotal.WithLabelValues(string(ev.Provider), errorLabel(ev.Err)).Inc()
		}
	})
	bus.Subscribe(eventbus.TopicLLMFallback, func(e eventbus.Event) {
		if ev, ok := e.Payload.(llm.FallbackEvent); ok {
			FallbacksTotal.WithLabelValues(string(ev.From), string(ev.To)).Inc()
		}
	})
	bus.Subscribe(eventbus.TopicLLMFailure, func(e eventbus.Event) {
		if ev, ok := e.Payload.(llm.FailureEvent); ok {
			GenerationFailuresTotal.WithLabelValues(string(ev.Provider), errorLabel(ev.Err)).Inc()
		}
	})
	bus.Subscribe(eventbus.TopicPlanCompleted, func(eventbus.Event) {
		PlansTotal.WithLabelValues("completed").Inc()
	})
	bus.Subscribe(eventbus.TopicPlanFailed, func(eventbus.Event) {
		PlansTotal.WithLabelValues("failed").Inc()
	})
}

// ObserveAttempt records one provider attempt.
func ObserveAttempt(ev llm.AttemptEvent) {
	provider := string(ev.Provider)
	model := ev.Model
	if model == "" {
		model = unknownModel
	}

	status := "ok"
	if ev.Err != nil {
		status = errorLabel(ev.Err)
	}
	ProviderRequestsTotal.WithLabelValues(provider, model, status).Inc()
	ProviderLatency.WithLabelValues(provider, model).Observe(ev.Duration.Seconds())

	if ev.Usage != nil {
		ProviderTokensTotal.WithLabelValues(provider, model, "input").Add(float64(ev.Usage.PromptTokens))
		ProviderTokensTotal.WithLabelValues(provider, model, "output").Add(float64(ev.Usage.CompletionTokens))
	}
}

func errorLabel(err *llm.LLMError) string {
	if err == nil {
		return llm.ErrorUnknown.String()
	}
	return err.Type.String()
}
