package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"planforge/internal/eventbus"
)

// FallbackConfig configures the Orchestrator.
type FallbackConfig struct {
	Enabled bool
	// MaxProviders caps how many alternates are tried after the primary
	// fails. Zero tries every configured provider.
	MaxProviders int
	Bus          *eventbus.Bus
	Logger       *slog.Logger
}

// Orchestrator is the entry point for generation with retry and fallback.
// It resolves the primary provider through the Registry, drives it with the
// Executor and moves on to the remaining configured providers when the
// primary fails for good.
type Orchestrator struct {
	registry *Registry
	executor *Executor
	cfg      FallbackConfig
	logger   *slog.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(registry *Registry, executor *Executor, cfg FallbackConfig) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxProviders < 0 {
		cfg.MaxProviders = 0
	}
	return &Orchestrator{
		registry: registry,
		executor: executor,
		cfg:      cfg,
		logger:   logger.With("component", "orchestrator"),
	}
}

// Registry returns the registry the orchestrator selects from.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Generate runs req against the preferred provider (req.Model.Provider) or
// the registry default, falling back to the other configured providers in
// registration order.
func (o *Orchestrator) Generate(ctx context.Context, req *Request) (*Response, error) {
	log := o.logger.With("request_id", req.ID)

	sel, err := o.registry.Select(req.Model.Provider)
	if err != nil {
		log.Error("provider selection failed", "error", err)
		o.publishFailure(req.ID, req.Model.Provider, err)
		return nil, err
	}

	keepModel := req.Model.Provider == "" || req.Model.Provider == sel.ID
	primaryModel := sel.Model.withOverrides(req.Model, keepModel)

	resp, err := o.executor.Execute(ctx, sel.Provider, primaryModel, req)
	if err == nil {
		return resp, nil
	}

	primaryErr, ok := AsLLMError(err)
	switch {
	case !ok:
		o.publishFailure(req.ID, sel.ID, err)
		return nil, err
	case !o.cfg.Enabled:
		log.Debug("fallback disabled", "provider", sel.ID)
		o.publishFailure(req.ID, sel.ID, err)
		return nil, err
	case req.IsFallbackAttempt:
		log.Debug("request is already a fallback attempt", "provider", sel.ID)
		o.publishFailure(req.ID, sel.ID, err)
		return nil, err
	case primaryErr.Type == ErrorCanceled || ctx.Err() != nil:
		o.publishFailure(req.ID, sel.ID, err)
		return nil, err
	}

	candidates := o.candidates(sel.ID)
	failures := make([]*LLMError, 0, len(candidates))
	for _, id := range candidates {
		p, ok := o.registry.Get(id)
		if !ok {
			continue
		}
		model := o.registry.Model(id).withOverrides(req.Model, false)

		log.Info("falling back to alternate provider",
			"from", sel.ID, "to", id, "reason", primaryErr.Type.String())
		o.cfg.Bus.Publish(eventbus.TopicLLMFallback, FallbackEvent{
			RequestID: req.ID,
			From:      sel.ID,
			To:        id,
			Err:       primaryErr,
		})

		resp, err := o.executor.Execute(ctx, p, model, req.withModel(model, true))
		if err == nil {
			resp.FallbackFrom = sel.ID
			log.Info("fallback provider succeeded", "provider", id, "primary", sel.ID)
			return resp, nil
		}

		fbErr := normalizeError(id, err)
		failures = append(failures, fbErr)
		log.Warn("fallback provider failed", "provider", id, "error", fbErr.Error())

		if ctx.Err() != nil {
			break
		}
	}

	exhausted := exhaustedError(sel.ID, primaryErr, failures)
	log.Error("all providers failed", "primary", sel.ID, "fallbacks", len(failures))
	o.publishFailure(req.ID, sel.ID, exhausted)
	return nil, exhausted
}

// candidates lists the configured providers other than primary, in
// registration order, capped by MaxProviders.
func (o *Orchestrator) candidates(primary ProviderID) []ProviderID {
	var ids []ProviderID
	for _, id := range o.registry.Available() {
		if id == primary {
			continue
		}
		ids = append(ids, id)
		if o.cfg.MaxProviders > 0 && len(ids) == o.cfg.MaxProviders {
			break
		}
	}
	return ids
}

func (o *Orchestrator) publishFailure(requestID string, provider ProviderID, err error) {
	llmErr, ok := AsLLMError(err)
	if !ok {
		llmErr = unexpectedError(provider, err)
	}
	o.cfg.Bus.Publish(eventbus.TopicLLMFailure, FailureEvent{
		RequestID: requestID,
		Provider:  provider,
		Err:       llmErr,
	})
}

// exhaustedError consolidates the primary failure and every fallback failure
// into one error naming each provider tried.
func exhaustedError(primary ProviderID, primaryErr *LLMError, failures []*LLMError) *LLMError {
	var b strings.Builder
	fmt.Fprintf(&b, "all providers failed: primary provider %s failed: %s", primary, primaryErr.Error())

	if len(failures) == 0 {
		b.WriteString("; no fallback providers available")
	} else {
		ids := make([]ProviderID, len(failures))
		reasons := make([]string, len(failures))
		for i, f := range failures {
			ids[i] = f.Provider
			reasons[i] = f.Error()
		}
		fmt.Fprintf(&b, "; fallback providers attempted: %s (%s)", joinIDs(ids), strings.Join(reasons, "; "))
	}

	causes := make([]*LLMError, 0, len(failures)+1)
	causes = append(causes, primaryErr)
	causes = append(causes, failures...)
	errs := make([]error, len(causes))
	for i, c := range causes {
		errs[i] = c
	}

	return &LLMError{
		Type:       ErrorExhausted,
		Message:    b.String(),
		Provider:   primary,
		StatusCode: primaryErr.StatusCode,
		Attempts:   primaryErr.Attempts,
		Causes:     causes,
		Err:        errors.Join(errs...),
	}
}
