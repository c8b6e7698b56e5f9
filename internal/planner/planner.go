// Package planner turns a task description into an implementation plan by
// driving the LLM orchestrator.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"planforge/internal/eventbus"
	"planforge/internal/llm"
	"planforge/internal/logging"
	"planforge/internal/prompt"
	"planforge/internal/security"
)

// Generator produces text for one request. *llm.Orchestrator implements it.
type Generator interface {
	Generate(ctx context.Context, req *llm.Request) (*llm.Response, error)
}

// PlanRequest is the input for one plan.
type PlanRequest struct {
	// RequestID correlates logs and journal rows. Generated when empty.
	RequestID string           `json:"request_id,omitempty"`
	Task      string           `json:"task"`
	Analysis  *prompt.Analysis `json:"analysis,omitempty"`
	// Provider is the preferred backend; empty uses the configured default.
	Provider  llm.ProviderID `json:"provider,omitempty"`
	Model     string         `json:"model,omitempty"`
	MaxTokens int            `json:"max_tokens,omitempty"`
	// Temperature overrides the configured value when non-nil.
	Temperature *float64 `json:"temperature,omitempty"`
}

// Plan is a generated implementation plan.
type Plan struct {
	ID           string         `json:"id"`
	RequestID    string         `json:"request_id"`
	Content      string         `json:"content"`
	Provider     llm.ProviderID `json:"provider"`
	Model        string         `json:"model"`
	Usage        *llm.Usage     `json:"usage,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Attempts     int            `json:"attempts"`
	FallbackUsed bool           `json:"fallback_used"`
	FallbackFrom llm.ProviderID `json:"fallback_from,omitempty"`
	Redactions   int            `json:"redactions,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	Duration     time.Duration  `json:"duration"`
}

// Title returns the plan's first heading.
func (p *Plan) Title() string {
	return prompt.Title(p.Content)
}

// Config configures a Service.
type Config struct {
	Sanitizer *security.Sanitizer
	Bus       *eventbus.Bus
	Logger    *slog.Logger
	// Now is the clock used for CreatedAt and Duration.
	Now func() time.Time
}

// Service generates plans. It is safe for concurrent use.
type Service struct {
	gen       Generator
	sanitizer *security.Sanitizer
	bus       *eventbus.Bus
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a plan service on top of gen.
func NewService(gen Generator, cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		gen:       gen,
		sanitizer: cfg.Sanitizer,
		bus:       cfg.Bus,
		logger:    logger.With("component", "planner"),
		now:       now,
	}
}

// Generate builds the prompt for req, runs it through the generator and
// returns the normalized plan. PII in the task and analysis is replaced with
// placeholders before anything leaves the process and restored in the plan.
func (s *Service) Generate(ctx context.Context, req PlanRequest) (*Plan, error) {
	start := s.now()
	if req.RequestID == "" {
		req.RequestID = newID()
	}
	log := s.logger.With("request_id", req.RequestID)

	plan, err := s.generate(ctx, req, start)
	if err != nil {
		log.Error("plan generation failed", logging.Err(err))
		s.bus.Publish(eventbus.TopicPlanFailed, PlanFailedEvent{
			RequestID: req.RequestID,
			Provider:  req.Provider,
			Err:       err,
		})
		return nil, err
	}

	log.Info("plan generated",
		"plan_id", plan.ID,
		"provider", plan.Provider,
		"model", plan.Model,
		"attempts", plan.Attempts,
		"fallback", plan.FallbackUsed,
		"duration", plan.Duration,
	)
	s.bus.Publish(eventbus.TopicPlanCompleted, PlanCompletedEvent{Plan: plan})
	return plan, nil
}

func (s *Service) generate(ctx context.Context, req PlanRequest, start time.Time) (*Plan, error) {
	session := s.sanitizer.Session()
	task := session.Sanitize(req.Task)
	analysis := sanitizeAnalysis(session, req.Analysis)

	system, user, err := prompt.Build(task, analysis)
	if err != nil {
		return nil, err
	}

	resp, err := s.gen.Generate(ctx, &llm.Request{
		ID:           req.RequestID,
		Prompt:       user,
		SystemPrompt: system,
		Model: llm.ModelConfig{
			Provider:    req.Provider,
			Model:       req.Model,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		},
	})
	if err != nil {
		return nil, err
	}

	content, err := prompt.Normalize(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("%s returned an unusable plan: %w", resp.Provider, err)
	}

	created := s.now()
	return &Plan{
		ID:           newID(),
		RequestID:    req.RequestID,
		Content:      session.Restore(content),
		Provider:     resp.Provider,
		Model:        resp.Model,
		Usage:        resp.Usage,
		FinishReason: resp.FinishReason,
		Attempts:     resp.Attempts,
		FallbackUsed: resp.FallbackFrom != "",
		FallbackFrom: resp.FallbackFrom,
		Redactions:   session.Redactions(),
		CreatedAt:    created,
		Duration:     created.Sub(start),
	}, nil
}

func sanitizeAnalysis(session *security.Session, a *prompt.Analysis) *prompt.Analysis {
	if a == nil {
		return nil
	}
	clean := *a
	clean.ProjectName = session.Sanitize(a.ProjectName)
	clean.Summary = session.Sanitize(a.Summary)
	clean.Dependencies = sanitizeAll(session, a.Dependencies)
	clean.KeyFiles = sanitizeAll(session, a.KeyFiles)
	return &clean
}

func sanitizeAll(session *security.Session, items []string) []string {
	if items == nil {
		return nil
	}
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = session.Sanitize(item)
	}
	return out
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
