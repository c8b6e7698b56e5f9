package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"planforge/internal/journal"
	"planforge/internal/llm"
	"planforge/internal/logging"
	"planforge/internal/planner"
	"planforge/internal/prompt"
	"planforge/internal/security"
)

const (
	maxAttemptsLimit = 500
	statsWindow      = 24 * time.Hour
)

type createPlanRequest struct {
	Task        string           `json:"task"`
	Analysis    *prompt.Analysis `json:"analysis,omitempty"`
	Provider    string           `json:"provider,omitempty"`
	Model       string           `json:"model,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodySize)

	var body createPlanRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, apiError{Type: "invalid_request", Message: "request body too large"})
			return
		}
		badRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	provider, err := llm.ParseProviderID(body.Provider)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if body.MaxTokens < 0 || (body.Temperature != nil && *body.Temperature < 0) {
		badRequest(w, "max_tokens and temperature must not be negative")
		return
	}

	plan, err := s.deps.Planner.Generate(r.Context(), planner.PlanRequest{
		RequestID:   RequestIDFromContext(r.Context()),
		Task:        body.Task,
		Analysis:    body.Analysis,
		Provider:    provider,
		Model:       body.Model,
		MaxTokens:   body.MaxTokens,
		Temperature: body.Temperature,
	})
	if err != nil {
		status, apiErr := toAPIError(err)
		writeError(w, status, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

type providerInfo struct {
	ID          llm.ProviderID         `json:"id"`
	Configured  bool                   `json:"configured"`
	Default     bool                   `json:"default"`
	Model       string                 `json:"model,omitempty"`
	MaxTokens   int                    `json:"max_tokens,omitempty"`
	Temperature *float64               `json:"temperature,omitempty"`
	KeyHint     string                 `json:"key_hint,omitempty"`
	Stats       *journal.ProviderStats `json:"stats,omitempty"`
}

type providersResponse struct {
	Default   llm.ProviderID `json:"default,omitempty"`
	Providers []providerInfo `json:"providers"`
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	registry := s.deps.Registry
	defaultID, _ := registry.Default()

	stats := make(map[string]journal.ProviderStats)
	if s.deps.Journal != nil {
		rows, err := s.deps.Journal.Stats(r.Context(), time.Now().Add(-statsWindow))
		if err != nil {
			s.logger.Warn("provider stats unavailable", logging.Err(err))
		}
		for _, row := range rows {
			stats[row.Provider] = row
		}
	}

	resp := providersResponse{Default: defaultID}
	for _, id := range registry.Registered() {
		p, _ := registry.Get(id)
		model := registry.Model(id)
		info := providerInfo{
			ID:          id,
			Configured:  p.IsConfigured(),
			Default:     id == defaultID,
			Model:       model.Model,
			MaxTokens:   model.MaxTokens,
			Temperature: model.Temperature,
		}
		if s.deps.Config != nil {
			if key := s.deps.Config.Provider(string(id)).APIKey; key != "" {
				info.KeyHint = security.MaskKey(key)
			}
		}
		if st, ok := stats[string(id)]; ok {
			info.Stats = &st
		}
		resp.Providers = append(resp.Providers, info)
	}
	writeJSON(w, http.StatusOK, resp)
}

type attemptsResponse struct {
	Attempts []journal.Attempt `json:"attempts"`
}

func (s *Server) handleAttempts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		writeError(w, http.StatusServiceUnavailable, apiError{Type: "unavailable", Message: "attempt journal is disabled"})
		return
	}

	q := journal.Query{
		RequestID: r.URL.Query().Get("request_id"),
		Provider:  r.URL.Query().Get("provider"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxAttemptsLimit {
			badRequest(w, fmt.Sprintf("limit must be between 1 and %d", maxAttemptsLimit))
			return
		}
		q.Limit = limit
	}

	attempts, err := s.deps.Journal.Recent(r.Context(), q)
	if err != nil {
		s.logger.Error("list attempts failed", logging.Err(err))
		writeError(w, http.StatusInternalServerError, apiError{Type: "internal", Message: "could not read attempt journal"})
		return
	}
	if attempts == nil {
		attempts = []journal.Attempt{}
	}
	writeJSON(w, http.StatusOK, attemptsResponse{Attempts: attempts})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	available := s.deps.Registry.Available()
	status := "ok"
	if len(available) == 0 {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"providers": available,
	})
}
