package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planforge/internal/config"
	"planforge/internal/journal"
	"planforge/internal/llm"
	"planforge/internal/planner"
	"planforge/internal/prompt"
)

var discardLogger = slog.New(slog.DiscardHandler)

type stubProvider struct {
	id         llm.ProviderID
	configured bool
}

func (p *stubProvider) ID() llm.ProviderID { return p.id }
func (p *stubProvider) IsConfigured() bool { return p.configured }
func (p *stubProvider) Generate(context.Context, *llm.Request) (*llm.Response, error) {
	return nil, errors.New("not used")
}

type stubPlanner struct {
	mu   sync.Mutex
	got  []planner.PlanRequest
	plan *planner.Plan
	err  error
	fn   func()
}

func (p *stubPlanner) Generate(_ context.Context, req planner.PlanRequest) (*planner.Plan, error) {
	p.mu.Lock()
	p.got = append(p.got, req)
	p.mu.Unlock()
	if p.fn != nil {
		p.fn()
	}
	return p.plan, p.err
}

type stubJournal struct {
	attempts []journal.Attempt
	stats    []journal.ProviderStats
	err      error
	lastQ    journal.Query
}

func (j *stubJournal) Record(context.Context, journal.Attempt) error { return nil }
func (j *stubJournal) Recent(_ context.Context, q journal.Query) ([]journal.Attempt, error) {
	j.lastQ = q
	return j.attempts, j.err
}
func (j *stubJournal) Stats(context.Context, time.Time) ([]journal.ProviderStats, error) {
	return j.stats, j.err
}
func (j *stubJournal) Close() error { return nil }

func newRegistry() *llm.Registry {
	return llm.NewRegistry(llm.RegistryConfig{
		Default: llm.ProviderAnthropic,
		Models: map[llm.ProviderID]llm.ModelConfig{
			llm.ProviderOpenAI: {Model: "gpt-test", MaxTokens: 2048, Temperature: llm.Float(0.5)},
		},
	}, discardLogger,
		&stubProvider{id: llm.ProviderOpenAI, configured: true},
		&stubProvider{id: llm.ProviderAnthropic},
	)
}

func newTestServer(deps Deps) http.Handler {
	if deps.Registry == nil {
		deps.Registry = newRegistry()
	}
	return New(deps, Config{Logger: discardLogger}).Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apiError {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestCreatePlan(t *testing.T) {
	p := &stubPlanner{plan: &planner.Plan{ID: "plan-1", Content: "# Plan\n", Provider: llm.ProviderOpenAI}}
	h := newTestServer(Deps{Planner: p})

	req := httptest.NewRequest(http.MethodPost, "/v1/plans",
		strings.NewReader(`{"task":"add login","provider":"OpenAI","max_tokens":500,"analysis":{"project_name":"shop"}}`))
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var plan planner.Plan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plan))
	assert.Equal(t, "plan-1", plan.ID)

	require.Len(t, p.got, 1)
	got := p.got[0]
	assert.Equal(t, "req-42", got.RequestID)
	assert.Equal(t, "add login", got.Task)
	assert.Equal(t, llm.ProviderOpenAI, got.Provider)
	assert.Equal(t, 500, got.MaxTokens)
	assert.Nil(t, got.Temperature)
	require.NotNil(t, got.Analysis)
	assert.Equal(t, "shop", got.Analysis.ProjectName)
}

func TestCreatePlanZeroTemperature(t *testing.T) {
	p := &stubPlanner{plan: &planner.Plan{ID: "plan-1"}}
	rec := do(t, newTestServer(Deps{Planner: p}), http.MethodPost, "/v1/plans", `{"task":"x","temperature":0}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, p.got, 1)
	require.NotNil(t, p.got[0].Temperature)
	assert.Zero(t, *p.got[0].Temperature)
}

func TestCreatePlanGeneratesRequestID(t *testing.T) {
	p := &stubPlanner{plan: &planner.Plan{ID: "plan-1"}}
	rec := do(t, newTestServer(Deps{Planner: p}), http.MethodPost, "/v1/plans", `{"task":"x"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	id := rec.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, p.got[0].RequestID)
}

func TestCreatePlanBadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed json", `{"task":`, "invalid JSON body"},
		{"unknown field", `{"task":"x","prompt":"y"}`, "invalid JSON body"},
		{"unknown provider", `{"task":"x","provider":"mistral"}`, "unknown LLM provider: mistral"},
		{"negative tokens", `{"task":"x","max_tokens":-1}`, "must not be negative"},
		{"negative temperature", `{"task":"x","temperature":-0.5}`, "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &stubPlanner{}
			rec := do(t, newTestServer(Deps{Planner: p}), http.MethodPost, "/v1/plans", tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			apiErr := decodeError(t, rec)
			assert.Equal(t, "invalid_request", apiErr.Type)
			assert.Contains(t, apiErr.Message, tt.want)
			assert.Empty(t, p.got)
		})
	}
}

func TestCreatePlanBodyTooLarge(t *testing.T) {
	p := &stubPlanner{}
	h := New(Deps{Planner: p, Registry: newRegistry()}, Config{MaxBodySize: 16, Logger: discardLogger}).Handler()

	rec := do(t, h, http.MethodPost, "/v1/plans", `{"task":"`+strings.Repeat("x", 64)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, p.got)
}

func TestCreatePlanErrors(t *testing.T) {
	exhausted := &llm.LLMError{
		Type:    llm.ErrorExhausted,
		Message: "all providers failed",
		Causes: []*llm.LLMError{
			{Type: llm.ErrorAuth, Message: "bad key", Provider: llm.ProviderOpenAI, StatusCode: 401},
			{Type: llm.ErrorRateLimit, Message: "slow down", Provider: llm.ProviderGemini, StatusCode: 429, Attempts: 3},
		},
	}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"no providers", &llm.LLMError{Type: llm.ErrorNoProviders, Message: "no LLM providers configured"}, http.StatusServiceUnavailable, "no_providers"},
		{"not configured", &llm.LLMError{Type: llm.ErrorNotConfigured, Message: "not configured", Provider: llm.ProviderGemini}, http.StatusServiceUnavailable, "not_configured"},
		{"invalid input", &llm.LLMError{Type: llm.ErrorInvalidInput, Message: "bad request", Provider: llm.ProviderOpenAI, StatusCode: 400}, http.StatusBadRequest, "invalid_input"},
		{"exhausted", exhausted, http.StatusBadGateway, "exhausted"},
		{"canceled", &llm.LLMError{Type: llm.ErrorCanceled, Message: "request canceled"}, statusClientClosed, "canceled"},
		{"empty task", prompt.ErrEmptyTask, http.StatusBadRequest, "invalid_request"},
		{"task too long", fmt.Errorf("%w: limit", prompt.ErrTaskTooLong), http.StatusBadRequest, "invalid_request"},
		{"unusable plan", fmt.Errorf("openai returned an unusable plan: %w", prompt.ErrEmptyPlan), http.StatusBadGateway, "upstream_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(Deps{Planner: &stubPlanner{err: tt.err}})
			rec := do(t, h, http.MethodPost, "/v1/plans", `{"task":"x"}`)

			require.Equal(t, tt.wantStatus, rec.Code)
			apiErr := decodeError(t, rec)
			assert.Equal(t, tt.wantType, apiErr.Type)
			assert.Equal(t, tt.err.Error(), apiErr.Message)
		})
	}
}

func TestErrorCausesAreSerialized(t *testing.T) {
	err := &llm.LLMError{
		Type:    llm.ErrorExhausted,
		Message: "all providers failed",
		Causes: []*llm.LLMError{
			{Type: llm.ErrorAuth, Message: "bad key", Provider: llm.ProviderOpenAI, StatusCode: 401},
		},
	}
	status, body := toAPIError(err)
	assert.Equal(t, http.StatusBadGateway, status)
	require.Len(t, body.Causes, 1)
	assert.Equal(t, "auth", body.Causes[0].Type)
	assert.Equal(t, "openai", body.Causes[0].Provider)
	assert.Equal(t, 401, body.Causes[0].StatusCode)
	assert.Equal(t, "openai: bad key (status 401)", body.Causes[0].Message)
}

func TestProviders(t *testing.T) {
	cfg := config.Defaults()
	cfg.SetProvider("openai", config.ProviderConfig{APIKey: "sk-abcdefghijkl"})
	j := &stubJournal{stats: []journal.ProviderStats{{Provider: "openai", Attempts: 4, Failures: 1, AvgLatencyMS: 120}}}

	rec := do(t, newTestServer(Deps{Journal: j, Config: cfg}), http.MethodGet, "/v1/providers", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp providersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// anthropic is not configured, so the first available provider is the default.
	assert.Equal(t, llm.ProviderOpenAI, resp.Default)
	require.Len(t, resp.Providers, 2)

	openai := resp.Providers[0]
	assert.Equal(t, llm.ProviderOpenAI, openai.ID)
	assert.True(t, openai.Configured)
	assert.True(t, openai.Default)
	assert.Equal(t, "gpt-test", openai.Model)
	assert.Equal(t, 2048, openai.MaxTokens)
	require.NotNil(t, openai.Temperature)
	assert.InDelta(t, 0.5, *openai.Temperature, 1e-9)
	assert.Equal(t, "sk-...ijkl", openai.KeyHint)
	require.NotNil(t, openai.Stats)
	assert.Equal(t, 4, openai.Stats.Attempts)

	anthropic := resp.Providers[1]
	assert.Equal(t, llm.ProviderAnthropic, anthropic.ID)
	assert.False(t, anthropic.Configured)
	assert.False(t, anthropic.Default)
	assert.Empty(t, anthropic.KeyHint)
	assert.Nil(t, anthropic.Stats)
}

func TestProvidersWithoutJournal(t *testing.T) {
	rec := do(t, newTestServer(Deps{}), http.MethodGet, "/v1/providers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"stats"`)
}

func TestAttempts(t *testing.T) {
	j := &stubJournal{attempts: []journal.Attempt{{ID: 2, RequestID: "r1", Provider: "openai", Outcome: journal.OutcomeSuccess}}}
	h := newTestServer(Deps{Journal: j})

	rec := do(t, h, http.MethodGet, "/v1/attempts?limit=10&provider=openai&request_id=r1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp attemptsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Attempts, 1)
	assert.Equal(t, "r1", resp.Attempts[0].RequestID)
	assert.Equal(t, journal.Query{RequestID: "r1", Provider: "openai", Limit: 10}, j.lastQ)
}

func TestAttemptsEmptyListIsArray(t *testing.T) {
	rec := do(t, newTestServer(Deps{Journal: &stubJournal{}}), http.MethodGet, "/v1/attempts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"attempts":[]}`, rec.Body.String())
}

func TestAttemptsErrors(t *testing.T) {
	rec := do(t, newTestServer(Deps{}), http.MethodGet, "/v1/attempts", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h := newTestServer(Deps{Journal: &stubJournal{}})
	for _, limit := range []string{"0", "-3", "abc", "501"} {
		rec := do(t, h, http.MethodGet, "/v1/attempts?limit="+limit, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
	}

	rec = do(t, newTestServer(Deps{Journal: &stubJournal{err: errors.New("disk full")}}), http.MethodGet, "/v1/attempts", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk full")
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(Deps{}), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","providers":["openai"]}`, rec.Body.String())

	empty := llm.NewRegistry(llm.RegistryConfig{}, discardLogger)
	rec = do(t, newTestServer(Deps{Registry: empty}), http.MethodGet, "/healthz", "")
	assert.JSONEq(t, `{"status":"degraded","providers":[]}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(Deps{})
	do(t, h, http.MethodGet, "/healthz", "")

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "planforge_http_requests_total")
}

func TestMethodNotAllowed(t *testing.T) {
	rec := do(t, newTestServer(Deps{}), http.MethodGet, "/v1/plans", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRecovery(t *testing.T) {
	p := &stubPlanner{fn: func() { panic("boom") }}
	rec := do(t, newTestServer(Deps{Planner: p}), http.MethodPost, "/v1/plans", `{"task":"x"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal", decodeError(t, rec).Type)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(Deps{Registry: newRegistry()}, Config{Logger: discardLogger, ShutdownTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
