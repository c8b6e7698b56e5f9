package llm

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"planforge/internal/eventbus"
)

type fakeResult struct {
	resp *Response
	err  error
}

// fakeProvider replays scripted results; the last one repeats.
type fakeProvider struct {
	id         ProviderID
	configured bool

	mu      sync.Mutex
	results []fakeResult
	calls   []*Request
}

func newFake(id ProviderID, results ...fakeResult) *fakeProvider {
	return &fakeProvider{id: id, configured: true, results: results}
}

func unconfiguredFake(id ProviderID) *fakeProvider {
	return &fakeProvider{id: id}
}

func (f *fakeProvider) ID() ProviderID     { return f.id }
func (f *fakeProvider) IsConfigured() bool { return f.configured }

func (f *fakeProvider) Generate(_ context.Context, req *Request) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)

	if !f.configured {
		return nil, notConfiguredError(f.id)
	}
	if len(f.results) == 0 {
		return &Response{Content: "plan from " + string(f.id), Provider: f.id, Model: req.Model.Model}, nil
	}
	idx := len(f.calls) - 1
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	r := f.results[idx]
	if r.err != nil {
		return nil, r.err
	}
	resp := *r.resp
	return &resp, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeProvider) call(i int) *Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func succeed(id ProviderID, content string) fakeResult {
	return fakeResult{resp: &Response{Content: content, Provider: id, Model: "model-" + string(id)}}
}

func fail(err error) fakeResult {
	return fakeResult{err: err}
}

func rateLimited(id ProviderID) fakeResult {
	return fail(classifyStatus(id, 429, "slow down", nil))
}

func badCredential(id ProviderID) fakeResult {
	return fail(classifyStatus(id, 401, "invalid api key", nil))
}

// sleepRecorder records backoff delays instead of waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type harness struct {
	registry     *Registry
	executor     *Executor
	orchestrator *Orchestrator
	sleeper      *sleepRecorder
	bus          *eventbus.Bus
}

func newHarness(policy RetryPolicy, fallback FallbackConfig, providers ...Provider) *harness {
	h := &harness{sleeper: &sleepRecorder{}, bus: eventbus.New()}
	var def ProviderID
	if len(providers) > 0 {
		def = providers[0].ID()
	}
	h.registry = NewRegistry(RegistryConfig{Default: def}, discardLogger(), providers...)
	h.executor = NewExecutor(ExecutorConfig{
		Policy: policy,
		Bus:    h.bus,
		Logger: discardLogger(),
		Sleep:  h.sleeper.sleep,
	})
	fallback.Bus = h.bus
	fallback.Logger = discardLogger()
	h.orchestrator = NewOrchestrator(h.registry, h.executor, fallback)
	return h
}
