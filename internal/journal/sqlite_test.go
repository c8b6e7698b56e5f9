package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planforge/internal/eventbus"
	"planforge/internal/llm"
)

func newTestJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	j, err := NewSQLiteJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndRecent(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	rows := []Attempt{
		{RequestID: "r1", Provider: "openai", Attempt: 1, Outcome: OutcomeFailure, ErrorType: "rate_limit", StatusCode: 429, LatencyMS: 120},
		{RequestID: "r1", Provider: "openai", Attempt: 2, Outcome: OutcomeSuccess, Model: "gpt-4o-mini", LatencyMS: 900, PromptTokens: 40, CompletionTokens: 200},
		{RequestID: "r2", Provider: "anthropic", Attempt: 1, Outcome: OutcomeSuccess, Fallback: true, LatencyMS: 700},
	}
	for _, a := range rows {
		require.NoError(t, j.Record(ctx, a))
	}

	all, err := j.Recent(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r2", all[0].RequestID, "newest first")
	assert.True(t, all[0].Fallback)
	assert.False(t, all[0].CreatedAt.IsZero())

	r1, err := j.Recent(ctx, Query{RequestID: "r1"})
	require.NoError(t, err)
	require.Len(t, r1, 2)
	assert.Equal(t, 2, r1[0].Attempt)
	assert.Equal(t, "gpt-4o-mini", r1[0].Model)
	assert.Equal(t, 200, r1[0].CompletionTokens)
	assert.Equal(t, "rate_limit", r1[1].ErrorType)
	assert.Equal(t, 429, r1[1].StatusCode)

	limited, err := j.Recent(ctx, Query{Provider: "openai", Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, OutcomeSuccess, limited[0].Outcome)
}

func TestStats(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	since := time.Now().Add(-time.Minute)

	require.NoError(t, j.Record(ctx, Attempt{RequestID: "a", Provider: "gemini", Attempt: 1, Outcome: OutcomeFailure, LatencyMS: 100}))
	require.NoError(t, j.Record(ctx, Attempt{RequestID: "a", Provider: "gemini", Attempt: 2, Outcome: OutcomeSuccess, LatencyMS: 300}))
	require.NoError(t, j.Record(ctx, Attempt{RequestID: "b", Provider: "openai", Attempt: 1, Outcome: OutcomeSuccess, LatencyMS: 50}))
	require.NoError(t, j.Record(ctx, Attempt{
		RequestID: "old", Provider: "openai", Attempt: 1, Outcome: OutcomeFailure, LatencyMS: 1,
		CreatedAt: time.Now().Add(-time.Hour),
	}))

	stats, err := j.Stats(ctx, since)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, "gemini", stats[0].Provider)
	assert.Equal(t, 2, stats[0].Attempts)
	assert.Equal(t, 1, stats[0].Failures)
	assert.InDelta(t, 200, stats[0].AvgLatencyMS, 0.001)

	assert.Equal(t, "openai", stats[1].Provider)
	assert.Equal(t, 1, stats[1].Attempts)
	assert.Zero(t, stats[1].Failures)
}

func TestSubscribeRecordsAttempts(t *testing.T) {
	j := newTestJournal(t)
	bus := eventbus.New()
	Subscribe(bus, j, nil)

	bus.Publish(eventbus.TopicLLMAttempt, llm.AttemptEvent{
		RequestID: "req-1",
		Provider:  llm.ProviderAnthropic,
		Attempt:   1,
		Duration:  1500 * time.Millisecond,
		Err:       &llm.LLMError{Type: llm.ErrorServerError, Message: "Overloaded", StatusCode: 529, Retryable: true},
	})
	bus.Publish(eventbus.TopicLLMAttempt, llm.AttemptEvent{
		RequestID: "req-1",
		Provider:  llm.ProviderAnthropic,
		Model:     "claude-test",
		Attempt:   2,
		Duration:  time.Second,
		Usage:     &llm.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	})
	bus.Publish(eventbus.TopicLLMAttempt, "not an attempt")

	got, err := j.Recent(context.Background(), Query{RequestID: "req-1"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, OutcomeSuccess, got[0].Outcome)
	assert.Equal(t, "claude-test", got[0].Model)
	assert.Equal(t, 20, got[0].CompletionTokens)
	assert.Equal(t, int64(1000), got[0].LatencyMS)

	assert.Equal(t, OutcomeFailure, got[1].Outcome)
	assert.Equal(t, "server_error", got[1].ErrorType)
	assert.Equal(t, "Overloaded", got[1].ErrorMessage)
	assert.Equal(t, 529, got[1].StatusCode)
	assert.Equal(t, int64(1500), got[1].LatencyMS)
}
