package summarize

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Philanthropists/newsletter-digest/internal/extract"
)

func fixed(text string) Backend {
	return BackendFunc(func(context.Context, string, Limits) (string, error) {
		return text, nil
	})
}

func failing(err error) Backend {
	return BackendFunc(func(context.Context, string, Limits) (string, error) {
		return "", err
	})
}

func registry(t *testing.T, entries ...NamedBackend) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, e := range entries {
		require.NoError(t, r.Register(e.Name, e.Backend))
	}
	return r
}

func TestAggregateIsolatesBackendFailure(t *testing.T) {
	backends := registry(t,
		NamedBackend{Name: "A", Backend: fixed("summary-A")},
		NamedBackend{Name: "B", Backend: failing(errors.New("connection refused"))},
	)
	msgs := []extract.Message{{Sender: "a@x.com", Subject: "Cats", Body: "cats"}}

	results := Aggregate(context.Background(), msgs, backends, Options{})

	require.Len(t, results, 1)
	assert.Equal(t, map[string]string{"A": "summary-A", "B": ErrorMarker}, results[0].Summaries)
	assert.True(t, results[0].Failed("B"))
	assert.False(t, results[0].Failed("A"))
	assert.Contains(t, results[0].Errors["B"], "connection refused")
	assert.Equal(t, "Cats", results[0].Subject)
	assert.Equal(t, "a@x.com", results[0].Sender)
}

func TestAggregatePreservesOrder(t *testing.T) {
	const n = 6
	// earlier messages take longer, so completion order is the reverse of input order
	slow := BackendFunc(func(ctx context.Context, text string, _ Limits) (string, error) {
		var idx int
		_, _ = fmt.Sscanf(text, "body-%d", &idx)
		time.Sleep(time.Duration(n-idx) * 15 * time.Millisecond)
		return "sum-" + text, nil
	})
	quick := BackendFunc(func(_ context.Context, text string, _ Limits) (string, error) {
		return "quick-" + text, nil
	})
	backends := registry(t,
		NamedBackend{Name: "slow", Backend: slow},
		NamedBackend{Name: "quick", Backend: quick},
	)

	msgs := make([]extract.Message, n)
	for i := range msgs {
		msgs[i] = extract.Message{Subject: fmt.Sprintf("subject-%d", i), Body: fmt.Sprintf("body-%d", i)}
	}

	for _, concurrency := range []int{1, 3, n} {
		results := Aggregate(context.Background(), msgs, backends, Options{Concurrency: concurrency})
		require.Len(t, results, n)
		for i, r := range results {
			assert.Equal(t, fmt.Sprintf("subject-%d", i), r.Subject)
			assert.Equal(t, fmt.Sprintf("sum-body-%d", i), r.Summaries["slow"])
			assert.Equal(t, fmt.Sprintf("quick-body-%d", i), r.Summaries["quick"])
		}
	}
}

func TestAggregateBoundsSlowBackends(t *testing.T) {
	stuck := BackendFunc(func(context.Context, string, Limits) (string, error) {
		time.Sleep(time.Second)
		return "too late", nil
	})
	backends := registry(t,
		NamedBackend{Name: "stuck", Backend: stuck},
		NamedBackend{Name: "ok", Backend: fixed("fine")},
	)

	startedAt := time.Now()
	results := Aggregate(context.Background(), []extract.Message{{Subject: "s"}}, backends, Options{Timeout: 20 * time.Millisecond})

	assert.Less(t, time.Since(startedAt), 500*time.Millisecond)
	assert.Equal(t, ErrorMarker, results[0].Summaries["stuck"])
	assert.Equal(t, "fine", results[0].Summaries["ok"])
}

func TestAggregateRecoversPanics(t *testing.T) {
	boom := BackendFunc(func(context.Context, string, Limits) (string, error) {
		panic("boom")
	})
	backends := registry(t,
		NamedBackend{Name: "boom", Backend: boom},
		NamedBackend{Name: "ok", Backend: fixed("fine")},
	)
	msgs := []extract.Message{{Subject: "one"}, {Subject: "two"}}

	results := Aggregate(context.Background(), msgs, backends, Options{})

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, ErrorMarker, r.Summaries["boom"])
		assert.Contains(t, r.Errors["boom"], "panicked")
		assert.Equal(t, "fine", r.Summaries["ok"])
	}
}

func TestAggregatePassesLimits(t *testing.T) {
	var got Limits
	capture := BackendFunc(func(_ context.Context, _ string, limits Limits) (string, error) {
		got = limits
		return "x", nil
	})
	backends := registry(t, NamedBackend{Name: "capture", Backend: capture})

	Aggregate(context.Background(), []extract.Message{{Subject: "s"}}, backends, Options{Limits: Limits{MaxOutputTokens: 1000}})

	assert.Equal(t, 1000, got.MaxOutputTokens)
}

func TestAggregateEmpty(t *testing.T) {
	backends := registry(t, NamedBackend{Name: "A", Backend: fixed("x")})
	assert.Empty(t, Aggregate(context.Background(), nil, backends, Options{}))
}
