package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Philanthropists/newsletter-digest/internal/summarize"
)

const completionJSON = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-3.5-turbo",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "logprobs": null,
    "message": {"role": "assistant", "content": "<div>Cats are great.</div>", "refusal": null}
  }],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/"}, nil)
	require.NoError(t, err)
	return client
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{APIKey: "  "}, nil)
	assert.Error(t, err)
}

func TestNewDefaultsModel(t *testing.T) {
	client, err := New(Config{APIKey: "sk-test"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, client.model)
}

func TestSummarize(t *testing.T) {
	requests := make(chan map[string]any, 1)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		requests <- body
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionJSON))
	})

	summary, err := client.Summarize(context.Background(), "All about cats.", summarize.Limits{MaxOutputTokens: 1000})
	require.NoError(t, err)
	assert.Equal(t, "<div>Cats are great.</div>", summary)

	body := <-requests
	assert.Equal(t, DefaultModel, body["model"])
	assert.EqualValues(t, 1000, body["max_tokens"])
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	user, ok := messages[1].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, user["content"], `"All about cats."`)
}

func TestSummarizeSendsBodyVerbatim(t *testing.T) {
	contents := make(chan string, 1)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.Len(t, body.Messages, 2) {
			contents <- body.Messages[1].Content
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionJSON))
	})

	text := "First paragraph.\nThe \"cat\" said hi."
	_, err := client.Summarize(context.Background(), text, summarize.Limits{})
	require.NoError(t, err)

	content := <-contents
	assert.Contains(t, content, `<div>: "First paragraph.`+"\n"+`The "cat" said hi."`)
	assert.NotContains(t, content, `\n`)
	assert.NotContains(t, content, `\"`)
}

func TestSummarizeClassifiesErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantQuota bool
	}{
		{
			name:      "rate limited",
			status:    http.StatusTooManyRequests,
			body:      `{"error": {"message": "Rate limit reached", "type": "requests", "code": "rate_limit_exceeded"}}`,
			wantQuota: true,
		},
		{
			name:      "quota in body",
			status:    http.StatusForbidden,
			body:      `{"error": {"message": "You exceeded your current quota", "type": "insufficient_quota", "code": "insufficient_quota"}}`,
			wantQuota: true,
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `{"error": {"message": "boom", "type": "server_error", "code": null}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Summarize(context.Background(), "text", summarize.Limits{})
			require.Error(t, err)
			assert.EqualValues(t, 1, calls.Load(), "backends get a single attempt")

			var quota *summarize.QuotaError
			var unavailable *summarize.UnavailableError
			if tt.wantQuota {
				assert.True(t, errors.As(err, &quota), "got %v", err)
			} else {
				assert.True(t, errors.As(err, &unavailable), "got %v", err)
			}
		})
	}
}

func TestSummarizeEmptyCompletion(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":0,"model":"m","choices":[]}`))
	})

	_, err := client.Summarize(context.Background(), "text", summarize.Limits{})
	var unavailable *summarize.UnavailableError
	assert.True(t, errors.As(err, &unavailable))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héllo", truncate("héllo", 0))
	assert.Equal(t, "hé", truncate("héllo", 2))
	assert.Equal(t, "héllo", truncate("héllo", 10))
}
