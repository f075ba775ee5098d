package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okMessage = `{
  "id": "msg_01",
  "type": "message",
  "role": "assistant",
  "model": "claude-sonnet-4-5-20250929",
  "content": [
    {"type": "text", "text": "` + "```go\\nfunc a() {}\\n```" + `"},
    {"type": "text", "text": "\nSummary: done."}
  ],
  "stop_reason": "end_turn",
  "usage": {"input_tokens": 120, "output_tokens": 40}
}`

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger, _ := test.NewNullLogger()
	c, err := NewClient(&Config{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/",
		Retry:   fastRetry(),
		Logger:  logger,
	})
	require.NoError(t, err)
	return c
}

func TestGenerate(t *testing.T) {
	var body map[string]any
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, okMessage)
	})

	text, usage, err := c.GenerateWithUsage(context.Background(), "refactor this")
	require.NoError(t, err)
	assert.Equal(t, "```go\nfunc a() {}\n```\nSummary: done.", text)
	assert.Equal(t, int64(120), usage.InputTokens)
	assert.Equal(t, int64(40), usage.OutputTokens)

	assert.Equal(t, ModelSonnet, body["model"])
	assert.EqualValues(t, DefaultMaxTokens, body["max_tokens"])
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`)
			return
		}
		_, _ = io.WriteString(w, okMessage)
	})

	_, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestGenerateAuthFailureNotRetried(t *testing.T) {
	var hits atomic.Int32
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	})

	_, err := c.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewClient(&Config{})
	assert.ErrorContains(t, err, "ANTHROPIC_API_KEY")
}

func TestGetDefaultModel(t *testing.T) {
	t.Setenv("MOHTION_MODEL", "")
	assert.Equal(t, ModelSonnet, GetDefaultModel())

	t.Setenv("MOHTION_MODEL", "claude-opus-4-1")
	assert.Equal(t, "claude-opus-4-1", GetDefaultModel())
}
