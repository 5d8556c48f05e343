package compress

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConversation = []Message{
	{Role: "user", Content: "how do I configure the widget?"},
	{Role: "assistant", Content: "set widget.enabled to true"},
}

func completionBody(t *testing.T, content string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	require.NoError(t, err)
	return b
}

func TestClient_Compress(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		var gotAuth string
		var gotReq apiRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
			w.Write(completionBody(t, "## CONTEXT HANDOFF\ncompressed"))
		}))
		defer srv.Close()

		c := New("sk-test", WithURL(srv.URL))
		got, err := c.Compress(t.Context(), testConversation)
		require.NoError(t, err)
		assert.Equal(t, "## CONTEXT HANDOFF\ncompressed", got)

		assert.Equal(t, "Bearer sk-test", gotAuth)
		assert.Equal(t, model, gotReq.Model)
		require.Len(t, gotReq.Messages, 1)
		assert.Contains(t, gotReq.Messages[0].Content, "User: how do I configure the widget?")
		assert.Contains(t, gotReq.Messages[0].Content, "Assistant: set widget.enabled to true")
	})
	t.Run("retries once on 429", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Write(completionBody(t, "second time lucky"))
		}))
		defer srv.Close()

		var slept time.Duration
		c := New("sk-test", WithURL(srv.URL), withSleep(func(d time.Duration) { slept = d }))
		got, err := c.Compress(t.Context(), testConversation)
		require.NoError(t, err)
		assert.Equal(t, "second time lucky", got)
		assert.Equal(t, int32(2), calls.Load())
		assert.Equal(t, rateLimitBackoff, slept)
	})
	t.Run("still rate limited after retry", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		c := New("sk-test", WithURL(srv.URL), withSleep(func(time.Duration) {}))
		_, err := c.Compress(t.Context(), testConversation)
		assert.ErrorIs(t, err, ErrRateLimited)
		assert.Equal(t, int32(2), calls.Load(), "exactly one retry")
	})
	t.Run("bad api key", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"Incorrect API key provided"}}`))
		}))
		defer srv.Close()

		c := New("sk-bad", WithURL(srv.URL))
		_, err := c.Compress(t.Context(), testConversation)
		assert.ErrorIs(t, err, ErrBadAPIKey)
		assert.Contains(t, err.Error(), "Incorrect API key provided")
	})
	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("oops, not json"))
		}))
		defer srv.Close()

		c := New("sk-test", WithURL(srv.URL))
		_, err := c.Compress(t.Context(), testConversation)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "API error: 500")
	})
	t.Run("connection failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		c := New("sk-test", WithURL(srv.URL))
		_, err := c.Compress(t.Context(), testConversation)
		assert.Error(t, err)
	})
}

func TestParseResponse(t *testing.T) {
	t.Run("error body wins", func(t *testing.T) {
		var resp apiResponse
		require.NoError(t, json.Unmarshal([]byte(`{"error":{"message":"model overloaded"}}`), &resp))
		_, err := parseResponse(resp)
		assert.EqualError(t, err, "model overloaded")
	})
	t.Run("no choices", func(t *testing.T) {
		_, err := parseResponse(apiResponse{})
		assert.EqualError(t, err, "unexpected OpenAI response format")
	})
	t.Run("empty content", func(t *testing.T) {
		var resp apiResponse
		require.NoError(t, json.Unmarshal([]byte(`{"choices":[{"message":{"content":"  "}}]}`), &resp))
		_, err := parseResponse(resp)
		assert.Error(t, err)
	})
}

func TestTranscript(t *testing.T) {
	assert.Equal(t, "", Transcript(nil))
	got := Transcript([]Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
		{Role: "system", Content: "ignored role label"},
	})
	assert.Equal(t, "User: hello\n\nAssistant: hi\n\nAssistant: ignored role label", got)
}

func TestFailureHandoff(t *testing.T) {
	got := FailureHandoff(assert.AnError, testConversation)
	assert.Contains(t, got, "## CONTEXT HANDOFF (Compression failed)")
	assert.Contains(t, got, assert.AnError.Error())
	assert.Contains(t, got, "User: how do I configure the widget?")
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name     string
		markdown string
		want     string
	}{
		{
			"project section",
			"## CONTEXT HANDOFF\n\n### PROJECT\nWidget configuration help\n\n### KEY DECISIONS\n- none",
			"Widget configuration help",
		},
		{
			"bracketed placeholder stripped",
			"### PROJECT\n[Widget configuration help]\n### NEXT STEPS",
			"Widget configuration help",
		},
		{
			"last section",
			"### KEY DECISIONS\n- none\n\n### PROJECT\nTail project",
			"Tail project",
		},
		{"no project section", "## CONTEXT HANDOFF\nnothing here", "Context handoff"},
		{"empty section", "### PROJECT\n   \n", "Context handoff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTitle(tt.markdown))
		})
	}

	t.Run("truncates long titles", func(t *testing.T) {
		long := "### PROJECT\nImproving the reliability of the distributed ingestion pipeline for the analytics platform team"
		got := ExtractTitle(long)
		assert.Len(t, got, 80)
		assert.Equal(t, "...", got[77:])
	})

	t.Run("truncates on a rune boundary", func(t *testing.T) {
		long := "### PROJECT\n" + strings.Repeat("проект", 20)
		got := ExtractTitle(long)
		assert.True(t, utf8.ValidString(got))
		r := []rune(got)
		assert.Len(t, r, 80)
		assert.Equal(t, "...", string(r[77:]))
	})
}
