package memori

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/sriramvarun3/Memori/auth"
	"github.com/sriramvarun3/Memori/granola"
	"github.com/sriramvarun3/Memori/internal/cache"
	"github.com/sriramvarun3/Memori/internal/compress"
	"github.com/sriramvarun3/Memori/internal/mocks/mock_granola"
	"github.com/sriramvarun3/Memori/mcp"
)

// newTestService builds a service over a temporary cache directory,
// substituting the session transport when cl is given.
func newTestService(t *testing.T, cl granola.Caller) *Service {
	t.Helper()
	s, err := New(Options{CacheDir: t.TempDir()})
	require.NoError(t, err)
	if cl != nil {
		s.session = granola.NewSession(cl, s.mgr)
	}
	return s
}

func storeToken(t *testing.T, s *Service) {
	t.Helper()
	require.NoError(t, s.mgr.Set(t.Context(), auth.Credential{
		AccessToken: "at-test",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))
}

func dataResult(raw string) *mcp.Result {
	return &mcp.Result{Data: json.RawMessage(raw)}
}

func challengeResult() *mcp.Result {
	return &mcp.Result{Challenge: &mcp.AuthChallenge{}}
}

// textResult wraps text in a tools/call content list.
func textResult(t *testing.T, text string) *mcp.Result {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
	})
	require.NoError(t, err)
	return &mcp.Result{Data: b}
}

const chatToolsList = `{"tools":[{"name":"chat_with_granola","inputSchema":{"type":"object","properties":{"question":{"type":"string"}}}}]}`

func TestService_CheckAuth(t *testing.T) {
	s := newTestService(t, nil)
	assert.False(t, s.CheckAuth(t.Context()).Authenticated)
	storeToken(t, s)
	assert.True(t, s.CheckAuth(t.Context()).Authenticated)
}

func TestService_Authenticate(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s := newTestService(t, nil)
		s.authenticate = func(context.Context) error { return nil }
		res := s.Authenticate(t.Context())
		assert.True(t, res.Success)
		assert.Empty(t, res.Err)
	})
	t.Run("failure", func(t *testing.T) {
		s := newTestService(t, nil)
		s.authenticate = func(context.Context) error { return errors.New("user closed the browser") }
		res := s.Authenticate(t.Context())
		assert.False(t, res.Success)
		assert.Equal(t, "user closed the browser", res.Err)
	})
}

func TestService_Disconnect(t *testing.T) {
	s := newTestService(t, nil)
	storeToken(t, s)
	res := s.Disconnect(t.Context())
	assert.True(t, res.Success)
	assert.False(t, s.CheckAuth(t.Context()).Authenticated)
}

func TestService_Meetings(t *testing.T) {
	t.Run("snapshot served without network", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		cl := mock_granola.NewMockCaller(ctrl) // no expectations: any call fails
		s := newTestService(t, cl)
		require.NoError(t, s.mgr.SaveMeetings([]granola.MeetingRecord{
			{ID: "m1", Title: "Standup"},
		}))

		res := s.Meetings(t.Context(), time.Time{}, time.Time{}, false)
		assert.Empty(t, res.Err)
		require.Len(t, res.Meetings, 1)
		assert.Equal(t, "m1", res.Meetings[0].ID)
		assert.False(t, res.CachedAt.IsZero())
	})
	t.Run("not authenticated", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s := newTestService(t, mock_granola.NewMockCaller(ctrl))

		res := s.Meetings(t.Context(), time.Time{}, time.Time{}, true)
		assert.Equal(t, msgNotAuthenticated, res.Err)
		assert.NotNil(t, res.Meetings)
		assert.Empty(t, res.Meetings)
	})
	t.Run("refresh fetches and saves", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		cl := mock_granola.NewMockCaller(ctrl)
		s := newTestService(t, cl)
		storeToken(t, s)

		gomock.InOrder(
			cl.EXPECT().Call(gomock.Any(), "initialize", gomock.Any(), "at-test").
				Return(dataResult(`{}`), nil),
			cl.EXPECT().Call(gomock.Any(), "tools/call", gomock.Any(), "at-test").
				Return(textResult(t, `<meeting id="m1" title="Standup"></meeting>`), nil),
			cl.EXPECT().Call(gomock.Any(), "tools/call", gomock.Any(), "at-test").
				Return(textResult(t, "notes for m1"), nil),
		)

		res := s.Meetings(t.Context(), time.Time{}, time.Time{}, true)
		require.Empty(t, res.Err)
		require.Len(t, res.Meetings, 1)
		assert.Equal(t, "notes for m1", res.Meetings[0].Notes)

		snap, err := s.mgr.Meetings()
		require.NoError(t, err)
		require.Len(t, snap.Meetings, 1)
		assert.Equal(t, "m1", snap.Meetings[0].ID)
	})
	t.Run("session expired", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		cl := mock_granola.NewMockCaller(ctrl)
		s := newTestService(t, cl)
		storeToken(t, s)

		cl.EXPECT().Call(gomock.Any(), "initialize", gomock.Any(), "at-test").
			Return(challengeResult(), nil)

		res := s.Meetings(t.Context(), time.Time{}, time.Time{}, true)
		assert.Equal(t, msgSessionExpired, res.Err)
	})
}

func TestService_MeetingDetail(t *testing.T) {
	ctrl := gomock.NewController(t)
	cl := mock_granola.NewMockCaller(ctrl)
	s := newTestService(t, cl)
	storeToken(t, s)

	gomock.InOrder(
		cl.EXPECT().Call(gomock.Any(), "initialize", gomock.Any(), "at-test").
			Return(dataResult(`{}`), nil),
		cl.EXPECT().Call(gomock.Any(), "tools/call", gomock.Any(), "at-test").
			Return(textResult(t, "full meeting notes"), nil),
	)

	res := s.MeetingDetail(t.Context(), "m1")
	assert.Empty(t, res.Err)
	assert.Equal(t, "full meeting notes", res.Meeting)
}

func TestService_Ask(t *testing.T) {
	t.Run("needs auth without credential", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s := newTestService(t, mock_granola.NewMockCaller(ctrl))

		res := s.Ask(t.Context(), "what did we decide?")
		assert.True(t, res.NeedsAuth)
		assert.Equal(t, msgNotAuthenticated, res.Err)
	})
	t.Run("needs auth on expired session", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		cl := mock_granola.NewMockCaller(ctrl)
		s := newTestService(t, cl)
		storeToken(t, s)

		cl.EXPECT().Call(gomock.Any(), "initialize", gomock.Any(), "at-test").
			Return(challengeResult(), nil)

		res := s.Ask(t.Context(), "what did we decide?")
		assert.True(t, res.NeedsAuth)
		assert.Equal(t, msgSessionExpired, res.Err)
	})
	t.Run("hard failure is not retryable", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		cl := mock_granola.NewMockCaller(ctrl)
		s := newTestService(t, cl)
		storeToken(t, s)

		gomock.InOrder(
			cl.EXPECT().Call(gomock.Any(), "initialize", gomock.Any(), "at-test").
				Return(dataResult(`{}`), nil),
			cl.EXPECT().Call(gomock.Any(), "tools/list", gomock.Any(), "at-test").
				Return(dataResult(`{"tools":[{"name":"list_meetings"}]}`), nil),
		)

		res := s.Ask(t.Context(), "what did we decide?")
		assert.False(t, res.NeedsAuth)
		assert.Equal(t, granola.ErrNoChatTool.Error(), res.Err)
	})
}

func TestService_GroundedPrompt(t *testing.T) {
	expectAsk := func(cl *mock_granola.MockCaller, contextText string) {
		gomock.InOrder(
			cl.EXPECT().Call(gomock.Any(), "initialize", gomock.Any(), "at-test").
				Return(dataResult(`{}`), nil),
			cl.EXPECT().Call(gomock.Any(), "tools/list", gomock.Any(), "at-test").
				Return(dataResult(chatToolsList), nil),
			cl.EXPECT().Call(gomock.Any(), "tools/call", gomock.Any(), "at-test").
				Return(textResult(t, contextText), nil),
		)
	}

	t.Run("happy path", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		cl := mock_granola.NewMockCaller(ctrl)
		s := newTestService(t, cl)
		storeToken(t, s)
		expectAsk(cl, "relevant meeting context")

		res := s.GroundedPrompt(t.Context(), "what did we decide?")
		require.Empty(t, res.Err)
		assert.Equal(t, granola.ComposeGroundedPrompt("what did we decide?", "relevant meeting context"), res.Prompt)
	})
	t.Run("re-authenticates once and repeats", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		cl := mock_granola.NewMockCaller(ctrl)
		s := newTestService(t, cl)

		var authCalls int
		s.authenticate = func(ctx context.Context) error {
			authCalls++
			storeToken(t, s)
			return nil
		}
		// no credential on the first Ask; the repeat after re-auth succeeds.
		expectAsk(cl, "context after reconnect")

		res := s.GroundedPrompt(t.Context(), "what did we decide?")
		require.Empty(t, res.Err)
		assert.Equal(t, 1, authCalls)
		assert.Contains(t, res.Prompt, "context after reconnect")
	})
	t.Run("authentication failure ends the attempt", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s := newTestService(t, mock_granola.NewMockCaller(ctrl))
		s.authenticate = func(context.Context) error { return errors.New("browser flow failed") }

		res := s.GroundedPrompt(t.Context(), "what did we decide?")
		assert.Equal(t, "browser flow failed", res.Err)
		assert.Empty(t, res.Prompt)
	})
	t.Run("no second retry when repeat fails", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		cl := mock_granola.NewMockCaller(ctrl)
		s := newTestService(t, cl)

		var authCalls int
		s.authenticate = func(ctx context.Context) error {
			authCalls++
			storeToken(t, s)
			return nil
		}
		// the repeat hits an expired session again; the flow must stop.
		cl.EXPECT().Call(gomock.Any(), "initialize", gomock.Any(), "at-test").
			Return(challengeResult(), nil)

		res := s.GroundedPrompt(t.Context(), "what did we decide?")
		assert.Equal(t, 1, authCalls)
		assert.Equal(t, msgSessionExpired, res.Err)
	})
}

func TestService_SaveMemory(t *testing.T) {
	s := newTestService(t, nil)
	res := s.SaveMemory("remember the deadline", cache.MemoryUser, 0)
	require.Empty(t, res.Err)
	assert.Equal(t, "remember the deadline", res.Memory.Text)

	res = s.SaveMemory("  ", cache.MemoryUser, 0)
	assert.Equal(t, cache.ErrEmptyText.Error(), res.Err)
}

func TestService_CompressAndSave(t *testing.T) {
	conv := []compress.Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
	}
	t.Run("no api key", func(t *testing.T) {
		s := newTestService(t, nil)
		res := s.CompressAndSave(t.Context(), conv)
		assert.Equal(t, "API key required", res.Err)
	})
	t.Run("compresses and stores", func(t *testing.T) {
		s := newTestService(t, nil)
		s.openAIKey = "sk-test"
		s.compressor = func(ctx context.Context, c []compress.Message) (string, error) {
			return "## CONTEXT HANDOFF\n\n### PROJECT\nGreeting protocol\n\n### NEXT STEPS\n- none", nil
		}
		res := s.CompressAndSave(t.Context(), conv)
		require.Empty(t, res.Err)
		assert.Equal(t, "Greeting protocol", res.Handoff.Title)
		assert.Equal(t, 2, res.Handoff.MessageCount)

		hh, err := s.mgr.Handoffs()
		require.NoError(t, err)
		require.Len(t, hh, 1)
	})
	t.Run("failure stores raw transcript", func(t *testing.T) {
		s := newTestService(t, nil)
		s.openAIKey = "sk-test"
		s.compressor = func(ctx context.Context, c []compress.Message) (string, error) {
			return "", compress.ErrRateLimited
		}
		res := s.CompressAndSave(t.Context(), conv)
		require.Empty(t, res.Err)
		assert.Contains(t, res.Handoff.Content, "Compression failed")
		assert.Contains(t, res.Handoff.Content, "User: hello")
	})
}
