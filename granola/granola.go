// Package granola implements the meeting-notes side of Memori: the tolerant
// parser for the pseudo-XML meeting payloads the Granola service returns,
// and the sessions that orchestrate the multi-step list/fetch and
// tool-grounding protocols over the MCP transport.
package granola

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sriramvarun3/Memori/auth"
	"github.com/sriramvarun3/Memori/mcp"
)

// Remote tool names.  list/get are fixed; the chat tool is discovered (see
// selectChatTool).
const (
	toolListMeetings = "list_meetings"
	toolGetMeetings  = "get_meetings"

	preferredChatTool = "query_granola_meetings"
	exactChatTool     = "chat_with_granola"
)

// dateLayout is the wire format of the list_meetings date range arguments.
const dateLayout = "2006-01-02"

// defaultWindow is the default list_meetings lookback.
const defaultWindow = 30 * 24 * time.Hour

var (
	// ErrNotAuthenticated indicates that no usable credential is stored.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSessionExpired indicates that the stored credential looked valid
	// locally but the server rejected it.
	ErrSessionExpired = errors.New("session expired, reconnect required")
	// ErrNoChatTool is returned when the remote tool list has nothing that
	// looks like a chat/grounding tool.  It is not retryable.
	ErrNoChatTool = errors.New("chat tool not found in MCP tools/list")
	// ErrNoContext is returned when the chat tool call succeeds but yields
	// no text.
	ErrNoContext = errors.New("chat tool returned no context text")
)

//go:generate mockgen -destination=../internal/mocks/mock_granola/mock_granola.go -package=mock_granola . Caller

// Caller is the subset of the MCP client the sessions need.  *mcp.Client
// satisfies it.
type Caller interface {
	Call(ctx context.Context, method string, params any, token string) (*mcp.Result, error)
}

// Session orchestrates meeting listing and query grounding against the
// Granola MCP service.  All its methods require a stored credential;
// expired or absent credentials surface as ErrNotAuthenticated without any
// network traffic.
type Session struct {
	cl  Caller
	ts  auth.TokenStore
	lg  *slog.Logger
	now func() time.Time
}

// Option is the Session option.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(lg *slog.Logger) Option {
	return func(s *Session) {
		if lg != nil {
			s.lg = lg
		}
	}
}

// withClock overrides the wall clock (tests).
func withClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// NewSession creates a session over the given transport and token store.
func NewSession(cl Caller, ts auth.TokenStore, opt ...Option) *Session {
	s := &Session{
		cl:  cl,
		ts:  ts,
		lg:  slog.Default(),
		now: time.Now,
	}
	for _, o := range opt {
		o(s)
	}
	return s
}

// initialize issues the session-opening call and maps an auth challenge to
// ErrSessionExpired: the credential was stale server-side even though it
// looked valid locally.
func (s *Session) initialize(ctx context.Context, token string) error {
	res, err := s.cl.Call(ctx, "initialize", mcp.InitializeParams{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities:    struct{}{},
		ClientInfo:      mcp.ClientInfo{Name: "Memori", Version: "1.0.0"},
	}, token)
	if err != nil {
		return err
	}
	if res.NeedsAuth() {
		return ErrSessionExpired
	}
	return nil
}

// token fetches a usable credential or fails with ErrNotAuthenticated.
func (s *Session) token(ctx context.Context) (string, error) {
	tok, err := s.ts.Token(ctx)
	if err != nil || tok == "" {
		return "", ErrNotAuthenticated
	}
	return tok, nil
}

func toolCallParams(name string, args map[string]any) mcp.ToolCallParams {
	return mcp.ToolCallParams{Name: name, Arguments: args}
}

// resultText extracts the first text content item from a tools/call result.
// The service sometimes returns a bare string instead of a content list.
func resultText(res *mcp.Result) string {
	if res == nil {
		return ""
	}
	var tr mcp.ToolResult
	if err := res.Decode(&tr); err == nil {
		if t := tr.FirstText(); t != "" {
			return t
		}
	}
	return mcp.ToolText(res.Data)
}
