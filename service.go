package memori

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sriramvarun3/Memori/auth"
	"github.com/sriramvarun3/Memori/granola"
	"github.com/sriramvarun3/Memori/internal/cache"
	"github.com/sriramvarun3/Memori/internal/compress"
	"github.com/sriramvarun3/Memori/mcp"
	"golang.org/x/time/rate"
)

// Service wires the subsystems together.  Construct with New.
type Service struct {
	mgr     *cache.Manager
	client  *mcp.Client
	session *granola.Session
	lg      *slog.Logger

	openAIKey string
	// authenticate runs one full interactive authentication attempt.  It is
	// a field so tests can substitute the interactive flow.
	authenticate func(ctx context.Context) error
	// compressor is a field for the same reason.
	compressor func(ctx context.Context, conv []compress.Message) (string, error)
}

// Options configures the Service.
type Options struct {
	// CacheDir is the directory for persisted state.  Required.
	CacheDir string
	// Endpoint overrides the Granola MCP endpoint.
	Endpoint string
	// OpenAIKey enables conversation compression when non-empty.
	OpenAIKey string
	// Authorizer overrides the interactive authorizer; nil uses the
	// browser-driven loopback flow.
	Authorizer auth.Authorizer
	// Limiter overrides the request rate limiter of the MCP client.
	Limiter *rate.Limiter
	// Timeout overrides the per-request HTTP timeout of the MCP client.
	Timeout time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// New creates the service.
func New(opts Options) (*Service, error) {
	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}
	mgr, err := cache.NewManager(opts.CacheDir)
	if err != nil {
		return nil, err
	}
	mcpOpts := []mcp.Option{mcp.WithLogger(lg)}
	if opts.Limiter != nil {
		mcpOpts = append(mcpOpts, mcp.WithLimiter(opts.Limiter))
	}
	if opts.Timeout > 0 {
		mcpOpts = append(mcpOpts, mcp.WithTimeout(opts.Timeout))
	}
	client := mcp.New(opts.Endpoint, mcpOpts...)
	s := &Service{
		mgr:       mgr,
		client:    client,
		session:   granola.NewSession(client, mgr, granola.WithLogger(lg)),
		lg:        lg,
		openAIKey: opts.OpenAIKey,
	}
	s.authenticate = func(ctx context.Context) error {
		az := opts.Authorizer
		if az == nil {
			baz, err := auth.NewBrowserAuthorizer("", lg)
			if err != nil {
				return err
			}
			defer baz.Close()
			az = baz
		}
		return auth.NewFlow(client, mgr, az, auth.WithLogger(lg)).Run(ctx)
	}
	s.compressor = func(ctx context.Context, conv []compress.Message) (string, error) {
		return compress.New(s.openAIKey, compress.WithLogger(lg)).Compress(ctx, conv)
	}
	return s, nil
}

// CheckAuth reports whether a usable credential is stored.  No network
// traffic.
func (s *Service) CheckAuth(ctx context.Context) AuthStatus {
	_, err := s.mgr.Token(ctx)
	return AuthStatus{Authenticated: err == nil}
}

// Authenticate runs the interactive OAuth flow and persists the obtained
// credential.
func (s *Service) Authenticate(ctx context.Context) AuthResult {
	if err := s.authenticate(ctx); err != nil {
		s.lg.ErrorContext(ctx, "authentication failed", "error", err)
		return AuthResult{Err: err.Error()}
	}
	return AuthResult{Success: true}
}

// Disconnect drops the stored credential.
func (s *Service) Disconnect(ctx context.Context) AuthResult {
	if err := s.mgr.Clear(ctx); err != nil {
		return AuthResult{Err: err.Error()}
	}
	return AuthResult{Success: true}
}

// Meetings returns the meeting list.  Unless refresh is set, a previously
// saved snapshot is served without touching the network; a live fetch
// updates the snapshot on success.
func (s *Service) Meetings(ctx context.Context, from, to time.Time, refresh bool) MeetingsResult {
	if !refresh {
		if snap, err := s.mgr.Meetings(); err == nil {
			return MeetingsResult{Meetings: snap.Meetings, CachedAt: snap.CachedAt}
		} else if !errors.Is(err, cache.ErrNotCached) {
			s.lg.WarnContext(ctx, "meetings snapshot unreadable, fetching live", "error", err)
		}
	}
	mm, err := s.session.ListMeetings(ctx, from, to)
	if err != nil {
		return MeetingsResult{Meetings: []granola.MeetingRecord{}, Err: authMessage(err)}
	}
	if err := s.mgr.SaveMeetings(mm); err != nil {
		s.lg.WarnContext(ctx, "failed to save meetings snapshot", "error", err)
	}
	return MeetingsResult{Meetings: mm, CachedAt: time.Now()}
}

// MeetingDetail fetches the raw notes of one meeting.
func (s *Service) MeetingDetail(ctx context.Context, id string) DetailResult {
	text, err := s.session.MeetingDetail(ctx, id)
	if err != nil {
		return DetailResult{Err: authMessage(err)}
	}
	return DetailResult{Meeting: text}
}

// Ask obtains grounding context for the query.  Authentication conditions
// are flagged with NeedsAuth rather than retried here.
func (s *Service) Ask(ctx context.Context, query string) AskResult {
	text, err := s.session.Ask(ctx, query)
	if err != nil {
		res := AskResult{Err: authMessage(err)}
		if errors.Is(err, granola.ErrNotAuthenticated) || errors.Is(err, granola.ErrSessionExpired) {
			res.NeedsAuth = true
		}
		return res
	}
	return AskResult{ContextText: text}
}

// GroundedPrompt answers the query with a composed grounded prompt,
// re-authenticating at most once when the session turns out to be stale.
func (s *Service) GroundedPrompt(ctx context.Context, query string) GroundedResult {
	res := s.Ask(ctx, query)
	if res.NeedsAuth {
		if ar := s.Authenticate(ctx); !ar.Success {
			return GroundedResult{Err: ar.Err}
		}
		// exactly one repeat after a successful re-auth.
		res = s.Ask(ctx, query)
	}
	if res.Err != "" {
		return GroundedResult{Err: res.Err}
	}
	return GroundedResult{Prompt: granola.ComposeGroundedPrompt(query, res.ContextText)}
}

// SaveMemory captures a snippet into the FIFO memory store.
func (s *Service) SaveMemory(text, typ string, messageCount int) MemoryResult {
	mem, err := s.mgr.SaveMemory(text, typ, messageCount)
	if err != nil {
		return MemoryResult{Err: err.Error()}
	}
	return MemoryResult{Memory: mem}
}

// CompressAndSave compresses the conversation into a context handoff and
// stores it.  When compression fails the raw transcript is stored instead,
// so a model hiccup never loses the conversation.
func (s *Service) CompressAndSave(ctx context.Context, conversation []compress.Message) HandoffResult {
	if s.openAIKey == "" {
		return HandoffResult{Err: "API key required"}
	}
	content, err := s.compressor(ctx, conversation)
	if err != nil {
		s.lg.WarnContext(ctx, "compression failed, storing raw transcript", "error", err)
		content = compress.FailureHandoff(err, conversation)
	}
	h, err := s.mgr.SaveHandoff(compress.ExtractTitle(content), content, len(conversation))
	if err != nil {
		return HandoffResult{Err: err.Error()}
	}
	return HandoffResult{Handoff: h}
}

// Cache exposes the underlying cache manager to the command layer.
func (s *Service) Cache() *cache.Manager {
	return s.mgr
}

// authMessage maps the expected authentication sentinels to their
// user-facing strings; anything else passes through unchanged.
func authMessage(err error) string {
	switch {
	case errors.Is(err, granola.ErrNotAuthenticated), errors.Is(err, auth.ErrNoCredential):
		return msgNotAuthenticated
	case errors.Is(err, granola.ErrSessionExpired):
		return msgSessionExpired
	}
	return err.Error()
}
