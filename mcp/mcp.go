// Package mcp implements a minimal client for the Granola MCP endpoint.
// The service speaks JSON-RPC 2.0 over HTTP POST and may answer either with
// a plain JSON body or with a text/event-stream body carrying the response
// as a single data: line.  Authentication is bearer-token based; a 401 is
// an expected condition (see AuthChallenge), not an error.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultEndpoint is the production Granola MCP endpoint.
	DefaultEndpoint = "https://mcp.granola.ai/mcp"
	// ProtocolVersion is the MCP protocol revision this client speaks.  It is
	// sent both as a header and in the initialize parameters.
	ProtocolVersion = "2025-03-26"

	clientName    = "Memori"
	clientVersion = "1.0.0"

	hdrWWWAuthenticate = "WWW-Authenticate"
	// some proxies (notably AWS API gateways) rename the standard challenge
	// header on the way through.
	hdrRemappedWWWAuthenticate = "x-amzn-remapped-www-authenticate"
)

// ErrNoResult is returned when the envelope carries neither result nor error.
var ErrNoResult = errors.New("empty JSON-RPC response")

// Client is the Granola MCP transport client.  The zero value is not usable,
// use New.
type Client struct {
	cl       *http.Client
	endpoint string
	lim      *rate.Limiter
	lg       *slog.Logger

	lastID atomic.Int64
}

// Option is the Client option.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(cl *http.Client) Option {
	return func(c *Client) {
		if cl != nil {
			c.cl = cl
		}
	}
}

// WithTimeout overrides the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.cl.Timeout = d
		}
	}
}

// WithLimiter sets the rate limiter that each call waits on.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.lim = l
	}
}

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option {
	return func(c *Client) {
		if lg != nil {
			c.lg = lg
		}
	}
}

// New creates a new MCP client for the endpoint.  If endpoint is empty,
// DefaultEndpoint is used.
func New(endpoint string, opt ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		cl:       &http.Client{Transport: newTransport(nil), Timeout: 60 * time.Second},
		endpoint: endpoint,
		lim:      rate.NewLimiter(rate.Every(200*time.Millisecond), 3),
		lg:       slog.Default(),
	}
	for _, o := range opt {
		o(c)
	}
	return c
}

// request is the JSON-RPC 2.0 request envelope.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// envelope is the JSON-RPC 2.0 response envelope.  ID is kept raw because
// the service is not consistent about echoing it back with the same type.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// matchesID reports whether the envelope id equals want.
func (e *envelope) matchesID(want int64) bool {
	return string(bytes.TrimSpace(e.ID)) == strconv.FormatInt(want, 10)
}

// AuthChallenge carries the server's demand for authentication.  It is a
// sentinel result, not an error: the caller is expected to run the OAuth
// flow and retry.
type AuthChallenge struct {
	// WWWAuthenticate is the raw challenge header value, if the server sent
	// one.  It points at the resource metadata needed for OAuth discovery.
	WWWAuthenticate string
}

// Result is the outcome of a single RPC call: either an authentication
// challenge or the raw result payload.
type Result struct {
	Challenge *AuthChallenge
	Data      json.RawMessage
}

// NeedsAuth reports whether the server demanded authentication.
func (r *Result) NeedsAuth() bool {
	return r != nil && r.Challenge != nil
}

// Decode unmarshals the result payload into v.
func (r *Result) Decode(v any) error {
	if r == nil || len(r.Data) == 0 {
		return ErrNoResult
	}
	return json.Unmarshal(r.Data, v)
}

// nextID returns a fresh request id.  Wall clock milliseconds, bumped on
// collision so that ids stay unique within a session.
func (c *Client) nextID() int64 {
	id := time.Now().UnixMilli()
	for {
		last := c.lastID.Load()
		if id <= last {
			id = last + 1
		}
		if c.lastID.CompareAndSwap(last, id) {
			return id
		}
	}
}

// Call sends a single JSON-RPC request to the endpoint.  A bearer token
// header is included only when token is non-empty.  A 401 response is
// returned as a Result carrying an AuthChallenge; any other non-2xx status,
// and any error field in the response envelope, is returned as an error.
func (c *Client) Call(ctx context.Context, method string, params any, token string) (*Result, error) {
	if err := c.lim.Wait(ctx); err != nil {
		return nil, err
	}
	id := c.nextID()
	if params == nil {
		params = struct{}{}
	}
	body, err := json.Marshal(request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.lg.DebugContext(ctx, "mcp: call", "method", method, "id", id)
	resp, err := c.cl.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		ch := &AuthChallenge{WWWAuthenticate: challengeHeader(resp.Header)}
		c.lg.DebugContext(ctx, "mcp: authentication required", "method", method)
		return &Result{Challenge: ch}, nil
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("MCP request failed: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var env *envelope
	if isEventStream(resp.Header.Get("Content-Type")) {
		env, err = decodeEventStream(string(data), id)
	} else {
		env = new(envelope)
		err = json.Unmarshal(data, env)
	}
	if err != nil {
		return nil, err
	}
	if env.Error != nil {
		msg := env.Error.Message
		if msg == "" {
			msg = "MCP error"
		}
		return nil, &CallError{Method: method, Message: msg, Code: env.Error.Code}
	}
	return &Result{Data: env.Result}, nil
}

// Initialize issues the MCP initialize call.  It is the first call of every
// session; with an empty token it is used to provoke the authentication
// challenge that seeds OAuth discovery.
func (c *Client) Initialize(ctx context.Context, token string) (*Result, error) {
	return c.Call(ctx, "initialize", InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    struct{}{},
		ClientInfo:      ClientInfo{Name: clientName, Version: clientVersion},
	}, token)
}

// CallError is the error returned when the response envelope carries an
// error field.
type CallError struct {
	Method  string
	Message string
	Code    int
}

func (e *CallError) Error() string {
	return e.Message
}

// challengeHeader returns the challenge header value, checking the standard
// name first, then the proxy-remapped one.
func challengeHeader(h http.Header) string {
	if v := h.Get(hdrWWWAuthenticate); v != "" {
		return v
	}
	return h.Get(hdrRemappedWWWAuthenticate)
}

func isEventStream(contentType string) bool {
	return strings.Contains(contentType, "text/event-stream")
}
