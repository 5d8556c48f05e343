package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sriramvarun3/Memori/mcp"
)

const (
	registrationScope = "openid profile email offline_access"
	authorizeScope    = "openid"
	clientName        = "Memori"
	softwareID        = "memori-cli"

	defaultExpiresIn = 3600 * time.Second
)

// Initializer issues the unauthenticated session-opening call that provokes
// the 401 challenge.  *mcp.Client satisfies it.
type Initializer interface {
	Initialize(ctx context.Context, token string) (*mcp.Result, error)
}

// Authorizer drives the interactive part of the flow: it presents the
// authorization URL to the user and returns the final redirect URL once the
// user completes (or an error once they cancel).  It is a collaborator
// interface so tests can run the flow without a browser.
type Authorizer interface {
	// RedirectURI is the redirect target registered with the server.
	RedirectURI() string
	// Authorize suspends until the user completes or cancels the external
	// authorization, returning the full redirect URL.
	Authorize(ctx context.Context, authURL string) (string, error)
}

// Flow is the OAuth2 discovery and authorization state machine.  A Flow is
// single-use: create one per authentication attempt and call Run.
type Flow struct {
	cl       Initializer
	hc       *http.Client
	store    TokenStore
	az       Authorizer
	resource string
	lg       *slog.Logger

	now      func() time.Time
	newState func() string
	newPKCE  func() (PKCE, error)
}

// FlowOption is the Flow option.
type FlowOption func(*Flow)

// WithHTTPClient sets the HTTP client used for discovery, registration and
// token exchange.
func WithHTTPClient(hc *http.Client) FlowOption {
	return func(f *Flow) {
		if hc != nil {
			f.hc = hc
		}
	}
}

// WithLogger sets the flow logger.
func WithLogger(lg *slog.Logger) FlowOption {
	return func(f *Flow) {
		if lg != nil {
			f.lg = lg
		}
	}
}

// WithResource sets the OAuth resource indicator naming the target service.
func WithResource(resource string) FlowOption {
	return func(f *Flow) {
		f.resource = resource
	}
}

// NewFlow creates an authentication flow over the given transport,
// credential store and interactive authorizer.
func NewFlow(cl Initializer, store TokenStore, az Authorizer, opt ...FlowOption) *Flow {
	f := &Flow{
		cl:       cl,
		hc:       http.DefaultClient,
		store:    store,
		az:       az,
		resource: "https://mcp.granola.ai",
		lg:       slog.Default(),
		now:      time.Now,
		newState: func() string { return uuid.NewString() },
		newPKCE:  NewPKCE,
	}
	for _, o := range opt {
		o(f)
	}
	return f
}

// flowState is the mutable payload threaded through the transitions.
type flowState struct {
	challenge   string
	metadataURL string
	server      ServerMetadata
	clientID    string
	pkce        PKCE
	state       string
	code        string
	cred        Credential
}

// Run drives the state machine to completion.  On success the obtained
// credential has been persisted to the store.  Every fatal exit is an
// *Error naming the failed step; nothing is persisted on failure.
func (f *Flow) Run(ctx context.Context) error {
	var st flowState
	for step := StepInit; step != stepDone; {
		next, err := f.transition(ctx, step, &st)
		if err != nil {
			return &Error{Step: step, Err: err}
		}
		step = next
	}
	return nil
}

// transition executes a single step and names its successor.
func (f *Flow) transition(ctx context.Context, step Step, st *flowState) (Step, error) {
	switch step {
	case StepInit:
		return f.initiate(ctx, st)
	case StepChallenge:
		return f.challenge(st)
	case StepDiscoverResource:
		return f.discoverResource(ctx, st)
	case StepDiscoverServer:
		return f.discoverServer(ctx, st)
	case StepRegister:
		return f.register(ctx, st)
	case StepAuthorize:
		return f.authorize(ctx, st)
	case StepExchange:
		return f.exchange(ctx, st)
	case StepComplete:
		return f.complete(ctx, st)
	}
	return stepDone, fmt.Errorf("internal error: unknown step %v", step)
}

func (f *Flow) initiate(ctx context.Context, st *flowState) (Step, error) {
	res, err := f.cl.Initialize(ctx, "")
	if err != nil {
		return stepDone, err
	}
	if !res.NeedsAuth() {
		// the flow is only entered when authentication is known to be
		// required.
		return stepDone, errors.New("already authenticated or unexpected response")
	}
	st.challenge = res.Challenge.WWWAuthenticate
	return StepChallenge, nil
}

func (f *Flow) challenge(st *flowState) (Step, error) {
	st.metadataURL = ParseWWWAuthenticate(st.challenge)
	if st.metadataURL == "" {
		return stepDone, errors.New("could not discover OAuth endpoints from 401 response")
	}
	return StepDiscoverResource, nil
}

func (f *Flow) discoverResource(ctx context.Context, st *flowState) (Step, error) {
	var meta ResourceMetadata
	if err := f.getJSON(ctx, st.metadataURL, &meta); err != nil {
		return stepDone, fmt.Errorf("fetch resource metadata: %w", err)
	}
	if len(meta.AuthorizationServers) == 0 {
		return stepDone, errors.New("no authorization servers found")
	}
	st.metadataURL = meta.AuthorizationServers[0].MetadataURL()
	return StepDiscoverServer, nil
}

func (f *Flow) discoverServer(ctx context.Context, st *flowState) (Step, error) {
	if err := f.getJSON(ctx, st.metadataURL, &st.server); err != nil {
		return stepDone, fmt.Errorf("fetch auth server metadata: %w", err)
	}
	if st.server.AuthorizationEndpoint == "" || st.server.TokenEndpoint == "" {
		return stepDone, errors.New("invalid auth server metadata")
	}
	st.clientID = st.server.ClientID
	if st.clientID == "" && st.server.RegistrationEndpoint != "" {
		return StepRegister, nil
	}
	return StepAuthorize, nil
}

// register attempts dynamic client registration.  Registration failure is
// non-fatal here: it only becomes fatal at the authorize step if no client
// id is available at all.
func (f *Flow) register(ctx context.Context, st *flowState) (Step, error) {
	body, err := json.Marshal(registrationRequest{
		RedirectURIs:            []string{f.az.RedirectURI()},
		TokenEndpointAuthMethod: "none",
		GrantTypes:              []string{"authorization_code"},
		ResponseTypes:           []string{"code"},
		Scope:                   registrationScope,
		ClientName:              clientName,
		SoftwareID:              softwareID,
	})
	if err != nil {
		return stepDone, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, st.server.RegistrationEndpoint, bytes.NewReader(body))
	if err != nil {
		return stepDone, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.hc.Do(req)
	if err != nil {
		return stepDone, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(resp.Body)
		f.lg.WarnContext(ctx, "auth: dynamic registration failed",
			"status", resp.StatusCode, "body", string(text))
		return StepAuthorize, nil
	}
	var reg registrationResponse
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		f.lg.WarnContext(ctx, "auth: registration response unreadable", "error", err)
		return StepAuthorize, nil
	}
	st.clientID = reg.ClientID
	return StepAuthorize, nil
}

func (f *Flow) authorize(ctx context.Context, st *flowState) (Step, error) {
	if st.clientID == "" {
		return stepDone, ErrNoClientID
	}
	pkce, err := f.newPKCE()
	if err != nil {
		return stepDone, err
	}
	st.pkce = pkce
	st.state = f.newState()

	params := url.Values{
		"response_type":         {"code"},
		"client_id":             {st.clientID},
		"redirect_uri":          {f.az.RedirectURI()},
		"scope":                 {authorizeScope},
		"state":                 {st.state},
		"code_challenge":        {st.pkce.Challenge},
		"code_challenge_method": {"S256"},
		"resource":              {f.resource},
	}
	authURL := st.server.AuthorizationEndpoint + "?" + params.Encode()

	f.lg.InfoContext(ctx, "auth: waiting for interactive authorization")
	redirectURL, err := f.az.Authorize(ctx, authURL)
	if err != nil {
		// surfaced verbatim so the user can tell cancellation from failure.
		return stepDone, err
	}

	code, err := parseRedirect(redirectURL, st.state)
	if err != nil {
		return stepDone, err
	}
	st.code = code
	return StepExchange, nil
}

// parseRedirect extracts and validates the code and state query parameters
// of the final redirect URL.  The state check is a mandatory anti-forgery
// check.
func parseRedirect(redirectURL, wantState string) (string, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return "", fmt.Errorf("bad redirect URL: %w", err)
	}
	q := u.Query()
	code := q.Get("code")
	if code == "" {
		if errParam := q.Get("error"); errParam != "" {
			return "", errors.New(errParam)
		}
		return "", errors.New("no authorization code received")
	}
	if q.Get("state") != wantState {
		return "", errors.New("state mismatch - possible CSRF")
	}
	return code, nil
}

func (f *Flow) exchange(ctx context.Context, st *flowState) (Step, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {st.code},
		"redirect_uri":  {f.az.RedirectURI()},
		"code_verifier": {st.pkce.Verifier},
		"client_id":     {st.clientID},
		"resource":      {f.resource},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, st.server.TokenEndpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return stepDone, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := f.hc.Do(req)
	if err != nil {
		return stepDone, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return stepDone, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var te tokenErrorResponse
		if err := json.Unmarshal(raw, &te); err != nil {
			return stepDone, fmt.Errorf("token exchange failed: %d: %s", resp.StatusCode, string(raw))
		}
		return stepDone, errors.New(te.message(fmt.Sprintf("token exchange failed: %d", resp.StatusCode)))
	}
	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return stepDone, fmt.Errorf("token response: %w", err)
	}
	lifetime := defaultExpiresIn
	if tr.ExpiresIn > 0 {
		lifetime = time.Duration(tr.ExpiresIn) * time.Second
	}
	st.cred = Credential{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    f.now().Add(lifetime),
	}
	// the verifier is single-use: drop it as soon as the exchange is done.
	st.pkce = PKCE{}
	return StepComplete, nil
}

func (f *Flow) complete(ctx context.Context, st *flowState) (Step, error) {
	if err := f.store.Set(ctx, st.cred); err != nil {
		return stepDone, fmt.Errorf("persist credential: %w", err)
	}
	f.lg.InfoContext(ctx, "auth: authenticated", "expires_at", st.cred.ExpiresAt)
	return stepDone, nil
}

// getJSON fetches and decodes a JSON document.
func (f *Flow) getJSON(ctx context.Context, u string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := f.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: %d %s", u, resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
