package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sriramvarun3/Memori/mcp"
)

// fakeInitializer provokes a 401 challenge pointing at metadataURL.
type fakeInitializer struct {
	metadataURL string
}

func (f *fakeInitializer) Initialize(ctx context.Context, token string) (*mcp.Result, error) {
	return &mcp.Result{Challenge: &mcp.AuthChallenge{
		WWWAuthenticate: fmt.Sprintf(`Bearer resource_metadata="%s"`, f.metadataURL),
	}}, nil
}

// fakeAuthorizer completes the authorization instantly, echoing the state
// from the auth URL (or a fixed one when tamperState is set).
type fakeAuthorizer struct {
	tamperState string
	gotAuthURL  string
}

func (f *fakeAuthorizer) RedirectURI() string { return "http://127.0.0.1:1/oauth/callback" }

func (f *fakeAuthorizer) Authorize(ctx context.Context, authURL string) (string, error) {
	f.gotAuthURL = authURL
	u, err := url.Parse(authURL)
	if err != nil {
		return "", err
	}
	state := u.Query().Get("state")
	if f.tamperState != "" {
		state = f.tamperState
	}
	return f.RedirectURI() + "?code=authcode&state=" + state, nil
}

// memStore records credentials in memory.
type memStore struct {
	cred Credential
	set  bool
}

func (m *memStore) Token(context.Context) (string, error) {
	if !m.set {
		return "", ErrNoCredential
	}
	return m.cred.AccessToken, nil
}

func (m *memStore) Set(_ context.Context, cred Credential) error {
	m.cred, m.set = cred, true
	return nil
}

func (m *memStore) Clear(context.Context) error {
	m.cred, m.set = Credential{}, false
	return nil
}

// authServer is a minimal OAuth server covering discovery, registration and
// token exchange.
type authServer struct {
	*httptest.Server

	failRegistration bool
	metadataClientID string
	tokenStatus      int
	tokenBody        string

	registered bool
	tokenForm  url.Values
}

func newAuthServer(t *testing.T) *authServer {
	t.Helper()
	as := &authServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/meta", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"authorization_servers": []string{as.URL + "/oauth"},
		})
	})
	mux.HandleFunc("/oauth/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		meta := map[string]any{
			"authorization_endpoint": as.URL + "/oauth/authorize",
			"token_endpoint":         as.URL + "/oauth/token",
			"registration_endpoint":  as.URL + "/oauth/register",
		}
		if as.metadataClientID != "" {
			meta["client_id"] = as.metadataClientID
		}
		json.NewEncoder(w).Encode(meta)
	})
	mux.HandleFunc("/oauth/register", func(w http.ResponseWriter, r *http.Request) {
		if as.failRegistration {
			http.Error(w, `{"error":"not today"}`, http.StatusForbidden)
			return
		}
		as.registered = true
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "none", req["token_endpoint_auth_method"])
		json.NewEncoder(w).Encode(map[string]string{"client_id": "dyn-client"})
	})
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		as.tokenForm = r.PostForm
		if as.tokenStatus != 0 {
			w.WriteHeader(as.tokenStatus)
			fmt.Fprint(w, as.tokenBody)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-123",
			"expires_in":   900,
		})
	})
	as.Server = httptest.NewServer(mux)
	t.Cleanup(as.Close)
	return as
}

func testFlow(as *authServer, store TokenStore, az Authorizer) *Flow {
	f := NewFlow(&fakeInitializer{metadataURL: as.URL + "/meta"}, store, az,
		WithHTTPClient(as.Client()),
		WithResource("https://mcp.example.com"),
	)
	f.now = func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) }
	return f
}

func TestFlow_fullRun(t *testing.T) {
	as := newAuthServer(t)
	store := &memStore{}
	az := &fakeAuthorizer{}

	err := testFlow(as, store, az).Run(t.Context())
	require.NoError(t, err)

	assert.True(t, as.registered, "expected dynamic registration")
	require.True(t, store.set, "expected the credential to be persisted")
	assert.Equal(t, "at-123", store.cred.AccessToken)
	assert.Empty(t, store.cred.RefreshToken)
	assert.Equal(t, time.Date(2026, 8, 30, 12, 15, 0, 0, time.UTC), store.cred.ExpiresAt)

	// PKCE parameters went out on the authorize URL and the matching
	// verifier on the exchange.
	u, err := url.Parse(az.gotAuthURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "dyn-client", q.Get("client_id"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.Equal(t, "https://mcp.example.com", q.Get("resource"))

	assert.Equal(t, "authorization_code", as.tokenForm.Get("grant_type"))
	assert.Equal(t, "authcode", as.tokenForm.Get("code"))
	assert.Len(t, as.tokenForm.Get("code_verifier"), 43)
	assert.Equal(t, "dyn-client", as.tokenForm.Get("client_id"))
}

func TestFlow_metadataClientIDSkipsRegistration(t *testing.T) {
	as := newAuthServer(t)
	as.metadataClientID = "shared-client"
	store := &memStore{}
	az := &fakeAuthorizer{}

	err := testFlow(as, store, az).Run(t.Context())
	require.NoError(t, err)
	assert.False(t, as.registered)
	assert.Equal(t, "shared-client", as.tokenForm.Get("client_id"))
}

func TestFlow_registrationFailureWithoutClientID(t *testing.T) {
	as := newAuthServer(t)
	as.failRegistration = true
	store := &memStore{}

	err := testFlow(as, store, &fakeAuthorizer{}).Run(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoClientID)

	var aerr *Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, StepAuthorize, aerr.Step)
	assert.False(t, store.set, "nothing may be persisted on failure")
}

func TestFlow_stateMismatch(t *testing.T) {
	as := newAuthServer(t)
	store := &memStore{}
	az := &fakeAuthorizer{tamperState: "evil"}

	err := testFlow(as, store, az).Run(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state mismatch - possible CSRF")
	assert.False(t, store.set, "nothing may be persisted on failure")
	assert.Empty(t, as.tokenForm, "the code must not be exchanged")
}

func TestFlow_tokenError(t *testing.T) {
	as := newAuthServer(t)
	as.tokenStatus = http.StatusBadRequest
	as.tokenBody = `{"error":"invalid_grant","error_description":"code already redeemed"}`
	store := &memStore{}

	err := testFlow(as, store, &fakeAuthorizer{}).Run(t.Context())
	require.Error(t, err)
	var aerr *Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, StepExchange, aerr.Step)
	assert.Contains(t, err.Error(), "code already redeemed")
	assert.False(t, store.set)
}

func TestFlow_noAuthServers(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/meta", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"authorization_servers":[]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewFlow(&fakeInitializer{metadataURL: srv.URL + "/meta"}, &memStore{}, &fakeAuthorizer{},
		WithHTTPClient(srv.Client()))
	err := f.Run(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no authorization servers found")
}
