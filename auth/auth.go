// Package auth implements OAuth2 authentication against the Granola MCP
// service: discovery of the authorization server from the 401 challenge,
// optional dynamic client registration, and the authorization-code + PKCE
// exchange.  There is no refresh flow: an expired credential simply forces
// the full flow to run again.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ExpiryMargin is the safety margin applied when checking credential
// freshness: a credential that expires within the margin is already treated
// as absent.
const ExpiryMargin = time.Minute

var (
	// ErrNoCredential indicates that no usable credential is stored.
	ErrNoCredential = errors.New("no stored credential")
	// ErrCancelled is returned when the user abandons the interactive
	// authorization.
	ErrCancelled = errors.New("authentication cancelled")
	// ErrNoClientID is returned when neither server metadata nor dynamic
	// registration produced a client id.
	ErrNoClientID = errors.New("no client_id available, the service may require pre-registered OAuth apps")
)

// Credential is the stored access credential.  RefreshToken is kept for
// completeness but never used; it is an empty string when the server did
// not issue one.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Valid reports whether the credential is usable at the given instant.
// A credential inside the expiry margin is not.
func (c Credential) Valid(now time.Time) bool {
	if c.AccessToken == "" {
		return false
	}
	if c.ExpiresAt.IsZero() {
		return true
	}
	return now.Before(c.ExpiresAt.Add(-ExpiryMargin))
}

// TokenStore persists the access credential.  Token returns an empty string
// and ErrNoCredential when the stored credential is absent or expired; it
// never returns a stale token.  Set overwrites the stored value atomically.
type TokenStore interface {
	Token(ctx context.Context) (string, error)
	Set(ctx context.Context, c Credential) error
	Clear(ctx context.Context) error
}

// Step identifies a stage of the authentication flow.  It is carried by
// Error so that failures are attributable to the exact stage that produced
// them.
type Step uint8

const (
	StepInit Step = iota
	StepChallenge
	StepDiscoverResource
	StepDiscoverServer
	StepRegister
	StepAuthorize
	StepExchange
	StepComplete
	stepDone // terminal, never part of an error
)

var stepNames = map[Step]string{
	StepInit:             "initialize",
	StepChallenge:        "challenge",
	StepDiscoverResource: "resource discovery",
	StepDiscoverServer:   "authorization server discovery",
	StepRegister:         "client registration",
	StepAuthorize:        "authorization",
	StepExchange:         "token exchange",
	StepComplete:         "completion",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Step(%d)", uint8(s))
}

// Error is the error returned by Flow.Run.  The underlying Err carries the
// reason; Step names the stage that failed.
type Error struct {
	Step Step
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("authentication failed (%s): %s", e.Step, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == e.Err
}
