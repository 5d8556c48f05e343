// Package memori is the facade over the Memori subsystems: Granola
// authentication, meeting listing with its local snapshot, query grounding
// and conversation capture.  Every method returns a plain result value with
// an Err string instead of a Go error: this package is the boundary towards
// presentation layers, and nothing is allowed to propagate across it as a
// failure they have to recover from.
package memori

import (
	"time"

	"github.com/sriramvarun3/Memori/granola"
	"github.com/sriramvarun3/Memori/internal/cache"
)

// User-facing error strings for the expected authentication conditions.
const (
	msgNotAuthenticated = "Not authenticated"
	msgSessionExpired   = "Session expired. Please reconnect."
)

// AuthStatus is the result of CheckAuth.
type AuthStatus struct {
	Authenticated bool `json:"authenticated"`
}

// AuthResult is the result of Authenticate.
type AuthResult struct {
	Success bool   `json:"success"`
	Err     string `json:"error,omitempty"`
}

// MeetingsResult is the result of Meetings.
type MeetingsResult struct {
	Meetings []granola.MeetingRecord `json:"meetings"`
	CachedAt time.Time               `json:"cachedAt,omitzero"`
	Err      string                  `json:"error,omitempty"`
}

// DetailResult is the result of MeetingDetail.
type DetailResult struct {
	Meeting string `json:"meeting,omitempty"`
	Err     string `json:"error,omitempty"`
}

// AskResult is the result of Ask.  NeedsAuth distinguishes the recoverable
// authentication conditions from hard failures; the caller owns the single
// re-authentication retry.
type AskResult struct {
	ContextText string `json:"contextText,omitempty"`
	NeedsAuth   bool   `json:"needsAuth,omitempty"`
	Err         string `json:"error,omitempty"`
}

// GroundedResult is the result of GroundedPrompt.
type GroundedResult struct {
	Prompt string `json:"composedPrompt,omitempty"`
	Err    string `json:"error,omitempty"`
}

// HandoffResult is the result of CompressAndSave.
type HandoffResult struct {
	Handoff cache.ContextHandoff `json:"context"`
	Err     string               `json:"error,omitempty"`
}

// MemoryResult is the result of SaveMemory.
type MemoryResult struct {
	Memory cache.Memory `json:"memory"`
	Err    string       `json:"error,omitempty"`
}
