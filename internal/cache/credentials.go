package cache

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/sriramvarun3/Memori/auth"
)

// Manager implements auth.TokenStore.
var _ auth.TokenStore = (*Manager)(nil)

// Token returns the stored access token if it is still usable.  An absent
// or expired credential returns auth.ErrNoCredential; the stored value is
// never mutated in place, re-authentication overwrites it.
func (m *Manager) Token(ctx context.Context) (string, error) {
	cred, err := m.Credential(ctx)
	if err != nil {
		return "", err
	}
	if !cred.Valid(m.now()) {
		return "", auth.ErrNoCredential
	}
	return cred.AccessToken, nil
}

// Credential returns the stored credential regardless of freshness.
func (m *Manager) Credential(_ context.Context) (auth.Credential, error) {
	var cred auth.Credential
	if err := loadJSON(m.credsPath(), &cred); err != nil {
		if errors.Is(err, ErrNotCached) {
			return auth.Credential{}, auth.ErrNoCredential
		}
		return auth.Credential{}, err
	}
	return cred, nil
}

// Set atomically overwrites the stored credential.
func (m *Manager) Set(_ context.Context, cred auth.Credential) error {
	return storeJSON(m.credsPath(), cred)
}

// Clear removes the stored credential.
func (m *Manager) Clear(_ context.Context) error {
	return remove(m.credsPath())
}

func (m *Manager) credsPath() string {
	return filepath.Join(m.dir, credsFile)
}
