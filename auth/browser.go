package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	br "github.com/pkg/browser"
)

const callbackPath = "/oauth/callback"

// BrowserAuthorizer is the production Authorizer: it binds a loopback HTTP
// listener for the redirect, opens the authorization URL in the user's
// browser, and suspends until the server's redirect lands on the listener.
// There is no enforced timeout; cancellation comes from the context.
type BrowserAuthorizer struct {
	ln      net.Listener
	lg      *slog.Logger
	openURL func(string) error

	once sync.Once
}

// NewBrowserAuthorizer binds the loopback listener.  addr defaults to
// "127.0.0.1:0" (any free port).  Close must be called when done.
func NewBrowserAuthorizer(addr string, lg *slog.Logger) (*BrowserAuthorizer, error) {
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	if lg == nil {
		lg = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind redirect listener: %w", err)
	}
	return &BrowserAuthorizer{ln: ln, lg: lg, openURL: br.OpenURL}, nil
}

// RedirectURI returns the loopback redirect target.
func (b *BrowserAuthorizer) RedirectURI() string {
	return fmt.Sprintf("http://%s%s", b.ln.Addr(), callbackPath)
}

// Close releases the listener.
func (b *BrowserAuthorizer) Close() error {
	var err error
	b.once.Do(func() {
		err = b.ln.Close()
	})
	return err
}

// Authorize opens authURL in the browser and waits for the redirect.  The
// returned string is the full redirect URL including query parameters.
func (b *BrowserAuthorizer) Authorize(ctx context.Context, authURL string) (string, error) {
	redirected := make(chan string, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body>Authorization received. You can close this window.</body></html>")
		select {
		case redirected <- b.RedirectURI() + "?" + r.URL.RawQuery:
		default:
		}
	})
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(b.ln); err != nil && err != http.ErrServerClosed {
			b.lg.Debug("auth: callback server stopped", "error", err)
		}
	}()
	defer srv.Close()

	b.lg.Info("auth: opening browser", "redirect_uri", b.RedirectURI())
	if err := b.openURL(authURL); err != nil {
		// the user can still complete the flow by pasting the URL.
		b.lg.Warn("auth: unable to open browser, open the URL manually", "url", authURL, "error", err)
	}

	select {
	case <-ctx.Done():
		return "", ErrCancelled
	case u := <-redirected:
		return u, nil
	}
}
