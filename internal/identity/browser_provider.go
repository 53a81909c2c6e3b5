package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Default browser login settings.
const (
	DefaultProviderURL  = "https://identity.ic0.app"
	DefaultCallbackAddr = "127.0.0.1:51735"
	DefaultLoginTimeout = 5 * time.Minute
)

const callbackPath = "/callback"

// BrowserProvider logs in through the identity provider's web page.
// It serves a one-shot local callback that receives the principal.
type BrowserProvider struct {
	ProviderURL  string
	CallbackAddr string
	Timeout      time.Duration
	// Open shows the login URL to the user. Defaults to the system browser.
	Open   func(loginURL string) error
	Logger *zap.Logger
}

// NewBrowserProvider returns a provider with default settings.
func NewBrowserProvider(logger *zap.Logger) *BrowserProvider {
	return &BrowserProvider{
		ProviderURL:  DefaultProviderURL,
		CallbackAddr: DefaultCallbackAddr,
		Timeout:      DefaultLoginTimeout,
		Open:         OpenBrowser,
		Logger:       logger,
	}
}

// Login opens the provider page and waits for its redirect to the local
// callback. Cancelling ctx or the timeout ends the wait with ErrLoginCancelled.
func (p *BrowserProvider) Login(ctx context.Context) (Principal, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultLoginTimeout
	}

	ln, err := net.Listen("tcp", p.CallbackAddr)
	if err != nil {
		return "", fmt.Errorf("listen for login callback: %w", err)
	}

	state := uuid.NewString()
	loginURL, err := p.loginURL(ln.Addr().String(), state)
	if err != nil {
		ln.Close()
		return "", err
	}

	principalCh := make(chan Principal, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		if q.Get("state") != state {
			http.Error(w, "Invalid state", http.StatusBadRequest)
			return
		}
		if errStr := q.Get("error"); errStr != "" {
			http.Error(w, "Login failed: "+errStr, http.StatusBadRequest)
			sendErr(errCh, fmt.Errorf("provider: %s", errStr))
			return
		}
		principal := Principal(q.Get("principal"))
		if principal == "" {
			http.Error(w, "No principal received", http.StatusBadRequest)
			sendErr(errCh, errors.New("no principal received"))
			return
		}

		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Orion</title></head>
<body style="font-family: sans-serif; text-align: center; padding: 50px;">
<h1>Signed in</h1><p>You can close this tab and return to the terminal.</p>
<script>window.close();</script></body></html>`))

		select {
		case principalCh <- principal:
		default:
		}
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			sendErr(errCh, err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("waiting for browser login", zap.String("url", loginURL))
	if p.Open != nil {
		if err := p.Open(loginURL); err != nil {
			logger.Warn("could not open browser", zap.Error(err))
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case principal := <-principalCh:
		return principal, nil
	case err := <-errCh:
		return "", err
	case <-timer.C:
		return "", fmt.Errorf("%w: no response within %s", ErrLoginCancelled, timeout)
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrLoginCancelled, ctx.Err())
	}
}

// Logout is a no-op: the browser provider keeps no local identity.
func (p *BrowserProvider) Logout(context.Context) error {
	return nil
}

func (p *BrowserProvider) loginURL(callbackHost, state string) (string, error) {
	base := p.ProviderURL
	if base == "" {
		base = DefaultProviderURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse provider url: %w", err)
	}

	q := u.Query()
	q.Set("redirect_uri", "http://"+callbackHost+callbackPath)
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func sendErr(ch chan error, err error) {
	select {
	case ch <- err:
	default:
	}
}

// OpenBrowser opens url in the default browser.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
