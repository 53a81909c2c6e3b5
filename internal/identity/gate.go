package identity

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ArielSltty/Orion/internal/observability"
)

// Provider performs the interactive part of authentication.
type Provider interface {
	// Login prompts the user and returns the resulting principal.
	Login(ctx context.Context) (Principal, error)
	// Logout drops any identity state the provider keeps locally.
	Logout(ctx context.Context) error
}

// Gate guarantees an authenticated principal before protected operations.
// Concurrent callers share a single login prompt.
type Gate struct {
	provider Provider
	session  *Session
	prompt   chan struct{} // holds one token; taken for the duration of a login
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// GateOption configures Gate.
type GateOption func(*Gate)

// WithGateMetrics counts interactive login prompts.
func WithGateMetrics(m *observability.Metrics) GateOption {
	return func(g *Gate) {
		g.metrics = m
	}
}

// WithGateLogger sets the logger.
func WithGateLogger(l *zap.Logger) GateOption {
	return func(g *Gate) {
		g.logger = l
	}
}

// NewGate creates a gate that caches principals in session.
func NewGate(provider Provider, session *Session, opts ...GateOption) *Gate {
	g := &Gate{
		provider: provider,
		session:  session,
		prompt:   make(chan struct{}, 1),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	g.prompt <- struct{}{}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.Named("identity")
	return g
}

// Session returns the session the gate writes to.
func (g *Gate) Session() *Session {
	return g.session
}

// EnsureAuthenticated returns the session principal, prompting for a login
// only when none is cached. Failures are returned as *AuthenticationError.
func (g *Gate) EnsureAuthenticated(ctx context.Context) (Principal, error) {
	if p, ok := g.session.Principal(); ok {
		return p, nil
	}

	select {
	case <-g.prompt:
	case <-ctx.Done():
		return "", &AuthenticationError{Err: ctx.Err()}
	}
	defer func() { g.prompt <- struct{}{} }()

	// Another caller may have logged in while we waited.
	if p, ok := g.session.Principal(); ok {
		return p, nil
	}
	if g.session.Closed() {
		return "", &AuthenticationError{Err: ErrSessionClosed}
	}

	gen := g.session.currentGeneration()
	g.metrics.RecordLoginPrompt()
	p, err := g.provider.Login(ctx)
	if err != nil {
		g.logger.Info("login failed", zap.Error(err))
		return "", &AuthenticationError{Err: err}
	}
	if p.IsAnonymous() {
		return "", &AuthenticationError{Err: ErrAnonymous}
	}

	if err := g.session.set(p, g.now(), gen); err != nil {
		return "", &AuthenticationError{Err: err}
	}
	g.logger.Info("authenticated", zap.String("principal", p.String()))
	return p, nil
}

// Logout clears the cached principal and the provider's local identity.
// A login still in progress is discarded with ErrLoggedOut. The next
// EnsureAuthenticated prompts again.
func (g *Gate) Logout(ctx context.Context) error {
	g.session.clear()
	if err := g.provider.Logout(ctx); err != nil {
		return fmt.Errorf("provider logout: %w", err)
	}
	return nil
}
