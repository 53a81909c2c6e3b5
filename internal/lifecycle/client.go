// Package lifecycle drives one simulation request from submission to a
// terminal status: submit, poll and bounded await with cancellation.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ArielSltty/Orion/internal/domain"
	"github.com/ArielSltty/Orion/internal/identity"
	"github.com/ArielSltty/Orion/internal/observability"
	"github.com/ArielSltty/Orion/internal/rpc"
)

// Default polling discipline.
const (
	DefaultPollInterval      = 2 * time.Second
	DefaultMaxAttempts       = 150
	DefaultNotFoundTolerance = 3
	DefaultPollTimeout       = 30 * time.Second
)

// Service is the part of the simulation service the client needs.
// *rpc.Client implements it.
type Service interface {
	SubmitSimulationRequest(ctx context.Context, simType domain.SimulationType, params domain.SimulationParameters) (string, error)
	GetSimulationResult(ctx context.Context, requestID string) (*domain.SimulationRequest, error)
}

// Authenticator yields the caller principal before submission.
// *identity.Gate implements it.
type Authenticator interface {
	EnsureAuthenticated(ctx context.Context) (identity.Principal, error)
}

// Watcher pushes request snapshots until a terminal one arrives.
// *rpc.StatusWatcher implements it.
type Watcher interface {
	Watch(ctx context.Context, requestID string, onUpdate func(*domain.SimulationRequest)) (*domain.SimulationRequest, error)
}

// Config controls polling.
type Config struct {
	SimulationType    domain.SimulationType
	PollInterval      time.Duration
	MaxAttempts       int
	NotFoundTolerance int           // NotFound answers tolerated before the request is first seen
	PollTimeout       time.Duration // bound on one shared status query
}

// maxWait is the time budget of a whole wait.
func (c Config) maxWait() time.Duration {
	return c.PollInterval * time.Duration(c.MaxAttempts)
}

// DefaultConfig returns the default polling configuration.
func DefaultConfig() Config {
	return Config{
		SimulationType:    domain.SimulationTypeMonteCarlo,
		PollInterval:      DefaultPollInterval,
		MaxAttempts:       DefaultMaxAttempts,
		NotFoundTolerance: DefaultNotFoundTolerance,
		PollTimeout:       DefaultPollTimeout,
	}
}

// Client submits simulation requests and waits for their outcome.
// Safe for concurrent use.
type Client struct {
	service  Service
	auth     Authenticator
	watcher  Watcher
	config   Config
	onStatus func(*domain.SimulationRequest)
	inflight singleflight.Group
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// Option configures Client.
type Option func(*Client)

// WithAuthenticator requires a principal before every submit.
func WithAuthenticator(a Authenticator) Option {
	return func(c *Client) {
		c.auth = a
	}
}

// WithWatcher lets Follow use a push feed before falling back to polling.
func WithWatcher(w Watcher) Option {
	return func(c *Client) {
		c.watcher = w
	}
}

// WithStatusHook is called with every snapshot observed while waiting.
func WithStatusHook(fn func(*domain.SimulationRequest)) Option {
	return func(c *Client) {
		c.onStatus = fn
	}
}

// WithMetrics records submit, poll and await outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a Client. Zero fields in cfg take their defaults.
func New(service Service, cfg Config, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.SimulationType == "" {
		cfg.SimulationType = def.SimulationType
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.NotFoundTolerance < 0 {
		cfg.NotFoundTolerance = 0
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = def.PollTimeout
	}

	c := &Client{
		service: service,
		config:  cfg,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("lifecycle")
	return c
}

// Submit validates params and creates a request on the service.
// Returns *identity.AuthenticationError if the gate refuses,
// *domain.ValidationError before any network call, or *SubmissionError.
func (c *Client) Submit(ctx context.Context, params domain.SimulationParameters) (string, error) {
	if c.auth != nil {
		principal, err := c.auth.EnsureAuthenticated(ctx)
		if err != nil {
			c.metrics.RecordSubmission("unauthenticated")
			return "", err
		}
		ctx = rpc.WithCaller(ctx, principal.String())
	}

	if err := params.Validate(); err != nil {
		c.metrics.RecordSubmission("invalid")
		return "", err
	}

	id, err := c.service.SubmitSimulationRequest(ctx, c.config.SimulationType, params)
	if err != nil {
		c.metrics.RecordSubmission("error")
		return "", &SubmissionError{Err: err}
	}

	c.metrics.RecordSubmission("ok")
	c.logger.Debug("simulation submitted", zap.String("request_id", id))
	return id, nil
}

// Poll queries requestID once. Concurrent polls for the same id share a
// single outstanding query, which no single caller can cancel; each caller
// stops waiting when its own ctx is done. Returns *UnknownRequestError if
// the service has no record of it.
func (c *Client) Poll(ctx context.Context, requestID string) (*domain.SimulationRequest, error) {
	ch := c.inflight.DoChan(requestID, func() (any, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.PollTimeout)
		defer cancel()
		return c.service.GetSimulationResult(qctx, requestID)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}

	if res.Err != nil {
		c.metrics.RecordPoll("error")
		return nil, fmt.Errorf("poll %s: %w", requestID, res.Err)
	}
	req, _ := res.Val.(*domain.SimulationRequest)
	if req == nil {
		c.metrics.RecordPoll("not_found")
		return nil, &UnknownRequestError{RequestID: requestID}
	}

	c.metrics.RecordPoll("found")
	// Shared callers must not alias one another's result.
	return req.Clone(), nil
}

// Await polls with the configured interval and attempt bound.
func (c *Client) Await(ctx context.Context, requestID string) (*domain.SimulationRequest, error) {
	return c.AwaitResult(ctx, requestID, c.config.PollInterval, c.config.MaxAttempts)
}

// AwaitResult polls requestID immediately and then every interval until a
// terminal status is observed or maxAttempts polls were made.
//
// A completed request is returned with a nil error. A failed request is
// returned together with *ServiceFailure. Exhausting attempts yields
// *TimeoutError, and a request still unknown after the NotFound tolerance
// yields *UnknownRequestError. Cancelling ctx stops the wait at once; no
// poll is issued afterwards.
func (c *Client) AwaitResult(ctx context.Context, requestID string, interval time.Duration, maxAttempts int) (*domain.SimulationRequest, error) {
	if interval <= 0 {
		interval = c.config.PollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = c.config.MaxAttempts
	}

	start := time.Now()
	outcome := "timeout"
	defer func() {
		c.metrics.RecordAwait(outcome, time.Since(start).Seconds())
	}()

	var (
		last     *domain.SimulationRequest
		lastErr  error
		notFound int
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, interval); err != nil {
				outcome = "cancelled"
				return nil, err
			}
		}

		req, err := c.Poll(ctx, requestID)
		if ctxErr := ctx.Err(); ctxErr != nil {
			outcome = "cancelled"
			return nil, ctxErr
		}

		var unknown *UnknownRequestError
		switch {
		case errors.As(err, &unknown):
			notFound++
			// Once seen, a vanished request is not a propagation delay.
			if last != nil || notFound > c.config.NotFoundTolerance {
				outcome = "unknown"
				return nil, err
			}
			lastErr = err
			continue
		case err != nil:
			c.logger.Warn("poll failed",
				zap.String("request_id", requestID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			lastErr = err
			continue
		}

		last, lastErr = req, nil
		if c.onStatus != nil {
			c.onStatus(req)
		}

		if req.Status.IsTerminal() {
			return c.finish(req, &outcome)
		}
		if !req.Status.IsKnown() {
			c.logger.Debug("unrecognized status, still waiting",
				zap.String("request_id", requestID),
				zap.String("status", req.Status.String()))
		}
	}

	te := &TimeoutError{RequestID: requestID, Attempts: maxAttempts, Err: lastErr}
	if last != nil {
		te.LastStatus = last.Status
	}
	return last, te
}

// Follow waits for requestID through the push feed when a Watcher is
// configured and falls back to polling if the feed is unavailable. The
// whole wait, feed and fallback together, is bounded by PollInterval times
// MaxAttempts; running out yields *TimeoutError.
func (c *Client) Follow(ctx context.Context, requestID string) (*domain.SimulationRequest, error) {
	if c.watcher == nil {
		return c.Await(ctx, requestID)
	}

	start := time.Now()
	budget := c.config.maxWait()
	wctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var last *domain.SimulationRequest
	final, err := c.watcher.Watch(wctx, requestID, func(req *domain.SimulationRequest) {
		last = req
		if c.onStatus != nil {
			c.onStatus(req)
		}
	})
	if err == nil && final != nil {
		outcome := ""
		return c.finish(final, &outcome)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if wctx.Err() != nil {
		return last, c.waitExpired(requestID, start, last)
	}

	c.logger.Info("status feed unavailable, polling instead",
		zap.String("request_id", requestID),
		zap.Error(err))

	attempts := int((budget - time.Since(start)) / c.config.PollInterval)
	if attempts < 1 {
		attempts = 1
	}
	req, err := c.AwaitResult(wctx, requestID, c.config.PollInterval, attempts)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		if req == nil {
			req = last
		}
		return req, c.waitExpired(requestID, start, req)
	}
	return req, err
}

func (c *Client) waitExpired(requestID string, start time.Time, last *domain.SimulationRequest) *TimeoutError {
	waited := time.Since(start)
	c.metrics.RecordAwait("timeout", waited.Seconds())
	te := &TimeoutError{RequestID: requestID, Waited: waited}
	if last != nil {
		te.LastStatus = last.Status
	}
	return te
}

func (c *Client) finish(req *domain.SimulationRequest, outcome *string) (*domain.SimulationRequest, error) {
	*outcome = req.Status.String()
	if req.Status == domain.StatusFailed {
		return req, failureOf(req)
	}
	return req, nil
}

// sleep waits for d or until ctx is done. The timer is always released.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
