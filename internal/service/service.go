// Package service implements the simulation service: it records requests,
// hands them to the agent, applies the agent's results and answers lookups.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ArielSltty/Orion/internal/domain"
	"github.com/ArielSltty/Orion/internal/idhash"
	"github.com/ArielSltty/Orion/internal/observability"
	"github.com/ArielSltty/Orion/internal/storage"
)

// Default service timings.
const (
	DefaultStaleAfter      = 10 * time.Minute
	DefaultSweepInterval   = time.Minute
	DefaultRetention       = 24 * time.Hour
	DefaultDispatchTimeout = 2 * time.Minute

	// recordTimeout bounds the store write after a dispatch, which must
	// not inherit the dispatch deadline.
	recordTimeout = 5 * time.Second
)

// StaleMessage is the error attached to requests failed by the sweeper.
const StaleMessage = "simulation timed out on the service"

// Dispatcher hands a pending request to the computation agent.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *domain.SimulationRequest) error
}

// Publisher is told about every stored state of a request.
type Publisher interface {
	Publish(req *domain.SimulationRequest)
}

// UnsupportedTypeError rejects a submit for a simulation type the agent cannot run.
type UnsupportedTypeError struct {
	Type domain.SimulationType
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("Unsupported simulation type: %s", e.Type)
}

// Options contains configuration for creating a Service.
type Options struct {
	Store      storage.RequestStore  // required
	Archive    storage.ResultArchive // optional, keeps outcomes after pruning
	Dispatcher Dispatcher            // optional; without it requests stay pending
	Publisher  Publisher             // optional

	StaleAfter      time.Duration // Default: 10m
	SweepInterval   time.Duration // Default: 1m
	Retention       time.Duration // Default: 24h; negative disables pruning
	DispatchTimeout time.Duration // Default: 2m

	Metrics *observability.Metrics
	Logger  *zap.Logger
	Clock   func() time.Time
}

// Service is the backend side of the request/result protocol.
type Service struct {
	store      storage.RequestStore
	archive    storage.ResultArchive
	dispatcher Dispatcher
	publisher  Publisher

	staleAfter      time.Duration
	sweepInterval   time.Duration
	retention       time.Duration
	dispatchTimeout time.Duration

	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
	nonce   atomic.Uint64

	// Background dispatches outlive the submitting call.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Service.
func New(opts Options) *Service {
	staleAfter := opts.StaleAfter
	if staleAfter == 0 {
		staleAfter = DefaultStaleAfter
	}
	sweepInterval := opts.SweepInterval
	if sweepInterval == 0 {
		sweepInterval = DefaultSweepInterval
	}
	retention := opts.Retention
	if retention == 0 {
		retention = DefaultRetention
	}
	dispatchTimeout := opts.DispatchTimeout
	if dispatchTimeout == 0 {
		dispatchTimeout = DefaultDispatchTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:           opts.Store,
		archive:         opts.Archive,
		dispatcher:      opts.Dispatcher,
		publisher:       opts.Publisher,
		staleAfter:      staleAfter,
		sweepInterval:   sweepInterval,
		retention:       retention,
		dispatchTimeout: dispatchTimeout,
		metrics:         opts.Metrics,
		logger:          logger.Named("service"),
		now:             clock,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Close cancels outstanding dispatches and waits for them to finish.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// Submit records a pending request for caller and starts dispatching it.
// Returns *UnsupportedTypeError or *domain.ValidationError for bad input.
func (s *Service) Submit(ctx context.Context, caller string, simType domain.SimulationType, params domain.SimulationParameters) (string, error) {
	if !simType.IsValid() {
		return "", &UnsupportedTypeError{Type: simType}
	}
	if err := params.Validate(); err != nil {
		return "", err
	}

	ts := s.now().UnixNano()
	req := &domain.SimulationRequest{
		ID:             idhash.ComputeRequestID(caller, simType, params, ts, s.nonce.Add(1)),
		Status:         domain.StatusPending,
		Parameters:     params,
		Timestamp:      ts,
		SimulationType: simType,
		Caller:         caller,
		UpdatedAt:      ts,
	}

	if err := s.store.Insert(ctx, req); err != nil {
		return "", fmt.Errorf("insert request: %w", err)
	}

	s.metrics.RecordRequestCreated(simType.String())
	s.logger.Info("request accepted",
		zap.String("request_id", req.ID),
		zap.String("caller", caller),
		zap.String("simulation_type", simType.String()))
	s.publish(req)

	if s.dispatcher != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.dispatch(req)
		}()
	} else {
		s.logger.Warn("no agent configured, request stays pending", zap.String("request_id", req.ID))
	}

	return req.ID, nil
}

// Get returns the request, falling back to the archive for pruned records.
// Returns nil, nil if the identifier is unknown.
func (s *Service) Get(ctx context.Context, id string) (*domain.SimulationRequest, error) {
	req, err := s.store.GetByID(ctx, id)
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get request: %w", err)
	}

	if s.archive == nil {
		return nil, nil
	}
	rec, err := s.archive.GetByRequestID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get archived result: %w", err)
	}
	return rec.Request(), nil
}

// ReceiveResult applies an agent response. It returns false, changing
// nothing, when the request is unknown or already terminal.
func (s *Service) ReceiveResult(ctx context.Context, resp domain.SimulationResponse) (bool, error) {
	prev, err := s.store.GetByID(ctx, resp.RequestID)
	if errors.Is(err, storage.ErrNotFound) {
		s.metrics.RecordCallback(false)
		s.logger.Warn("result for unknown request", zap.String("request_id", resp.RequestID))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get request: %w", err)
	}
	if prev.Status.IsTerminal() {
		s.metrics.RecordCallback(false)
		return false, nil
	}

	ts := s.now().UnixNano()
	_, err = s.transition(ctx, prev.Status, resp.RequestID, storage.StatusUpdate{
		Status:    resp.TerminalStatus(),
		Result:    resp.ToResult(ts),
		Signature: resp.Signature,
		UpdatedAt: ts,
	})
	if errors.Is(err, storage.ErrInvalidTransition) || errors.Is(err, storage.ErrNotFound) {
		// Lost a race with another callback or the sweeper.
		s.metrics.RecordCallback(false)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.metrics.RecordCallback(true)
	return true, nil
}

// dispatch hands req to the agent and records the outcome.
func (s *Service) dispatch(req *domain.SimulationRequest) {
	ctx, cancel := context.WithTimeout(s.ctx, s.dispatchTimeout)
	defer cancel()

	err := s.dispatcher.Dispatch(ctx, req.Clone())

	rctx, rcancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer rcancel()

	if err != nil {
		if s.ctx.Err() != nil {
			// Shutting down; the sweeper settles it after restart.
			s.logger.Warn("dispatch interrupted", zap.String("request_id", req.ID))
			return
		}
		s.logger.Error("dispatch failed",
			zap.String("request_id", req.ID),
			zap.Error(err))

		msg := "Failed to dispatch simulation to agent: " + err.Error()
		ts := s.now().UnixNano()
		_, err := s.transition(rctx, domain.StatusPending, req.ID, storage.StatusUpdate{
			Status:    domain.StatusFailed,
			Result:    &domain.SimulationResult{Success: false, Error: &msg, Timestamp: ts},
			UpdatedAt: ts,
		})
		if err != nil && !errors.Is(err, storage.ErrInvalidTransition) {
			s.logger.Error("mark dispatch failure", zap.String("request_id", req.ID), zap.Error(err))
		}
		return
	}

	_, err = s.transition(rctx, domain.StatusPending, req.ID, storage.StatusUpdate{
		Status:    domain.StatusProcessing,
		UpdatedAt: s.now().UnixNano(),
	})
	// The agent may have answered before we got here.
	if err != nil && !errors.Is(err, storage.ErrInvalidTransition) {
		s.logger.Error("mark processing", zap.String("request_id", req.ID), zap.Error(err))
	}
}

// transition stores u and then records, archives and publishes the new state.
// from is used for metrics only.
func (s *Service) transition(ctx context.Context, from domain.RequestStatus, id string, u storage.StatusUpdate) (*domain.SimulationRequest, error) {
	updated, err := s.store.Transition(ctx, id, u)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTransition(from.String(), updated.Status.String())
	s.logger.Info("request transitioned",
		zap.String("request_id", id),
		zap.String("from", from.String()),
		zap.String("to", updated.Status.String()))

	if updated.Status.IsTerminal() {
		s.archiveOutcome(ctx, updated)
	}
	s.publish(updated)
	return updated, nil
}

func (s *Service) archiveOutcome(ctx context.Context, req *domain.SimulationRequest) {
	if s.archive == nil {
		return
	}
	rec := domain.NewResultRecord(req)
	if rec == nil {
		return
	}
	if err := s.archive.Append(ctx, rec); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		// The request store still holds the outcome until retention.
		s.logger.Error("archive result", zap.String("request_id", req.ID), zap.Error(err))
	}
}

func (s *Service) publish(req *domain.SimulationRequest) {
	if s.publisher != nil {
		s.publisher.Publish(req.Clone())
	}
}

// History returns archived outcomes submitted by caller, newest first.
// Returns nil without an archive.
func (s *Service) History(ctx context.Context, caller string, limit int) ([]*domain.ResultRecord, error) {
	if s.archive == nil {
		return nil, nil
	}
	recs, err := s.archive.ListByCaller(ctx, caller, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return recs, nil
}
