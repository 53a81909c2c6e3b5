package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ArielSltty/Orion/internal/domain"
	"github.com/ArielSltty/Orion/internal/observability"
)

// InstrumentedRequestStore records query latency and errors for a RequestStore.
// ErrNotFound, ErrDuplicateKey and ErrInvalidTransition are expected outcomes
// and are not counted as errors.
type InstrumentedRequestStore struct {
	next    RequestStore
	metrics *observability.Metrics
	backend string
}

// Instrument wraps next. backend labels the series ("memory", "postgres").
func Instrument(next RequestStore, m *observability.Metrics, backend string) *InstrumentedRequestStore {
	return &InstrumentedRequestStore{next: next, metrics: m, backend: backend}
}

// Compile-time interface check.
var _ RequestStore = (*InstrumentedRequestStore)(nil)

func (s *InstrumentedRequestStore) observe(op string, start time.Time, err error) {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateKey) || errors.Is(err, ErrInvalidTransition) {
		err = nil
	}
	s.metrics.RecordDBQuery(s.backend, op, time.Since(start).Seconds(), err)
}

func (s *InstrumentedRequestStore) Insert(ctx context.Context, r *domain.SimulationRequest) error {
	start := time.Now()
	err := s.next.Insert(ctx, r)
	s.observe("insert", start, err)
	return err
}

func (s *InstrumentedRequestStore) GetByID(ctx context.Context, id string) (*domain.SimulationRequest, error) {
	start := time.Now()
	r, err := s.next.GetByID(ctx, id)
	s.observe("get", start, err)
	return r, err
}

func (s *InstrumentedRequestStore) Transition(ctx context.Context, id string, u StatusUpdate) (*domain.SimulationRequest, error) {
	start := time.Now()
	r, err := s.next.Transition(ctx, id, u)
	s.observe("transition", start, err)
	return r, err
}

func (s *InstrumentedRequestStore) ListStale(ctx context.Context, updatedBefore int64, limit int) ([]*domain.SimulationRequest, error) {
	start := time.Now()
	rs, err := s.next.ListStale(ctx, updatedBefore, limit)
	s.observe("list_stale", start, err)
	return rs, err
}

func (s *InstrumentedRequestStore) DeleteTerminalBefore(ctx context.Context, updatedBefore int64) (int, error) {
	start := time.Now()
	n, err := s.next.DeleteTerminalBefore(ctx, updatedBefore)
	s.observe("delete_terminal", start, err)
	return n, err
}

func (s *InstrumentedRequestStore) CountByStatus(ctx context.Context) (map[domain.RequestStatus]int, error) {
	start := time.Now()
	counts, err := s.next.CountByStatus(ctx)
	s.observe("count", start, err)
	return counts, err
}
