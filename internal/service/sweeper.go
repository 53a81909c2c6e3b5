package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ArielSltty/Orion/internal/domain"
	"github.com/ArielSltty/Orion/internal/storage"
)

// sweepBatch bounds the stale requests handled per sweep.
const sweepBatch = 500

// SweepResult summarizes one sweep.
type SweepResult struct {
	Failed int // stale requests moved to failed
	Pruned int // terminal requests removed after retention
}

// Run sweeps every SweepInterval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	s.logger.Info("sweeper started",
		zap.Duration("interval", s.sweepInterval),
		zap.Duration("stale_after", s.staleAfter),
		zap.Duration("retention", s.retention))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopping")
			return ctx.Err()
		case <-ticker.C:
			res, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Error("sweep failed", zap.Error(err))
				continue
			}
			if res.Failed > 0 || res.Pruned > 0 {
				s.logger.Info("sweep done", zap.Int("failed", res.Failed), zap.Int("pruned", res.Pruned))
			}
		}
	}
}

// Sweep fails requests that stayed non-terminal longer than StaleAfter,
// prunes terminal requests older than Retention and refreshes the
// per-status gauges.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now()

	stale, err := s.store.ListStale(ctx, now.Add(-s.staleAfter).UnixNano(), sweepBatch)
	if err != nil {
		return res, fmt.Errorf("list stale: %w", err)
	}

	for _, req := range stale {
		msg := StaleMessage
		ts := s.now().UnixNano()
		_, err := s.transition(ctx, req.Status, req.ID, storage.StatusUpdate{
			Status:    domain.StatusFailed,
			Result:    &domain.SimulationResult{Success: false, Error: &msg, Timestamp: ts},
			UpdatedAt: ts,
		})
		if errors.Is(err, storage.ErrInvalidTransition) {
			// Finished while we were sweeping.
			continue
		}
		if err != nil {
			return res, fmt.Errorf("fail stale request %s: %w", req.ID, err)
		}
		res.Failed++
	}
	s.metrics.RecordStaleFailed(res.Failed)

	if s.retention > 0 {
		res.Pruned, err = s.store.DeleteTerminalBefore(ctx, now.Add(-s.retention).UnixNano())
		if err != nil {
			return res, fmt.Errorf("prune terminal: %w", err)
		}
	}

	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return res, fmt.Errorf("count by status: %w", err)
	}
	gauges := make(map[string]int, len(counts))
	for status, n := range counts {
		gauges[status.String()] = n
	}
	s.metrics.UpdateRequestCounts(gauges)

	return res, nil
}
