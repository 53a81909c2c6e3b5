package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ArielSltty/Orion/internal/domain"
	"github.com/ArielSltty/Orion/internal/storage"
)

// RequestStore is an in-memory implementation of storage.RequestStore.
type RequestStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SimulationRequest // keyed by id
}

// NewRequestStore creates a new in-memory request store.
func NewRequestStore() *RequestStore {
	return &RequestStore{
		data: make(map[string]*domain.SimulationRequest),
	}
}

// Compile-time interface check.
var _ storage.RequestStore = (*RequestStore)(nil)

// Insert adds a new request. Returns ErrDuplicateKey if id exists.
func (s *RequestStore) Insert(_ context.Context, r *domain.SimulationRequest) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[r.ID] = r.Clone()
	return nil
}

// GetByID retrieves a request by its ID. Returns ErrNotFound if not exists.
func (s *RequestStore) GetByID(_ context.Context, id string) (*domain.SimulationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return r.Clone(), nil
}

// Transition applies u atomically and returns the updated request.
func (s *RequestStore) Transition(_ context.Context, id string, u storage.StatusUpdate) (*domain.SimulationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	// Work on a copy so a rejected update leaves the record untouched.
	next := r.Clone()
	if err := storage.ApplyUpdate(next, u); err != nil {
		return nil, err
	}
	s.data[id] = next
	return next.Clone(), nil
}

// ListStale retrieves non-terminal requests last updated before updatedBefore.
func (s *RequestStore) ListStale(_ context.Context, updatedBefore int64, limit int) ([]*domain.SimulationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SimulationRequest
	for _, r := range s.data {
		if !r.Status.IsTerminal() && r.UpdatedAt < updatedBefore {
			result = append(result, r.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt != result[j].UpdatedAt {
			return result[i].UpdatedAt < result[j].UpdatedAt
		}
		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// DeleteTerminalBefore removes terminal requests last updated before updatedBefore.
func (s *RequestStore) DeleteTerminalBefore(_ context.Context, updatedBefore int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, r := range s.data {
		if r.Status.IsTerminal() && r.UpdatedAt < updatedBefore {
			delete(s.data, id)
			removed++
		}
	}
	return removed, nil
}

// CountByStatus returns the number of requests per status.
func (s *RequestStore) CountByStatus(_ context.Context) (map[domain.RequestStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.RequestStatus]int)
	for _, r := range s.data {
		counts[r.Status]++
	}
	return counts, nil
}
