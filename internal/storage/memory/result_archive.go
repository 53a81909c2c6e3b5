package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ArielSltty/Orion/internal/domain"
	"github.com/ArielSltty/Orion/internal/storage"
)

// ResultArchive is an in-memory implementation of storage.ResultArchive.
type ResultArchive struct {
	mu   sync.RWMutex
	data map[string]*domain.ResultRecord // keyed by request_id
}

// NewResultArchive creates a new in-memory result archive.
func NewResultArchive() *ResultArchive {
	return &ResultArchive{
		data: make(map[string]*domain.ResultRecord),
	}
}

// Compile-time interface check.
var _ storage.ResultArchive = (*ResultArchive)(nil)

// Append records a terminal outcome. Returns ErrDuplicateKey if request_id exists.
func (a *ResultArchive) Append(_ context.Context, rec *domain.ResultRecord) error {
	if rec == nil || rec.RequestID == "" || !rec.Status.IsTerminal() {
		return storage.ErrInvalidInput
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.data[rec.RequestID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *rec
	a.data[rec.RequestID] = &copy
	return nil
}

// GetByRequestID retrieves an archived outcome. Returns ErrNotFound if not exists.
func (a *ResultArchive) GetByRequestID(_ context.Context, requestID string) (*domain.ResultRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rec, ok := a.data[requestID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *rec
	return &copy, nil
}

// ListByCaller retrieves outcomes submitted by caller, newest first.
func (a *ResultArchive) ListByCaller(_ context.Context, caller string, limit int) ([]*domain.ResultRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var result []*domain.ResultRecord
	for _, rec := range a.data {
		if rec.Caller == caller {
			copy := *rec
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CompletedAt != result[j].CompletedAt {
			return result[i].CompletedAt > result[j].CompletedAt
		}
		return result[i].RequestID < result[j].RequestID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
