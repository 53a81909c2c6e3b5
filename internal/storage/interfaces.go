package storage

import (
	"context"

	"github.com/ArielSltty/Orion/internal/domain"
)

// StatusUpdate describes a single state change of a request.
type StatusUpdate struct {
	Status    domain.RequestStatus
	Result    *domain.SimulationResult // attached when Status is terminal
	Signature *string                  // agent signature, terminal only
	UpdatedAt int64                    // unix ns
}

// RequestStore provides access to simulation_requests storage.
type RequestStore interface {
	// Insert adds a new request. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, r *domain.SimulationRequest) error

	// GetByID retrieves a request by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.SimulationRequest, error)

	// Transition applies u atomically and returns the updated request.
	// Returns ErrNotFound if the request does not exist and
	// ErrInvalidTransition if the current status does not allow u.Status.
	Transition(ctx context.Context, id string, u StatusUpdate) (*domain.SimulationRequest, error)

	// ListStale retrieves non-terminal requests last updated before updatedBefore,
	// ordered by updated_at ASC, at most limit rows.
	ListStale(ctx context.Context, updatedBefore int64, limit int) ([]*domain.SimulationRequest, error)

	// DeleteTerminalBefore removes terminal requests last updated before
	// updatedBefore. Returns the number of removed rows.
	DeleteTerminalBefore(ctx context.Context, updatedBefore int64) (int, error)

	// CountByStatus returns the number of requests per status.
	CountByStatus(ctx context.Context) (map[domain.RequestStatus]int, error)
}

// ResultArchive provides access to the append-only simulation_results archive.
type ResultArchive interface {
	// Append records a terminal outcome. Returns ErrDuplicateKey if request_id exists.
	Append(ctx context.Context, rec *domain.ResultRecord) error

	// GetByRequestID retrieves an archived outcome. Returns ErrNotFound if not exists.
	GetByRequestID(ctx context.Context, requestID string) (*domain.ResultRecord, error)

	// ListByCaller retrieves outcomes submitted by caller, newest first, at most limit rows.
	ListByCaller(ctx context.Context, caller string, limit int) ([]*domain.ResultRecord, error)
}
