package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ArielSltty/Orion/internal/domain"
	"github.com/ArielSltty/Orion/internal/storage"
)

// RequestStore implements storage.RequestStore using PostgreSQL.
type RequestStore struct {
	pool *Pool
}

// NewRequestStore creates a new RequestStore.
func NewRequestStore(pool *Pool) *RequestStore {
	return &RequestStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RequestStore = (*RequestStore)(nil)

const requestColumns = `
	id, status, simulation_type, caller,
	initial_price, drift, volatility, time_horizon, time_steps, n_simulations,
	result_success, result_payload, result_error, result_timestamp, agent_signature,
	created_at, updated_at
`

// Insert adds a new request. Returns ErrDuplicateKey if id exists.
func (s *RequestStore) Insert(ctx context.Context, r *domain.SimulationRequest) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO simulation_requests (` + requestColumns + `) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17
		)
	`

	success, payload, errMsg, resultTS := resultColumns(r.Result)
	_, err := s.pool.Exec(ctx, query,
		r.ID, string(r.Status), string(r.SimulationType), r.Caller,
		r.Parameters.InitialPrice, r.Parameters.Drift, r.Parameters.Volatility, r.Parameters.TimeHorizon,
		int64(r.Parameters.TimeSteps), int64(r.Parameters.NSimulations),
		success, payload, errMsg, resultTS, r.AgentSignature,
		r.Timestamp, r.UpdatedAt,
	)
	return mapError("insert simulation request", err)
}

// GetByID retrieves a request by its ID. Returns ErrNotFound if not exists.
func (s *RequestStore) GetByID(ctx context.Context, id string) (*domain.SimulationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM simulation_requests WHERE id = $1`

	r, err := scanRequest(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError("get simulation request by id", err)
	}
	return r, nil
}

// Transition applies u atomically and returns the updated request.
// The row is locked for the duration of the check so concurrent
// callbacks for the same request serialize.
func (s *RequestStore) Transition(ctx context.Context, id string, u storage.StatusUpdate) (*domain.SimulationRequest, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + requestColumns + ` FROM simulation_requests WHERE id = $1 FOR UPDATE`
	r, err := scanRequest(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError("lock simulation request", err)
	}

	if err := storage.ApplyUpdate(r, u); err != nil {
		return nil, err
	}

	update := `
		UPDATE simulation_requests SET
			status = $2,
			result_success = $3, result_payload = $4, result_error = $5, result_timestamp = $6,
			agent_signature = $7,
			updated_at = $8
		WHERE id = $1
	`
	success, payload, errMsg, resultTS := resultColumns(r.Result)
	_, err = tx.Exec(ctx, update,
		r.ID, string(r.Status),
		success, payload, errMsg, resultTS,
		r.AgentSignature,
		r.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update simulation request: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return r, nil
}

// ListStale retrieves non-terminal requests last updated before updatedBefore.
func (s *RequestStore) ListStale(ctx context.Context, updatedBefore int64, limit int) ([]*domain.SimulationRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM simulation_requests
		WHERE status NOT IN ('completed', 'failed') AND updated_at < $1
		ORDER BY updated_at ASC, id ASC
	`
	args := []any{updatedBefore}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stale simulation requests: %w", err)
	}
	defer rows.Close()

	return scanRequests(rows)
}

// DeleteTerminalBefore removes terminal requests last updated before updatedBefore.
func (s *RequestStore) DeleteTerminalBefore(ctx context.Context, updatedBefore int64) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM simulation_requests
		WHERE status IN ('completed', 'failed') AND updated_at < $1
	`, updatedBefore)
	if err != nil {
		return 0, fmt.Errorf("delete terminal simulation requests: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CountByStatus returns the number of requests per status.
func (s *RequestStore) CountByStatus(ctx context.Context) (map[domain.RequestStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM simulation_requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count simulation requests: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.RequestStatus]int)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[domain.RequestStatus(status)] = int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

func resultColumns(r *domain.SimulationResult) (success *bool, payload, errMsg *string, ts *int64) {
	if r == nil {
		return nil, nil, nil, nil
	}
	ok := r.Success
	stamp := r.Timestamp
	return &ok, r.Result, r.Error, &stamp
}

// scanRequest scans a single row into SimulationRequest.
func scanRequest(row pgx.Row) (*domain.SimulationRequest, error) {
	var r domain.SimulationRequest
	var status, simType string
	var steps, sims int64
	var success *bool
	var payload, errMsg *string
	var resultTS *int64

	err := row.Scan(
		&r.ID, &status, &simType, &r.Caller,
		&r.Parameters.InitialPrice, &r.Parameters.Drift, &r.Parameters.Volatility, &r.Parameters.TimeHorizon,
		&steps, &sims,
		&success, &payload, &errMsg, &resultTS, &r.AgentSignature,
		&r.Timestamp, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Status = domain.RequestStatus(status)
	r.SimulationType = domain.SimulationType(simType)
	r.Parameters.TimeSteps = uint64(steps)
	r.Parameters.NSimulations = uint64(sims)

	if success != nil {
		r.Result = &domain.SimulationResult{
			Success: *success,
			Result:  payload,
			Error:   errMsg,
		}
		if resultTS != nil {
			r.Result.Timestamp = *resultTS
		}
	}
	return &r, nil
}

// scanRequests scans multiple rows into SimulationRequest slice.
func scanRequests(rows pgx.Rows) ([]*domain.SimulationRequest, error) {
	var result []*domain.SimulationRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan simulation request: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate simulation requests: %w", err)
	}
	return result, nil
}
