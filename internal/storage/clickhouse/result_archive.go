package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ArielSltty/Orion/internal/domain"
	"github.com/ArielSltty/Orion/internal/storage"
)

// ResultArchive implements storage.ResultArchive using ClickHouse.
type ResultArchive struct {
	conn *Conn
}

// NewResultArchive creates a new ResultArchive.
func NewResultArchive(conn *Conn) *ResultArchive {
	return &ResultArchive{conn: conn}
}

// Compile-time interface check.
var _ storage.ResultArchive = (*ResultArchive)(nil)

const resultColumns = `
	request_id, caller, simulation_type, status,
	initial_price, drift, volatility, time_horizon, time_steps, n_simulations,
	success, result_payload, result_error, agent_signature,
	submitted_at, completed_at
`

// Append records a terminal outcome. Returns ErrDuplicateKey if request_id exists.
func (a *ResultArchive) Append(ctx context.Context, rec *domain.ResultRecord) error {
	if rec == nil || rec.RequestID == "" || !rec.Status.IsTerminal() {
		return storage.ErrInvalidInput
	}

	// ReplacingMergeTree would silently replace, so check first to keep append-only semantics.
	exists, err := a.exists(ctx, rec.RequestID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	var success uint8
	if rec.Success {
		success = 1
	}

	query := `
		INSERT INTO simulation_results (` + resultColumns + `) VALUES (
			?, ?, ?, ?,
			?, ?, ?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?
		)
	`
	err = a.conn.Exec(ctx, query,
		rec.RequestID, rec.Caller, string(rec.SimulationType), string(rec.Status),
		rec.Parameters.InitialPrice, rec.Parameters.Drift, rec.Parameters.Volatility, rec.Parameters.TimeHorizon,
		rec.Parameters.TimeSteps, rec.Parameters.NSimulations,
		success, rec.Result, rec.Error, rec.Signature,
		rec.SubmittedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert simulation result: %w", err)
	}
	return nil
}

// GetByRequestID retrieves an archived outcome. Returns ErrNotFound if not exists.
func (a *ResultArchive) GetByRequestID(ctx context.Context, requestID string) (*domain.ResultRecord, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM simulation_results FINAL
		WHERE request_id = ?
		LIMIT 1
	`

	rec, err := scanResult(a.conn.QueryRow(ctx, query, requestID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get simulation result: %w", err)
	}
	return rec, nil
}

// ListByCaller retrieves outcomes submitted by caller, newest first.
func (a *ResultArchive) ListByCaller(ctx context.Context, caller string, limit int) ([]*domain.ResultRecord, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM simulation_results FINAL
		WHERE caller = ?
		ORDER BY completed_at DESC, request_id ASC
	`
	args := []any{caller}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := a.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query by caller: %w", err)
	}
	defer rows.Close()

	var records []*domain.ResultRecord
	for rows.Next() {
		rec, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result rows: %w", err)
	}
	return records, nil
}

func (a *ResultArchive) exists(ctx context.Context, requestID string) (bool, error) {
	var count uint64
	err := a.conn.QueryRow(ctx,
		`SELECT count(*) FROM simulation_results FINAL WHERE request_id = ?`, requestID,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// rowScanner is satisfied by both driver.Row and driver.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*domain.ResultRecord, error) {
	var rec domain.ResultRecord
	var simType, status string
	var success uint8

	err := row.Scan(
		&rec.RequestID, &rec.Caller, &simType, &status,
		&rec.Parameters.InitialPrice, &rec.Parameters.Drift, &rec.Parameters.Volatility, &rec.Parameters.TimeHorizon,
		&rec.Parameters.TimeSteps, &rec.Parameters.NSimulations,
		&success, &rec.Result, &rec.Error, &rec.Signature,
		&rec.SubmittedAt, &rec.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.SimulationType = domain.SimulationType(simType)
	rec.Status = domain.RequestStatus(status)
	rec.Success = success == 1
	return &rec, nil
}
