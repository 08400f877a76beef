package flow

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNotFound is returned when a status update targets an unknown execution.
var ErrNotFound = errors.New("execution not found")

// ExecutionStore owns the flow_executions rows. The notifier itself never
// persists anything; only the HTTP handlers write through this.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, flowID string) (*Execution, error)
	UpdateExecution(ctx context.Context, id int64, status Status, output, errMsg *string) (*Execution, error)
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateExecution(ctx context.Context, flowID string) (*Execution, error) {
	query := `
		INSERT INTO flow_executions (flow_id, status)
		VALUES ($1, $2)
		RETURNING id, flow_id, status, output, error, started_at, completed_at
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, flowID, StatusRunning))
}

func (r *Repository) UpdateExecution(ctx context.Context, id int64, status Status, output, errMsg *string) (*Execution, error) {
	query := `
		UPDATE flow_executions
		SET status = $2,
		    output = $3,
		    error = $4,
		    completed_at = CASE WHEN $2 = 'running' THEN NULL ELSE now() END
		WHERE id = $1
		RETURNING id, flow_id, status, output, error, started_at, completed_at
	`
	ex, err := r.scanOne(r.db.QueryRowContext(ctx, query, id, status, output, errMsg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ex, err
}

func (r *Repository) scanOne(row *sql.Row) (*Execution, error) {
	ex := &Execution{}
	err := row.Scan(&ex.ID, &ex.FlowID, &ex.Status, &ex.Output, &ex.Error, &ex.StartedAt, &ex.CompletedAt)
	if err != nil {
		return nil, err
	}
	return ex, nil
}
