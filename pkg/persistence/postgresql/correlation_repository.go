package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cadenzo/cadenzo/pkg/models"
	"github.com/cadenzo/cadenzo/pkg/persistence"
)

type correlationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const correlationSelect = `
	SELECT id, parent_instance_id, parent_state_id, subflow_instance_id, created_at, completed_at
	FROM workflow_correlations
`

func (r *correlationRepository) Create(ctx context.Context, correlation *models.WorkflowCorrelation) error {
	query := `
		INSERT INTO workflow_correlations (id, parent_instance_id, parent_state_id, subflow_instance_id, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		correlation.ID,
		correlation.ParentInstanceID,
		correlation.ParentStateID,
		correlation.SubflowInstanceID,
		correlation.CreatedAt,
		correlation.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow correlation: %w", err)
	}

	return nil
}

func (r *correlationRepository) GetBySubflowInstance(ctx context.Context, subflowInstanceID string) (*models.WorkflowCorrelation, error) {
	correlation, err := scanCorrelation(r.db.QueryRowContext(ctx,
		correlationSelect+" WHERE subflow_instance_id = $1", subflowInstanceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrCorrelationNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow correlation: %w", err)
	}

	return correlation, nil
}

func (r *correlationRepository) ListByParentInstance(ctx context.Context, parentInstanceID string) ([]*models.WorkflowCorrelation, error) {
	rows, err := r.db.QueryContext(ctx,
		correlationSelect+" WHERE parent_instance_id = $1 ORDER BY created_at", parentInstanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow correlations: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	correlations := make([]*models.WorkflowCorrelation, 0)

	for rows.Next() {
		correlation, err := scanCorrelation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow correlation: %w", err)
		}

		correlations = append(correlations, correlation)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow correlations: %w", err)
	}

	return correlations, nil
}

func (r *correlationRepository) Update(ctx context.Context, correlation *models.WorkflowCorrelation) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE workflow_correlations SET completed_at = $2 WHERE id = $1",
		correlation.ID, correlation.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to update workflow correlation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.ErrCorrelationNotFound
	}

	return nil
}

func scanCorrelation(row rowScanner) (*models.WorkflowCorrelation, error) {
	var correlation models.WorkflowCorrelation

	err := row.Scan(
		&correlation.ID,
		&correlation.ParentInstanceID,
		&correlation.ParentStateID,
		&correlation.SubflowInstanceID,
		&correlation.CreatedAt,
		&correlation.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	return &correlation, nil
}
