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

type instanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const instanceSelect = `
	SELECT id, workflow_definition_id, current_state_id, status, created_at, updated_at, completed_at
	FROM workflow_instances
`

func (r *instanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	query := `
		INSERT INTO workflow_instances (id, workflow_definition_id, current_state_id, status, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		instance.ID,
		instance.WorkflowDefinitionID,
		instance.CurrentStateID,
		instance.Status,
		instance.CreatedAt,
		instance.UpdatedAt,
		instance.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow instance: %w", err)
	}

	return nil
}

func (r *instanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	instance, err := scanInstance(r.db.QueryRowContext(ctx, instanceSelect+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrInstanceNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow instance: %w", err)
	}

	return instance, nil
}

func (r *instanceRepository) GetByIDWithDetails(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	instance, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	definitions := &definitionRepository{db: r.db, logger: r.logger}

	instance.Definition, err = definitions.GetByID(ctx, instance.WorkflowDefinitionID)
	if err != nil {
		return nil, err
	}

	states := &stateRepository{db: r.db, logger: r.logger}

	instance.CurrentState, err = states.GetByID(ctx, instance.CurrentStateID)
	if err != nil {
		return nil, err
	}

	return instance, nil
}

func (r *instanceRepository) Update(ctx context.Context, instance *models.WorkflowInstance) error {
	query := `
		UPDATE workflow_instances
		SET current_state_id = $2, status = $3, updated_at = $4, completed_at = $5
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		instance.ID,
		instance.CurrentStateID,
		instance.Status,
		instance.UpdatedAt,
		instance.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.ErrInstanceNotFound
	}

	return nil
}

func (r *instanceRepository) ListActive(ctx context.Context) ([]*models.WorkflowInstance, error) {
	return r.list(ctx, instanceSelect+" WHERE completed_at IS NULL ORDER BY created_at DESC")
}

func (r *instanceRepository) ListCompleted(ctx context.Context) ([]*models.WorkflowInstance, error) {
	return r.list(ctx, instanceSelect+" WHERE completed_at IS NOT NULL ORDER BY created_at DESC")
}

func (r *instanceRepository) ListByDefinition(ctx context.Context, definitionID string) ([]*models.WorkflowInstance, error) {
	return r.list(ctx, instanceSelect+" WHERE workflow_definition_id = $1 ORDER BY created_at DESC", definitionID)
}

func (r *instanceRepository) ListByState(ctx context.Context, stateID string) ([]*models.WorkflowInstance, error) {
	return r.list(ctx, instanceSelect+" WHERE current_state_id = $1 ORDER BY created_at DESC", stateID)
}

func (r *instanceRepository) LatestByDefinition(ctx context.Context, definitionID string) (*models.WorkflowInstance, error) {
	return r.latest(ctx, instanceSelect+" WHERE workflow_definition_id = $1 ORDER BY created_at DESC LIMIT 1", definitionID)
}

func (r *instanceRepository) LatestActiveByDefinition(ctx context.Context, definitionID string) (*models.WorkflowInstance, error) {
	return r.latest(ctx, instanceSelect+" WHERE workflow_definition_id = $1 AND completed_at IS NULL ORDER BY created_at DESC LIMIT 1", definitionID)
}

func (r *instanceRepository) LatestCompletedByDefinition(ctx context.Context, definitionID string) (*models.WorkflowInstance, error) {
	return r.latest(ctx, instanceSelect+" WHERE workflow_definition_id = $1 AND completed_at IS NOT NULL ORDER BY created_at DESC LIMIT 1", definitionID)
}

func (r *instanceRepository) list(ctx context.Context, query string, args ...any) ([]*models.WorkflowInstance, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow instances: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow instance: %w", err)
		}

		instances = append(instances, instance)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow instances: %w", err)
	}

	return instances, nil
}

func (r *instanceRepository) latest(ctx context.Context, query string, args ...any) (*models.WorkflowInstance, error) {
	instance, err := scanInstance(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrInstanceNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow instance: %w", err)
	}

	return instance, nil
}

func scanInstance(row rowScanner) (*models.WorkflowInstance, error) {
	var instance models.WorkflowInstance

	err := row.Scan(
		&instance.ID,
		&instance.WorkflowDefinitionID,
		&instance.CurrentStateID,
		&instance.Status,
		&instance.CreatedAt,
		&instance.UpdatedAt,
		&instance.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	return &instance, nil
}
