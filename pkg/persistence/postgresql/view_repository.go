package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/cadenzo/cadenzo/pkg/models"
)

type viewRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *viewRepository) Create(ctx context.Context, view *models.WorkflowView) error {
	query := `
		INSERT INTO workflow_views (id, workflow_definition_id, state_id, transition_id, type, target, version, workflow_version, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		view.ID,
		view.WorkflowDefinitionID,
		nullableID(view.StateID),
		nullableID(view.TransitionID),
		view.Type,
		view.Target,
		view.Version,
		view.WorkflowVersion,
		view.Content,
		view.CreatedAt,
		view.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow view: %w", err)
	}

	return nil
}

func (r *viewRepository) ListByState(ctx context.Context, stateID string) ([]*models.WorkflowView, error) {
	return r.list(ctx, "state_id", stateID)
}

func (r *viewRepository) ListByDefinition(ctx context.Context, definitionID string) ([]*models.WorkflowView, error) {
	return r.list(ctx, "workflow_definition_id", definitionID)
}

func (r *viewRepository) list(ctx context.Context, column, id string) ([]*models.WorkflowView, error) {
	query := fmt.Sprintf(`
		SELECT id, workflow_definition_id, state_id, transition_id, type, target, version, workflow_version, content, created_at, updated_at
		FROM workflow_views
		WHERE %s = $1
		ORDER BY created_at
	`, column)

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow views: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	views := make([]*models.WorkflowView, 0)

	for rows.Next() {
		var (
			view         models.WorkflowView
			stateID      sql.NullString
			transitionID sql.NullString
		)

		err := rows.Scan(
			&view.ID,
			&view.WorkflowDefinitionID,
			&stateID,
			&transitionID,
			&view.Type,
			&view.Target,
			&view.Version,
			&view.WorkflowVersion,
			&view.Content,
			&view.CreatedAt,
			&view.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow view: %w", err)
		}

		view.StateID = stateID.String
		view.TransitionID = transitionID.String

		views = append(views, &view)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow views: %w", err)
	}

	return views, nil
}
