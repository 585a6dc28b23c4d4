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

type transitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *transitionRepository) Create(ctx context.Context, transition *models.WorkflowTransition) error {
	triggerConfig, err := marshalDocument(transition.TriggerConfig)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_transitions (id, workflow_definition_id, from_state_id, to_state_id, name, description, trigger_type, trigger_config)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.ExecContext(ctx, query,
		transition.ID,
		transition.WorkflowDefinitionID,
		transition.FromStateID,
		transition.ToStateID,
		transition.Name,
		transition.Description,
		transition.TriggerType,
		triggerConfig,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow transition: %w", err)
	}

	return nil
}

func (r *transitionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTransition, error) {
	query := transitionSelect + " WHERE id = $1"

	transition, err := scanTransition(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrTransitionNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow transition: %w", err)
	}

	return transition, nil
}

func (r *transitionRepository) ListByFromState(ctx context.Context, fromStateID string) ([]*models.WorkflowTransition, error) {
	return r.list(ctx, transitionSelect+" WHERE from_state_id = $1 ORDER BY id", fromStateID)
}

func (r *transitionRepository) ListByDefinition(ctx context.Context, definitionID string) ([]*models.WorkflowTransition, error) {
	return r.list(ctx, transitionSelect+" WHERE workflow_definition_id = $1 ORDER BY id", definitionID)
}

const transitionSelect = `
	SELECT id, workflow_definition_id, from_state_id, to_state_id, name, description, trigger_type, trigger_config
	FROM workflow_transitions
`

func (r *transitionRepository) list(ctx context.Context, query string, arg any) ([]*models.WorkflowTransition, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow transitions: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	transitions := make([]*models.WorkflowTransition, 0)

	for rows.Next() {
		transition, err := scanTransition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow transition: %w", err)
		}

		transitions = append(transitions, transition)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow transitions: %w", err)
	}

	return transitions, nil
}

func scanTransition(row rowScanner) (*models.WorkflowTransition, error) {
	var (
		transition    models.WorkflowTransition
		triggerConfig []byte
	)

	err := row.Scan(
		&transition.ID,
		&transition.WorkflowDefinitionID,
		&transition.FromStateID,
		&transition.ToStateID,
		&transition.Name,
		&transition.Description,
		&transition.TriggerType,
		&triggerConfig,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalDocument(triggerConfig, &transition.TriggerConfig); err != nil {
		return nil, err
	}

	return &transition, nil
}
