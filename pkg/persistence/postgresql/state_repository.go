package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cadenzo/cadenzo/pkg/models"
	"github.com/cadenzo/cadenzo/pkg/persistence"
)

type stateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *stateRepository) Create(ctx context.Context, state *models.WorkflowState) error {
	var subflowConfig any

	if state.SubflowConfig != nil {
		encoded, err := json.Marshal(state.SubflowConfig)
		if err != nil {
			return fmt.Errorf("failed to marshal subflow config: %w", err)
		}

		subflowConfig = encoded
	}

	query := `
		INSERT INTO workflow_states (id, workflow_definition_id, name, description, state_type, sub_type, subflow_config, created_at, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		state.ID,
		state.WorkflowDefinitionID,
		state.Name,
		state.Description,
		state.StateType,
		subType(state),
		subflowConfig,
		state.CreatedAt,
		state.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow state: %w", err)
	}

	return nil
}

func subType(state *models.WorkflowState) models.StateSubType {
	if state.SubType == "" {
		return models.StateSubTypeNone
	}

	return state.SubType
}

func (r *stateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowState, error) {
	query := `
		SELECT id, workflow_definition_id, name, description, state_type, sub_type, subflow_config, created_at, archived_at
		FROM workflow_states
		WHERE id = $1
	`

	state, err := scanState(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrStateNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow state: %w", err)
	}

	return state, nil
}

func (r *stateRepository) ListByDefinition(ctx context.Context, definitionID string) ([]*models.WorkflowState, error) {
	query := `
		SELECT id, workflow_definition_id, name, description, state_type, sub_type, subflow_config, created_at, archived_at
		FROM workflow_states
		WHERE workflow_definition_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, definitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow states: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	states := make([]*models.WorkflowState, 0)

	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow state: %w", err)
		}

		states = append(states, state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow states: %w", err)
	}

	return states, nil
}

func scanState(row rowScanner) (*models.WorkflowState, error) {
	var (
		state         models.WorkflowState
		subflowConfig []byte
	)

	err := row.Scan(
		&state.ID,
		&state.WorkflowDefinitionID,
		&state.Name,
		&state.Description,
		&state.StateType,
		&state.SubType,
		&subflowConfig,
		&state.CreatedAt,
		&state.ArchivedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(subflowConfig) > 0 {
		state.SubflowConfig = &models.SubflowConfig{}
		if err := json.Unmarshal(subflowConfig, state.SubflowConfig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal subflow config: %w", err)
		}
	}

	return &state, nil
}
