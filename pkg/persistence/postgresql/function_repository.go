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

type functionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const functionSelect = `
	SELECT id, name, description, task_id, is_active, state_id, workflow_definition_id, function_order, created_at
	FROM workflow_functions
`

func (r *functionRepository) Create(ctx context.Context, function *models.WorkflowFunction) error {
	query := `
		INSERT INTO workflow_functions (id, name, description, task_id, is_active, state_id, workflow_definition_id, function_order, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		function.ID,
		function.Name,
		function.Description,
		function.TaskID,
		function.IsActive,
		nullableID(function.StateID),
		nullableID(function.WorkflowDefinitionID),
		function.Order,
		function.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow function: %w", err)
	}

	return nil
}

func (r *functionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowFunction, error) {
	return r.get(ctx, functionSelect+" WHERE id = $1", id)
}

func (r *functionRepository) GetByName(ctx context.Context, name string) (*models.WorkflowFunction, error) {
	return r.get(ctx, functionSelect+" WHERE name = $1", name)
}

func (r *functionRepository) get(ctx context.Context, query, arg string) (*models.WorkflowFunction, error) {
	function, err := scanFunction(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrFunctionNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow function: %w", err)
	}

	return function, nil
}

func (r *functionRepository) ListActive(ctx context.Context) ([]*models.WorkflowFunction, error) {
	rows, err := r.db.QueryContext(ctx, functionSelect+" WHERE is_active ORDER BY function_order, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow functions: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	functions := make([]*models.WorkflowFunction, 0)

	for rows.Next() {
		function, err := scanFunction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow function: %w", err)
		}

		functions = append(functions, function)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow functions: %w", err)
	}

	return functions, nil
}

func scanFunction(row rowScanner) (*models.WorkflowFunction, error) {
	var (
		function     models.WorkflowFunction
		stateID      sql.NullString
		definitionID sql.NullString
	)

	err := row.Scan(
		&function.ID,
		&function.Name,
		&function.Description,
		&function.TaskID,
		&function.IsActive,
		&stateID,
		&definitionID,
		&function.Order,
		&function.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	function.StateID = stateID.String
	function.WorkflowDefinitionID = definitionID.String

	return &function, nil
}
