package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cadenzo/cadenzo/pkg/models"
	"github.com/cadenzo/cadenzo/pkg/persistence"
)

type definitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *definitionRepository) Create(ctx context.Context, definition *models.WorkflowDefinition) error {
	query := `
		INSERT INTO workflow_definitions (id, name, description, version, client_version, created_at, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		definition.ID,
		definition.Name,
		definition.Description,
		definition.Version,
		definition.ClientVersion,
		definition.CreatedAt,
		definition.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow definition: %w", err)
	}

	return nil
}

func (r *definitionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	query := `
		SELECT id, name, description, version, client_version, created_at, archived_at
		FROM workflow_definitions
		WHERE id = $1
	`

	definition, err := scanDefinition(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrDefinitionNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow definition: %w", err)
	}

	states := &stateRepository{db: r.db, logger: r.logger}

	definition.States, err = states.ListByDefinition(ctx, definition.ID)
	if err != nil {
		return nil, err
	}

	transitions := &transitionRepository{db: r.db, logger: r.logger}

	definition.Transitions, err = transitions.ListByDefinition(ctx, definition.ID)
	if err != nil {
		return nil, err
	}

	return definition, nil
}

func (r *definitionRepository) ListActive(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	query := `
		SELECT id, name, description, version, client_version, created_at, archived_at
		FROM workflow_definitions
		WHERE archived_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow definitions: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	definitions := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		definition, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow definition: %w", err)
		}

		definitions = append(definitions, definition)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow definitions: %w", err)
	}

	states := &stateRepository{db: r.db, logger: r.logger}

	for _, definition := range definitions {
		definition.States, err = states.ListByDefinition(ctx, definition.ID)
		if err != nil {
			return nil, err
		}
	}

	return definitions, nil
}

func (r *definitionRepository) Archive(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE workflow_definitions SET archived_at = $2 WHERE id = $1", id, at)
	if err != nil {
		return fmt.Errorf("failed to archive workflow definition: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.ErrDefinitionNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (*models.WorkflowDefinition, error) {
	var definition models.WorkflowDefinition

	err := row.Scan(
		&definition.ID,
		&definition.Name,
		&definition.Description,
		&definition.Version,
		&definition.ClientVersion,
		&definition.CreatedAt,
		&definition.ArchivedAt,
	)
	if err != nil {
		return nil, err
	}

	return &definition, nil
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
