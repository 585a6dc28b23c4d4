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

type stateDataRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const stateDataSelect = `
	SELECT id, workflow_instance_id, state_id, data, entered_at, created_at
	FROM workflow_state_data
`

func (r *stateDataRepository) Create(ctx context.Context, stateData *models.WorkflowStateData) error {
	data, err := marshalDocument(stateData.Data)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_state_data (id, workflow_instance_id, state_id, data, entered_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.db.ExecContext(ctx, query,
		stateData.ID,
		stateData.WorkflowInstanceID,
		stateData.StateID,
		data,
		stateData.EnteredAt,
		stateData.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow state data: %w", err)
	}

	return nil
}

func (r *stateDataRepository) LatestByInstance(ctx context.Context, instanceID string) (*models.WorkflowStateData, error) {
	return r.latest(ctx, stateDataSelect+" WHERE workflow_instance_id = $1 ORDER BY entered_at DESC LIMIT 1", instanceID)
}

func (r *stateDataRepository) LatestByInstanceAndState(ctx context.Context, instanceID, stateID string) (*models.WorkflowStateData, error) {
	return r.latest(ctx, stateDataSelect+" WHERE workflow_instance_id = $1 AND state_id = $2 ORDER BY entered_at DESC LIMIT 1", instanceID, stateID)
}

func (r *stateDataRepository) ListByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowStateData, error) {
	rows, err := r.db.QueryContext(ctx, stateDataSelect+" WHERE workflow_instance_id = $1 ORDER BY entered_at", instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow state data: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	snapshots := make([]*models.WorkflowStateData, 0)

	for rows.Next() {
		snapshot, err := scanStateData(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow state data: %w", err)
		}

		snapshots = append(snapshots, snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow state data: %w", err)
	}

	return snapshots, nil
}

func (r *stateDataRepository) latest(ctx context.Context, query string, args ...any) (*models.WorkflowStateData, error) {
	snapshot, err := scanStateData(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrStateDataNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow state data: %w", err)
	}

	return snapshot, nil
}

func scanStateData(row rowScanner) (*models.WorkflowStateData, error) {
	var (
		snapshot models.WorkflowStateData
		data     []byte
	)

	err := row.Scan(
		&snapshot.ID,
		&snapshot.WorkflowInstanceID,
		&snapshot.StateID,
		&data,
		&snapshot.EnteredAt,
		&snapshot.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalDocument(data, &snapshot.Data); err != nil {
		return nil, err
	}

	return &snapshot, nil
}

type instanceDataRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *instanceDataRepository) Create(ctx context.Context, instanceData *models.WorkflowInstanceData) error {
	data, err := marshalDocument(instanceData.Data)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_instance_data (id, workflow_instance_id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = r.db.ExecContext(ctx, query,
		instanceData.ID,
		instanceData.WorkflowInstanceID,
		data,
		instanceData.CreatedAt,
		instanceData.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow instance data: %w", err)
	}

	return nil
}

func (r *instanceDataRepository) GetByInstance(ctx context.Context, instanceID string) (*models.WorkflowInstanceData, error) {
	query := `
		SELECT id, workflow_instance_id, data, created_at, updated_at
		FROM workflow_instance_data
		WHERE workflow_instance_id = $1
	`

	var (
		instanceData models.WorkflowInstanceData
		data         []byte
	)

	err := r.db.QueryRowContext(ctx, query, instanceID).Scan(
		&instanceData.ID,
		&instanceData.WorkflowInstanceID,
		&data,
		&instanceData.CreatedAt,
		&instanceData.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrInstanceDataNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow instance data: %w", err)
	}

	if err := unmarshalDocument(data, &instanceData.Data); err != nil {
		return nil, err
	}

	return &instanceData, nil
}

func (r *instanceDataRepository) Update(ctx context.Context, instanceData *models.WorkflowInstanceData) error {
	data, err := marshalDocument(instanceData.Data)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE workflow_instance_data SET data = $2, updated_at = $3 WHERE id = $1",
		instanceData.ID, data, instanceData.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update workflow instance data: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.ErrInstanceDataNotFound
	}

	return nil
}
