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

type taskRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *taskRepository) Create(ctx context.Context, task *models.WorkflowTask) error {
	config, err := marshalDocument(task.Config)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_tasks (id, name, description, type, config, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.db.ExecContext(ctx, query,
		task.ID,
		task.Name,
		task.Description,
		task.Type,
		config,
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow task: %w", err)
	}

	return nil
}

func (r *taskRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTask, error) {
	query := `
		SELECT id, name, description, type, config, created_at
		FROM workflow_tasks
		WHERE id = $1
	`

	var (
		task   models.WorkflowTask
		config []byte
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&task.ID,
		&task.Name,
		&task.Description,
		&task.Type,
		&config,
		&task.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrTaskNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow task: %w", err)
	}

	if err := unmarshalDocument(config, &task.Config); err != nil {
		return nil, err
	}

	return &task, nil
}

type taskAssignmentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *taskAssignmentRepository) Create(ctx context.Context, assignment *models.WorkflowTaskAssignment) error {
	query := `
		INSERT INTO workflow_task_assignments (id, task_id, state_id, transition_id, function_id, task_trigger, task_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		assignment.ID,
		assignment.TaskID,
		nullableID(assignment.StateID),
		nullableID(assignment.TransitionID),
		nullableID(assignment.FunctionID),
		assignment.Trigger,
		assignment.Order,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow task assignment: %w", err)
	}

	return nil
}

func (r *taskAssignmentRepository) ListByState(ctx context.Context, stateID string) ([]*models.WorkflowTaskAssignment, error) {
	return r.list(ctx, "state_id", stateID)
}

func (r *taskAssignmentRepository) ListByTransition(ctx context.Context, transitionID string) ([]*models.WorkflowTaskAssignment, error) {
	return r.list(ctx, "transition_id", transitionID)
}

func (r *taskAssignmentRepository) ListByFunction(ctx context.Context, functionID string) ([]*models.WorkflowTaskAssignment, error) {
	return r.list(ctx, "function_id", functionID)
}

func (r *taskAssignmentRepository) list(ctx context.Context, column, id string) ([]*models.WorkflowTaskAssignment, error) {
	query := fmt.Sprintf(`
		SELECT id, task_id, state_id, transition_id, function_id, task_trigger, task_order
		FROM workflow_task_assignments
		WHERE %s = $1
		ORDER BY task_order, id
	`, column)

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow task assignments: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	assignments := make([]*models.WorkflowTaskAssignment, 0)

	for rows.Next() {
		var (
			assignment   models.WorkflowTaskAssignment
			stateID      sql.NullString
			transitionID sql.NullString
			functionID   sql.NullString
		)

		err := rows.Scan(
			&assignment.ID,
			&assignment.TaskID,
			&stateID,
			&transitionID,
			&functionID,
			&assignment.Trigger,
			&assignment.Order,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow task assignment: %w", err)
		}

		assignment.StateID = stateID.String
		assignment.TransitionID = transitionID.String
		assignment.FunctionID = functionID.String

		assignments = append(assignments, &assignment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow task assignments: %w", err)
	}

	return assignments, nil
}

func nullableID(id string) any {
	if id == "" {
		return nil
	}

	return id
}

type humanTaskRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const humanTaskSelect = `
	SELECT id, workflow_instance_id, state_id, name, description, assignee, form, instructions, result, assigned_at, due_at, completed_at
	FROM workflow_human_tasks
`

func (r *humanTaskRepository) Create(ctx context.Context, task *models.WorkflowHumanTask) error {
	form, err := marshalDocument(task.Form)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_human_tasks (id, workflow_instance_id, state_id, name, description, assignee, form, instructions, result, assigned_at, due_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.db.ExecContext(ctx, query,
		task.ID,
		task.WorkflowInstanceID,
		task.StateID,
		task.Name,
		task.Description,
		task.Assignee,
		form,
		task.Instructions,
		task.Result,
		task.AssignedAt,
		task.DueAt,
		task.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow human task: %w", err)
	}

	return nil
}

func (r *humanTaskRepository) GetByID(ctx context.Context, id string) (*models.WorkflowHumanTask, error) {
	task, err := scanHumanTask(r.db.QueryRowContext(ctx, humanTaskSelect+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrHumanTaskNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow human task: %w", err)
	}

	return task, nil
}

func (r *humanTaskRepository) Update(ctx context.Context, task *models.WorkflowHumanTask) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE workflow_human_tasks SET result = $2, completed_at = $3 WHERE id = $1",
		task.ID, task.Result, task.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to update workflow human task: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.ErrHumanTaskNotFound
	}

	return nil
}

func (r *humanTaskRepository) ListByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowHumanTask, error) {
	return r.list(ctx, humanTaskSelect+" WHERE workflow_instance_id = $1 ORDER BY assigned_at DESC", instanceID)
}

func (r *humanTaskRepository) ListByAssignee(ctx context.Context, assignee string) ([]*models.WorkflowHumanTask, error) {
	return r.list(ctx, humanTaskSelect+" WHERE assignee = $1 ORDER BY assigned_at DESC", assignee)
}

func (r *humanTaskRepository) list(ctx context.Context, query string, arg any) ([]*models.WorkflowHumanTask, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow human tasks: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	tasks := make([]*models.WorkflowHumanTask, 0)

	for rows.Next() {
		task, err := scanHumanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow human task: %w", err)
		}

		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow human tasks: %w", err)
	}

	return tasks, nil
}

func scanHumanTask(row rowScanner) (*models.WorkflowHumanTask, error) {
	var (
		task models.WorkflowHumanTask
		form []byte
	)

	err := row.Scan(
		&task.ID,
		&task.WorkflowInstanceID,
		&task.StateID,
		&task.Name,
		&task.Description,
		&task.Assignee,
		&form,
		&task.Instructions,
		&task.Result,
		&task.AssignedAt,
		&task.DueAt,
		&task.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalDocument(form, &task.Form); err != nil {
		return nil, err
	}

	return &task, nil
}

type instanceTaskRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *instanceTaskRepository) Create(ctx context.Context, instanceTask *models.WorkflowInstanceTask) error {
	query := `
		INSERT INTO workflow_instance_tasks (id, workflow_instance_id, workflow_task_id, state_id, task_name, task_type, status, started_at, completed_at, error, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		instanceTask.ID,
		instanceTask.WorkflowInstanceID,
		instanceTask.WorkflowTaskID,
		instanceTask.StateID,
		instanceTask.TaskName,
		instanceTask.TaskType,
		instanceTask.Status,
		instanceTask.StartedAt,
		instanceTask.CompletedAt,
		instanceTask.Error,
		instanceTask.Result,
		instanceTask.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow instance task: %w", err)
	}

	return nil
}

func (r *instanceTaskRepository) Update(ctx context.Context, instanceTask *models.WorkflowInstanceTask) error {
	query := `
		UPDATE workflow_instance_tasks
		SET status = $2, completed_at = $3, error = $4, result = $5
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		instanceTask.ID,
		instanceTask.Status,
		instanceTask.CompletedAt,
		instanceTask.Error,
		instanceTask.Result,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow instance task: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.ErrTaskNotFound
	}

	return nil
}

func (r *instanceTaskRepository) ListByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowInstanceTask, error) {
	query := `
		SELECT id, workflow_instance_id, workflow_task_id, state_id, task_name, task_type, status, started_at, completed_at, error, result, created_at
		FROM workflow_instance_tasks
		WHERE workflow_instance_id = $1
		ORDER BY started_at
	`

	rows, err := r.db.QueryContext(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow instance tasks: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	tasks := make([]*models.WorkflowInstanceTask, 0)

	for rows.Next() {
		var task models.WorkflowInstanceTask

		err := rows.Scan(
			&task.ID,
			&task.WorkflowInstanceID,
			&task.WorkflowTaskID,
			&task.StateID,
			&task.TaskName,
			&task.TaskType,
			&task.Status,
			&task.StartedAt,
			&task.CompletedAt,
			&task.Error,
			&task.Result,
			&task.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow instance task: %w", err)
		}

		tasks = append(tasks, &task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow instance tasks: %w", err)
	}

	return tasks, nil
}
