package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/cadenzo/cadenzo/pkg/dispatch"
	"github.com/cadenzo/cadenzo/pkg/models"
	"github.com/cadenzo/cadenzo/pkg/persistence"
	"github.com/cadenzo/cadenzo/pkg/tasks"
)

// FunctionService manages named workflow functions and executes the ones
// invokable by name. A function wraps one task; further tasks can be attached
// through assignments and run after it in order.
type FunctionService struct {
	persistence persistence.Persistence
	tasks       *tasks.Engine
	validator   *validator.Validate
	logger      *slog.Logger
	now         func() time.Time
}

func NewFunctionService(p persistence.Persistence, taskEngine *tasks.Engine, logger *slog.Logger) *FunctionService {
	return &FunctionService{
		persistence: p,
		tasks:       taskEngine,
		validator:   validator.New(),
		logger:      logger.With("module", "function_service"),
		now:         time.Now,
	}
}

// CreateFunction registers a function. Names are unique across all functions
// and the wrapped task must exist.
func (s *FunctionService) CreateFunction(ctx context.Context, function *models.WorkflowFunction) (*models.WorkflowFunction, error) {
	if err := s.validator.Struct(function); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	if _, err := s.persistence.Tasks().GetByID(ctx, function.TaskID); err != nil {
		return nil, err
	}

	_, err := s.persistence.Functions().GetByName(ctx, function.Name)
	if err == nil {
		return nil, fmt.Errorf("function %q: %w", function.Name, ErrFunctionNameTaken)
	}

	if !errors.Is(err, persistence.ErrFunctionNotFound) {
		return nil, err
	}

	if function.ID == "" {
		function.ID = uuid.NewString()
	}

	function.CreatedAt = s.now().UTC()

	if err := s.persistence.Functions().Create(ctx, function); err != nil {
		return nil, fmt.Errorf("failed to create function: %w", err)
	}

	s.logger.InfoContext(ctx, "Created workflow function",
		"function_id", function.ID, "name", function.Name, "task_id", function.TaskID)

	return function, nil
}

func (s *FunctionService) GetFunctionByName(ctx context.Context, name string) (*models.WorkflowFunction, error) {
	return s.persistence.Functions().GetByName(ctx, name)
}

func (s *FunctionService) ListActiveFunctions(ctx context.Context) ([]*models.WorkflowFunction, error) {
	return s.persistence.Functions().ListActive(ctx)
}

// ExecuteFunction runs a function by name: its own task first, then any tasks
// assigned to the function in order. Only active functions with no state or
// definition scope can be invoked this way.
func (s *FunctionService) ExecuteFunction(ctx context.Context, name string, data models.Document) (*dispatch.Result, error) {
	function, err := s.persistence.Functions().GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	if !function.IsActive {
		return nil, fmt.Errorf("function %q: %w", name, ErrFunctionNotActive)
	}

	if !function.IsInvokable() {
		return nil, fmt.Errorf("function %q: %w", name, ErrFunctionNotInvokable)
	}

	task, err := s.persistence.Tasks().GetByID(ctx, function.TaskID)
	if err != nil {
		return nil, err
	}

	result, err := s.tasks.ExecuteDetached(ctx, task, data)
	if err != nil {
		return nil, fmt.Errorf("function %q: %w", name, err)
	}

	assignments, err := s.persistence.TaskAssignments().ListByFunction(ctx, function.ID)
	if err != nil {
		return nil, err
	}

	for _, assignment := range assignments {
		assigned, err := s.persistence.Tasks().GetByID(ctx, assignment.TaskID)
		if err != nil {
			return nil, err
		}

		if _, err := s.tasks.ExecuteDetached(ctx, assigned, data); err != nil {
			return nil, fmt.Errorf("function %q: %w", name, err)
		}
	}

	s.logger.InfoContext(ctx, "Executed workflow function", "function_id", function.ID, "name", name)

	return result, nil
}
