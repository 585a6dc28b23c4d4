// Package persistence provides the data storage abstraction for the workflow
// runtime. The engine only ever talks to these interfaces; concrete backends
// live in subpackages.
package persistence

import (
	"context"
	"time"

	"github.com/cadenzo/cadenzo/pkg/models"
)

type Persistence interface {
	Definitions() DefinitionRepository
	States() StateRepository
	Transitions() TransitionRepository
	Instances() InstanceRepository
	StateData() StateDataRepository
	InstanceData() InstanceDataRepository
	Correlations() CorrelationRepository
	Tasks() TaskRepository
	TaskAssignments() TaskAssignmentRepository
	Functions() FunctionRepository
	HumanTasks() HumanTaskRepository
	InstanceTasks() InstanceTaskRepository
	Views() ViewRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type DefinitionRepository interface {
	Create(ctx context.Context, definition *models.WorkflowDefinition) error
	// GetByID loads a definition with its states and transitions.
	GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	// ListActive returns all non-archived definitions with states loaded.
	ListActive(ctx context.Context) ([]*models.WorkflowDefinition, error)
	Archive(ctx context.Context, id string, at time.Time) error
}

type StateRepository interface {
	Create(ctx context.Context, state *models.WorkflowState) error
	GetByID(ctx context.Context, id string) (*models.WorkflowState, error)
	ListByDefinition(ctx context.Context, definitionID string) ([]*models.WorkflowState, error)
}

type TransitionRepository interface {
	Create(ctx context.Context, transition *models.WorkflowTransition) error
	GetByID(ctx context.Context, id string) (*models.WorkflowTransition, error)
	ListByFromState(ctx context.Context, fromStateID string) ([]*models.WorkflowTransition, error)
	ListByDefinition(ctx context.Context, definitionID string) ([]*models.WorkflowTransition, error)
}

type InstanceRepository interface {
	Create(ctx context.Context, instance *models.WorkflowInstance) error
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	// GetByIDWithDetails additionally loads the definition and current state.
	GetByIDWithDetails(ctx context.Context, id string) (*models.WorkflowInstance, error)
	Update(ctx context.Context, instance *models.WorkflowInstance) error
	ListActive(ctx context.Context) ([]*models.WorkflowInstance, error)
	ListCompleted(ctx context.Context) ([]*models.WorkflowInstance, error)
	ListByDefinition(ctx context.Context, definitionID string) ([]*models.WorkflowInstance, error)
	ListByState(ctx context.Context, stateID string) ([]*models.WorkflowInstance, error)
	LatestByDefinition(ctx context.Context, definitionID string) (*models.WorkflowInstance, error)
	LatestActiveByDefinition(ctx context.Context, definitionID string) (*models.WorkflowInstance, error)
	LatestCompletedByDefinition(ctx context.Context, definitionID string) (*models.WorkflowInstance, error)
}

type StateDataRepository interface {
	Create(ctx context.Context, stateData *models.WorkflowStateData) error
	LatestByInstance(ctx context.Context, instanceID string) (*models.WorkflowStateData, error)
	LatestByInstanceAndState(ctx context.Context, instanceID, stateID string) (*models.WorkflowStateData, error)
	// ListByInstance returns snapshots ordered by EnteredAt ascending.
	ListByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowStateData, error)
}

type InstanceDataRepository interface {
	Create(ctx context.Context, instanceData *models.WorkflowInstanceData) error
	GetByInstance(ctx context.Context, instanceID string) (*models.WorkflowInstanceData, error)
	Update(ctx context.Context, instanceData *models.WorkflowInstanceData) error
}

type CorrelationRepository interface {
	Create(ctx context.Context, correlation *models.WorkflowCorrelation) error
	GetBySubflowInstance(ctx context.Context, subflowInstanceID string) (*models.WorkflowCorrelation, error)
	ListByParentInstance(ctx context.Context, parentInstanceID string) ([]*models.WorkflowCorrelation, error)
	Update(ctx context.Context, correlation *models.WorkflowCorrelation) error
}

type TaskRepository interface {
	Create(ctx context.Context, task *models.WorkflowTask) error
	GetByID(ctx context.Context, id string) (*models.WorkflowTask, error)
}

type TaskAssignmentRepository interface {
	Create(ctx context.Context, assignment *models.WorkflowTaskAssignment) error
	// ListByState returns assignments bound to a state, ordered by Order.
	ListByState(ctx context.Context, stateID string) ([]*models.WorkflowTaskAssignment, error)
	// ListByTransition returns assignments bound to a transition, ordered by Order.
	ListByTransition(ctx context.Context, transitionID string) ([]*models.WorkflowTaskAssignment, error)
	// ListByFunction returns assignments bound to a function, ordered by Order.
	ListByFunction(ctx context.Context, functionID string) ([]*models.WorkflowTaskAssignment, error)
}

type FunctionRepository interface {
	Create(ctx context.Context, function *models.WorkflowFunction) error
	GetByID(ctx context.Context, id string) (*models.WorkflowFunction, error)
	GetByName(ctx context.Context, name string) (*models.WorkflowFunction, error)
	// ListActive returns active functions ordered by Order.
	ListActive(ctx context.Context) ([]*models.WorkflowFunction, error)
}

type HumanTaskRepository interface {
	Create(ctx context.Context, task *models.WorkflowHumanTask) error
	GetByID(ctx context.Context, id string) (*models.WorkflowHumanTask, error)
	Update(ctx context.Context, task *models.WorkflowHumanTask) error
	ListByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowHumanTask, error)
	ListByAssignee(ctx context.Context, assignee string) ([]*models.WorkflowHumanTask, error)
}

type InstanceTaskRepository interface {
	Create(ctx context.Context, instanceTask *models.WorkflowInstanceTask) error
	Update(ctx context.Context, instanceTask *models.WorkflowInstanceTask) error
	ListByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowInstanceTask, error)
}

type ViewRepository interface {
	Create(ctx context.Context, view *models.WorkflowView) error
	ListByState(ctx context.Context, stateID string) ([]*models.WorkflowView, error)
	ListByDefinition(ctx context.Context, definitionID string) ([]*models.WorkflowView, error)
}
