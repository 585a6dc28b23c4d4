package services

import (
	"context"

	"github.com/cadenzo/cadenzo/pkg/models"
)

// Read-only query surface. These delegate straight to the repositories; they
// exist so transports depend on the service, not on persistence.

func (s *InstanceService) ListActiveInstances(ctx context.Context) ([]*models.WorkflowInstance, error) {
	return s.persistence.Instances().ListActive(ctx)
}

func (s *InstanceService) ListCompletedInstances(ctx context.Context) ([]*models.WorkflowInstance, error) {
	return s.persistence.Instances().ListCompleted(ctx)
}

func (s *InstanceService) InstancesByDefinition(ctx context.Context, definitionID string) ([]*models.WorkflowInstance, error) {
	return s.persistence.Instances().ListByDefinition(ctx, definitionID)
}

func (s *InstanceService) InstancesByState(ctx context.Context, stateID string) ([]*models.WorkflowInstance, error) {
	return s.persistence.Instances().ListByState(ctx, stateID)
}

func (s *InstanceService) LatestInstance(ctx context.Context, definitionID string) (*models.WorkflowInstance, error) {
	return s.persistence.Instances().LatestByDefinition(ctx, definitionID)
}

func (s *InstanceService) LatestActiveInstance(ctx context.Context, definitionID string) (*models.WorkflowInstance, error) {
	return s.persistence.Instances().LatestActiveByDefinition(ctx, definitionID)
}

func (s *InstanceService) LatestCompletedInstance(ctx context.Context, definitionID string) (*models.WorkflowInstance, error) {
	return s.persistence.Instances().LatestCompletedByDefinition(ctx, definitionID)
}

func (s *InstanceService) TasksByAssignee(ctx context.Context, assignee string) ([]*models.WorkflowHumanTask, error) {
	return s.persistence.HumanTasks().ListByAssignee(ctx, assignee)
}

func (s *InstanceService) TasksByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowHumanTask, error) {
	return s.persistence.HumanTasks().ListByInstance(ctx, instanceID)
}

// ExecutionsByInstance returns the task dispatch audit trail for an instance.
func (s *InstanceService) ExecutionsByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowInstanceTask, error) {
	return s.persistence.InstanceTasks().ListByInstance(ctx, instanceID)
}

// StateHistory returns the append-only state data snapshots for an instance,
// oldest first.
func (s *InstanceService) StateHistory(ctx context.Context, instanceID string) ([]*models.WorkflowStateData, error) {
	return s.persistence.StateData().ListByInstance(ctx, instanceID)
}
