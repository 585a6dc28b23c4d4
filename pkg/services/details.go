package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cadenzo/cadenzo/pkg/models"
	"github.com/cadenzo/cadenzo/pkg/persistence"
)

// InstanceDetails is the read-only composite view served to clients: where an
// instance is, what it can do next, and how it relates to other instances.
type InstanceDetails struct {
	Instance             *models.WorkflowInstance     `json:"instance"`
	CurrentState         *models.WorkflowState        `json:"current_state,omitempty"`
	Data                 models.Document              `json:"data,omitempty"`
	AvailableTransitions []*models.WorkflowTransition `json:"available_transitions"`
	Views                []*models.WorkflowView       `json:"views,omitempty"`
	PendingTasks         []*models.WorkflowHumanTask  `json:"pending_tasks,omitempty"`
	Children             []*CorrelationSummary        `json:"children,omitempty"`
	Parent               *CorrelationSummary          `json:"parent,omitempty"`
	StateDataURL         string                       `json:"state_data_url"`
	HistoryURL           string                       `json:"history_url"`
}

// CorrelationSummary is the client-facing view of one parent/child link.
type CorrelationSummary struct {
	InstanceID  string     `json:"instance_id"`
	StateID     string     `json:"state_id"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	URL         string     `json:"url"`
}

// GetInstanceDetails composes the full detail view for one instance. Links
// are built against baseURL.
func (s *InstanceService) GetInstanceDetails(ctx context.Context, instanceID, baseURL string) (*InstanceDetails, error) {
	instance, err := s.persistence.Instances().GetByIDWithDetails(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(baseURL, "/")

	details := &InstanceDetails{
		Instance:     instance,
		CurrentState: instance.CurrentState,
		StateDataURL: base + "/workflow-instances/" + instance.ID + "/state-data",
		HistoryURL:   base + "/workflow-instances/" + instance.ID + "/history",
	}

	record, err := s.persistence.InstanceData().GetByInstance(ctx, instanceID)
	if err != nil && !errors.Is(err, persistence.ErrInstanceDataNotFound) {
		return nil, err
	}

	if record != nil {
		details.Data = record.Data
	}

	details.AvailableTransitions, err = s.persistence.Transitions().ListByFromState(ctx, instance.CurrentStateID)
	if err != nil {
		return nil, err
	}

	if err := s.attachViews(ctx, details, instance); err != nil {
		return nil, err
	}

	humanTasks, err := s.persistence.HumanTasks().ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	for _, task := range humanTasks {
		if task.IsPending() {
			details.PendingTasks = append(details.PendingTasks, task)
		}
	}

	return details, s.attachCorrelations(ctx, details, instance, base)
}

// attachViews collects the views bound to the instance's current state,
// filtered to those compatible with the definition's version.
func (s *InstanceService) attachViews(ctx context.Context, details *InstanceDetails, instance *models.WorkflowInstance) error {
	views, err := s.persistence.Views().ListByState(ctx, instance.CurrentStateID)
	if err != nil {
		return err
	}

	definitionVersion := ""
	if instance.Definition != nil {
		definitionVersion = instance.Definition.Version
	}

	for _, view := range views {
		if view.IsCompatibleWithWorkflowVersion(definitionVersion) {
			details.Views = append(details.Views, view)
		}
	}

	return nil
}

func (s *InstanceService) attachCorrelations(ctx context.Context, details *InstanceDetails, instance *models.WorkflowInstance, base string) error {
	children, err := s.persistence.Correlations().ListByParentInstance(ctx, instance.ID)
	if err != nil {
		return err
	}

	for _, correlation := range children {
		details.Children = append(details.Children, &CorrelationSummary{
			InstanceID:  correlation.SubflowInstanceID,
			StateID:     correlation.ParentStateID,
			CompletedAt: correlation.CompletedAt,
			URL:         base + "/workflow-instances/" + correlation.SubflowInstanceID,
		})
	}

	parent, err := s.persistence.Correlations().GetBySubflowInstance(ctx, instance.ID)
	if errors.Is(err, persistence.ErrCorrelationNotFound) {
		return nil
	}

	if err != nil {
		return err
	}

	details.Parent = &CorrelationSummary{
		InstanceID:  parent.ParentInstanceID,
		StateID:     parent.ParentStateID,
		CompletedAt: parent.CompletedAt,
		URL:         base + "/workflow-instances/" + parent.ParentInstanceID,
	}

	return nil
}
