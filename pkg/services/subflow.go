package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cadenzo/cadenzo/pkg/eventbus"
	"github.com/cadenzo/cadenzo/pkg/models"
	"github.com/cadenzo/cadenzo/pkg/persistence"
)

// handleSubflowState starts a child instance when the parent lands on a
// subflow state. The child is seeded with the parent's merged data projected
// through the state's input mapping, and started under the parent
// definition's client version. One correlation row links the two.
func (s *InstanceService) handleSubflowState(ctx context.Context, parent *models.WorkflowInstance, state *models.WorkflowState, merged models.Document) error {
	config := state.SubflowConfig
	if config == nil {
		return fmt.Errorf("state %s: %w", state.ID, ErrMissingSubflowConfig)
	}

	childDefinition, err := s.persistence.Definitions().GetByID(ctx, config.SubflowDefinitionID)
	if err != nil {
		return fmt.Errorf("subflow definition %s: %w", config.SubflowDefinitionID, err)
	}

	parentDefinition := parent.Definition
	if parentDefinition == nil {
		parentDefinition, err = s.persistence.Definitions().GetByID(ctx, parent.WorkflowDefinitionID)
		if err != nil {
			return err
		}
	}

	input := applyMapping(config.InputMapping, merged)

	child, err := s.StartInstance(ctx, childDefinition.Name, parentDefinition.ClientVersion, input)
	if err != nil {
		return fmt.Errorf("failed to start subflow instance: %w", err)
	}

	correlation := &models.WorkflowCorrelation{
		ID:                uuid.NewString(),
		ParentInstanceID:  parent.ID,
		ParentStateID:     state.ID,
		SubflowInstanceID: child.ID,
		CreatedAt:         s.now().UTC(),
	}

	if err := s.persistence.Correlations().Create(ctx, correlation); err != nil {
		return fmt.Errorf("failed to create correlation: %w", err)
	}

	s.logger.InfoContext(ctx, "Started subflow instance",
		"parent_instance_id", parent.ID, "subflow_instance_id", child.ID,
		"subflow_definition_id", childDefinition.ID)

	s.publish(ctx, parent.ID, eventbus.SubflowStarted{
		BaseEvent:           s.baseEvent(eventbus.SubflowStartedEvent, child.ID),
		ParentInstanceID:    parent.ID,
		SubflowDefinitionID: childDefinition.ID,
	})

	return nil
}

// handleParentWorkflow resumes a waiting parent when a correlated child
// completes. The child's merged data is projected through the subflow state's
// output mapping and drives a re-evaluation of the parent's automatic
// transitions. Instances that are not subflow children are a no-op.
func (s *InstanceService) handleParentWorkflow(ctx context.Context, child *models.WorkflowInstance, childData models.Document) error {
	correlation, err := s.persistence.Correlations().GetBySubflowInstance(ctx, child.ID)
	if errors.Is(err, persistence.ErrCorrelationNotFound) {
		return nil
	}

	if err != nil {
		return err
	}

	parent, err := s.persistence.Instances().GetByIDWithDetails(ctx, correlation.ParentInstanceID)
	if err != nil {
		return err
	}

	mapped := childData
	if parent.CurrentState != nil && parent.CurrentState.SubflowConfig != nil && len(parent.CurrentState.SubflowConfig.OutputMapping) > 0 {
		mapped = applyMapping(parent.CurrentState.SubflowConfig.OutputMapping, childData)
	}

	s.publish(ctx, parent.ID, eventbus.SubflowCompleted{
		BaseEvent:        s.baseEvent(eventbus.SubflowCompletedEvent, child.ID),
		ParentInstanceID: parent.ID,
	})

	next, err := s.matchingAutomaticTransition(ctx, parent.CurrentStateID, mapped)
	if err != nil {
		return err
	}

	if next != nil {
		if _, err := s.ExecuteTransition(ctx, parent.ID, next.ID, mapped); err != nil {
			// The correlation stays open so a failed resume remains visible
			// and can be re-driven; completing it here would swallow the
			// child's output.
			return fmt.Errorf("failed to resume parent instance %s: %w", parent.ID, err)
		}
	} else {
		s.logger.InfoContext(ctx, "Subflow completed, parent has no matching automatic transition",
			"parent_instance_id", parent.ID, "subflow_instance_id", child.ID)
	}

	now := s.now().UTC()
	correlation.CompletedAt = &now

	if err := s.persistence.Correlations().Update(ctx, correlation); err != nil {
		return fmt.Errorf("failed to complete correlation: %w", err)
	}

	return nil
}

// applyMapping projects a source document through a source-path -> target
// field map. Unresolvable paths are skipped; an empty target field falls back
// to the last path segment.
func applyMapping(mapping, source models.Document) models.Document {
	if len(mapping) == 0 {
		return source.Clone()
	}

	projected := models.Document{}

	for sourcePath, target := range mapping {
		value, ok := source.Lookup(sourcePath)
		if !ok {
			continue
		}

		field := models.Stringify(target)
		if field == "" || field == "null" {
			segments := strings.Split(sourcePath, ".")
			field = segments[len(segments)-1]
		}

		projected[field] = value
	}

	return projected
}
