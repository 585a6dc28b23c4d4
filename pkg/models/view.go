package models

import (
	"strings"
	"time"
)

// ViewType says how a view's content is rendered by a client.
type ViewType string

const (
	ViewTypeForm    ViewType = "form"
	ViewTypeDisplay ViewType = "display"
)

// ViewTarget says which entity a view is attached to.
type ViewTarget string

const (
	ViewTargetDefinition ViewTarget = "definition"
	ViewTargetState      ViewTarget = "state"
	ViewTargetTransition ViewTarget = "transition"
)

// WorkflowView is a versioned UI content blob attached to a definition, state
// or transition, returned alongside instance details.
type WorkflowView struct {
	ID                   string     `json:"id"`
	WorkflowDefinitionID string     `json:"workflow_definition_id"`
	StateID              string     `json:"state_id,omitempty"`
	TransitionID         string     `json:"transition_id,omitempty"`
	Type                 ViewType   `json:"type"`
	Target               ViewTarget `json:"target"`
	Version              string     `json:"version"`
	WorkflowVersion      string     `json:"workflow_version"`
	Content              string     `json:"content"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            *time.Time `json:"updated_at,omitempty"`
}

// IsCompatibleWithWorkflowVersion matches the view's workflow-version selector
// against a definition version, with the same wildcard rules as client
// versions.
func (v *WorkflowView) IsCompatibleWithWorkflowVersion(workflowVersion string) bool {
	selector := v.WorkflowVersion

	if selector == "" || selector == "*" {
		return true
	}

	if strings.Contains(selector, "*") {
		return strings.HasPrefix(workflowVersion, strings.TrimSuffix(selector, "*"))
	}

	return selector == workflowVersion
}
