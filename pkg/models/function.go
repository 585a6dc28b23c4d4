package models

import "time"

// WorkflowFunction is a named, invokable wrapper around a task. A function
// scoped to a state or definition runs only as part of that workflow; an
// unscoped function can be invoked directly by name through the API.
type WorkflowFunction struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name" validate:"required,max=100"`
	Description          string    `json:"description,omitempty"`
	TaskID               string    `json:"task_id" validate:"required"`
	IsActive             bool      `json:"is_active"`
	StateID              string    `json:"state_id,omitempty"`
	WorkflowDefinitionID string    `json:"workflow_definition_id,omitempty"`
	Order                int       `json:"order"`
	CreatedAt            time.Time `json:"created_at"`
}

// IsInvokable reports whether the function may be executed directly by name,
// outside any workflow scope.
func (f *WorkflowFunction) IsInvokable() bool {
	return f.StateID == "" && f.WorkflowDefinitionID == ""
}
