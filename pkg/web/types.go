// Package web provides HTTP request and response types for the workflow API.
package web

import "github.com/cadenzo/cadenzo/pkg/models"

// StartInstanceRequest represents the request body for starting a workflow
// instance. The definition is selected by name and caller compatibility.
type StartInstanceRequest struct {
	WorkflowName  string          `json:"workflow_name"  validate:"required,max=100"`
	ClientVersion string          `json:"client_version" validate:"required,max=20"`
	Data          models.Document `json:"data,omitempty"`
}

// ExecuteTransitionRequest carries the optional data payload merged into the
// instance when the transition fires.
type ExecuteTransitionRequest struct {
	Data models.Document `json:"data,omitempty"`
}

// CompleteTaskRequest represents the request body for completing a human task.
type CompleteTaskRequest struct {
	Result string `json:"result" validate:"required"`
}

// CloneDefinitionRequest names the version of the new definition cloned from
// an existing one.
type CloneDefinitionRequest struct {
	Version string `json:"version" validate:"required,max=20"`
}

// CreateTaskRequest represents the request body for registering a reusable
// workflow task.
type CreateTaskRequest struct {
	Name        string          `json:"name"        validate:"required,max=100"`
	Description string          `json:"description,omitempty"`
	Type        models.TaskType `json:"type"        validate:"required,oneof=human binding service pubsub http httpEndpoint"`
	Config      models.Document `json:"config"      validate:"required"`
}

// AssignTaskRequest binds a task to a state, a transition or a function with
// a trigger phase. Exactly one of state_id, transition_id and function_id
// must be set.
type AssignTaskRequest struct {
	TaskID       string             `json:"task_id"       validate:"required"`
	StateID      string             `json:"state_id,omitempty"`
	TransitionID string             `json:"transition_id,omitempty"`
	FunctionID   string             `json:"function_id,omitempty"`
	Trigger      models.TaskTrigger `json:"trigger"       validate:"required,oneof=onEntry onExit onExecute both manual"`
	Order        int                `json:"order"`
}

// CreateFunctionRequest registers a named function wrapping an existing task.
// A function left unscoped (no state or definition) can be invoked directly
// by name.
type CreateFunctionRequest struct {
	Name                 string `json:"name" validate:"required,max=100"`
	Description          string `json:"description,omitempty"`
	TaskID               string `json:"task_id" validate:"required"`
	IsActive             *bool  `json:"is_active,omitempty"`
	StateID              string `json:"state_id,omitempty"`
	WorkflowDefinitionID string `json:"workflow_definition_id,omitempty"`
	Order                int    `json:"order"`
}

// ExecuteFunctionRequest carries the optional data document a function's
// placeholders resolve against.
type ExecuteFunctionRequest struct {
	Data models.Document `json:"data,omitempty"`
}

// CreateViewRequest represents the request body for attaching a UI view to a
// state or transition.
type CreateViewRequest struct {
	WorkflowDefinitionID string            `json:"workflow_definition_id" validate:"required"`
	StateID              string            `json:"state_id,omitempty"`
	TransitionID         string            `json:"transition_id,omitempty"`
	Type                 models.ViewType   `json:"type"                   validate:"required,oneof=form display"`
	Target               models.ViewTarget `json:"target"                 validate:"required,oneof=definition state transition"`
	Version              string            `json:"version"                validate:"required,max=20"`
	WorkflowVersion      string            `json:"workflow_version"       validate:"required,max=20"`
	Content              string            `json:"content"                validate:"required"`
}
