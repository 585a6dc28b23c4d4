package models

import (
	"fmt"
	"time"
)

// TaskType is the closed set of side-effect kinds the execution engine can
// dispatch. Each kind owns a typed view over the task's config document.
type TaskType string

const (
	TaskTypeHuman        TaskType = "human"        // waits for out-of-band completion
	TaskTypeBinding      TaskType = "binding"      // invoke a named output binding
	TaskTypeService      TaskType = "service"      // invoke a method on a named app
	TaskTypePubSub       TaskType = "pubsub"       // publish an event to a topic
	TaskTypeHTTP         TaskType = "http"         // direct outbound HTTP call
	TaskTypeHTTPEndpoint TaskType = "httpEndpoint" // call a named HTTP endpoint
)

// TaskTrigger says when a task bound to a state or transition runs.
type TaskTrigger string

const (
	TaskTriggerOnEntry   TaskTrigger = "onEntry"
	TaskTriggerOnExit    TaskTrigger = "onExit"
	TaskTriggerBoth      TaskTrigger = "both"
	TaskTriggerManual    TaskTrigger = "manual"
	TaskTriggerOnExecute TaskTrigger = "onExecute" // transition-bound tasks only
)

// TaskStatus tracks a single execution attempt.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "Pending"
	TaskStatusInProgress TaskStatus = "InProgress"
	TaskStatusCompleted  TaskStatus = "Completed"
	TaskStatusFailed     TaskStatus = "Failed"
)

// WorkflowTask is a reusable unit of side-effecting work. The base carries
// identity, kind and the raw config document; WorkflowTaskAssignment binds it
// to the places it runs.
type WorkflowTask struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"   validate:"required,max=100"`
	Description string    `json:"description,omitempty"`
	Type        TaskType  `json:"type"   validate:"required,oneof=human binding service pubsub http httpEndpoint"`
	Config      Document  `json:"config"`
	CreatedAt   time.Time `json:"created_at"`
}

// WorkflowTaskAssignment binds a task to exactly one of a state, a transition
// or a function, with a trigger and an execution order. Decoupling tasks from
// their call sites lets one task definition serve many states.
type WorkflowTaskAssignment struct {
	ID           string      `json:"id"`
	TaskID       string      `json:"task_id" validate:"required"`
	StateID      string      `json:"state_id,omitempty"`
	TransitionID string      `json:"transition_id,omitempty"`
	FunctionID   string      `json:"function_id,omitempty"`
	Trigger      TaskTrigger `json:"trigger" validate:"required"`
	Order        int         `json:"order"`
}

// WorkflowInstanceTask is one append-only audit record per dispatch attempt,
// keyed by (instance, task, state).
type WorkflowInstanceTask struct {
	ID                 string     `json:"id"`
	WorkflowInstanceID string     `json:"workflow_instance_id"`
	WorkflowTaskID     string     `json:"workflow_task_id"`
	StateID            string     `json:"state_id"`
	TaskName           string     `json:"task_name"`
	TaskType           TaskType   `json:"task_type"`
	Status             TaskStatus `json:"status"`
	StartedAt          time.Time  `json:"started_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	Error              string     `json:"error,omitempty"`
	Result             string     `json:"result,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// WorkflowHumanTask is a pending work item created when a human task is
// dispatched. It is completed out-of-band via CompleteTask.
type WorkflowHumanTask struct {
	ID                 string     `json:"id"`
	WorkflowInstanceID string     `json:"workflow_instance_id"`
	StateID            string     `json:"state_id"`
	Name               string     `json:"name"`
	Description        string     `json:"description,omitempty"`
	Assignee           string     `json:"assignee"`
	Form               Document   `json:"form,omitempty"`
	Instructions       string     `json:"instructions,omitempty"`
	Result             string     `json:"result,omitempty"`
	AssignedAt         time.Time  `json:"assigned_at"`
	DueAt              *time.Time `json:"due_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

func (t *WorkflowHumanTask) IsPending() bool {
	return t.CompletedAt == nil
}

// Typed views over the task config document, one per task kind.

type BindingTaskConfig struct {
	BindingName string            `json:"bindingName"`
	Operation   string            `json:"operation"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Data        any               `json:"data,omitempty"`
}

type ServiceTaskConfig struct {
	AppID  string `json:"appId"`
	Method string `json:"method"`
	Verb   string `json:"verb"`
	Data   any    `json:"data,omitempty"`
}

type PubSubTaskConfig struct {
	Topic    string            `json:"topic"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Data     any               `json:"data,omitempty"`
}

type HTTPTaskConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Data    any               `json:"data,omitempty"`
}

type EndpointTaskConfig struct {
	EndpointName string `json:"endpointName"`
	Path         string `json:"path"`
	Method       string `json:"method"`
	Data         any    `json:"data,omitempty"`
}

type HumanTaskConfig struct {
	Title        string   `json:"title"`
	Instructions string   `json:"instructions"`
	AssignedTo   string   `json:"assignedTo"`
	Form         Document `json:"form,omitempty"`
	DueDate      string   `json:"dueDate,omitempty"` // RFC 3339
}

// BindingConfig decodes the config document for a binding task.
func (t *WorkflowTask) BindingConfig() (*BindingTaskConfig, error) {
	return taskConfig[BindingTaskConfig](t, TaskTypeBinding)
}

func (t *WorkflowTask) ServiceConfig() (*ServiceTaskConfig, error) {
	return taskConfig[ServiceTaskConfig](t, TaskTypeService)
}

func (t *WorkflowTask) PubSubConfig() (*PubSubTaskConfig, error) {
	return taskConfig[PubSubTaskConfig](t, TaskTypePubSub)
}

func (t *WorkflowTask) HTTPConfig() (*HTTPTaskConfig, error) {
	return taskConfig[HTTPTaskConfig](t, TaskTypeHTTP)
}

func (t *WorkflowTask) EndpointConfig() (*EndpointTaskConfig, error) {
	return taskConfig[EndpointTaskConfig](t, TaskTypeHTTPEndpoint)
}

func (t *WorkflowTask) HumanConfig() (*HumanTaskConfig, error) {
	return taskConfig[HumanTaskConfig](t, TaskTypeHuman)
}

func taskConfig[T any](t *WorkflowTask, expected TaskType) (*T, error) {
	if t.Type != expected {
		return nil, fmt.Errorf("task %s is %s, not %s", t.ID, t.Type, expected)
	}

	config, err := decodeInto[T](map[string]any(t.Config))
	if err != nil {
		return nil, fmt.Errorf("invalid %s config for task %s: %w", expected, t.ID, err)
	}

	return config, nil
}
