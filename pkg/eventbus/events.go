package eventbus

import (
	"time"
)

type EventType string

// Topic carries every workflow lifecycle event.
const Topic = "cadenzo.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	InstanceStartedEvent    EventType = "instance.started"
	TransitionExecutedEvent EventType = "transition.executed"
	InstanceCompletedEvent  EventType = "instance.completed"
	TaskFailedEvent         EventType = "task.failed"
	SubflowStartedEvent     EventType = "subflow.started"
	SubflowCompletedEvent   EventType = "subflow.completed"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	InstanceID string    `json:"instance_id"`
}

type InstanceStarted struct {
	BaseEvent

	WorkflowDefinitionID string `json:"workflow_definition_id"`
	InitialStateID       string `json:"initial_state_id"`
}

func (e InstanceStarted) GetType() EventType { return InstanceStartedEvent }

type TransitionExecuted struct {
	BaseEvent

	TransitionID string `json:"transition_id"`
	FromStateID  string `json:"from_state_id"`
	ToStateID    string `json:"to_state_id"`
}

func (e TransitionExecuted) GetType() EventType { return TransitionExecutedEvent }

type InstanceCompleted struct {
	BaseEvent

	WorkflowDefinitionID string    `json:"workflow_definition_id"`
	FinalStateID         string    `json:"final_state_id"`
	CompletedAt          time.Time `json:"completed_at"`
}

func (e InstanceCompleted) GetType() EventType { return InstanceCompletedEvent }

type TaskFailed struct {
	BaseEvent

	TaskID   string `json:"task_id"`
	TaskType string `json:"task_type"`
	Error    string `json:"error"`
}

func (e TaskFailed) GetType() EventType { return TaskFailedEvent }

type SubflowStarted struct {
	BaseEvent

	ParentInstanceID    string `json:"parent_instance_id"`
	SubflowDefinitionID string `json:"subflow_definition_id"`
}

func (e SubflowStarted) GetType() EventType { return SubflowStartedEvent }

type SubflowCompleted struct {
	BaseEvent

	ParentInstanceID string `json:"parent_instance_id"`
}

func (e SubflowCompleted) GetType() EventType { return SubflowCompletedEvent }
