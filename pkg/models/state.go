package models

import "time"

// StateType classifies a state's role in the lifecycle of an instance.
type StateType string

const (
	StateTypeInitial      StateType = "initial"      // entry point, exactly one per definition
	StateTypeIntermediate StateType = "intermediate" // work in progress
	StateTypeFinish       StateType = "finish"       // terminal
	StateTypeSubflow      StateType = "subflow"      // spawns a child instance of another definition
)

// StateSubType refines Finish and Suspended semantics for reporting.
type StateSubType string

const (
	StateSubTypeNone       StateSubType = "none"
	StateSubTypeSuccess    StateSubType = "success"
	StateSubTypeError      StateSubType = "error"
	StateSubTypeTerminated StateSubType = "terminated"
	StateSubTypeSuspended  StateSubType = "suspended"
)

// WorkflowState is a single node in a definition's state machine.
type WorkflowState struct {
	ID                   string       `json:"id"`
	WorkflowDefinitionID string       `json:"workflow_definition_id" validate:"required"`
	Name                 string       `json:"name"                   validate:"required,max=100"`
	Description          string       `json:"description,omitempty"`
	StateType            StateType    `json:"state_type"             validate:"required,oneof=initial intermediate finish subflow"`
	SubType              StateSubType `json:"sub_type"`
	CreatedAt            time.Time    `json:"created_at"`
	ArchivedAt           *time.Time   `json:"archived_at,omitempty"`

	// SubflowConfig is only meaningful when StateType is subflow.
	SubflowConfig *SubflowConfig `json:"subflow_config,omitempty"`
}

// IsSubflowState reports whether entering this state must spawn a child
// instance. A subflow state without config is a definition error surfaced at
// transition time.
func (s *WorkflowState) IsSubflowState() bool {
	return s.StateType == StateTypeSubflow && s.SubflowConfig != nil
}

// SubflowConfig binds a subflow state to the definition its children run, and
// describes how data flows across the parent/child boundary.
type SubflowConfig struct {
	StateID             string `json:"state_id"`
	SubflowDefinitionID string `json:"subflow_definition_id" validate:"required"`

	// InputMapping maps dotted source paths in the parent's merged data to
	// target field names seeded into the child ("order.id" -> "orderId").
	InputMapping Document `json:"input_mapping,omitempty"`

	// OutputMapping maps child result fields back onto the parent's data when
	// the child completes.
	OutputMapping Document `json:"output_mapping,omitempty"`

	// WaitForCompletion keeps the parent at the subflow state until the child
	// lands on a Finish state.
	WaitForCompletion bool `json:"wait_for_completion"`
}
