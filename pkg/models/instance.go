package models

import "time"

// Instance status values. Status is free-form in storage; these two are the
// values the engine itself writes.
const (
	InstanceStatusActive    = "Active"
	InstanceStatusCompleted = "Completed"
)

// WorkflowInstance is one running execution of a definition. It is created by
// StartInstance and mutated only by ExecuteTransition; it is terminal once
// CurrentStateID points at a Finish state.
type WorkflowInstance struct {
	ID                   string     `json:"id"`
	WorkflowDefinitionID string     `json:"workflow_definition_id"`
	CurrentStateID       string     `json:"current_state_id"`
	Status               string     `json:"status"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`

	// Loaded on the with-details read path.
	Definition   *WorkflowDefinition `json:"definition,omitempty"`
	CurrentState *WorkflowState      `json:"current_state,omitempty"`
}

func (i *WorkflowInstance) IsActive() bool {
	return i.CompletedAt == nil
}

// WorkflowStateData is an immutable snapshot of the data supplied when an
// instance entered a state. Snapshots are append-only and form the instance's
// audit history.
type WorkflowStateData struct {
	ID                 string    `json:"id"`
	WorkflowInstanceID string    `json:"workflow_instance_id"`
	StateID            string    `json:"state_id"`
	Data               Document  `json:"data"`
	EnteredAt          time.Time `json:"entered_at"`
	CreatedAt          time.Time `json:"created_at"`
}

// WorkflowInstanceData is the single mutable, field-merged view of all data
// ever supplied to an instance. Condition evaluation and task placeholder
// substitution read this document, never individual snapshots.
type WorkflowInstanceData struct {
	ID                 string    `json:"id"`
	WorkflowInstanceID string    `json:"workflow_instance_id"`
	Data               Document  `json:"data"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// MergeData overlays newData onto the accumulated document, top-level last
// write wins.
func (d *WorkflowInstanceData) MergeData(newData Document, now time.Time) {
	if d.Data == nil {
		d.Data = Document{}
	}

	d.Data = d.Data.Merge(newData)
	d.UpdatedAt = now
}

// WorkflowCorrelation links a subflow parent instance, via the subflow state
// it is waiting at, to the child instance it spawned.
type WorkflowCorrelation struct {
	ID                string     `json:"id"`
	ParentInstanceID  string     `json:"parent_instance_id"`
	ParentStateID     string     `json:"parent_state_id"`
	SubflowInstanceID string     `json:"subflow_instance_id"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}
