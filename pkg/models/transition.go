package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// TriggerType says what causes a transition to fire.
type TriggerType string

const (
	TriggerTypeManual    TriggerType = "manual"    // explicit caller request
	TriggerTypeAutomatic TriggerType = "automatic" // condition over merged instance data
	TriggerTypeScheduled TriggerType = "scheduled" // time delay or cron expression
)

// WorkflowTransition is a directed edge between two states of a definition.
type WorkflowTransition struct {
	ID                   string      `json:"id"`
	WorkflowDefinitionID string      `json:"workflow_definition_id" validate:"required"`
	FromStateID          string      `json:"from_state_id"          validate:"required"`
	ToStateID            string      `json:"to_state_id"            validate:"required"`
	Name                 string      `json:"name"                   validate:"required,max=100"`
	Description          string      `json:"description,omitempty"`
	TriggerType          TriggerType `json:"trigger_type"           validate:"required,oneof=manual automatic scheduled"`

	// TriggerConfig holds the trigger's parameters: a condition for automatic
	// transitions, a schedule for scheduled ones. Stored as a JSON document;
	// parse once per operation via Condition() or Schedule().
	TriggerConfig Document `json:"trigger_config,omitempty"`
}

var (
	ErrNoCondition = errors.New("trigger config has no condition")
	ErrNoSchedule  = errors.New("trigger config has no schedule")
)

// Condition decodes the automatic-trigger condition from the trigger config.
func (t *WorkflowTransition) Condition() (*Condition, error) {
	raw, ok := t.TriggerConfig["condition"]
	if !ok {
		return nil, ErrNoCondition
	}

	condition, err := decodeInto[Condition](raw)
	if err != nil {
		return nil, fmt.Errorf("invalid condition config for transition %s: %w", t.ID, err)
	}

	if condition.Field == "" || condition.Operator == "" {
		return nil, fmt.Errorf("invalid condition config for transition %s: field and operator are required", t.ID)
	}

	return condition, nil
}

// Schedule decodes the scheduled-trigger schedule from the trigger config.
func (t *WorkflowTransition) Schedule() (*Schedule, error) {
	raw, ok := t.TriggerConfig["schedule"]
	if !ok {
		return nil, ErrNoSchedule
	}

	schedule, err := decodeInto[Schedule](raw)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule config for transition %s: %w", t.ID, err)
	}

	return schedule, nil
}

// decodeInto round-trips an untyped config subtree into a typed struct.
func decodeInto[T any](raw any) (*T, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}

	var decoded T

	err = json.Unmarshal(data, &decoded)
	if err != nil {
		return nil, err
	}

	return &decoded, nil
}
