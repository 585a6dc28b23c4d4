package models

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// JSON schemas for the persisted trigger config shapes. Transitions are
// validated against these when definitions are created or imported, so a
// malformed config is rejected before the trigger processor ever sees it.

var automaticTriggerSchema = map[string]any{
	"type":     "object",
	"required": []any{"condition"},
	"properties": map[string]any{
		"condition": map[string]any{
			"type":     "object",
			"required": []any{"field", "operator", "value"},
			"properties": map[string]any{
				"field": map[string]any{"type": "string", "minLength": 1},
				"operator": map[string]any{
					"type": "string",
					"enum": []any{"equals", "notEquals", "contains", "startsWith", "endsWith"},
				},
				"value": map[string]any{"type": "string"},
			},
		},
	},
}

var scheduledTriggerSchema = map[string]any{
	"type":     "object",
	"required": []any{"schedule"},
	"properties": map[string]any{
		"schedule": map[string]any{
			"type":     "object",
			"required": []any{"type"},
			"properties": map[string]any{
				"type":       map[string]any{"type": "string", "enum": []any{"delay", "cron"}},
				"duration":   map[string]any{"type": "string"},
				"expression": map[string]any{"type": "string"},
				"timeZone":   map[string]any{"type": "string"},
			},
		},
	},
}

// ValidateTriggerConfig checks a transition's trigger config document against
// the schema for its trigger type. Manual transitions carry no config and
// always pass.
func ValidateTriggerConfig(triggerType TriggerType, config Document) error {
	var schema map[string]any

	switch triggerType {
	case TriggerTypeAutomatic:
		schema = automaticTriggerSchema
	case TriggerTypeScheduled:
		schema = scheduledTriggerSchema
	case TriggerTypeManual:
		return nil
	default:
		return fmt.Errorf("unknown trigger type %q", triggerType)
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(map[string]any(config))

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("trigger config validation failed: %w", err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			messages = append(messages, resultError.String())
		}

		return fmt.Errorf("invalid %s trigger config: %s", triggerType, strings.Join(messages, "; "))
	}

	return nil
}
