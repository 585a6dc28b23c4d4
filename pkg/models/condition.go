package models

import (
	"fmt"
	"strings"
)

// ConditionOperator is the comparison applied by an automatic trigger.
type ConditionOperator string

const (
	OperatorEquals     ConditionOperator = "equals"
	OperatorNotEquals  ConditionOperator = "notEquals"
	OperatorContains   ConditionOperator = "contains"
	OperatorStartsWith ConditionOperator = "startsWith"
	OperatorEndsWith   ConditionOperator = "endsWith"
)

// Condition is a single-field comparison over an instance's merged data.
type Condition struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    string            `json:"value"`
}

// Evaluate applies the condition to a data document. A missing field never
// matches, except under notEquals where absence counts as "not equal".
func (c *Condition) Evaluate(data Document) (bool, error) {
	fieldValue, ok := data.StringField(c.Field)
	if !ok {
		return c.Operator == OperatorNotEquals, nil
	}

	switch c.Operator {
	case OperatorEquals:
		return fieldValue == c.Value, nil
	case OperatorNotEquals:
		return fieldValue != c.Value, nil
	case OperatorContains:
		return strings.Contains(fieldValue, c.Value), nil
	case OperatorStartsWith:
		return strings.HasPrefix(fieldValue, c.Value), nil
	case OperatorEndsWith:
		return strings.HasSuffix(fieldValue, c.Value), nil
	default:
		return false, fmt.Errorf("unsupported condition operator %q", c.Operator)
	}
}
