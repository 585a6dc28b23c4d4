// Package services implements the workflow engine's operations: starting
// instances, executing transitions, completing human tasks, subflow
// correlation, and definition management.
package services

import (
	"errors"

	"github.com/cadenzo/cadenzo/pkg/persistence"
)

// Not-found family. Surfaced to transports as 404.
var (
	ErrNoCompatibleDefinition = errors.New("no compatible workflow definition found")
	ErrNoInitialState         = errors.New("workflow definition has no initial state")
)

// Invalid-operation family. The request is well-formed but cannot be applied
// to the current state of the world. Surfaced to transports as 422.
var (
	ErrTransitionNotApplicable = errors.New("transition is not applicable to the current state")
	ErrManualTransitionReturns = errors.New("manual transition would return to the previous state")
	ErrConditionNotMet         = errors.New("automatic transition condition is not met")
	ErrTaskAlreadyCompleted    = errors.New("human task is already completed")
	ErrMissingSubflowConfig    = errors.New("subflow state has no subflow configuration")
	ErrCascadeLimitExceeded    = errors.New("automatic transition cascade exceeded the iteration limit")
	ErrDefinitionArchived      = errors.New("workflow definition is archived")
	ErrInvalidDefinition       = errors.New("workflow definition is invalid")
	ErrFunctionNameTaken       = errors.New("workflow function name is already in use")
	ErrFunctionNotActive       = errors.New("workflow function is not active")
	ErrFunctionNotInvokable    = errors.New("workflow function is bound to a specific state or workflow")
)

func IsNotFound(err error) bool {
	return persistence.IsNotFound(err) ||
		errors.Is(err, ErrNoCompatibleDefinition) ||
		errors.Is(err, ErrNoInitialState)
}

func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrTransitionNotApplicable) ||
		errors.Is(err, ErrManualTransitionReturns) ||
		errors.Is(err, ErrConditionNotMet) ||
		errors.Is(err, ErrTaskAlreadyCompleted) ||
		errors.Is(err, ErrMissingSubflowConfig) ||
		errors.Is(err, ErrCascadeLimitExceeded) ||
		errors.Is(err, ErrDefinitionArchived) ||
		errors.Is(err, ErrInvalidDefinition) ||
		errors.Is(err, ErrFunctionNameTaken) ||
		errors.Is(err, ErrFunctionNotActive) ||
		errors.Is(err, ErrFunctionNotInvokable)
}
