// Package persistence provides standardized error types for storage
// operations. All implementations return these sentinels on lookup misses so
// callers can branch with errors.Is regardless of backend.
package persistence

import "errors"

var (
	ErrDefinitionNotFound   = errors.New("workflow definition not found")
	ErrStateNotFound        = errors.New("workflow state not found")
	ErrTransitionNotFound   = errors.New("workflow transition not found")
	ErrInstanceNotFound     = errors.New("workflow instance not found")
	ErrInstanceDataNotFound = errors.New("workflow instance data not found")
	ErrStateDataNotFound    = errors.New("workflow state data not found")
	ErrCorrelationNotFound  = errors.New("workflow correlation not found")
	ErrTaskNotFound         = errors.New("workflow task not found")
	ErrHumanTaskNotFound    = errors.New("workflow human task not found")
	ErrFunctionNotFound     = errors.New("workflow function not found")
)

// IsNotFound reports whether err is any of the persistence lookup-miss
// sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound) ||
		errors.Is(err, ErrStateNotFound) ||
		errors.Is(err, ErrTransitionNotFound) ||
		errors.Is(err, ErrInstanceNotFound) ||
		errors.Is(err, ErrInstanceDataNotFound) ||
		errors.Is(err, ErrStateDataNotFound) ||
		errors.Is(err, ErrCorrelationNotFound) ||
		errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrHumanTaskNotFound) ||
		errors.Is(err, ErrFunctionNotFound)
}
