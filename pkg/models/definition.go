package models

import (
	"strconv"
	"strings"
	"time"
)

// WorkflowDefinition is a versioned workflow template: a set of states and the
// transitions between them. Definitions are effectively immutable once an
// instance has started against them; new versions are created by cloning.
type WorkflowDefinition struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"           validate:"required,max=100"`
	Description string     `json:"description,omitempty"`
	Version     string     `json:"version"        validate:"required,max=20"`
	// ClientVersion selects which caller versions this definition serves:
	// exact ("2.1.0"), universal ("*"), prefix wildcard ("2.*") or a range
	// bound (">=2.0", "<3.0").
	ClientVersion string     `json:"client_version" validate:"required,max=20"`
	CreatedAt     time.Time  `json:"created_at"`
	ArchivedAt    *time.Time `json:"archived_at,omitempty"`

	States      []*WorkflowState      `json:"states,omitempty"`
	Transitions []*WorkflowTransition `json:"transitions,omitempty"`
}

func (d *WorkflowDefinition) IsArchived() bool {
	return d.ArchivedAt != nil
}

// SemanticVersion strips any build metadata ("1.2.0+45" -> "1.2.0").
func (d *WorkflowDefinition) SemanticVersion() string {
	if idx := strings.IndexByte(d.Version, '+'); idx >= 0 {
		return d.Version[:idx]
	}

	return d.Version
}

// InitialState returns the definition's unique Initial state, or nil.
func (d *WorkflowDefinition) InitialState() *WorkflowState {
	for _, state := range d.States {
		if state.StateType == StateTypeInitial {
			return state
		}
	}

	return nil
}

func (d *WorkflowDefinition) StatesByType(stateType StateType) []*WorkflowState {
	var matched []*WorkflowState

	for _, state := range d.States {
		if state.StateType == stateType {
			matched = append(matched, state)
		}
	}

	return matched
}

// IsClientVersionCompatible reports whether a caller running clientVersion may
// start instances of this definition.
func (d *WorkflowDefinition) IsClientVersionCompatible(clientVersion string) bool {
	selector := d.ClientVersion

	if selector == "*" || clientVersion == "*" {
		return true
	}

	if strings.Contains(selector, "*") {
		prefix := strings.TrimSuffix(selector, "*")

		return strings.HasPrefix(clientVersion, prefix)
	}

	if rest, ok := strings.CutPrefix(selector, ">="); ok {
		return CompareVersions(clientVersion, strings.TrimSpace(rest)) >= 0
	}

	if rest, ok := strings.CutPrefix(selector, "<"); ok {
		return CompareVersions(clientVersion, strings.TrimSpace(rest)) < 0
	}

	return selector == clientVersion
}

// CompareVersions compares two dotted version strings segment by segment,
// returning -1, 0 or 1. Missing segments count as zero; non-numeric segments
// fall back to lexicographic comparison.
func CompareVersions(a, b string) int {
	segmentsA := strings.Split(a, ".")
	segmentsB := strings.Split(b, ".")

	length := max(len(segmentsA), len(segmentsB))

	for i := range length {
		var segA, segB string

		if i < len(segmentsA) {
			segA = segmentsA[i]
		}

		if i < len(segmentsB) {
			segB = segmentsB[i]
		}

		numA, errA := strconv.Atoi(segA)
		numB, errB := strconv.Atoi(segB)

		if errA != nil || errB != nil {
			if segA != segB {
				if segA < segB {
					return -1
				}

				return 1
			}

			continue
		}

		if numA != numB {
			if numA < numB {
				return -1
			}

			return 1
		}
	}

	return 0
}
