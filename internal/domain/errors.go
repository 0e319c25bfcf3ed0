package domain

import (
	"fmt"
	"strings"
)

// FatalInputKind classifies a fatal problem with a source snapshot.
type FatalInputKind string

const (
	FatalDuplicateExternalID FatalInputKind = "duplicate_external_id"
	FatalCycle               FatalInputKind = "cycle"
)

// FatalInputError means the department snapshot cannot be ordered at all.
// ExternalIDs lists the duplicated ids or the members of the detected cycle.
type FatalInputError struct {
	Kind        FatalInputKind
	ExternalIDs []string
}

func (e *FatalInputError) Error() string {
	switch e.Kind {
	case FatalDuplicateExternalID:
		return fmt.Sprintf("duplicate department external id(s) in snapshot: %s", strings.Join(e.ExternalIDs, ", "))
	case FatalCycle:
		return fmt.Sprintf("cycle detected in department parent graph: %s", strings.Join(e.ExternalIDs, " -> "))
	default:
		return fmt.Sprintf("fatal input error (%s): %s", e.Kind, strings.Join(e.ExternalIDs, ", "))
	}
}

// WriteError records a failed write against the target store.
type WriteError struct {
	Entity string
	Key    string
	Op     string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Entity, e.Key, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// SourceError means the directory snapshot could not be read.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string {
	return e.Err.Error()
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
