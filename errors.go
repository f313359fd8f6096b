package hier

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates the addressed context does not exist for the
	// calling owner.
	ErrNotFound = errors.New("hier: context not found")
	// ErrAlreadyExists indicates an id collision, or a second global context
	// for the same owner.
	ErrAlreadyExists = errors.New("hier: context already exists")
	// ErrBrokenChain indicates a stored parent pointer does not resolve.
	// This is corruption; the engine reports it and never repairs it.
	ErrBrokenChain = errors.New("hier: broken ancestor chain")
	// ErrConcurrentModification indicates an optimistic version check failed.
	ErrConcurrentModification = errors.New("hier: concurrent modification")
	// ErrHasChildren indicates a delete was blocked by referential integrity.
	ErrHasChildren = errors.New("hier: context has children")
	// ErrNotAnAncestor indicates a delegation target outside the chain.
	ErrNotAnAncestor = errors.New("hier: target is not an ancestor")
	// ErrTimeout indicates the caller-supplied deadline expired mid-operation.
	ErrTimeout = errors.New("hier: operation timed out")
)

// Guidance names the exact missing ancestor and how to create it. It is a
// content contract: callers are expected to branch on it and self-heal,
// either by performing the remediation call or by retrying the creation
// with auto-create enabled.
type Guidance struct {
	MissingLevel     Level    `json:"missing_level"`
	MissingID        string   `json:"missing_id,omitempty"`
	RemediationSteps []string `json:"remediation_steps"`
}

// GuidanceError is the structured hierarchy-validation failure returned
// when a context's required ancestor cannot be resolved.
type GuidanceError struct {
	Level    Level
	ID       string
	Guidance Guidance
}

func (e *GuidanceError) Error() string {
	if e == nil {
		return "<nil>"
	}
	missing := e.Guidance.MissingLevel.String()
	if e.Guidance.MissingID != "" {
		missing = fmt.Sprintf("%s %q", missing, e.Guidance.MissingID)
	}
	return fmt.Sprintf("hier: cannot place %s %q: missing %s context (%s)",
		e.Level, e.ID, missing, strings.Join(e.Guidance.RemediationSteps, "; "))
}

// AsGuidance extracts a GuidanceError from err, if any.
func AsGuidance(err error) (*GuidanceError, bool) {
	var guidanceErr *GuidanceError
	if errors.As(err, &guidanceErr) {
		return guidanceErr, true
	}
	return nil, false
}

func missingParentGuidance(level Level, id string, missingLevel Level, missingID string) *GuidanceError {
	steps := []string{
		fmt.Sprintf("create the %s context first", missingLevel),
		fmt.Sprintf("or retry the %s creation with auto-create parents enabled", level),
	}
	if missingID != "" {
		steps[0] = fmt.Sprintf("create %s context %q first", missingLevel, missingID)
	}
	return &GuidanceError{
		Level: level,
		ID:    id,
		Guidance: Guidance{
			MissingLevel:     missingLevel,
			MissingID:        missingID,
			RemediationSteps: steps,
		},
	}
}

func missingFieldGuidance(level Level, id string, field string, missingLevel Level) *GuidanceError {
	return &GuidanceError{
		Level: level,
		ID:    id,
		Guidance: Guidance{
			MissingLevel: missingLevel,
			RemediationSteps: []string{
				fmt.Sprintf("supply data.%s so the %s context can be placed under its %s", field, level, missingLevel),
			},
		},
	}
}

// ChainError carries the location of a broken parent pointer. It unwraps to
// ErrBrokenChain so callers can branch on the kind.
type ChainError struct {
	Owner    string
	Level    Level
	ID       string
	ParentID string
}

func (e *ChainError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("hier: %s %q (owner %q) references missing parent %q",
		e.Level, e.ID, e.Owner, e.ParentID)
}

func (e *ChainError) Unwrap() error {
	return ErrBrokenChain
}

func deadlineErr(cause error) error {
	if cause == nil {
		return ErrTimeout
	}
	return fmt.Errorf("%w: %v", ErrTimeout, cause)
}
