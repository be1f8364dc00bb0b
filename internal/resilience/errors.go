package resilience

import (
	"errors"
	"fmt"
)

// ErrNotFound marks a lookup that completed normally but found no record.
// Collaborators return it (or wrap it) to distinguish absence from transport failure.
var ErrNotFound = errors.New("record not found")

// ErrScoringDegraded signals that the similarity scorer is running on its fallback
// backend. It is only ever logged; callers never receive it.
var ErrScoringDegraded = errors.New("similarity scoring degraded to fallback backend")

// DependencyFailure is the single domain error kind for transport or driver
// failures raised by an external collaborator.
type DependencyFailure struct {
	Op      string
	Context map[string]string
	Err     error
}

func (e *DependencyFailure) Error() string {
	if len(e.Context) == 0 {
		return fmt.Sprintf("dependency failure in %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("dependency failure in %s %v: %v", e.Op, e.Context, e.Err)
}

func (e *DependencyFailure) Unwrap() error { return e.Err }

// NotFoundError reports that a record of the given kind does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Is lets errors.Is(err, ErrNotFound) match a NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsNotFound reports whether err signals an absent record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDependencyFailure reports whether err is (or wraps) a DependencyFailure.
func IsDependencyFailure(err error) bool {
	var df *DependencyFailure
	return errors.As(err, &df)
}
