package domain

import (
	"errors"
	"fmt"
)

// ErrNotFoundSentinel matches every ErrNotFound via errors.Is.
var ErrNotFoundSentinel = errors.New("entity not found")

// ErrNotFound is returned when an id or name lookup has no match.
type ErrNotFound struct {
	Entity EntityType
	ID     EntityID
	Name   string
}

func (e ErrNotFound) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s named %q not found", e.Entity, e.Name)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Is reports whether target is the not-found sentinel.
func (e ErrNotFound) Is(target error) bool {
	return target == ErrNotFoundSentinel
}

// IsNotFound reports whether err (or anything it wraps) is a lookup miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFoundSentinel)
}

// ErrInvalidDocument reports a document that does not conform to the schema.
type ErrInvalidDocument struct {
	Entity EntityType
	ID     EntityID
	Reason string
}

func (e *ErrInvalidDocument) Error() string {
	if e.ID == NilEntityID {
		return fmt.Sprintf("invalid %s document: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("invalid %s document %s: %s", e.Entity, e.ID, e.Reason)
}

// ErrDanglingReference reports a reference to an entity that does not exist.
type ErrDanglingReference struct {
	Entity   EntityType
	ID       EntityID
	Target   EntityType
	TargetID EntityID
}

func (e *ErrDanglingReference) Error() string {
	return fmt.Sprintf("%s %s references missing %s %s", e.Entity, e.ID, e.Target, e.TargetID)
}
