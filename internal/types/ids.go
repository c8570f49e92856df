// Package types defines the persistent document model: the tagged-variant feature
// graph, sketch entities and constraints, and the errors that validation and the
// rebuild engine report against them.
package types

import (
	"fmt"

	"github.com/google/uuid"
)

// ID is a stable identifier for any persistent entity (feature, sketch point,
// sketch entity, sketch constraint). The zero value is never a valid id.
type ID string

// Empty reports whether id is the zero value.
func (id ID) Empty() bool {
	return id == ""
}

func (id ID) String() string {
	return string(id)
}

// NewID returns a freshly generated, globally unique identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

// ParseID validates that s is a syntactically well-formed UUID and returns it as an ID.
// Document load and remote-update application do not call it, so neither checks id syntax.
func ParseID(s string) (ID, error) {
	if s == "" {
		return "", fmt.Errorf("empty id")
	}
	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("malformed id %q: %w", s, err)
	}
	return ID(s), nil
}
