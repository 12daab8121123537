package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrKeyspaceExhausted is returned by the allocator once a bounded keyspace
	// has been handed out completely.
	ErrKeyspaceExhausted = errors.New("keyspace exhausted")

	// ErrInvalidChunk marks an empty or inverted range.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrStatePersist wraps failures to write the cursor. It is always fatal.
	ErrStatePersist = errors.New("persist cursor")
)

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ConfigError is returned when a configuration fails validation.
type ConfigError struct {
	Details []FieldError `json:"details"`
}

func (e *ConfigError) Error() string {
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, fmt.Sprintf("%s: %s", d.Field, d.Message))
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

// Add appends a field error.
func (e *ConfigError) Add(field, msg string) {
	e.Details = append(e.Details, FieldError{Field: field, Message: msg})
}

// ErrOrNil returns e when it carries details, nil otherwise.
func (e *ConfigError) ErrOrNil() error {
	if e == nil || len(e.Details) == 0 {
		return nil
	}
	return e
}

// InvalidTransitionError is returned when a state transition is invalid.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s → %s (entity %s)", e.Entity, e.From, e.To, e.ID)
}
