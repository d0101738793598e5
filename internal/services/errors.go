package services

import "fmt"

// ValidationError reports the first missing required field of a request.
// Handlers surface the message verbatim.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

func missingField(field string) error {
	return &ValidationError{Field: field}
}
