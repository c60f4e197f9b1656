package errors

import (
	"fmt"
	"strings"
)

// FieldErrors collects request validation failures keyed by field,
// preserving the order fields were checked in.
type FieldErrors struct {
	fields []fieldError
}

type fieldError struct {
	Field   string
	Message string
}

func NewFieldErrors() *FieldErrors {
	return &FieldErrors{}
}

func (e *FieldErrors) Add(field, message string) {
	e.fields = append(e.fields, fieldError{Field: field, Message: message})
}

func (e *FieldErrors) HasErrors() bool {
	return len(e.fields) > 0
}

func (e *FieldErrors) Error() string {
	parts := make([]string, 0, len(e.fields))
	for _, fe := range e.fields {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return strings.Join(parts, " | ")
}
