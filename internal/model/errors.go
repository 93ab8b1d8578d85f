package model

import (
	"errors"
	"fmt"
	"strings"
)

// SchemaError reports required columns absent from an input batch.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: missing required columns: %s", strings.Join(e.Missing, ", "))
}

// InputError reports a batch the engine cannot score, such as an empty one.
type InputError struct {
	Stage  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Reason)
}

// EmptyBatch returns the InputError raised when a stage receives no records.
func EmptyBatch(stage string) *InputError {
	return &InputError{Stage: stage, Reason: "empty batch"}
}

// IsSchemaError reports whether err (or any error it wraps) is a SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// IsInputError reports whether err (or any error it wraps) is an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
