// Package generation defines the structured-generation backend capability
// consumed by the analyzer, plus the Gemini implementation. The backend is
// partially trusted: callers must parse and validate whatever comes back.
package generation

import (
	"context"
	"errors"
	"fmt"
)

// Schema is a JSON-schema-like descriptor handed to the backend so it can
// shape its output. Only the subset the journal pipeline needs is modeled.
type Schema struct {
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Properties  map[string]Schema `json:"properties,omitempty"`
	Items       *Schema           `json:"items,omitempty"`
	Required    []string          `json:"required,omitempty"`
	Enum        []string          `json:"enum,omitempty"`
}

// Backend generates a best-effort structured response for a prompt.
// Implementations perform network I/O and must honor ctx cancellation.
type Backend interface {
	Generate(ctx context.Context, prompt string, schema Schema) (string, error)
}

// TransientError marks failures worth retrying: network faults, timeouts,
// rate limits, server-side errors.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient backend error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is a retryable backend failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
