package domain

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlertNotFound is returned when resolving an unknown alert id.
	ErrAlertNotFound = errors.New("fraud alert not found")

	// ErrAlertClosed is returned when resolving a dismissed or closed alert.
	ErrAlertClosed = errors.New("fraud alert is closed")
)

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

// ProcessingError is the single failure type surfaced by transaction
// processing. Stage names the pipeline step that failed.
type ProcessingError struct {
	TransactionID string
	Stage         string
	Err           error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("fraud detection failed for transaction %s at %s: %v", e.TransactionID, e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}
