package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication indicates missing or invalid provider credentials.
	ErrAuthentication = errors.New("authentication failed")
	// ErrInvalidRecord marks degenerate activity data that cannot be normalized.
	ErrInvalidRecord = errors.New("invalid activity record")
	// ErrTemplate is returned when the prompt template is missing or malformed.
	ErrTemplate = errors.New("prompt template error")
	// ErrGeneration wraps failures from the text-generation backend.
	ErrGeneration = errors.New("generation failed")
	// ErrDelivery wraps notifier transport failures.
	ErrDelivery = errors.New("delivery failed")
	// ErrDuplicateEvent is returned by a ledger when the event id is already recorded.
	ErrDuplicateEvent = errors.New("event already processed")
	// ErrForbidden is returned when the subscription handshake does not match.
	ErrForbidden = errors.New("verification failed")
)

// InvalidRecordError reports which activity failed normalization and why.
type InvalidRecordError struct {
	ActivityID int64
	Reason     string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("activity %d: %s", e.ActivityID, e.Reason)
}

// Unwrap lets callers match with errors.Is(err, ErrInvalidRecord).
func (e *InvalidRecordError) Unwrap() error {
	return ErrInvalidRecord
}

// TemplateError describes a template that could not be loaded or rendered.
type TemplateError struct {
	Detail string
	Err    error
}

func (e *TemplateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("prompt template: %s: %v", e.Detail, e.Err)
	}
	return "prompt template: " + e.Detail
}

func (e *TemplateError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrTemplate, e.Err}
	}
	return []error{ErrTemplate}
}
