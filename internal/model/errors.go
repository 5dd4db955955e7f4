package model

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrSlotTaken           = errors.New("slot already taken")
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrStale               = errors.New("reservation was modified concurrently")
	ErrPaymentProvider     = errors.New("payment provider unavailable")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// ValidationError names the offending field. It matches ErrValidation
// under errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
