package service

import (
	"errors"
	"fmt"

	"github.com/fuelsync/fuelsync/internal/keys"
	"github.com/fuelsync/fuelsync/internal/repository"
)

// Service errors.
var (
	ErrVehicleNotFound     = errors.New("vehicle not found")
	ErrRefillNotFound      = errors.New("refill not found")
	ErrExpenseNotFound     = errors.New("expense not found")
	ErrMalformedCursor     = errors.New("malformed pagination token")
	ErrValidation          = errors.New("validation failed")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ValidationError describes one rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) hold for every ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// validateID rejects caller-supplied ids that cannot be part of a key.
func validateID(field, id string) error {
	if err := keys.ValidateID(id); err != nil {
		return invalid(field, err.Error())
	}
	return nil
}

// storeError maps repository failures onto service errors. notFound is
// returned for missing items.
func storeError(err, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return notFound
	case errors.Is(err, repository.ErrInvalidCursor):
		return ErrMalformedCursor
	default:
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
}
