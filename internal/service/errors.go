package service

import (
	"errors"

	"kairos/internal/trigger"
)

var (
	// ErrInvalidSchedule marks a rejected schedule definition or admin request
	ErrInvalidSchedule = errors.New("invalid schedule")
	// ErrInvalidOutcome marks an outcome report that can never be applied
	ErrInvalidOutcome = errors.New("invalid outcome")
)

// IsValidationError reports whether err is caused by bad caller input
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidSchedule) || errors.Is(err, ErrInvalidOutcome) || trigger.IsDefinitionError(err)
}
