package repository

import "errors"

// ErrOptimisticLockFailed indicates that an optimistic lock check failed during update
// This happens when the record was modified by another process after it was read
var ErrOptimisticLockFailed = errors.New("optimistic lock failed: record was modified by another process")

// ErrClaimConflict means another instance advanced the schedule first; the caller skips it this cycle
var ErrClaimConflict = errors.New("claim conflict: schedule version changed")

// ErrNotFound indicates that the requested resource was not found
var ErrNotFound = errors.New("resource not found")

// ErrAlreadyExists is returned when creating a record whose id is taken
var ErrAlreadyExists = errors.New("resource already exists")

// IsOptimisticLockError checks if an error is an optimistic lock failure
func IsOptimisticLockError(err error) bool {
	return errors.Is(err, ErrOptimisticLockFailed)
}

func IsClaimConflict(err error) bool {
	return errors.Is(err, ErrClaimConflict)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}
