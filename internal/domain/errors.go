package domain

import "errors"

// ErrInvalidTransition is returned when a run status change is not allowed
var ErrInvalidTransition = errors.New("invalid run status transition")

// ErrRunTerminal is returned when a finished run is asked to change again
var ErrRunTerminal = errors.New("run already in a terminal status")

func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

func IsRunTerminal(err error) bool {
	return errors.Is(err, ErrRunTerminal)
}
