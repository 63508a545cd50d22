package trigger

import "errors"

var (
	// ErrInvalidCronSyntax is returned for cron expressions that do not follow the five-field grammar
	ErrInvalidCronSyntax = errors.New("invalid cron syntax")
	// ErrInvalidCronRange is returned when a cron value, range or step is outside its field's domain
	ErrInvalidCronRange = errors.New("cron value out of range")
	// ErrInvalidIntervalSyntax is returned for interval expressions with unrecognised tokens
	ErrInvalidIntervalSyntax = errors.New("invalid interval syntax")
	// ErrNonPositiveInterval is returned when an interval resolves to zero or less
	ErrNonPositiveInterval = errors.New("interval must be > 0")
	// ErrNoUpcomingRun is returned when no fire time exists within the search horizon
	ErrNoUpcomingRun = errors.New("no upcoming run within search horizon")
	// ErrUnknownTriggerKind is returned for trigger kinds other than cron and interval
	ErrUnknownTriggerKind = errors.New("unknown trigger kind")
	// ErrInvalidTimezone is returned when a timezone name cannot be loaded
	ErrInvalidTimezone = errors.New("invalid timezone")
)

// IsDefinitionError reports whether err means the trigger definition itself is unusable
func IsDefinitionError(err error) bool {
	return errors.Is(err, ErrInvalidCronSyntax) ||
		errors.Is(err, ErrInvalidCronRange) ||
		errors.Is(err, ErrInvalidIntervalSyntax) ||
		errors.Is(err, ErrNonPositiveInterval) ||
		errors.Is(err, ErrNoUpcomingRun) ||
		errors.Is(err, ErrUnknownTriggerKind) ||
		errors.Is(err, ErrInvalidTimezone)
}
