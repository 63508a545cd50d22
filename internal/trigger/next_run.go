package trigger

import (
	"errors"
	"fmt"
	"time"

	"kairos/internal/domain"
)

// Trigger is the part of a schedule that decides when it fires
type Trigger struct {
	Kind       domain.TriggerKind
	Expression string
}

// Of extracts the trigger of a schedule
func Of(job *domain.ScheduledJob) Trigger {
	return Trigger{Kind: job.TriggerKind, Expression: job.TriggerExpression}
}

// LoadLocation resolves an IANA timezone name, treating "" as UTC
func LoadLocation(timezone string) (*time.Location, error) {
	if timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("%q: %v: %w", timezone, err, ErrInvalidTimezone)
	}
	return loc, nil
}

// CalculateNextRun returns the first fire time strictly after from.
// Cron triggers are evaluated on the wall clock of timezone; intervals ignore it.
func CalculateNextRun(t Trigger, from time.Time, timezone string) (time.Time, error) {
	switch t.Kind {
	case domain.TriggerKindCron:
		c, err := Parse(t.Expression)
		if err != nil {
			return time.Time{}, err
		}
		loc, err := LoadLocation(timezone)
		if err != nil {
			return time.Time{}, err
		}
		return c.Next(from, loc)
	case domain.TriggerKindInterval:
		d, err := ParseInterval(t.Expression)
		if err != nil {
			return time.Time{}, err
		}
		return from.Add(d), nil
	default:
		return time.Time{}, fmt.Errorf("%q: %w", t.Kind, ErrUnknownTriggerKind)
	}
}

// RecalculateNextRun computes the fire time that follows a finished run.
// skip schedules measure from completion; queue and allow-overlap schedules
// keep their cadence by measuring from the run's scheduled time.
func RecalculateNextRun(job *domain.ScheduledJob, run *domain.ScheduledJobRun, completedAt time.Time) (time.Time, error) {
	from := completedAt
	if job.ConcurrencyPolicy.FixedCadence() && run != nil && run.ScheduledFor > 0 {
		from = time.UnixMilli(run.ScheduledFor)
	}
	return CalculateNextRun(Of(job), from, job.Timezone)
}

// NextOnCadence returns the first fire time on anchor's cadence that is strictly after now.
// Firings missed between anchor and now are dropped rather than replayed.
func NextOnCadence(t Trigger, anchor, now time.Time, timezone string) (time.Time, error) {
	next, err := CalculateNextRun(t, anchor, timezone)
	if err != nil {
		return time.Time{}, err
	}
	if next.After(now) {
		return next, nil
	}

	switch t.Kind {
	case domain.TriggerKindInterval:
		d, err := ParseInterval(t.Expression)
		if err != nil {
			return time.Time{}, err
		}
		steps := now.Sub(anchor)/d + 1
		return anchor.Add(steps * d), nil
	default:
		return CalculateNextRun(t, now, timezone)
	}
}

// Upcoming lists the next n fire times after from
func Upcoming(t Trigger, from time.Time, timezone string, n int) ([]time.Time, error) {
	out := make([]time.Time, 0, n)
	cursor := from
	for i := 0; i < n; i++ {
		next, err := CalculateNextRun(t, cursor, timezone)
		if err != nil {
			if i > 0 && errors.Is(err, ErrNoUpcomingRun) {
				break
			}
			return nil, err
		}
		out = append(out, next)
		cursor = next
	}
	return out, nil
}

// ValidateTrigger checks a definition the way schedule creation needs:
// the expression must parse, the timezone must load and at least one fire time must exist.
func ValidateTrigger(t Trigger, timezone string, now time.Time) error {
	if !t.Kind.Valid() {
		return fmt.Errorf("%q: %w", t.Kind, ErrUnknownTriggerKind)
	}
	if _, err := LoadLocation(timezone); err != nil {
		return err
	}
	_, err := CalculateNextRun(t, now, timezone)
	return err
}
