package trigger

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SearchHorizon bounds the forward search for a matching cron minute.
// Five years always contains a Feb 29.
const SearchHorizon = 5 * 365 * 24 * time.Hour

type bounds struct {
	name     string
	min, max int
	names    map[string]int
}

var (
	minuteBounds = bounds{name: "minute", min: 0, max: 59}
	hourBounds   = bounds{name: "hour", min: 0, max: 23}
	domBounds    = bounds{name: "day-of-month", min: 1, max: 31}
	monthBounds  = bounds{name: "month", min: 1, max: 12, names: map[string]int{
		"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
		"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
	}}
	// 7 is accepted as an alias for Sunday and folded into 0
	dowBounds = bounds{name: "day-of-week", min: 0, max: 7, names: map[string]int{
		"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
	}}
)

var macros = map[string]string{
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
	"@monthly":  "0 0 1 * *",
	"@weekly":   "0 0 * * 0",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@hourly":   "0 * * * *",
}

// ParsedCron holds the accepted values of each field as bitsets
type ParsedCron struct {
	Expression string

	minute, hour, dom, month, dow uint64
	// a field written as a bare "*" places no restriction on the day
	domAny, dowAny bool
}

// Parse parses a standard five-field cron expression or one of the @-macros
func Parse(expr string) (*ParsedCron, error) {
	spec := strings.TrimSpace(expr)
	if spec == "" {
		return nil, fmt.Errorf("empty expression: %w", ErrInvalidCronSyntax)
	}
	if strings.HasPrefix(spec, "@") {
		expanded, ok := macros[strings.ToLower(spec)]
		if !ok {
			return nil, fmt.Errorf("unknown descriptor %q: %w", spec, ErrInvalidCronSyntax)
		}
		spec = expanded
	}

	fields := strings.Fields(spec)
	if len(fields) != 5 {
		return nil, fmt.Errorf("expected 5 fields, found %d in %q: %w", len(fields), expr, ErrInvalidCronSyntax)
	}

	c := &ParsedCron{Expression: strings.TrimSpace(expr)}
	var err error
	if c.minute, _, err = parseField(fields[0], minuteBounds); err != nil {
		return nil, err
	}
	if c.hour, _, err = parseField(fields[1], hourBounds); err != nil {
		return nil, err
	}
	if c.dom, c.domAny, err = parseField(fields[2], domBounds); err != nil {
		return nil, err
	}
	if c.month, _, err = parseField(fields[3], monthBounds); err != nil {
		return nil, err
	}
	if c.dow, c.dowAny, err = parseField(fields[4], dowBounds); err != nil {
		return nil, err
	}
	if c.dow&(1<<7) != 0 {
		c.dow = c.dow&^(1<<7) | 1
	}
	return c, nil
}

// Validate reports whether expr parses
func Validate(expr string) bool {
	_, err := Parse(expr)
	return err == nil
}

// parseField returns the bitset for a comma separated field and whether it was a bare wildcard
func parseField(field string, b bounds) (uint64, bool, error) {
	var bits uint64
	wild := false
	for _, part := range strings.Split(field, ",") {
		if part == "" {
			return 0, false, fmt.Errorf("%s: empty list element in %q: %w", b.name, field, ErrInvalidCronSyntax)
		}
		r, wildcard, err := parseRange(part, b)
		if err != nil {
			return 0, false, err
		}
		bits |= r
		wild = wild || wildcard
	}
	return bits, wild, nil
}

func parseRange(part string, b bounds) (uint64, bool, error) {
	rangeAndStep := strings.Split(part, "/")
	if len(rangeAndStep) > 2 {
		return 0, false, fmt.Errorf("%s: too many slashes in %q: %w", b.name, part, ErrInvalidCronSyntax)
	}

	var start, end int
	wildcard := false
	lowAndHigh := strings.Split(rangeAndStep[0], "-")
	switch {
	case rangeAndStep[0] == "*" || rangeAndStep[0] == "?":
		start, end = b.min, b.max
		if b.name == dowBounds.name {
			end = 6
		}
		wildcard = true
	case len(lowAndHigh) == 1:
		v, err := parseValue(lowAndHigh[0], b)
		if err != nil {
			return 0, false, err
		}
		start, end = v, v
	case len(lowAndHigh) == 2:
		lo, err := parseValue(lowAndHigh[0], b)
		if err != nil {
			return 0, false, err
		}
		hi, err := parseValue(lowAndHigh[1], b)
		if err != nil {
			return 0, false, err
		}
		if lo > hi {
			return 0, false, fmt.Errorf("%s: range %q is reversed: %w", b.name, part, ErrInvalidCronRange)
		}
		start, end = lo, hi
	default:
		return 0, false, fmt.Errorf("%s: malformed range %q: %w", b.name, part, ErrInvalidCronSyntax)
	}

	step := 1
	if len(rangeAndStep) == 2 {
		s, err := strconv.Atoi(rangeAndStep[1])
		if err != nil {
			return 0, false, fmt.Errorf("%s: bad step in %q: %w", b.name, part, ErrInvalidCronSyntax)
		}
		if s <= 0 {
			return 0, false, fmt.Errorf("%s: step must be positive in %q: %w", b.name, part, ErrInvalidCronRange)
		}
		step = s
		// "n/s" means from n to the end of the field
		if len(lowAndHigh) == 1 && !wildcard {
			end = b.max
			if b.name == dowBounds.name {
				end = 6
			}
		}
		if step > 1 {
			wildcard = false
		}
	}

	var bits uint64
	for v := start; v <= end; v += step {
		bits |= 1 << uint(v)
	}
	return bits, wildcard, nil
}

func parseValue(s string, b bounds) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("%s: missing value: %w", b.name, ErrInvalidCronSyntax)
	}
	if v, ok := b.names[strings.ToLower(s)]; ok {
		return v, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number: %w", b.name, s, ErrInvalidCronSyntax)
	}
	if v < b.min || v > b.max {
		return 0, fmt.Errorf("%s: %d outside %d-%d: %w", b.name, v, b.min, b.max, ErrInvalidCronRange)
	}
	return v, nil
}

func has(bits uint64, v int) bool {
	return bits&(1<<uint(v)) != 0
}

func (c *ParsedCron) dayMatches(t time.Time) bool {
	domMatch := has(c.dom, t.Day())
	dowMatch := has(c.dow, int(t.Weekday()))
	if c.domAny || c.dowAny {
		return domMatch && dowMatch
	}
	return domMatch || dowMatch
}

// Matches reports whether the wall-clock minute of t satisfies every field
func (c *ParsedCron) Matches(t time.Time) bool {
	return has(c.month, int(t.Month())) &&
		c.dayMatches(t) &&
		has(c.hour, t.Hour()) &&
		has(c.minute, t.Minute())
}

// Next returns the first minute strictly after from, evaluated in loc, that matches.
// The walk advances one minute at a time and jumps over whole months, days and
// hours that cannot match.
func (c *ParsedCron) Next(from time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	limit := from.Add(SearchHorizon)
	t := from.In(loc).Truncate(time.Minute).Add(time.Minute)

	for !t.After(limit) {
		var next time.Time
		switch {
		case !has(c.month, int(t.Month())):
			next = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
		case !c.dayMatches(t):
			next = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
		case !has(c.hour, t.Hour()):
			next = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc)
		case !has(c.minute, t.Minute()):
			next = t.Add(time.Minute)
		default:
			return t, nil
		}
		// wall-clock jumps can land on or before t around DST transitions
		if !next.After(t) {
			next = t.Add(time.Minute)
		}
		t = next
	}
	return time.Time{}, fmt.Errorf("%q after %s: %w", c.Expression, from.UTC().Format(time.RFC3339), ErrNoUpcomingRun)
}
