package trigger

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	day  = 24 * time.Hour
	week = 7 * day
)

var intervalUnits = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": day, "day": day, "days": day,
	"w": week, "wk": week, "wks": week, "week": week, "weeks": week,
}

var (
	reGlued = regexp.MustCompile(`^([+-]?\d+)([a-z]+)$`)
	reHHMM  = regexp.MustCompile(`^(\d{1,3}):(\d{2})$`)
)

// ParseInterval parses expressions such as "5 minutes", "every 1 hour 30 minutes",
// "2h, 15m", "90s", "02:30" (hours:minutes) and Go duration strings.
func ParseInterval(expr string) (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(expr))
	s = strings.TrimSpace(strings.TrimPrefix(s, "every"))
	if s == "" {
		return 0, fmt.Errorf("empty interval %q: %w", expr, ErrInvalidIntervalSyntax)
	}

	d, err := parseComponents(s)
	if err != nil {
		if alt, ok := parseFallback(s); ok {
			d, err = alt, nil
		}
	}
	if err != nil {
		return 0, fmt.Errorf("%q: %w", expr, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%q resolves to %s: %w", expr, d, ErrNonPositiveInterval)
	}
	return d, nil
}

func parseComponents(s string) (time.Duration, error) {
	tokens := strings.Fields(strings.ReplaceAll(s, ",", " "))

	// "every minute", "every hour"
	if len(tokens) == 1 {
		if unit, ok := intervalUnits[tokens[0]]; ok && len(tokens[0]) > 1 {
			return unit, nil
		}
	}

	var total time.Duration
	seen := 0
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok == "and" {
			continue
		}

		var (
			magnitude int64
			unitName  string
			err       error
		)
		if m := reGlued.FindStringSubmatch(tok); m != nil {
			magnitude, err = strconv.ParseInt(m[1], 10, 64)
			unitName = m[2]
		} else {
			magnitude, err = strconv.ParseInt(tok, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("unexpected token %q: %w", tok, ErrInvalidIntervalSyntax)
			}
			if i+1 >= len(tokens) {
				return 0, fmt.Errorf("missing unit after %q: %w", tok, ErrInvalidIntervalSyntax)
			}
			i++
			unitName = tokens[i]
		}
		if err != nil {
			return 0, fmt.Errorf("bad magnitude in %q: %w", tok, ErrInvalidIntervalSyntax)
		}

		unit, ok := intervalUnits[unitName]
		if !ok {
			return 0, fmt.Errorf("unknown unit %q: %w", unitName, ErrInvalidIntervalSyntax)
		}
		if magnitude > math.MaxInt64/int64(unit) || magnitude < math.MinInt64/int64(unit) {
			return 0, fmt.Errorf("%d %s overflows: %w", magnitude, unitName, ErrInvalidIntervalSyntax)
		}
		part := time.Duration(magnitude) * unit
		if (part > 0 && total > math.MaxInt64-part) || (part < 0 && total < math.MinInt64-part) {
			return 0, fmt.Errorf("interval overflows: %w", ErrInvalidIntervalSyntax)
		}
		total += part
		seen++
	}
	if seen == 0 {
		return 0, fmt.Errorf("no components: %w", ErrInvalidIntervalSyntax)
	}
	return total, nil
}

func parseFallback(s string) (time.Duration, bool) {
	if m := reHHMM.FindStringSubmatch(s); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return 0, false
		}
		return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, true
	}
	if d, err := time.ParseDuration(strings.ReplaceAll(s, " ", "")); err == nil {
		return d, true
	}
	return 0, false
}

// IntervalToHuman renders d as "1 hour 30 minutes". ParseInterval of the result yields d again.
func IntervalToHuman(d time.Duration) string {
	if d <= 0 {
		return "0 seconds"
	}
	// sub-second precision only survives the Go duration form
	if d%time.Second != 0 {
		return d.String()
	}

	parts := make([]string, 0, 5)
	for _, u := range []struct {
		size time.Duration
		name string
	}{
		{week, "week"},
		{day, "day"},
		{time.Hour, "hour"},
		{time.Minute, "minute"},
		{time.Second, "second"},
	} {
		n := d / u.size
		if n == 0 {
			continue
		}
		d -= n * u.size
		name := u.name
		if n != 1 {
			name += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, name))
	}
	return strings.Join(parts, " ")
}
