package trigger

import (
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want error
	}{
		{"empty", "", ErrInvalidCronSyntax},
		{"too few fields", "* * * *", ErrInvalidCronSyntax},
		{"too many fields", "0 * * * * *", ErrInvalidCronSyntax},
		{"letters", "a * * * *", ErrInvalidCronSyntax},
		{"bad step", "*/x * * * *", ErrInvalidCronSyntax},
		{"empty list element", "1,,2 * * * *", ErrInvalidCronSyntax},
		{"unknown macro", "@fortnightly", ErrInvalidCronSyntax},
		{"minute out of range", "60 * * * *", ErrInvalidCronRange},
		{"hour out of range", "0 24 * * *", ErrInvalidCronRange},
		{"dom zero", "0 0 0 * *", ErrInvalidCronRange},
		{"month 13", "0 0 1 13 *", ErrInvalidCronRange},
		{"dow 8", "0 0 * * 8", ErrInvalidCronRange},
		{"reversed range", "30-10 * * * *", ErrInvalidCronRange},
		{"zero step", "*/0 * * * *", ErrInvalidCronRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.expr)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, Validate(tt.expr))
		})
	}
}

func TestParseAccepts(t *testing.T) {
	for _, expr := range []string{
		"* * * * *",
		"*/5 * * * *",
		"0 9-17 * * 1-5",
		"15,45 */2 1,15 * *",
		"5/15 * * * *",
		"0 0 * * 7",
		"0 12 * JAN-MAR mon,wed",
		"@hourly",
		"@DAILY",
		"@yearly",
	} {
		assert.True(t, Validate(expr), expr)
	}
}

func TestSundayAlias(t *testing.T) {
	a, err := Parse("0 0 * * 7")
	require.NoError(t, err)
	b, err := Parse("0 0 * * 0")
	require.NoError(t, err)
	assert.Equal(t, b.dow, a.dow)
}

func TestNextRunBasics(t *testing.T) {
	from := time.Date(2025, 3, 14, 10, 7, 30, 0, time.UTC)
	tests := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2025, 3, 14, 10, 8, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2025, 3, 14, 10, 15, 0, 0, time.UTC)},
		{"0 * * * *", time.Date(2025, 3, 14, 11, 0, 0, 0, time.UTC)},
		{"30 9 * * *", time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)},
		{"0 0 1 * *", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"0 0 * * 1", time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)},
		{"0 0 29 2 *", time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC)},
		{"@yearly", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			c, err := Parse(tt.expr)
			require.NoError(t, err)
			got, err := c.Next(from, time.UTC)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.UTC())
		})
	}
}

func TestNextRunStrictlyAfterMatchingMinute(t *testing.T) {
	c, err := Parse("0 * * * *")
	require.NoError(t, err)
	from := time.Date(2025, 1, 1, 5, 0, 0, 0, time.UTC)
	got, err := c.Next(from, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, from.Add(time.Hour), got)
}

func TestDomDowOrSemantics(t *testing.T) {
	// the 13th or any Friday
	c, err := Parse("0 0 13 * 5")
	require.NoError(t, err)
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) // Sunday
	got, err := c.Next(from, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 6, 0, 0, 0, 0, time.UTC), got) // Friday 6th

	got, err = c.Next(time.Date(2025, 6, 12, 1, 0, 0, 0, time.UTC), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC), got)

	// restricted dom with wildcard dow is a plain AND
	c, err = Parse("0 0 13 * *")
	require.NoError(t, err)
	got, err = c.Next(from, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC), got)
}

func TestNoUpcomingRun(t *testing.T) {
	c, err := Parse("0 0 31 2 *")
	require.NoError(t, err)
	_, err = c.Next(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.UTC)
	assert.ErrorIs(t, err, ErrNoUpcomingRun)
}

func TestNextRunInTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	c, err := Parse("0 9 * * *")
	require.NoError(t, err)

	from := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC) // 08:00 EDT
	got, err := c.Next(from, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 7, 1, 13, 0, 0, 0, time.UTC), got.UTC())
}

func TestNextRunAcrossSpringForward(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// 02:30 does not exist on 2025-03-09
	c, err := Parse("30 2 * * *")
	require.NoError(t, err)

	from := time.Date(2025, 3, 8, 12, 0, 0, 0, loc)
	got, err := c.Next(from, loc)
	require.NoError(t, err)
	want := time.Date(2025, 3, 10, 2, 30, 0, 0, loc)
	assert.True(t, want.Equal(got), "want %s got %s", want, got)
}

func TestNextRunStrictlyIncreasing(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	for _, expr := range []string{
		"* * * * *",
		"*/7 * * * *",
		"0 2 * * *",
		"30 1-3 * * 0",
		"0 0 1,15 * *",
		"0 0 * * 1-5",
		"59 23 31 12 *",
		"0 0 29 2 *",
	} {
		t.Run(expr, func(t *testing.T) {
			c, err := Parse(expr)
			require.NoError(t, err)
			cursor := time.Date(2025, 3, 29, 22, 0, 0, 0, time.UTC)
			for i := 0; i < 50; i++ {
				next, err := c.Next(cursor, loc)
				require.NoError(t, err)
				require.True(t, next.After(cursor), "next %s not after %s", next, cursor)
				require.True(t, c.Matches(next.In(loc)))
				cursor = next
			}
		})
	}
}

// cross-check against robfig/cron's standard parser on expressions both accept
func TestNextRunMatchesRobfig(t *testing.T) {
	exprs := []string{
		"* * * * *",
		"*/5 * * * *",
		"0 9-17 * * 1-5",
		"15,45 */2 1,15 * *",
		"0 0 13 * 5",
		"0 12 * 1-3 1,3",
		"0 0 1 1 *",
		"5 4 * * 0",
	}
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	for _, expr := range exprs {
		t.Run(expr, func(t *testing.T) {
			ours, err := Parse(expr)
			require.NoError(t, err)
			theirs, err := cron.ParseStandard(expr)
			require.NoError(t, err)

			cursor := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
			for i := 0; i < 25; i++ {
				got, err := ours.Next(cursor, loc)
				require.NoError(t, err)
				want := theirs.Next(cursor.In(loc))
				require.True(t, want.Equal(got), "%s: want %s got %s", expr, want, got)
				cursor = got
			}
		})
	}
}
