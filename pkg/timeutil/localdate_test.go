package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayRangeGroupsLateEveningWithNextUTCDay(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*60*60)

	// 23:50 local on the 10th is 02:50 UTC on the 11th.
	lateEvening := time.Date(2024, 6, 10, 23, 50, 0, 0, loc)
	// 00:10 local on the 10th is 03:10 UTC on the 10th.
	earlyMorning := time.Date(2024, 6, 10, 0, 10, 0, 0, loc)

	require.NotEqual(t, lateEvening.UTC().Day(), earlyMorning.UTC().Day())

	startA, endA := DayRange(lateEvening, loc)
	startB, endB := DayRange(earlyMorning, loc)

	assert.True(t, startA.Equal(startB))
	assert.True(t, endA.Equal(endB))
	assert.Equal(t, "2024-06-10", DateString(lateEvening, loc))
	assert.Equal(t, "2024-06-10", DateString(earlyMorning, loc))
}

func TestDayRangeBoundsAreHalfOpen(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*60*60)
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, loc)

	start, end := DayRange(now, loc)

	assert.Equal(t, time.Date(2024, 6, 10, 3, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 6, 11, 3, 0, 0, 0, time.UTC), end)
	assert.Equal(t, 24*time.Hour, end.Sub(start))
}

func TestResolveLocationPriority(t *testing.T) {
	loc := ResolveLocation("America/New_York", "America/Santiago")
	assert.Equal(t, "America/New_York", loc.String())

	loc = ResolveLocation("", "America/New_York")
	assert.Equal(t, "America/New_York", loc.String())

	loc = ResolveLocation("Not/AZone", "Also/Bogus")
	assert.Equal(t, DefaultTimezone, loc.String())
}

func TestAtClock(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*60*60)
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, loc)

	at, err := AtClock(day, "08:30", loc)
	require.NoError(t, err)
	assert.Equal(t, 8, at.Hour())
	assert.Equal(t, 30, at.Minute())

	at, err = AtClock(day, "16:00:00", loc)
	require.NoError(t, err)
	assert.Equal(t, 16, at.Hour())

	_, err = AtClock(day, "late", loc)
	assert.Error(t, err)
}
