package timeutil

import (
	"fmt"
	"time"
)

// DefaultTimezone is used when neither the device nor the tenant supplies one.
const DefaultTimezone = "America/Santiago"

// LoadLocation resolves a timezone name, falling back to the default zone and
// finally UTC when the name is empty or unknown.
func LoadLocation(name string) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	if loc, err := time.LoadLocation(DefaultTimezone); err == nil {
		return loc
	}
	return time.UTC
}

// ResolveLocation picks the effective timezone: device first, then tenant,
// then the default fallback.
func ResolveLocation(deviceTZ, tenantTZ string) *time.Location {
	if deviceTZ != "" {
		if loc, err := time.LoadLocation(deviceTZ); err == nil {
			return loc
		}
	}
	return LoadLocation(tenantTZ)
}

// LocalDate returns the calendar date of t as observed in loc.
func LocalDate(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// DateString formats the local calendar date of t as YYYY-MM-DD.
func DateString(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// DayRange returns the [start, end) UTC instants covering the local calendar
// day that contains t in loc. Range queries against UTC-stored timestamps must
// use these bounds; casting the stored instant to a UTC date misclassifies
// events near midnight in zones behind UTC.
func DayRange(t time.Time, loc *time.Location) (time.Time, time.Time) {
	start := LocalDate(t, loc)
	end := start.AddDate(0, 0, 1)
	return start.UTC(), end.UTC()
}

// AtClock combines a calendar day with an HH:MM clock value in loc.
func AtClock(day time.Time, clock string, loc *time.Location) (time.Time, error) {
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		// Some schedule rows carry seconds.
		parsed, err = time.Parse("15:04:05", clock)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse clock %q: %w", clock, err)
		}
	}
	local := day.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), parsed.Hour(), parsed.Minute(), parsed.Second(), 0, loc), nil
}
