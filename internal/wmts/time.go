package wmts

import (
	"fmt"
	"time"
	_ "time/tzdata" // hosts without /usr/share/zoneinfo still know Pacific/Auckland
)

// TimeFormat is the ISO-8601 layout the provider expects for TIME.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// DisplayFormat is the layout used in the title banner; the zone
// abbreviation reads NZST or NZDT depending on daylight saving.
const DisplayFormat = "2006-01-02 15:04 MST"

// zoneName is where "today" is decided. The maps are for a New Zealand
// audience, so a run at 11:00 NZDT asks for NZ's today even though it is
// still yesterday in UTC.
const zoneName = "Pacific/Auckland"

// TimeStep is the data time of one request.
type TimeStep struct {
	// UTC is the floored request time.
	UTC time.Time

	// Local is the same instant in Pacific/Auckland, for display and for
	// archive paths.
	Local time.Time
}

// Param renders the TIME query parameter.
func (s TimeStep) Param() string {
	return s.UTC.Format(TimeFormat)
}

// Display renders the time for the title banner.
func (s TimeStep) Display() string {
	return s.Local.Format(DisplayFormat)
}

// NewZealand loads the Pacific/Auckland location.
func NewZealand() (*time.Location, error) {
	loc, err := time.LoadLocation(zoneName)
	if err != nil {
		return nil, fmt.Errorf("load time zone %s: %w", zoneName, err)
	}
	return loc, nil
}

// TimeFor computes the request time: now in New Zealand, moved by
// dayOffset calendar days, converted to UTC and floored to interval.
//
// Because the offset is applied before flooring, offsets 0 and 1 produce
// requests that differ only in TIME.
func TimeFor(now time.Time, dayOffset int, interval time.Duration, loc *time.Location) TimeStep {
	target := now.In(loc).AddDate(0, 0, dayOffset)
	floored := floorUTC(target.UTC(), interval)
	return TimeStep{UTC: floored, Local: floored.In(loc)}
}

// floorUTC floors t to a multiple of interval counted from UTC midnight.
func floorUTC(t time.Time, interval time.Duration) time.Time {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	elapsed := t.Sub(midnight)
	return midnight.Add(elapsed - elapsed%interval)
}
