package scheduler

import (
	"time"

	"github.com/example/studio-scheduler/internal/datemath"
	"github.com/example/studio-scheduler/internal/persistence"
)

// Interval is a half-open [Start, End) time window.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the two windows share any instant.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && i.End.After(other.Start)
}

// busyIndex lists the booked windows of each professional.
type busyIndex map[string][]Interval

// indexBookings collects the windows blocked by events of the given company.
// Every event type blocks; events whose datetime cannot be parsed are ignored.
func indexBookings(companyID string, events []persistence.Event, loc *time.Location) busyIndex {
	idx := make(busyIndex)
	for _, ev := range events {
		if ev.Company != companyID || len(ev.Professional) == 0 {
			continue
		}
		start, ok := datemath.ParseIn(ev.Datetime, loc)
		if !ok {
			continue
		}
		window := Interval{Start: start, End: start.Add(time.Duration(ev.Duration) * time.Minute)}
		for _, professionalID := range ev.Professional {
			idx[professionalID] = append(idx[professionalID], window)
		}
	}
	return idx
}

// Conflicts reports whether the professional already has a booking that
// overlaps the candidate window.
func (idx busyIndex) Conflicts(professionalID string, candidate Interval) bool {
	for _, booked := range idx[professionalID] {
		if booked.Overlaps(candidate) {
			return true
		}
	}
	return false
}
