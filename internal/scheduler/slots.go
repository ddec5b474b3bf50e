// Package scheduler computes bookable appointment slots from business hours
// and existing bookings.
package scheduler

import (
	"time"

	"github.com/example/studio-scheduler/internal/datemath"
	"github.com/example/studio-scheduler/internal/persistence"
)

const (
	// DefaultHorizonDays bounds the scan when Query.HorizonDays is unset.
	DefaultHorizonDays = 14
	// MaxHorizonDays is the largest accepted scan window.
	MaxHorizonDays = 31
	// DefaultMaxResults applies when Query.MaxResults is not positive.
	DefaultMaxResults = 50
	// fallbackDuration is used when neither the query nor the company set one.
	fallbackDuration = 30
)

// ProfessionalRef identifies the professional offered for a slot.
type ProfessionalRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Slot is a bookable start time for one professional.
type Slot struct {
	Start        time.Time       `json:"start"`
	Professional ProfessionalRef `json:"professional"`
}

// Query describes a slot search. Now's location is the wall-clock zone used
// for business hours and for naive event datetimes.
type Query struct {
	Now            time.Time
	Company        persistence.Company
	Events         []persistence.Event
	Professionals  []persistence.Profile
	MaxResults     int
	ProfessionalID string
	// Duration is the appointment length in minutes. Zero uses the company
	// default.
	Duration    int
	HorizonDays int
}

// ComputeAppointmentSlots lists free (start, professional) pairs in
// chronological order, professionals in input order within a start time,
// stopping after MaxResults slots or the scan horizon.
func ComputeAppointmentSlots(q Query) []Slot {
	slots := make([]Slot, 0)

	professionals := filterProfessionals(q.Professionals, q.ProfessionalID)
	if len(professionals) == 0 {
		return slots
	}

	openMinutes, okOpen := datemath.ClockMinutes(q.Company.OpenTime)
	closeMinutes, okClose := datemath.ClockMinutes(q.Company.CloseTime)
	if !okOpen || !okClose || openMinutes >= closeMinutes {
		return slots
	}

	boundary := q.Company.DefaultAppointmentDuration
	if boundary <= 0 {
		boundary = fallbackDuration
	}
	duration := q.Duration
	if duration <= 0 {
		duration = boundary
	}
	length := time.Duration(duration) * time.Minute

	limit := q.MaxResults
	if limit <= 0 {
		limit = DefaultMaxResults
	}
	horizon := q.HorizonDays
	if horizon <= 0 {
		horizon = DefaultHorizonDays
	}
	if horizon > MaxHorizonDays {
		horizon = MaxHorizonDays
	}

	now := q.Now
	loc := now.Location()
	roundedNow := roundUp(now, boundary)
	busy := indexBookings(q.Company.ID, q.Events, loc)
	today := datemath.StartOfDay(now)

	for offset := 0; offset < horizon; offset++ {
		day := today.AddDate(0, 0, offset)
		start := datemath.AtClock(day, openMinutes)
		if start.Before(roundedNow) {
			start = roundedNow
		}
		end := datemath.AtClock(day, closeMinutes)

		for candidate := start; !candidate.Add(length).After(end); candidate = candidate.Add(length) {
			window := Interval{Start: candidate, End: candidate.Add(length)}
			for _, professional := range professionals {
				if busy.Conflicts(professional.ID, window) {
					continue
				}
				slots = append(slots, Slot{
					Start:        candidate,
					Professional: ProfessionalRef{ID: professional.ID, Name: professional.Name},
				})
				if len(slots) >= limit {
					return slots
				}
			}
		}
	}

	return slots
}

func filterProfessionals(all []persistence.Profile, id string) []persistence.Profile {
	if id == "" {
		return all
	}
	for _, p := range all {
		if p.ID == id {
			return []persistence.Profile{p}
		}
	}
	return nil
}

// roundUp moves t forward to the next wall-clock boundary that is a multiple
// of step minutes after local midnight. A time already on a boundary is
// returned unchanged.
func roundUp(t time.Time, step int) time.Time {
	minutes := datemath.MinutesOfDay(t)
	if t.Second() != 0 || t.Nanosecond() != 0 {
		minutes++
	}
	if rem := minutes % step; rem != 0 {
		minutes += step - rem
	}
	return datemath.AtClock(t, minutes)
}
