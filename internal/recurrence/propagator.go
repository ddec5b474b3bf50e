package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/studio-scheduler/internal/datemath"
	"github.com/example/studio-scheduler/internal/persistence"
)

const (
	defaultDuration     = 60
	defaultClockMinutes = 10 * 60
)

// ErrInvalidMonth indicates the requested month is outside 1..12.
var ErrInvalidMonth = errors.New("recurrence: month must be between 1 and 12")

// ErrInvalidYear indicates the requested year is missing.
var ErrInvalidYear = errors.New("recurrence: year must be positive")

// Request describes one month of propagation for a company.
type Request struct {
	Company   string
	Month     int
	Year      int
	Templates []persistence.ClassTemplate
}

// DropReason explains why a template produced no events.
type DropReason string

const (
	DropNoWeekday     DropReason = "no_weekday"
	DropInvalidDay    DropReason = "invalid_day"
	DropInvalidTime   DropReason = "invalid_time"
	DropInvalidSource DropReason = "invalid_datetime"
)

// DroppedTemplate records a template skipped during expansion.
type DroppedTemplate struct {
	TemplateID string     `json:"template_id"`
	Reason     DropReason `json:"reason"`
}

// Result holds the events that should exist for the requested month.
type Result struct {
	Events  []persistence.Event
	Dropped []DroppedTemplate
}

// Propagator expands weekly class templates into dated class events.
type Propagator struct {
	location *time.Location
}

// NewPropagator constructs a Propagator building wall-clock times in loc.
// If loc is nil, the process local zone is used.
func NewPropagator(loc *time.Location) *Propagator {
	if loc == nil {
		loc = time.Local
	}
	return &Propagator{location: loc}
}

// Location returns the zone used for generated datetimes.
func (p *Propagator) Location() *time.Location {
	if p == nil || p.location == nil {
		return time.Local
	}
	return p.location
}

// Propagate emits one class event per template and matching weekday in the
// month, ordered by template input order and then by day. Templates whose
// weekday or clock cannot be resolved are reported in Result.Dropped and do
// not stop the remaining templates. Event ids are left empty for the caller
// to assign.
func (p *Propagator) Propagate(req Request) (Result, error) {
	if req.Month < 1 || req.Month > 12 {
		return Result{}, fmt.Errorf("%w: got %d", ErrInvalidMonth, req.Month)
	}
	if req.Year <= 0 {
		return Result{}, fmt.Errorf("%w: got %d", ErrInvalidYear, req.Year)
	}

	loc := p.Location()
	month := time.Month(req.Month)
	days := datemath.DaysInMonth(req.Year, month)

	result := Result{Events: make([]persistence.Event, 0)}
	for _, tmpl := range req.Templates {
		weekday, minutes, reason := resolveSlot(tmpl, loc)
		if reason != "" {
			result.Dropped = append(result.Dropped, DroppedTemplate{TemplateID: tmpl.ID, Reason: reason})
			continue
		}

		duration := tmpl.Duration
		if duration <= 0 {
			duration = defaultDuration
		}

		for day := 1; day <= days; day++ {
			date := time.Date(req.Year, month, day, 0, 0, 0, 0, loc)
			if date.Weekday() != weekday {
				continue
			}
			start := datemath.AtClock(date, minutes)
			result.Events = append(result.Events, persistence.Event{
				Type:         persistence.EventTypeClass,
				Datetime:     datemath.Format(start),
				Duration:     duration,
				Client:       tmpl.Client.Strings(),
				Professional: tmpl.Professional.Strings(),
				Company:      req.Company,
				Notes:        tmpl.Notes,
				TemplateID:   tmpl.ID,
			})
		}
	}

	return result, nil
}

func resolveSlot(tmpl persistence.ClassTemplate, loc *time.Location) (time.Weekday, int, DropReason) {
	var (
		source    time.Time
		hasSource bool
	)
	if raw := strings.TrimSpace(tmpl.Datetime); raw != "" {
		parsed, ok := datemath.ParseIn(raw, loc)
		if ok {
			source = parsed.In(loc)
			hasSource = true
		}
	}

	var weekday time.Weekday
	switch {
	case tmpl.Day != nil:
		day := *tmpl.Day
		if day < 0 || day > 7 {
			return 0, 0, DropInvalidDay
		}
		weekday = time.Weekday(day % 7)
	case hasSource:
		weekday = source.Weekday()
	case strings.TrimSpace(tmpl.Datetime) != "":
		return 0, 0, DropInvalidSource
	default:
		return 0, 0, DropNoWeekday
	}

	minutes := defaultClockMinutes
	switch {
	case strings.TrimSpace(tmpl.Time) != "":
		clock, ok := datemath.ClockMinutes(tmpl.Time)
		if !ok || clock >= 24*60 {
			return 0, 0, DropInvalidTime
		}
		minutes = clock
	case hasSource:
		minutes = datemath.MinutesOfDay(source)
	}

	return weekday, minutes, ""
}
