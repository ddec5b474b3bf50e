package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/studio-scheduler/internal/datemath"
	"github.com/example/studio-scheduler/internal/persistence"
)

var (
	companyCounter  uint64
	profileCounter  uint64
	templateCounter uint64
	eventCounter    uint64
)

var zone = time.FixedZone("BRT", -3*60*60)

// referenceTime is a Wednesday morning in Zone, shortly before opening slots.
var referenceTime = time.Date(2026, time.January, 14, 9, 50, 0, 0, zone)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// Zone returns the fixed UTC-3 location fixtures are expressed in.
func Zone() *time.Location {
	return zone
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

// ----------------------------- Company fixtures -----------------------------

// CompanyOption configures the generated company.
type CompanyOption func(*persistence.Company)

// NewCompany returns a company open 08:00-18:00 with 30 minute appointments.
func NewCompany(opts ...CompanyOption) persistence.Company {
	idx := atomic.AddUint64(&companyCounter, 1)
	company := persistence.Company{
		ID:                         fmt.Sprintf("company-%03d", idx),
		Name:                       fmt.Sprintf("Studio %03d", idx),
		OpenTime:                   "08:00",
		CloseTime:                  "18:00",
		DefaultAppointmentDuration: 30,
	}
	for _, opt := range opts {
		opt(&company)
	}
	return company
}

// WithCompanyID overrides the generated company ID.
func WithCompanyID(id string) CompanyOption {
	return func(c *persistence.Company) {
		c.ID = id
	}
}

// WithBusinessHours overrides the opening and closing clocks.
func WithBusinessHours(open, close string) CompanyOption {
	return func(c *persistence.Company) {
		c.OpenTime = open
		c.CloseTime = close
	}
}

// WithAppointmentDuration overrides the default appointment length in minutes.
func WithAppointmentDuration(minutes int) CompanyOption {
	return func(c *persistence.Company) {
		c.DefaultAppointmentDuration = minutes
	}
}

// ----------------------------- Profile fixtures -----------------------------

// ProfileOption configures the generated profile.
type ProfileOption func(*persistence.Profile)

func newProfile(company string, role persistence.Role, opts []ProfileOption) persistence.Profile {
	idx := atomic.AddUint64(&profileCounter, 1)
	profile := persistence.Profile{
		ID:      fmt.Sprintf("profile-%03d", idx),
		User:    fmt.Sprintf("user-%03d", idx),
		Company: company,
		Role:    role,
		Name:    fmt.Sprintf("Profile %03d", idx),
	}
	for _, opt := range opts {
		opt(&profile)
	}
	return profile
}

// NewClient returns a client profile of company with no credit balance.
func NewClient(company string, opts ...ProfileOption) persistence.Profile {
	return newProfile(company, persistence.RoleClient, opts)
}

// NewProfessional returns a professional profile of company.
func NewProfessional(company string, opts ...ProfileOption) persistence.Profile {
	return newProfile(company, persistence.RoleProfessional, opts)
}

// WithProfileID overrides the generated profile ID.
func WithProfileID(id string) ProfileOption {
	return func(p *persistence.Profile) {
		p.ID = id
	}
}

// WithProfileName overrides the generated display name.
func WithProfileName(name string) ProfileOption {
	return func(p *persistence.Profile) {
		p.Name = name
	}
}

// WithCredits sets the class credit balance.
func WithCredits(n int) ProfileOption {
	return func(p *persistence.Profile) {
		p.ClassCredits = IntPtr(n)
	}
}

// ----------------------------- Template fixtures -----------------------------

// TemplateOption configures the generated class template.
type TemplateOption func(*persistence.ClassTemplate)

// NewTemplate returns a weekly template of company for the given weekday
// (0 Sunday .. 6 Saturday) at 18:00 lasting an hour.
func NewTemplate(company string, weekday time.Weekday, opts ...TemplateOption) persistence.ClassTemplate {
	idx := atomic.AddUint64(&templateCounter, 1)
	tmpl := persistence.ClassTemplate{
		ID:       fmt.Sprintf("template-%03d", idx),
		Company:  company,
		Day:      IntPtr(int(weekday)),
		Time:     "18:00",
		Duration: 60,
	}
	for _, opt := range opts {
		opt(&tmpl)
	}
	return tmpl
}

// WithTemplateID overrides the generated template ID.
func WithTemplateID(id string) TemplateOption {
	return func(t *persistence.ClassTemplate) {
		t.ID = id
	}
}

// WithTemplateClock overrides the start clock ("HH:MM").
func WithTemplateClock(clock string) TemplateOption {
	return func(t *persistence.ClassTemplate) {
		t.Time = clock
	}
}

// WithTemplateClients sets the enrolled client ids.
func WithTemplateClients(ids ...string) TemplateOption {
	return func(t *persistence.ClassTemplate) {
		t.Client = persistence.IDList(ids)
	}
}

// WithTemplateProfessionals sets the instructor ids.
func WithTemplateProfessionals(ids ...string) TemplateOption {
	return func(t *persistence.ClassTemplate) {
		t.Professional = persistence.IDList(ids)
	}
}

// ----------------------------- Event fixtures -----------------------------

// EventOption configures the generated event.
type EventOption func(*persistence.Event)

// NewEvent returns an event of company starting at start in Zone.
func NewEvent(company string, typ persistence.EventType, start time.Time, duration int, opts ...EventOption) persistence.Event {
	idx := atomic.AddUint64(&eventCounter, 1)
	ev := persistence.Event{
		ID:       fmt.Sprintf("event-%03d", idx),
		Type:     typ,
		Datetime: datemath.Format(start.In(zone)),
		Duration: duration,
		Company:  company,
	}
	for _, opt := range opts {
		opt(&ev)
	}
	return ev
}

// WithEventID overrides the generated event ID.
func WithEventID(id string) EventOption {
	return func(e *persistence.Event) {
		e.ID = id
	}
}

// WithEventClients sets the event's client ids.
func WithEventClients(ids ...string) EventOption {
	return func(e *persistence.Event) {
		e.Client = ids
	}
}

// WithEventProfessionals sets the event's professional ids.
func WithEventProfessionals(ids ...string) EventOption {
	return func(e *persistence.Event) {
		e.Professional = ids
	}
}
