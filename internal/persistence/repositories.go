package persistence

import (
	"context"
	"time"
)

// CompanyRepository exposes read and upsert operations for companies.
type CompanyRepository interface {
	GetCompany(ctx context.Context, id string) (Company, error)
	ListCompanies(ctx context.Context) ([]Company, error)
	UpsertCompany(ctx context.Context, company Company) error
}

// ProfileRepository stores client and professional profiles.
type ProfileRepository interface {
	GetProfile(ctx context.Context, id string) (Profile, error)
	UpsertProfile(ctx context.Context, profile Profile) error
	ListProfessionals(ctx context.Context, companyID string) ([]Profile, error)

	// ClassCredits returns the stored balance, nil when the column is null.
	ClassCredits(ctx context.Context, clientID string) (*int, error)
	// SetClassCredits writes next only if the stored balance still equals
	// expected, returning ErrConflict otherwise.
	SetClassCredits(ctx context.Context, clientID string, expected *int, next int) error
}

// TemplateRepository stores weekly class templates.
type TemplateRepository interface {
	ListTemplates(ctx context.Context, companyID string) ([]ClassTemplate, error)
	UpsertTemplate(ctx context.Context, template ClassTemplate) error
}

// EventFilter narrows event queries. Zero bounds are open.
type EventFilter struct {
	CompanyID string
	From      time.Time
	To        time.Time
}

// EventRepository stores concrete calendar events.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, id string) (Event, error)
	// UpdateEvent writes after only while the stored event still matches
	// before, returning ErrConflict otherwise.
	UpdateEvent(ctx context.Context, before, after Event) error
	DeleteEvent(ctx context.Context, id string) error
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
	// EventExistsForTemplate reports whether the template already generated
	// an event for the given calendar date (YYYY-MM-DD), even if that event
	// was later moved.
	EventExistsForTemplate(ctx context.Context, templateID, date string) (bool, error)
}

// InsertResult reports the outcome of an idempotent batch insert.
type InsertResult struct {
	Inserted []Event
	Skipped  []Event
}

// PropagationWriter inserts template-generated events, skipping any event
// whose template already produced an event on the same calendar date.
type PropagationWriter interface {
	InsertPropagated(ctx context.Context, events []Event) (InsertResult, error)
}
