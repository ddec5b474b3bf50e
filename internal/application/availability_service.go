package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/studio-scheduler/internal/datemath"
	"github.com/example/studio-scheduler/internal/persistence"
	"github.com/example/studio-scheduler/internal/scheduler"
)

// bookingLookbackDays widens the event query so long bookings that started
// before today still block today's candidates.
const bookingLookbackDays = 31

// CompanyDirectory resolves companies by id.
type CompanyDirectory interface {
	GetCompany(ctx context.Context, id string) (persistence.Company, error)
}

// ProfessionalDirectory lists a company's professionals.
type ProfessionalDirectory interface {
	ListProfessionals(ctx context.Context, companyID string) ([]persistence.Profile, error)
}

// BookingSource lists events that may block candidate slots.
type BookingSource interface {
	ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error)
}

// SlotRecorder counts availability searches.
type SlotRecorder interface {
	SlotSearch(results int)
}

// AvailabilityOptions configures slot search defaults.
type AvailabilityOptions struct {
	Location    *time.Location
	HorizonDays int
	MaxResults  int
	Recorder    SlotRecorder
}

// SlotQuery captures caller provided search parameters. Zero values use the
// company and service defaults.
type SlotQuery struct {
	Company        string
	ProfessionalID string
	Duration       int
	Limit          int
}

// AvailabilityService answers bookable-slot queries from stored companies,
// professionals and events.
type AvailabilityService struct {
	companies     CompanyDirectory
	professionals ProfessionalDirectory
	bookings      BookingSource
	opts          AvailabilityOptions
	now           func() time.Time
	logger        *slog.Logger
}

// NewAvailabilityService constructs an availability service.
func NewAvailabilityService(companies CompanyDirectory, professionals ProfessionalDirectory, bookings BookingSource, opts AvailabilityOptions, now func() time.Time) *AvailabilityService {
	return NewAvailabilityServiceWithLogger(companies, professionals, bookings, opts, now, nil)
}

// NewAvailabilityServiceWithLogger constructs an availability service with a specified logger.
func NewAvailabilityServiceWithLogger(companies CompanyDirectory, professionals ProfessionalDirectory, bookings BookingSource, opts AvailabilityOptions, now func() time.Time, logger *slog.Logger) *AvailabilityService {
	if now == nil {
		now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = scheduler.DefaultHorizonDays
	}
	if opts.HorizonDays > scheduler.MaxHorizonDays {
		opts.HorizonDays = scheduler.MaxHorizonDays
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = scheduler.DefaultMaxResults
	}
	return &AvailabilityService{
		companies:     companies,
		professionals: professionals,
		bookings:      bookings,
		opts:          opts,
		now:           now,
		logger:        defaultLogger(logger),
	}
}

func (s *AvailabilityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AvailabilityService", operation, attrs...)
}

// FindSlots lists open appointment start times from now on.
func (s *AvailabilityService) FindSlots(ctx context.Context, query SlotQuery) (slots []scheduler.Slot, err error) {
	if s == nil {
		err = fmt.Errorf("AvailabilityService is nil")
		return
	}
	if s.companies == nil || s.professionals == nil || s.bookings == nil {
		err = fmt.Errorf("availability repositories not configured")
		return
	}

	logger := s.loggerWith(ctx, "FindSlots",
		"company", query.Company,
		"professional_id", query.ProfessionalID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to find slots", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(slots)).DebugContext(ctx, "slots found")
	}()

	if vErr := validateSlotQuery(query); vErr.HasErrors() {
		err = vErr
		return
	}
	companyID := strings.TrimSpace(query.Company)

	var company persistence.Company
	company, err = s.companies.GetCompany(ctx, companyID)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	var professionals []persistence.Profile
	professionals, err = s.professionals.ListProfessionals(ctx, companyID)
	if err != nil {
		err = fmt.Errorf("list professionals: %w", mapRepoError(err))
		return
	}

	now := s.now().In(s.opts.Location)
	today := datemath.StartOfDay(now)
	var events []persistence.Event
	events, err = s.bookings.ListEvents(ctx, persistence.EventFilter{
		CompanyID: companyID,
		From:      today.AddDate(0, 0, -bookingLookbackDays),
		To:        today.AddDate(0, 0, s.opts.HorizonDays+1),
	})
	if err != nil {
		err = fmt.Errorf("list bookings: %w", mapRepoError(err))
		return
	}

	limit := query.Limit
	if limit <= 0 || limit > s.opts.MaxResults {
		limit = s.opts.MaxResults
	}

	slots = scheduler.ComputeAppointmentSlots(scheduler.Query{
		Now:            now,
		Company:        company,
		Events:         events,
		Professionals:  professionals,
		MaxResults:     limit,
		ProfessionalID: strings.TrimSpace(query.ProfessionalID),
		Duration:       query.Duration,
		HorizonDays:    s.opts.HorizonDays,
	})

	if s.opts.Recorder != nil {
		s.opts.Recorder.SlotSearch(len(slots))
	}
	return
}

func validateSlotQuery(query SlotQuery) *ValidationError {
	vErr := &ValidationError{}

	if strings.TrimSpace(query.Company) == "" {
		vErr.add("company", "company is required")
	}
	if query.Duration < 0 {
		vErr.add("duration", "duration must not be negative")
	}
	if query.Limit < 0 {
		vErr.add("limit", "limit must not be negative")
	}

	return vErr
}
