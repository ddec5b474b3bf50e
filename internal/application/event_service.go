package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/studio-scheduler/internal/credits"
	"github.com/example/studio-scheduler/internal/datemath"
	"github.com/example/studio-scheduler/internal/persistence"
)

// EventRepository captures the persistence operations needed by the event service.
type EventRepository interface {
	CreateEvent(ctx context.Context, event persistence.Event) error
	GetEvent(ctx context.Context, id string) (persistence.Event, error)
	UpdateEvent(ctx context.Context, before, after persistence.Event) error
	DeleteEvent(ctx context.Context, id string) error
	ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error)
}

// CreditHooks keeps class credit balances in step with event writes.
type CreditHooks interface {
	OnEventCreate(ctx context.Context, ev persistence.Event) credits.Report
	OnEventUpdate(ctx context.Context, before, after persistence.Event) credits.Report
	OnEventDelete(ctx context.Context, ev persistence.Event) credits.Report
}

// EventInput captures caller provided event fields.
type EventInput struct {
	Type         persistence.EventType
	Datetime     string
	Duration     int
	Client       []string
	Professional []string
	Company      string
	Notes        string
}

// ListEventsParams bounds an event listing. From and To are optional datetimes.
type ListEventsParams struct {
	Company string
	From    string
	To      string
}

// EventService validates and persists events and runs the credit hooks for
// every successful write.
type EventService struct {
	events      EventRepository
	credits     CreditHooks
	location    *time.Location
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewEventService constructs an event service. Naive datetimes are read in loc.
func NewEventService(events EventRepository, hooks CreditHooks, loc *time.Location, idGenerator func() string, now func() time.Time) *EventService {
	return NewEventServiceWithLogger(events, hooks, loc, idGenerator, now, nil)
}

// NewEventServiceWithLogger constructs an event service with a specified logger.
func NewEventServiceWithLogger(events EventRepository, hooks CreditHooks, loc *time.Location, idGenerator func() string, now func() time.Time, logger *slog.Logger) *EventService {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return &EventService{
		events:      events,
		credits:     hooks,
		location:    loc,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *EventService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EventService", operation, attrs...)
}

// CreateEvent validates input, persists a new event and deducts class credits.
func (s *EventService) CreateEvent(ctx context.Context, input EventInput) (event persistence.Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}
	if s.events == nil {
		err = fmt.Errorf("event repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateEvent", "company", input.Company)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("event_id", event.ID).InfoContext(ctx, "event created")
	}()

	event, err = s.buildEvent(input)
	if err != nil {
		return
	}
	event.ID = s.idGenerator()

	if err = s.events.CreateEvent(ctx, event); err != nil {
		err = mapRepoError(err)
		return
	}

	if s.credits != nil {
		s.logCreditFailures(ctx, logger, s.credits.OnEventCreate(ctx, event))
	}
	return
}

// GetEvent returns a stored event.
func (s *EventService) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	if s == nil {
		return persistence.Event{}, fmt.Errorf("EventService is nil")
	}
	if s.events == nil {
		return persistence.Event{}, fmt.Errorf("event repository not configured")
	}
	if strings.TrimSpace(id) == "" {
		return persistence.Event{}, fmt.Errorf("%w: event id is required", ErrInvalidRequest)
	}
	event, err := s.events.GetEvent(ctx, id)
	if err != nil {
		return persistence.Event{}, mapRepoError(err)
	}
	return event, nil
}

// UpdateEvent replaces the mutable fields of an event and applies the credit
// difference between the stored and the new version. If another writer
// changed the event after it was read, nothing is written or charged and
// ErrConflict is returned.
func (s *EventService) UpdateEvent(ctx context.Context, id string, input EventInput) (event persistence.Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}
	if s.events == nil {
		err = fmt.Errorf("event repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateEvent", "event_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event updated")
	}()

	if strings.TrimSpace(id) == "" {
		err = fmt.Errorf("%w: event id is required", ErrInvalidRequest)
		return
	}

	var existing persistence.Event
	existing, err = s.events.GetEvent(ctx, id)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	event, err = s.buildEvent(input)
	if err != nil {
		return
	}
	event.ID = existing.ID
	event.TemplateID = existing.TemplateID

	if err = s.events.UpdateEvent(ctx, existing, event); err != nil {
		err = mapRepoError(err)
		return
	}

	if s.credits != nil {
		s.logCreditFailures(ctx, logger, s.credits.OnEventUpdate(ctx, existing, event))
	}
	return
}

// DeleteEvent removes an event and refunds its class credits.
func (s *EventService) DeleteEvent(ctx context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("EventService is nil")
	}
	if s.events == nil {
		return fmt.Errorf("event repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteEvent", "event_id", id)

	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: event id is required", ErrInvalidRequest)
	}

	existing, err := s.events.GetEvent(ctx, id)
	if err == nil {
		err = s.events.DeleteEvent(ctx, id)
	}
	if err != nil {
		err = mapRepoError(err)
		logger.ErrorContext(ctx, "failed to delete event", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	if s.credits != nil {
		s.logCreditFailures(ctx, logger, s.credits.OnEventDelete(ctx, existing))
	}
	logger.InfoContext(ctx, "event deleted")
	return nil
}

// ListEvents returns a company's events ordered by start time.
func (s *EventService) ListEvents(ctx context.Context, params ListEventsParams) (events []persistence.Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}
	if s.events == nil {
		return nil, nil
	}

	logger := s.loggerWith(ctx, "ListEvents", "company", params.Company)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list events", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(events)).DebugContext(ctx, "events listed")
	}()

	vErr := &ValidationError{}
	filter := persistence.EventFilter{CompanyID: strings.TrimSpace(params.Company)}
	if filter.CompanyID == "" {
		vErr.add("company", "company is required")
	}
	if raw := strings.TrimSpace(params.From); raw != "" {
		t, ok := datemath.ParseIn(raw, s.location)
		if !ok {
			vErr.add("from", "from must be a datetime")
		}
		filter.From = t
	}
	if raw := strings.TrimSpace(params.To); raw != "" {
		t, ok := datemath.ParseIn(raw, s.location)
		if !ok {
			vErr.add("to", "to must be a datetime")
		}
		filter.To = t
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.To.After(filter.From) {
		vErr.add("to", "to must be after from")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	events, err = s.events.ListEvents(ctx, filter)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	if events == nil {
		events = []persistence.Event{}
	}
	return
}

func (s *EventService) buildEvent(input EventInput) (persistence.Event, error) {
	vErr := validateEventInput(input)

	start, ok := datemath.ParseIn(strings.TrimSpace(input.Datetime), s.location)
	if !ok {
		vErr.add("datetime", "datetime must be YYYY-MM-DDTHH:MM[:SS] with an optional offset")
	}
	if vErr.HasErrors() {
		return persistence.Event{}, vErr
	}

	return persistence.Event{
		Type:         input.Type,
		Datetime:     datemath.Format(start),
		Duration:     input.Duration,
		Client:       normalizeIDs(input.Client),
		Professional: normalizeIDs(input.Professional),
		Company:      strings.TrimSpace(input.Company),
		Notes:        strings.TrimSpace(input.Notes),
	}, nil
}

func (s *EventService) logCreditFailures(ctx context.Context, logger *slog.Logger, report credits.Report) {
	for _, f := range report.Failures {
		logger.WarnContext(ctx, "class credits not adjusted",
			"client_id", f.ClientID,
			"delta", f.Delta,
			"error", f.Err,
		)
	}
}

func validateEventInput(input EventInput) *ValidationError {
	vErr := &ValidationError{}

	if strings.TrimSpace(input.Company) == "" {
		vErr.add("company", "company is required")
	}
	if !input.Type.Valid() {
		vErr.add("type", "type must be appointment, class or vacation")
	}
	if input.Duration <= 0 {
		vErr.add("duration", "duration must be positive")
	}

	return vErr
}
