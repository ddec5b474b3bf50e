package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/studio-scheduler/internal/application"
	"github.com/example/studio-scheduler/internal/credits"
	"github.com/example/studio-scheduler/internal/lock"
	"github.com/example/studio-scheduler/internal/notify"
	"github.com/example/studio-scheduler/internal/recurrence"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Location    *time.Location
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Location:    Zone(),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Location == nil {
		factory.Location = Zone()
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLocation overrides the zone used for naive datetimes.
func WithLocation(loc *time.Location) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Location = loc
	}
}

// NewLedger builds a credit ledger over the harness profiles.
func (f *ServiceFactory) NewLedger(h *StoreHarness, opts ...credits.Option) *credits.Ledger {
	return credits.NewLedger(h.Profiles, opts...)
}

// EventServiceDeps captures dependencies for constructing an event service.
type EventServiceDeps struct {
	Events      application.EventRepository
	Credits     application.CreditHooks
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewEventService builds an event service using the supplied dependencies
// combined with the factory defaults.
func (f *ServiceFactory) NewEventService(deps EventServiceDeps) *application.EventService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return application.NewEventServiceWithLogger(
		deps.Events,
		deps.Credits,
		f.Location,
		idGen,
		now,
		deps.Logger,
	)
}

// NewPropagationService builds a propagation service. Unset ids, clock,
// locker and propagator come from the factory.
func (f *ServiceFactory) NewPropagationService(deps application.PropagationDeps, logger *slog.Logger) *application.PropagationService {
	if deps.IDGenerator == nil {
		deps.IDGenerator = f.IDGenerator.NextFunc()
	}
	if deps.Now == nil {
		deps.Now = f.Clock.NowFunc()
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocalLocker(deps.Now)
	}
	if deps.Publisher == nil {
		deps.Publisher = notify.Noop{}
	}
	if deps.Propagator == nil {
		deps.Propagator = recurrence.NewPropagator(f.Location)
	}
	return application.NewPropagationServiceWithLogger(deps, logger)
}

// AvailabilityServiceDeps captures dependencies for constructing an
// availability service.
type AvailabilityServiceDeps struct {
	Companies     application.CompanyDirectory
	Professionals application.ProfessionalDirectory
	Bookings      application.BookingSource
	Options       application.AvailabilityOptions
	Now           func() time.Time
	Logger        *slog.Logger
}

// NewAvailabilityService builds an availability service evaluated at the
// factory clock.
func (f *ServiceFactory) NewAvailabilityService(deps AvailabilityServiceDeps) *application.AvailabilityService {
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	opts := deps.Options
	if opts.Location == nil {
		opts.Location = f.Location
	}
	return application.NewAvailabilityServiceWithLogger(
		deps.Companies,
		deps.Professionals,
		deps.Bookings,
		opts,
		now,
		deps.Logger,
	)
}

// Services bundles every application service wired to one harness.
type Services struct {
	Ledger       *credits.Ledger
	Events       *application.EventService
	Propagations *application.PropagationService
	Availability *application.AvailabilityService
}

// NewServices wires all services to the harness with a shared ledger.
func (f *ServiceFactory) NewServices(h *StoreHarness, logger *slog.Logger) Services {
	ledger := f.NewLedger(h, credits.WithLogger(logger))
	events := f.NewEventService(EventServiceDeps{Events: h.Events, Credits: ledger, Logger: logger})
	propagations := f.NewPropagationService(application.PropagationDeps{
		Templates: h.Templates,
		Writer:    h.Store,
		Credits:   ledger,
	}, logger)
	availability := f.NewAvailabilityService(AvailabilityServiceDeps{
		Companies:     h.Companies,
		Professionals: h.Profiles,
		Bookings:      h.Events,
		Logger:        logger,
	})
	return Services{
		Ledger:       ledger,
		Events:       events,
		Propagations: propagations,
		Availability: availability,
	}
}
