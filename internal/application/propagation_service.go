package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/studio-scheduler/internal/credits"
	"github.com/example/studio-scheduler/internal/lock"
	"github.com/example/studio-scheduler/internal/notify"
	"github.com/example/studio-scheduler/internal/persistence"
	"github.com/example/studio-scheduler/internal/recurrence"
)

// DefaultLockTTL bounds how long one propagation run may hold its lock.
const DefaultLockTTL = 2 * time.Minute

// BatchCreditHook charges class credits for events inserted together.
type BatchCreditHook interface {
	OnBatchEventsCreate(ctx context.Context, events []persistence.Event) credits.Report
}

// PropagationRecorder counts propagation outcomes.
type PropagationRecorder interface {
	PropagatedEvents(outcome string, n int)
	DroppedTemplates(n int)
}

// PropagationDeps wires the collaborators of a PropagationService. Only
// Templates and Writer are required; the rest fall back to no-ops.
type PropagationDeps struct {
	Templates   persistence.TemplateRepository
	Writer      persistence.PropagationWriter
	Credits     BatchCreditHook
	Locker      lock.Locker
	Publisher   notify.Publisher
	Propagator  *recurrence.Propagator
	Recorder    PropagationRecorder
	LockTTL     time.Duration
	IDGenerator func() string
	Now         func() time.Time
}

// PropagationInput identifies the company month to expand. A nil Templates
// slice loads the company's stored templates; an empty one propagates nothing.
type PropagationInput struct {
	Company   string
	Month     int
	Year      int
	Templates []persistence.ClassTemplate
}

// PropagationResult summarizes a completed run.
type PropagationResult struct {
	Inserted       []persistence.Event
	Skipped        []persistence.Event
	Dropped        []recurrence.DroppedTemplate
	CreditFailures int
}

// PropagationCompleted is the payload published after a run.
type PropagationCompleted struct {
	Company  string                       `json:"company"`
	Month    int                          `json:"month"`
	Year     int                          `json:"year"`
	Inserted int                          `json:"inserted"`
	Skipped  int                          `json:"skipped"`
	Dropped  []recurrence.DroppedTemplate `json:"dropped"`
	At       time.Time                    `json:"at"`
}

// PropagationService expands class templates into a month of events, inserts
// them idempotently and charges class credits for the new ones.
type PropagationService struct {
	deps   PropagationDeps
	logger *slog.Logger
}

// NewPropagationService constructs a propagation service.
func NewPropagationService(deps PropagationDeps) *PropagationService {
	return NewPropagationServiceWithLogger(deps, nil)
}

// NewPropagationServiceWithLogger constructs a propagation service with a specified logger.
func NewPropagationServiceWithLogger(deps PropagationDeps, logger *slog.Logger) *PropagationService {
	if deps.Propagator == nil {
		deps.Propagator = recurrence.NewPropagator(nil)
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocalLocker(deps.Now)
	}
	if deps.Publisher == nil {
		deps.Publisher = notify.Noop{}
	}
	if deps.LockTTL <= 0 {
		deps.LockTTL = DefaultLockTTL
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = uuid.NewString
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &PropagationService{deps: deps, logger: defaultLogger(logger)}
}

func (s *PropagationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "PropagationService", operation, attrs...)
}

// Preview returns the events a run would produce, without ids and without
// writing anything.
func (s *PropagationService) Preview(ctx context.Context, input PropagationInput) (result recurrence.Result, err error) {
	if s == nil {
		err = fmt.Errorf("PropagationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Preview", "company", input.Company, "month", input.Month, "year", input.Year)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to preview propagation", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	input, err = s.prepare(ctx, input)
	if err != nil {
		return
	}
	result, err = s.deps.Propagator.Propagate(toRequest(input))
	if err != nil {
		return
	}
	s.logDropped(ctx, logger, result.Dropped)
	return
}

// Propagate runs one company month: expands templates, inserts events that do
// not exist yet, charges credits for the inserted class events and publishes
// a completion notice. Concurrent runs for the same company month return ErrBusy.
func (s *PropagationService) Propagate(ctx context.Context, input PropagationInput) (result PropagationResult, err error) {
	if s == nil {
		err = fmt.Errorf("PropagationService is nil")
		return
	}
	if s.deps.Writer == nil {
		err = fmt.Errorf("propagation writer not configured")
		return
	}

	logger := s.loggerWith(ctx, "Propagate", "company", input.Company, "month", input.Month, "year", input.Year)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to propagate templates", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "templates propagated",
			"inserted", len(result.Inserted),
			"skipped", len(result.Skipped),
			"dropped", len(result.Dropped),
		)
	}()

	if vErr := validatePropagationInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	key := fmt.Sprintf("propagation:%s:%04d-%02d", strings.TrimSpace(input.Company), input.Year, input.Month)
	release, lockErr := s.deps.Locker.Acquire(ctx, key, s.deps.LockTTL)
	if lockErr != nil {
		if errors.Is(lockErr, lock.ErrNotAcquired) {
			err = ErrBusy
			return
		}
		err = fmt.Errorf("acquire propagation lock: %w", lockErr)
		return
	}
	defer func() {
		if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
			logger.WarnContext(ctx, "failed to release propagation lock", "error", relErr)
		}
	}()

	input, err = s.prepare(ctx, input)
	if err != nil {
		return
	}

	var expanded recurrence.Result
	expanded, err = s.deps.Propagator.Propagate(toRequest(input))
	if err != nil {
		return
	}
	s.logDropped(ctx, logger, expanded.Dropped)

	for i := range expanded.Events {
		expanded.Events[i].ID = s.deps.IDGenerator()
	}

	var written persistence.InsertResult
	written, err = s.deps.Writer.InsertPropagated(ctx, expanded.Events)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	result = PropagationResult{
		Inserted: nonNilEvents(written.Inserted),
		Skipped:  nonNilEvents(written.Skipped),
		Dropped:  expanded.Dropped,
	}

	if s.deps.Credits != nil && len(result.Inserted) > 0 {
		report := s.deps.Credits.OnBatchEventsCreate(ctx, result.Inserted)
		result.CreditFailures = len(report.Failures)
		for _, f := range report.Failures {
			logger.WarnContext(ctx, "class credits not adjusted", "client_id", f.ClientID, "delta", f.Delta, "error", f.Err)
		}
	}

	if s.deps.Recorder != nil {
		s.deps.Recorder.PropagatedEvents("inserted", len(result.Inserted))
		s.deps.Recorder.PropagatedEvents("skipped", len(result.Skipped))
		s.deps.Recorder.DroppedTemplates(len(result.Dropped))
	}

	notice := PropagationCompleted{
		Company:  input.Company,
		Month:    input.Month,
		Year:     input.Year,
		Inserted: len(result.Inserted),
		Skipped:  len(result.Skipped),
		Dropped:  result.Dropped,
		At:       s.deps.Now(),
	}
	if pubErr := s.deps.Publisher.Publish(ctx, notify.SubjectPropagationCompleted, notice); pubErr != nil {
		logger.WarnContext(ctx, "failed to publish propagation notice", "error", pubErr)
	}
	return
}

func (s *PropagationService) prepare(ctx context.Context, input PropagationInput) (PropagationInput, error) {
	if vErr := validatePropagationInput(input); vErr.HasErrors() {
		return input, vErr
	}
	input.Company = strings.TrimSpace(input.Company)
	if input.Templates != nil {
		return input, nil
	}
	if s.deps.Templates == nil {
		return input, fmt.Errorf("template repository not configured")
	}
	templates, err := s.deps.Templates.ListTemplates(ctx, input.Company)
	if err != nil {
		return input, fmt.Errorf("load templates: %w", mapRepoError(err))
	}
	input.Templates = templates
	if input.Templates == nil {
		input.Templates = []persistence.ClassTemplate{}
	}
	return input, nil
}

func (s *PropagationService) logDropped(ctx context.Context, logger *slog.Logger, dropped []recurrence.DroppedTemplate) {
	for _, d := range dropped {
		logger.WarnContext(ctx, "class template skipped", "template_id", d.TemplateID, "reason", d.Reason)
	}
}

func validatePropagationInput(input PropagationInput) *ValidationError {
	vErr := &ValidationError{}

	if strings.TrimSpace(input.Company) == "" {
		vErr.add("company", "company is required")
	}
	if input.Month < 1 || input.Month > 12 {
		vErr.add("month", "month must be between 1 and 12")
	}
	if input.Year <= 0 {
		vErr.add("year", "year must be positive")
	}

	return vErr
}

func toRequest(input PropagationInput) recurrence.Request {
	return recurrence.Request{
		Company:   input.Company,
		Month:     input.Month,
		Year:      input.Year,
		Templates: input.Templates,
	}
}

func nonNilEvents(events []persistence.Event) []persistence.Event {
	if events == nil {
		return []persistence.Event{}
	}
	return events
}
