package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/example/studio-scheduler/internal/logging"
	"github.com/example/studio-scheduler/internal/persistence"
)

const (
	defaultConcurrency = 8
	defaultMaxAttempts = 3
)

// ErrRetriesExhausted is recorded when every compare-and-swap attempt for a
// client lost to a concurrent writer.
var ErrRetriesExhausted = errors.New("credits: concurrent updates exhausted retries")

// ProfileStore reads and conditionally writes a client's class_credits.
type ProfileStore interface {
	ClassCredits(ctx context.Context, clientID string) (*int, error)
	SetClassCredits(ctx context.Context, clientID string, expected *int, next int) error
}

// Observer receives the adjustments applied by one ledger call.
type Observer interface {
	CreditsAdjusted(ctx context.Context, operation string, adjustments []Adjustment)
}

// Recorder counts adjustment outcomes.
type Recorder interface {
	CreditAdjustment(result string)
}

// Adjustment is a persisted balance change.
type Adjustment struct {
	ClientID string `json:"client_id"`
	Delta    int    `json:"delta"`
	Previous int    `json:"previous"`
	Balance  int    `json:"balance"`
}

// Failure is a client whose balance could not be updated.
type Failure struct {
	ClientID string
	Delta    int
	Err      error
}

// Report lists the outcome of every client touched by a ledger call, sorted
// by client id.
type Report struct {
	Adjustments []Adjustment
	Failures    []Failure
}

// Failed reports whether any client adjustment failed.
func (r Report) Failed() bool {
	return len(r.Failures) > 0
}

// Ledger applies credit changes to a ProfileStore.
type Ledger struct {
	store       ProfileStore
	logger      *slog.Logger
	observer    Observer
	recorder    Recorder
	concurrency int
	maxAttempts int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the fallback logger used when the context carries none.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithObserver forwards applied adjustments to o.
func WithObserver(o Observer) Option {
	return func(l *Ledger) { l.observer = o }
}

// WithRecorder counts adjustment outcomes in r.
func WithRecorder(r Recorder) Option {
	return func(l *Ledger) { l.recorder = r }
}

// WithConcurrency bounds the number of clients adjusted at once.
func WithConcurrency(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// WithMaxAttempts bounds the read-modify-write attempts per client.
func WithMaxAttempts(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

// NewLedger constructs a Ledger over store.
func NewLedger(store ProfileStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:       store,
		concurrency: defaultConcurrency,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// OnEventCreate deducts credits for a newly persisted event.
func (l *Ledger) OnEventCreate(ctx context.Context, ev persistence.Event) Report {
	return l.Apply(ctx, "create", CreateDeltas(ev))
}

// OnEventUpdate applies the difference between two versions of an event.
func (l *Ledger) OnEventUpdate(ctx context.Context, before, after persistence.Event) Report {
	return l.Apply(ctx, "update", UpdateDeltas(before, after))
}

// OnEventDelete refunds credits for a removed event.
func (l *Ledger) OnEventDelete(ctx context.Context, ev persistence.Event) Report {
	return l.Apply(ctx, "delete", DeleteDeltas(ev))
}

// OnBatchEventsCreate deducts credits for a batch of new events, one netted
// write per client.
func (l *Ledger) OnBatchEventsCreate(ctx context.Context, events []persistence.Event) Report {
	return l.Apply(ctx, "batch_create", BatchCreateDeltas(events))
}

// Apply persists each change concurrently and waits for all of them. A
// failing client never prevents the others from being adjusted.
func (l *Ledger) Apply(ctx context.Context, operation string, changes []Change) Report {
	if l == nil || len(changes) == 0 {
		return Report{}
	}
	logger := l.loggerFor(ctx).With("component", "credit_ledger", "operation", operation)

	adjustments := make([]*Adjustment, len(changes))
	errs := make([]error, len(changes))

	var g errgroup.Group
	g.SetLimit(l.concurrency)
	for i, change := range changes {
		g.Go(func() error {
			adj, err := l.adjust(ctx, change)
			if err != nil {
				errs[i] = err
				return nil
			}
			adjustments[i] = &adj
			return nil
		})
	}
	_ = g.Wait()

	var report Report
	for i, change := range changes {
		if err := errs[i]; err != nil {
			report.Failures = append(report.Failures, Failure{ClientID: change.ClientID, Delta: change.Delta, Err: err})
			logger.Error("class credit adjustment failed", "client_id", change.ClientID, "delta", change.Delta, "error", err)
			l.record("failure")
			continue
		}
		report.Adjustments = append(report.Adjustments, *adjustments[i])
		l.record("success")
	}

	if len(report.Adjustments) > 0 {
		logger.Debug("class credits adjusted", "clients", len(report.Adjustments), "failures", len(report.Failures))
		if l.observer != nil {
			l.observer.CreditsAdjusted(ctx, operation, report.Adjustments)
		}
	}
	return report
}

func (l *Ledger) adjust(ctx context.Context, change Change) (Adjustment, error) {
	if l.store == nil {
		return Adjustment{}, errors.New("credits: profile store not configured")
	}
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Adjustment{}, err
		}

		current, err := l.store.ClassCredits(ctx, change.ClientID)
		if err != nil {
			return Adjustment{}, fmt.Errorf("read class credits: %w", err)
		}
		previous := 0
		if current != nil {
			previous = *current
		}
		next := previous + change.Delta

		err = l.store.SetClassCredits(ctx, change.ClientID, current, next)
		if err == nil {
			return Adjustment{ClientID: change.ClientID, Delta: change.Delta, Previous: previous, Balance: next}, nil
		}
		if !errors.Is(err, persistence.ErrConflict) {
			return Adjustment{}, fmt.Errorf("write class credits: %w", err)
		}
		l.record("conflict")
	}
	return Adjustment{}, fmt.Errorf("%w after %d attempts", ErrRetriesExhausted, l.maxAttempts)
}

func (l *Ledger) loggerFor(ctx context.Context) *slog.Logger {
	return logging.Resolve(ctx, l.logger)
}

func (l *Ledger) record(result string) {
	if l.recorder != nil {
		l.recorder.CreditAdjustment(result)
	}
}
