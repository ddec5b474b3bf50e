package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/studio-scheduler/internal/credits"
	"github.com/example/studio-scheduler/internal/lock"
	"github.com/example/studio-scheduler/internal/notify"
	"github.com/example/studio-scheduler/internal/persistence"
	"github.com/example/studio-scheduler/internal/recurrence"
)

func tuesdayTemplate() persistence.ClassTemplate {
	return persistence.ClassTemplate{
		ID:           "tpl-tue",
		Company:      "c1",
		Day:          intPtr(2),
		Time:         "18:00",
		Client:       persistence.IDList{"u1"},
		Professional: persistence.IDList{"p1"},
	}
}

type propagationFixture struct {
	templates *templateRepoStub
	writer    *writerStub
	hooks     *creditHooksStub
	locker    *lockerStub
	publisher *publisherStub
	recorder  *recorderStub
	svc       *PropagationService
}

func newPropagationFixture() *propagationFixture {
	f := &propagationFixture{
		templates: &templateRepoStub{templates: []persistence.ClassTemplate{tuesdayTemplate()}},
		writer:    &writerStub{},
		hooks:     &creditHooksStub{},
		locker:    &lockerStub{},
		publisher: &publisherStub{},
		recorder:  &recorderStub{},
	}
	f.svc = NewPropagationService(PropagationDeps{
		Templates:   f.templates,
		Writer:      f.writer,
		Credits:     f.hooks,
		Locker:      f.locker,
		Publisher:   f.publisher,
		Propagator:  recurrence.NewPropagator(brt),
		Recorder:    f.recorder,
		IDGenerator: sequentialIDs("ev"),
		Now:         func() time.Time { return time.Date(2026, 1, 25, 3, 0, 0, 0, brt) },
	})
	return f
}

func TestPropagationService_Propagate(t *testing.T) {
	t.Run("inserts, charges and publishes", func(t *testing.T) {
		f := newPropagationFixture()

		result, err := f.svc.Propagate(context.Background(), PropagationInput{Company: "c1", Month: 2, Year: 2026})
		if err != nil {
			t.Fatalf("Propagate returned error: %v", err)
		}

		if len(result.Inserted) != 4 || len(result.Skipped) != 0 {
			t.Fatalf("expected 4 inserted, got %d inserted %d skipped", len(result.Inserted), len(result.Skipped))
		}
		if result.Inserted[0].ID != "ev-1" || result.Inserted[3].ID != "ev-4" {
			t.Fatalf("expected generated ids, got %q..%q", result.Inserted[0].ID, result.Inserted[3].ID)
		}
		if f.templates.calls != 1 {
			t.Fatalf("expected stored templates to be loaded once, got %d", f.templates.calls)
		}
		if len(f.locker.keys) != 1 || f.locker.keys[0] != "propagation:c1:2026-02" || f.locker.released != 1 {
			t.Fatalf("expected lock on company month to be taken and released, got %v released=%d", f.locker.keys, f.locker.released)
		}
		if len(f.hooks.calls) != 1 || f.hooks.calls[0].op != "batch_create" || len(f.hooks.calls[0].batch) != 4 {
			t.Fatalf("expected one batch hook over 4 events, got %+v", f.hooks.calls)
		}
		if f.recorder.propagated["inserted"] != 4 {
			t.Fatalf("expected inserted metric 4, got %v", f.recorder.propagated)
		}
		if len(f.publisher.msgs) != 1 || f.publisher.msgs[0].subject != notify.SubjectPropagationCompleted {
			t.Fatalf("expected completion notice, got %+v", f.publisher.msgs)
		}
		notice := f.publisher.msgs[0].data.(PropagationCompleted)
		if notice.Inserted != 4 || notice.Company != "c1" || notice.Month != 2 {
			t.Fatalf("unexpected notice %+v", notice)
		}
	})

	t.Run("second run skips existing occurrences and charges nothing", func(t *testing.T) {
		f := newPropagationFixture()
		input := PropagationInput{Company: "c1", Month: 2, Year: 2026}

		if _, err := f.svc.Propagate(context.Background(), input); err != nil {
			t.Fatalf("first run: %v", err)
		}
		result, err := f.svc.Propagate(context.Background(), input)
		if err != nil {
			t.Fatalf("second run: %v", err)
		}
		if len(result.Inserted) != 0 || len(result.Skipped) != 4 {
			t.Fatalf("expected all skipped, got %d inserted %d skipped", len(result.Inserted), len(result.Skipped))
		}
		if len(f.hooks.calls) != 1 {
			t.Fatalf("expected no ledger call for the second run, got %d calls", len(f.hooks.calls))
		}
		if f.recorder.propagated["skipped"] != 4 {
			t.Fatalf("expected skipped metric 4, got %v", f.recorder.propagated)
		}
	})

	t.Run("explicit templates bypass the repository", func(t *testing.T) {
		f := newPropagationFixture()
		bad := persistence.ClassTemplate{ID: "tpl-bad"}

		result, err := f.svc.Propagate(context.Background(), PropagationInput{
			Company:   "c1",
			Month:     2,
			Year:      2026,
			Templates: []persistence.ClassTemplate{bad, tuesdayTemplate()},
		})
		if err != nil {
			t.Fatalf("Propagate returned error: %v", err)
		}
		if f.templates.calls != 0 {
			t.Fatalf("expected repository to be bypassed")
		}
		if len(result.Dropped) != 1 || result.Dropped[0].TemplateID != "tpl-bad" || result.Dropped[0].Reason != recurrence.DropNoWeekday {
			t.Fatalf("expected tpl-bad to be dropped, got %+v", result.Dropped)
		}
		if len(result.Inserted) != 4 {
			t.Fatalf("expected remaining template to propagate, got %d", len(result.Inserted))
		}
		if f.recorder.dropped != 1 {
			t.Fatalf("expected dropped metric 1, got %d", f.recorder.dropped)
		}
	})

	t.Run("busy lock", func(t *testing.T) {
		f := newPropagationFixture()
		f.locker.err = lock.ErrNotAcquired

		_, err := f.svc.Propagate(context.Background(), PropagationInput{Company: "c1", Month: 2, Year: 2026})
		if !errors.Is(err, ErrBusy) {
			t.Fatalf("expected ErrBusy, got %v", err)
		}
		if f.writer.calls != 0 {
			t.Fatalf("expected no writes while busy")
		}
	})

	t.Run("validates request", func(t *testing.T) {
		f := newPropagationFixture()

		_, err := f.svc.Propagate(context.Background(), PropagationInput{Month: 13})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"company", "month", "year"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("expected %s error, got %v", field, vErr.FieldErrors)
			}
		}
		if len(f.locker.keys) != 0 {
			t.Fatalf("expected no lock for invalid request")
		}
	})

	t.Run("writer failure", func(t *testing.T) {
		f := newPropagationFixture()
		f.writer.err = errors.New("disk full")

		if _, err := f.svc.Propagate(context.Background(), PropagationInput{Company: "c1", Month: 2, Year: 2026}); err == nil {
			t.Fatalf("expected error")
		}
		if len(f.hooks.calls) != 0 || len(f.publisher.msgs) != 0 {
			t.Fatalf("expected no ledger or publish after failed write")
		}
		if f.locker.released != 1 {
			t.Fatalf("expected lock to be released on failure")
		}
	})

	t.Run("publish failure does not fail the run", func(t *testing.T) {
		f := newPropagationFixture()
		f.publisher.err = errors.New("broker down")
		f.hooks.report = credits.Report{Failures: []credits.Failure{{ClientID: "u1", Delta: -4, Err: errors.New("x")}}}

		result, err := f.svc.Propagate(context.Background(), PropagationInput{Company: "c1", Month: 2, Year: 2026})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if result.CreditFailures != 1 {
			t.Fatalf("expected credit failure count 1, got %d", result.CreditFailures)
		}
	})
}

func TestPropagationService_Preview(t *testing.T) {
	f := newPropagationFixture()

	result, err := f.svc.Preview(context.Background(), PropagationInput{Company: "c1", Month: 2, Year: 2026})
	if err != nil {
		t.Fatalf("Preview returned error: %v", err)
	}
	if len(result.Events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(result.Events))
	}
	if result.Events[0].ID != "" || result.Events[0].Datetime != "2026-02-03T18:00:00-03:00" {
		t.Fatalf("unexpected first preview event %+v", result.Events[0])
	}
	if f.writer.calls != 0 || len(f.locker.keys) != 0 || len(f.hooks.calls) != 0 {
		t.Fatalf("expected preview to have no side effects")
	}
}

func TestPropagationService_DefaultsToLocalLocker(t *testing.T) {
	svc := NewPropagationService(PropagationDeps{
		Writer:     &writerStub{},
		Propagator: recurrence.NewPropagator(brt),
	})

	result, err := svc.Propagate(context.Background(), PropagationInput{
		Company:   "c1",
		Month:     2,
		Year:      2026,
		Templates: []persistence.ClassTemplate{},
	})
	if err != nil {
		t.Fatalf("Propagate returned error: %v", err)
	}
	if result.Inserted == nil || len(result.Inserted) != 0 {
		t.Fatalf("expected empty non-nil inserted list, got %v", result.Inserted)
	}
}
