package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/studio-scheduler/internal/application"
	"github.com/example/studio-scheduler/internal/persistence"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type studio struct {
	harness  *StoreHarness
	services Services
	company  persistence.Company
	coach    persistence.Profile
	client   persistence.Profile
}

func newStudio(t *testing.T) studio {
	t.Helper()

	h := NewStoreHarness(t)
	company := NewCompany()
	coach := NewProfessional(company.ID, WithProfileName("Ana"))
	client := NewClient(company.ID, WithCredits(10))
	h.SeedCompany(t, company, coach, client)
	h.SeedTemplates(t, NewTemplate(company.ID, time.Tuesday,
		WithTemplateClients(client.ID),
		WithTemplateProfessionals(coach.ID),
	))

	return studio{
		harness:  h,
		services: NewServiceFactory().NewServices(h, quiet),
		company:  company,
		coach:    coach,
		client:   client,
	}
}

func balance(t *testing.T, s studio) int {
	t.Helper()
	b := s.harness.Credits(t, s.client.ID)
	if b == nil {
		t.Fatalf("expected a credit balance for %s", s.client.ID)
	}
	return *b
}

func TestServiceFactoryDefaults(t *testing.T) {
	factory := NewServiceFactory(WithClock(nil), WithIDGenerator(nil), WithLocation(nil))
	if factory.Clock == nil || factory.IDGenerator == nil || factory.Location != Zone() {
		t.Fatalf("expected defaults to be restored, got %+v", factory)
	}
	if !factory.Clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected reference time, got %v", factory.Clock.Now())
	}
}

func TestPropagationChargesCreditsOnce(t *testing.T) {
	s := newStudio(t)
	ctx := context.Background()
	input := application.PropagationInput{Company: s.company.ID, Month: 2, Year: 2026}

	first, err := s.services.Propagations.Propagate(ctx, input)
	if err != nil {
		t.Fatalf("Propagate returned error: %v", err)
	}
	if len(first.Inserted) != 4 || len(first.Skipped) != 0 {
		t.Fatalf("expected 4 inserted, got %d inserted %d skipped", len(first.Inserted), len(first.Skipped))
	}
	if first.Inserted[0].Datetime != "2026-02-03T18:00:00-03:00" {
		t.Fatalf("unexpected first datetime %s", first.Inserted[0].Datetime)
	}
	if got := balance(t, s); got != 6 {
		t.Fatalf("expected balance 6 after propagation, got %d", got)
	}

	second, err := s.services.Propagations.Propagate(ctx, input)
	if err != nil {
		t.Fatalf("second Propagate returned error: %v", err)
	}
	if len(second.Inserted) != 0 || len(second.Skipped) != 4 {
		t.Fatalf("expected rerun to skip all 4, got %d inserted %d skipped", len(second.Inserted), len(second.Skipped))
	}
	if got := balance(t, s); got != 6 {
		t.Fatalf("expected balance to stay 6, got %d", got)
	}
}

func TestRescheduledClassIsNotPropagatedAgain(t *testing.T) {
	s := newStudio(t)
	ctx := context.Background()
	input := application.PropagationInput{Company: s.company.ID, Month: 2, Year: 2026}

	first, err := s.services.Propagations.Propagate(ctx, input)
	if err != nil {
		t.Fatalf("Propagate returned error: %v", err)
	}
	if len(first.Inserted) != 4 {
		t.Fatalf("expected 4 inserted, got %d", len(first.Inserted))
	}

	original := first.Inserted[0]
	moved, err := s.services.Events.UpdateEvent(ctx, original.ID, application.EventInput{
		Type:         original.Type,
		Datetime:     "2026-02-04T18:00:00-03:00",
		Duration:     original.Duration,
		Client:       original.Client,
		Professional: original.Professional,
		Company:      original.Company,
	})
	if err != nil {
		t.Fatalf("UpdateEvent returned error: %v", err)
	}
	if moved.TemplateID != original.TemplateID {
		t.Fatalf("expected template id %q to survive the move, got %q", original.TemplateID, moved.TemplateID)
	}
	if got := balance(t, s); got != 6 {
		t.Fatalf("expected balance 6 after reschedule, got %d", got)
	}

	second, err := s.services.Propagations.Propagate(ctx, input)
	if err != nil {
		t.Fatalf("second Propagate returned error: %v", err)
	}
	if len(second.Inserted) != 0 || len(second.Skipped) != 4 {
		t.Fatalf("expected rerun to skip all 4, got %d inserted %d skipped", len(second.Inserted), len(second.Skipped))
	}
	if got := balance(t, s); got != 6 {
		t.Fatalf("expected balance to stay 6, got %d", got)
	}

	stored, err := s.services.Events.GetEvent(ctx, original.ID)
	if err != nil {
		t.Fatalf("GetEvent returned error: %v", err)
	}
	if stored.Datetime != "2026-02-04T18:00:00-03:00" {
		t.Fatalf("expected the moved datetime to be kept, got %s", stored.Datetime)
	}
}

func TestEventLifecycleAdjustsCredits(t *testing.T) {
	s := newStudio(t)
	ctx := context.Background()

	event, err := s.services.Events.CreateEvent(ctx, application.EventInput{
		Type:         persistence.EventTypeClass,
		Datetime:     "2026-01-15T10:00",
		Duration:     60,
		Client:       []string{s.client.ID},
		Professional: []string{s.coach.ID},
		Company:      s.company.ID,
	})
	if err != nil {
		t.Fatalf("CreateEvent returned error: %v", err)
	}
	if event.ID != "id-1" {
		t.Fatalf("expected generated id id-1, got %q", event.ID)
	}
	if got := balance(t, s); got != 9 {
		t.Fatalf("expected balance 9 after create, got %d", got)
	}

	if err := s.services.Events.DeleteEvent(ctx, event.ID); err != nil {
		t.Fatalf("DeleteEvent returned error: %v", err)
	}
	if got := balance(t, s); got != 10 {
		t.Fatalf("expected balance 10 after delete, got %d", got)
	}
}

func TestAvailabilitySkipsBookedProfessional(t *testing.T) {
	s := newStudio(t)
	ctx := context.Background()
	query := application.SlotQuery{Company: s.company.ID, Limit: 2}

	slots, err := s.services.Availability.FindSlots(ctx, query)
	if err != nil {
		t.Fatalf("FindSlots returned error: %v", err)
	}
	first := time.Date(2026, time.January, 14, 10, 0, 0, 0, Zone())
	if len(slots) != 2 || !slots[0].Start.Equal(first) || slots[0].Professional.Name != "Ana" {
		t.Fatalf("unexpected slots %+v", slots)
	}

	s.harness.SeedEvents(t, NewEvent(s.company.ID, persistence.EventTypeAppointment, first, 30,
		WithEventProfessionals(s.coach.ID),
	))

	slots, err = s.services.Availability.FindSlots(ctx, query)
	if err != nil {
		t.Fatalf("FindSlots returned error: %v", err)
	}
	if len(slots) == 0 || !slots[0].Start.Equal(first.Add(30*time.Minute)) {
		t.Fatalf("expected the booked 10:00 slot to be skipped, got %+v", slots)
	}
}
