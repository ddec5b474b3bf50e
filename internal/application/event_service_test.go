package application

import (
	"context"
	"errors"
	"testing"

	"github.com/example/studio-scheduler/internal/credits"
	"github.com/example/studio-scheduler/internal/persistence"
)

func classInput(clients ...string) EventInput {
	return EventInput{
		Type:         persistence.EventTypeClass,
		Datetime:     "2026-01-14T18:00",
		Duration:     60,
		Client:       clients,
		Professional: []string{"p1"},
		Company:      "c1",
	}
}

func TestEventService_CreateEvent(t *testing.T) {
	t.Run("validates required attributes", func(t *testing.T) {
		svc := NewEventService(newEventRepoStub(), nil, brt, nil, nil)

		_, err := svc.CreateEvent(context.Background(), EventInput{Type: "party", Datetime: "tomorrow"})

		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"company", "type", "duration", "datetime"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("expected %s validation error, got %v", field, vErr.FieldErrors)
			}
		}
	})

	t.Run("canonicalizes and charges credits", func(t *testing.T) {
		repo := newEventRepoStub()
		hooks := &creditHooksStub{}
		svc := NewEventService(repo, hooks, brt, sequentialIDs("ev"), nil)

		event, err := svc.CreateEvent(context.Background(), classInput("u1", " u2", "u1", ""))
		if err != nil {
			t.Fatalf("CreateEvent returned error: %v", err)
		}

		if event.ID != "ev-1" {
			t.Fatalf("expected generated ID ev-1, got %q", event.ID)
		}
		if event.Datetime != "2026-01-14T18:00:00-03:00" {
			t.Fatalf("expected canonical datetime, got %q", event.Datetime)
		}
		if len(event.Client) != 2 || event.Client[0] != "u1" || event.Client[1] != "u2" {
			t.Fatalf("expected deduplicated clients, got %v", event.Client)
		}
		if _, ok := repo.events["ev-1"]; !ok {
			t.Fatalf("expected event to be stored")
		}
		if len(hooks.calls) != 1 || hooks.calls[0].op != "create" || hooks.calls[0].after.ID != "ev-1" {
			t.Fatalf("expected one create hook call, got %+v", hooks.calls)
		}
	})

	t.Run("keeps explicit offsets", func(t *testing.T) {
		svc := NewEventService(newEventRepoStub(), nil, brt, sequentialIDs("ev"), nil)

		input := classInput("u1")
		input.Datetime = "2026-01-14T21:00:00Z"
		event, err := svc.CreateEvent(context.Background(), input)
		if err != nil {
			t.Fatalf("CreateEvent returned error: %v", err)
		}
		if event.Datetime != "2026-01-14T21:00:00+00:00" {
			t.Fatalf("expected UTC offset to be preserved, got %q", event.Datetime)
		}
	})

	t.Run("does not charge credits when persistence fails", func(t *testing.T) {
		repo := newEventRepoStub()
		repo.createErr = persistence.ErrDuplicate
		hooks := &creditHooksStub{}
		svc := NewEventService(repo, hooks, brt, sequentialIDs("ev"), nil)

		_, err := svc.CreateEvent(context.Background(), classInput("u1"))
		if !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
		if len(hooks.calls) != 0 {
			t.Fatalf("expected no hook calls, got %+v", hooks.calls)
		}
	})

	t.Run("ledger failures do not fail the write", func(t *testing.T) {
		hooks := &creditHooksStub{report: credits.Report{Failures: []credits.Failure{{ClientID: "u1", Delta: -1, Err: errors.New("down")}}}}
		svc := NewEventService(newEventRepoStub(), hooks, brt, sequentialIDs("ev"), nil)

		if _, err := svc.CreateEvent(context.Background(), classInput("u1")); err != nil {
			t.Fatalf("expected success despite ledger failure, got %v", err)
		}
	})
}

func TestEventService_UpdateEvent(t *testing.T) {
	stored := persistence.Event{
		ID:           "ev-1",
		Type:         persistence.EventTypeClass,
		Datetime:     "2026-01-14T18:00:00-03:00",
		Duration:     60,
		Client:       []string{"a", "b"},
		Professional: []string{"p1"},
		Company:      "c1",
		TemplateID:   "tpl-1",
	}

	t.Run("passes both versions to the ledger", func(t *testing.T) {
		repo := newEventRepoStub(stored)
		hooks := &creditHooksStub{}
		svc := NewEventService(repo, hooks, brt, nil, nil)

		updated, err := svc.UpdateEvent(context.Background(), "ev-1", classInput("b", "c"))
		if err != nil {
			t.Fatalf("UpdateEvent returned error: %v", err)
		}
		if updated.TemplateID != "tpl-1" {
			t.Fatalf("expected template id to survive update, got %q", updated.TemplateID)
		}
		if len(hooks.calls) != 1 || hooks.calls[0].op != "update" {
			t.Fatalf("expected one update hook call, got %+v", hooks.calls)
		}
		call := hooks.calls[0]
		if len(call.before.Client) != 2 || call.before.Client[0] != "a" {
			t.Fatalf("expected stored version as before, got %+v", call.before)
		}
		if len(call.after.Client) != 2 || call.after.Client[1] != "c" {
			t.Fatalf("expected new version as after, got %+v", call.after)
		}
		if repo.events["ev-1"].Client[1] != "c" {
			t.Fatalf("expected repository to hold the new version")
		}
	})

	t.Run("maps missing events", func(t *testing.T) {
		hooks := &creditHooksStub{}
		svc := NewEventService(newEventRepoStub(), hooks, brt, nil, nil)

		_, err := svc.UpdateEvent(context.Background(), "missing", classInput("a"))
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if len(hooks.calls) != 0 {
			t.Fatalf("expected no hook calls")
		}
	})

	t.Run("concurrent edit wins and nothing is charged", func(t *testing.T) {
		repo := newEventRepoStub(stored)
		repo.beforeUpdate = func() {
			changed := repo.events["ev-1"].Clone()
			changed.Client = []string{"a", "b", "d"}
			repo.events["ev-1"] = changed
		}
		hooks := &creditHooksStub{}
		svc := NewEventService(repo, hooks, brt, nil, nil)

		_, err := svc.UpdateEvent(context.Background(), "ev-1", classInput("b", "c"))
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		if len(hooks.calls) != 0 {
			t.Fatalf("expected no hook calls, got %+v", hooks.calls)
		}
		if got := repo.events["ev-1"].Client; len(got) != 3 || got[2] != "d" {
			t.Fatalf("expected the concurrent version to remain, got %v", got)
		}
	})

	t.Run("rejects a blank id", func(t *testing.T) {
		repo := newEventRepoStub(stored)
		svc := NewEventService(repo, &creditHooksStub{}, brt, nil, nil)

		_, err := svc.UpdateEvent(context.Background(), " ", classInput("a"))
		if !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest, got %v", err)
		}
		if err := svc.DeleteEvent(context.Background(), ""); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest from delete, got %v", err)
		}
	})
}

func TestEventService_DeleteEvent(t *testing.T) {
	stored := persistence.Event{ID: "ev-1", Type: persistence.EventTypeClass, Datetime: "2026-01-14T18:00:00-03:00", Duration: 60, Client: []string{"u1"}, Company: "c1"}

	t.Run("refunds the stored version", func(t *testing.T) {
		repo := newEventRepoStub(stored)
		hooks := &creditHooksStub{}
		svc := NewEventService(repo, hooks, brt, nil, nil)

		if err := svc.DeleteEvent(context.Background(), "ev-1"); err != nil {
			t.Fatalf("DeleteEvent returned error: %v", err)
		}
		if _, ok := repo.events["ev-1"]; ok {
			t.Fatalf("expected event to be removed")
		}
		if len(hooks.calls) != 1 || hooks.calls[0].op != "delete" || hooks.calls[0].before.Client[0] != "u1" {
			t.Fatalf("expected delete hook with stored event, got %+v", hooks.calls)
		}
	})

	t.Run("delete failure skips ledger", func(t *testing.T) {
		repo := newEventRepoStub(stored)
		repo.deleteErr = errors.New("disk full")
		hooks := &creditHooksStub{}
		svc := NewEventService(repo, hooks, brt, nil, nil)

		if err := svc.DeleteEvent(context.Background(), "ev-1"); err == nil {
			t.Fatalf("expected error")
		}
		if len(hooks.calls) != 0 {
			t.Fatalf("expected no hook calls")
		}
	})

	t.Run("missing event", func(t *testing.T) {
		svc := NewEventService(newEventRepoStub(), nil, brt, nil, nil)
		if err := svc.DeleteEvent(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestEventService_ListEvents(t *testing.T) {
	repo := newEventRepoStub(
		persistence.Event{ID: "a", Company: "c1", Datetime: "2026-01-10T10:00:00-03:00"},
		persistence.Event{ID: "b", Company: "c1", Datetime: "2026-01-20T10:00:00-03:00"},
		persistence.Event{ID: "c", Company: "c2", Datetime: "2026-01-12T10:00:00-03:00"},
	)
	svc := NewEventService(repo, nil, brt, nil, nil)

	t.Run("filters by company and range", func(t *testing.T) {
		events, err := svc.ListEvents(context.Background(), ListEventsParams{Company: "c1", From: "2026-01-01", To: "2026-01-15"})
		if err != nil {
			t.Fatalf("ListEvents returned error: %v", err)
		}
		if len(events) != 1 || events[0].ID != "a" {
			t.Fatalf("expected only event a, got %+v", events)
		}
		if got := repo.filter.From; got.Location() != brt || got.Day() != 1 {
			t.Fatalf("expected date-only bound in service zone, got %v", got)
		}
	})

	t.Run("rejects bad bounds", func(t *testing.T) {
		_, err := svc.ListEvents(context.Background(), ListEventsParams{From: "soon", To: "2026-01-01T00:00"})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"company", "from"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("expected %s error, got %v", field, vErr.FieldErrors)
			}
		}
	})

	t.Run("rejects inverted range", func(t *testing.T) {
		_, err := svc.ListEvents(context.Background(), ListEventsParams{Company: "c1", From: "2026-01-15", To: "2026-01-01"})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["to"] == "" {
			t.Fatalf("expected to validation error, got %v", err)
		}
	})

	t.Run("empty result is not nil", func(t *testing.T) {
		events, err := svc.ListEvents(context.Background(), ListEventsParams{Company: "none"})
		if err != nil || events == nil || len(events) != 0 {
			t.Fatalf("expected empty slice, got %v %v", events, err)
		}
	})
}

func TestEventService_NilReceiver(t *testing.T) {
	var svc *EventService
	if _, err := svc.CreateEvent(context.Background(), EventInput{}); err == nil {
		t.Fatalf("expected error from nil service")
	}
	if err := svc.DeleteEvent(context.Background(), "x"); err == nil {
		t.Fatalf("expected error from nil service")
	}
}
