package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/studio-scheduler/internal/persistence"
	"github.com/example/studio-scheduler/internal/persistence/sqlstore"
)

// StoreHarness provides repository access backed by a temporary, migrated
// SQLite database for integration-style tests.
type StoreHarness struct {
	Store *sqlstore.Store

	Companies persistence.CompanyRepository
	Profiles  persistence.ProfileRepository
	Templates persistence.TemplateRepository
	Events    persistence.EventRepository
}

// NewStoreHarness opens a store in tb's temp dir interpreting naive datetimes
// in Zone. The store is closed when the test finishes.
func NewStoreHarness(tb testing.TB) *StoreHarness {
	tb.Helper()

	ctx := context.Background()
	store, err := sqlstore.Open(ctx, sqlstore.Options{
		Driver:   sqlstore.DriverSQLite,
		DSN:      filepath.Join(tb.TempDir(), "studio.db"),
		Location: Zone(),
	})
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(ctx); err != nil {
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	return &StoreHarness{
		Store:     store,
		Companies: store,
		Profiles:  store,
		Templates: store,
		Events:    store,
	}
}

// SeedCompany stores company and its profiles.
func (h *StoreHarness) SeedCompany(tb testing.TB, company persistence.Company, profiles ...persistence.Profile) {
	tb.Helper()
	ctx := context.Background()
	if err := h.Companies.UpsertCompany(ctx, company); err != nil {
		tb.Fatalf("failed to seed company %s: %v", company.ID, err)
	}
	for _, p := range profiles {
		if err := h.Profiles.UpsertProfile(ctx, p); err != nil {
			tb.Fatalf("failed to seed profile %s: %v", p.ID, err)
		}
	}
}

// SeedTemplates stores class templates.
func (h *StoreHarness) SeedTemplates(tb testing.TB, templates ...persistence.ClassTemplate) {
	tb.Helper()
	for _, tmpl := range templates {
		if err := h.Templates.UpsertTemplate(context.Background(), tmpl); err != nil {
			tb.Fatalf("failed to seed template %s: %v", tmpl.ID, err)
		}
	}
}

// SeedEvents stores events as-is without touching credits.
func (h *StoreHarness) SeedEvents(tb testing.TB, events ...persistence.Event) {
	tb.Helper()
	for _, ev := range events {
		if err := h.Events.CreateEvent(context.Background(), ev); err != nil {
			tb.Fatalf("failed to seed event %s: %v", ev.ID, err)
		}
	}
}

// Credits returns the stored balance for clientID, failing the test on error.
func (h *StoreHarness) Credits(tb testing.TB, clientID string) *int {
	tb.Helper()
	balance, err := h.Profiles.ClassCredits(context.Background(), clientID)
	if err != nil {
		tb.Fatalf("failed to read credits for %s: %v", clientID, err)
	}
	return balance
}
