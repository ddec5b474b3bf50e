// Package jobs runs scheduled background work.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/studio-scheduler/internal/application"
	"github.com/example/studio-scheduler/internal/logging"
	"github.com/example/studio-scheduler/internal/persistence"
)

// CompanyLister lists every company whose templates are propagated.
type CompanyLister interface {
	ListCompanies(ctx context.Context) ([]persistence.Company, error)
}

// Propagator runs one company month.
type Propagator interface {
	Propagate(ctx context.Context, input application.PropagationInput) (application.PropagationResult, error)
}

// Summary reports one monthly run across all companies.
type Summary struct {
	Month     int
	Year      int
	Companies int
	Inserted  int
	Skipped   int
	// Busy lists companies whose month was already being propagated.
	Busy   []string
	Failed []string
}

// MonthlyPropagation expands next month's stored templates for every company.
type MonthlyPropagation struct {
	companies  CompanyLister
	propagator Propagator
	location   *time.Location
	logger     *slog.Logger
}

// NewMonthlyPropagation constructs the job. Months are computed in loc.
func NewMonthlyPropagation(companies CompanyLister, propagator Propagator, loc *time.Location, logger *slog.Logger) *MonthlyPropagation {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MonthlyPropagation{companies: companies, propagator: propagator, location: loc, logger: logger}
}

// NextMonth returns the calendar month after the one containing now.
func NextMonth(now time.Time, loc *time.Location) (int, int) {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, 1, 0)
	return int(next.Month()), next.Year()
}

// RunOnce propagates the month after now for each company. A company that
// fails does not stop the others; the run only errors when companies cannot
// be listed.
func (j *MonthlyPropagation) RunOnce(ctx context.Context, now time.Time) (Summary, error) {
	if j == nil || j.companies == nil || j.propagator == nil {
		return Summary{}, fmt.Errorf("monthly propagation not configured")
	}

	month, year := NextMonth(now, j.location)
	summary := Summary{Month: month, Year: year}
	logger := j.logger.With("job", "monthly_propagation", "month", month, "year", year)
	ctx = logging.ContextWithLogger(ctx, logger)

	companies, err := j.companies.ListCompanies(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list companies", "error", err)
		return summary, fmt.Errorf("list companies: %w", err)
	}
	summary.Companies = len(companies)

	for _, company := range companies {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		companyLogger := logger.With("company", company.ID)
		result, err := j.propagator.Propagate(ctx, application.PropagationInput{Company: company.ID, Month: month, Year: year})
		switch {
		case errors.Is(err, application.ErrBusy):
			companyLogger.WarnContext(ctx, "propagation already running")
			summary.Busy = append(summary.Busy, company.ID)
		case err != nil:
			companyLogger.ErrorContext(ctx, "company propagation failed", "error", err, "error_kind", application.ErrorKind(err))
			summary.Failed = append(summary.Failed, company.ID)
		default:
			summary.Inserted += len(result.Inserted)
			summary.Skipped += len(result.Skipped)
			companyLogger.InfoContext(ctx, "company propagated", "inserted", len(result.Inserted), "skipped", len(result.Skipped))
		}
	}

	logger.InfoContext(ctx, "monthly propagation finished",
		"companies", summary.Companies,
		"inserted", summary.Inserted,
		"failed", len(summary.Failed),
	)
	return summary, nil
}
