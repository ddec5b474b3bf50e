package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/example/studio-scheduler/internal/datemath"
	"github.com/example/studio-scheduler/internal/persistence"
)

// startsAtLayout keeps UTC start times lexically sortable.
const startsAtLayout = "2006-01-02T15:04:05Z"

type eventRow struct {
	ID           string         `db:"id"`
	Company      string         `db:"company"`
	Type         string         `db:"type"`
	Datetime     string         `db:"datetime"`
	StartsAt     string         `db:"starts_at"`
	OccursOn     string         `db:"occurs_on"`
	Duration     int            `db:"duration"`
	Client       string         `db:"client"`
	Professional string         `db:"professional"`
	Notes        string         `db:"notes"`
	TemplateID   sql.NullString `db:"template_id"`
	// TemplateDate is the calendar date the template generated the event
	// for. It is set once on insert and survives rescheduling.
	TemplateDate sql.NullString `db:"template_date"`
}

func (r eventRow) model() (persistence.Event, error) {
	ev := persistence.Event{
		ID:         r.ID,
		Type:       persistence.EventType(r.Type),
		Datetime:   r.Datetime,
		Duration:   r.Duration,
		Company:    r.Company,
		Notes:      r.Notes,
		TemplateID: r.TemplateID.String,
	}
	if err := json.Unmarshal([]byte(orEmptyList(r.Client)), &ev.Client); err != nil {
		return persistence.Event{}, fmt.Errorf("event %s client: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(orEmptyList(r.Professional)), &ev.Professional); err != nil {
		return persistence.Event{}, fmt.Errorf("event %s professional: %w", r.ID, err)
	}
	return ev, nil
}

const eventColumns = `id, company, type, datetime, starts_at, occurs_on, duration, client, professional, notes, template_id, template_date`

func (s *Store) eventRow(ev persistence.Event) (eventRow, error) {
	clients, err := encodeIDs(ev.Client)
	if err != nil {
		return eventRow{}, err
	}
	professionals, err := encodeIDs(ev.Professional)
	if err != nil {
		return eventRow{}, err
	}
	row := eventRow{
		ID:           ev.ID,
		Company:      ev.Company,
		Type:         string(ev.Type),
		Datetime:     ev.Datetime,
		Duration:     ev.Duration,
		Client:       clients,
		Professional: professionals,
		Notes:        ev.Notes,
		TemplateID:   sql.NullString{String: ev.TemplateID, Valid: ev.TemplateID != ""},
	}
	if start, ok := datemath.ParseIn(ev.Datetime, s.location); ok {
		row.StartsAt = start.UTC().Format(startsAtLayout)
		row.OccursOn = start.Format(datemath.DateLayout)
	}
	if row.TemplateID.Valid && row.OccursOn != "" {
		row.TemplateDate = sql.NullString{String: row.OccursOn, Valid: true}
	}
	return row, nil
}

func insertEvent(ctx context.Context, exec sqlx.ExtContext, row eventRow) error {
	query := exec.Rebind(`INSERT INTO events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := exec.ExecContext(ctx, query,
		row.ID, row.Company, row.Type, row.Datetime, row.StartsAt, row.OccursOn,
		row.Duration, row.Client, row.Professional, row.Notes, row.TemplateID, row.TemplateDate)
	return err
}

// CreateEvent inserts a new event.
func (s *Store) CreateEvent(ctx context.Context, ev persistence.Event) error {
	row, err := s.eventRow(ev)
	if err != nil {
		return err
	}
	if err := s.retry.do(ctx, func() error { return insertEvent(ctx, s.db, row) }); err != nil {
		return fmt.Errorf("create event %s: %w", ev.ID, err)
	}
	return nil
}

// GetEvent loads an event by id.
func (s *Store) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	var row eventRow
	query := s.rebind(`SELECT ` + eventColumns + ` FROM events WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		return persistence.Event{}, fmt.Errorf("get event %s: %w", id, mapError(err))
	}
	return row.model()
}

// UpdateEvent replaces the mutable columns of an event with after, provided
// the stored row still matches before in type, start and rosters. A row edited
// in between yields persistence.ErrConflict. The template id and generated
// date are never rewritten, so a rescheduled occurrence still counts as
// propagated for its original date.
func (s *Store) UpdateEvent(ctx context.Context, before, after persistence.Event) error {
	row, err := s.eventRow(after)
	if err != nil {
		return err
	}
	selectQuery := `SELECT ` + eventColumns + ` FROM events WHERE id = ?`
	if s.driver == DriverPostgres {
		selectQuery += ` FOR UPDATE`
	}
	updateQuery := `
		UPDATE events SET
			company = ?, type = ?, datetime = ?, starts_at = ?, occurs_on = ?,
			duration = ?, client = ?, professional = ?, notes = ?
		WHERE id = ?`

	err = s.retry.do(ctx, func() error {
		return s.WithTransaction(ctx, func(tx *sqlx.Tx) error {
			var current eventRow
			if err := tx.GetContext(ctx, &current, tx.Rebind(selectQuery), row.ID); err != nil {
				return err
			}
			stored, err := current.model()
			if err != nil {
				return err
			}
			if !sameEnrollment(stored, before) {
				return persistence.ErrConflict
			}
			_, err = tx.ExecContext(ctx, tx.Rebind(updateQuery),
				row.Company, row.Type, row.Datetime, row.StartsAt, row.OccursOn,
				row.Duration, row.Client, row.Professional, row.Notes, row.ID)
			return err
		})
	})
	if err != nil {
		return fmt.Errorf("update event %s: %w", after.ID, err)
	}
	return nil
}

func sameEnrollment(a, b persistence.Event) bool {
	return a.Type == b.Type &&
		a.Datetime == b.Datetime &&
		slices.Equal(a.Client, b.Client) &&
		slices.Equal(a.Professional, b.Professional)
}

// DeleteEvent removes an event.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	query := s.rebind(`DELETE FROM events WHERE id = ?`)
	var affected int64
	err := s.retry.do(ctx, func() error {
		res, err := s.db.ExecContext(ctx, query, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("delete event %s: %w", id, persistence.ErrNotFound)
	}
	return nil
}

// ListEvents returns events matching the filter ordered by start time. Events
// whose datetime could not be parsed only match filters without time bounds.
func (s *Store) ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.CompanyID != "" {
		clauses = append(clauses, "company = ?")
		args = append(args, filter.CompanyID)
	}
	if !filter.From.IsZero() {
		clauses = append(clauses, "starts_at <> '' AND starts_at >= ?")
		args = append(args, filter.From.UTC().Format(startsAtLayout))
	}
	if !filter.To.IsZero() {
		clauses = append(clauses, "starts_at <> '' AND starts_at < ?")
		args = append(args, filter.To.UTC().Format(startsAtLayout))
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY starts_at, id`

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, s.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list events: %w", mapError(err))
	}
	out := make([]persistence.Event, 0, len(rows))
	for _, row := range rows {
		ev, err := row.model()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// EventExistsForTemplate reports whether the template already produced an
// event for date (YYYY-MM-DD), wherever that event has since been moved.
func (s *Store) EventExistsForTemplate(ctx context.Context, templateID, date string) (bool, error) {
	return eventExistsForTemplate(ctx, s.db, templateID, date)
}

func eventExistsForTemplate(ctx context.Context, q sqlx.ExtContext, templateID, date string) (bool, error) {
	var count int
	query := q.Rebind(`SELECT COUNT(1) FROM events WHERE template_id = ? AND template_date = ?`)
	if err := sqlx.GetContext(ctx, q, &count, query, templateID, date); err != nil {
		return false, fmt.Errorf("check template %s on %s: %w", templateID, date, mapError(err))
	}
	return count > 0, nil
}

// InsertPropagated inserts template-generated events in one transaction.
// Events without a template id are always inserted.
func (s *Store) InsertPropagated(ctx context.Context, events []persistence.Event) (persistence.InsertResult, error) {
	var result persistence.InsertResult
	err := s.retry.do(ctx, func() error {
		result = persistence.InsertResult{}
		return s.WithTransaction(ctx, func(tx *sqlx.Tx) error {
			for _, ev := range events {
				row, err := s.eventRow(ev)
				if err != nil {
					return err
				}
				if row.TemplateDate.Valid {
					exists, err := eventExistsForTemplate(ctx, tx, row.TemplateID.String, row.TemplateDate.String)
					if err != nil {
						return err
					}
					if exists {
						result.Skipped = append(result.Skipped, ev)
						continue
					}
				}
				if err := insertEvent(ctx, tx, row); err != nil {
					return err
				}
				result.Inserted = append(result.Inserted, ev)
			}
			return nil
		})
	})
	if err != nil {
		return persistence.InsertResult{}, fmt.Errorf("insert propagated events: %w", err)
	}
	return result, nil
}

func orEmptyList(raw string) string {
	if raw == "" {
		return "[]"
	}
	return raw
}
