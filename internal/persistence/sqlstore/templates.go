package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/example/studio-scheduler/internal/persistence"
)

type templateRow struct {
	ID           string        `db:"id"`
	Company      string        `db:"company"`
	Weekday      sql.NullInt64 `db:"weekday"`
	Datetime     string        `db:"datetime"`
	ClockTime    string        `db:"clock_time"`
	Duration     int           `db:"duration"`
	Client       string        `db:"client"`
	Professional string        `db:"professional"`
	Notes        string        `db:"notes"`
}

func (r templateRow) model() (persistence.ClassTemplate, error) {
	t := persistence.ClassTemplate{
		ID:       r.ID,
		Company:  r.Company,
		Datetime: r.Datetime,
		Time:     r.ClockTime,
		Duration: r.Duration,
		Notes:    r.Notes,
	}
	if r.Weekday.Valid {
		day := int(r.Weekday.Int64)
		t.Day = &day
	}
	if err := decodeIDs(r.Client, &t.Client); err != nil {
		return persistence.ClassTemplate{}, fmt.Errorf("template %s client: %w", r.ID, err)
	}
	if err := decodeIDs(r.Professional, &t.Professional); err != nil {
		return persistence.ClassTemplate{}, fmt.Errorf("template %s professional: %w", r.ID, err)
	}
	return t, nil
}

const templateColumns = `id, company, weekday, datetime, clock_time, duration, client, professional, notes`

// ListTemplates returns the class templates of a company ordered by id.
func (s *Store) ListTemplates(ctx context.Context, companyID string) ([]persistence.ClassTemplate, error) {
	var rows []templateRow
	query := s.rebind(`SELECT ` + templateColumns + ` FROM class_templates WHERE company = ? ORDER BY id`)
	if err := s.db.SelectContext(ctx, &rows, query, companyID); err != nil {
		return nil, fmt.Errorf("list templates of %s: %w", companyID, mapError(err))
	}
	out := make([]persistence.ClassTemplate, 0, len(rows))
	for _, row := range rows {
		tmpl, err := row.model()
		if err != nil {
			return nil, err
		}
		out = append(out, tmpl)
	}
	return out, nil
}

// UpsertTemplate inserts or replaces a class template.
func (s *Store) UpsertTemplate(ctx context.Context, tmpl persistence.ClassTemplate) error {
	clients, err := encodeIDs(tmpl.Client)
	if err != nil {
		return err
	}
	professionals, err := encodeIDs(tmpl.Professional)
	if err != nil {
		return err
	}
	weekday := sql.NullInt64{}
	if tmpl.Day != nil {
		weekday = sql.NullInt64{Int64: int64(*tmpl.Day), Valid: true}
	}

	query := s.rebind(`
		INSERT INTO class_templates (` + templateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			company = excluded.company,
			weekday = excluded.weekday,
			datetime = excluded.datetime,
			clock_time = excluded.clock_time,
			duration = excluded.duration,
			client = excluded.client,
			professional = excluded.professional,
			notes = excluded.notes`)

	err = s.retry.do(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query,
			tmpl.ID, tmpl.Company, weekday, tmpl.Datetime, tmpl.Time, tmpl.Duration, clients, professionals, tmpl.Notes)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert template %s: %w", tmpl.ID, err)
	}
	return nil
}

func encodeIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode ids: %w", err)
	}
	return string(raw), nil
}

func decodeIDs(raw string, dst *persistence.IDList) error {
	if raw == "" {
		*dst = nil
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}
