package sqlstore

import (
	"context"
	"fmt"

	"github.com/example/studio-scheduler/internal/persistence"
)

type companyRow struct {
	ID              string `db:"id"`
	Name            string `db:"name"`
	OpenTime        string `db:"open_time"`
	CloseTime       string `db:"close_time"`
	DefaultDuration int    `db:"default_appointment_duration"`
}

func (r companyRow) model() persistence.Company {
	return persistence.Company{
		ID:                         r.ID,
		Name:                       r.Name,
		OpenTime:                   r.OpenTime,
		CloseTime:                  r.CloseTime,
		DefaultAppointmentDuration: r.DefaultDuration,
	}
}

const companyColumns = `id, name, open_time, close_time, default_appointment_duration`

// GetCompany loads a company by id.
func (s *Store) GetCompany(ctx context.Context, id string) (persistence.Company, error) {
	var row companyRow
	query := s.rebind(`SELECT ` + companyColumns + ` FROM companies WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		return persistence.Company{}, fmt.Errorf("get company %s: %w", id, mapError(err))
	}
	return row.model(), nil
}

// ListCompanies returns every company ordered by id.
func (s *Store) ListCompanies(ctx context.Context) ([]persistence.Company, error) {
	var rows []companyRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+companyColumns+` FROM companies ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list companies: %w", mapError(err))
	}
	out := make([]persistence.Company, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

// UpsertCompany inserts or replaces a company.
func (s *Store) UpsertCompany(ctx context.Context, company persistence.Company) error {
	query := s.rebind(`
		INSERT INTO companies (` + companyColumns + `)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			open_time = excluded.open_time,
			close_time = excluded.close_time,
			default_appointment_duration = excluded.default_appointment_duration`)

	err := s.retry.do(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query,
			company.ID, company.Name, company.OpenTime, company.CloseTime, company.DefaultAppointmentDuration)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert company %s: %w", company.ID, err)
	}
	return nil
}
