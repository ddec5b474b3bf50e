package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/studio-scheduler/internal/persistence"
)

type profileRow struct {
	ID           string        `db:"id"`
	User         string        `db:"user_id"`
	Company      string        `db:"company"`
	Role         string        `db:"role"`
	Name         string        `db:"name"`
	ClassCredits sql.NullInt64 `db:"class_credits"`
}

func (r profileRow) model() persistence.Profile {
	p := persistence.Profile{
		ID:      r.ID,
		User:    r.User,
		Company: r.Company,
		Role:    persistence.Role(r.Role),
		Name:    r.Name,
	}
	if r.ClassCredits.Valid {
		v := int(r.ClassCredits.Int64)
		p.ClassCredits = &v
	}
	return p
}

const profileColumns = `id, user_id, company, role, name, class_credits`

// GetProfile loads a profile by id.
func (s *Store) GetProfile(ctx context.Context, id string) (persistence.Profile, error) {
	var row profileRow
	query := s.rebind(`SELECT ` + profileColumns + ` FROM profiles WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		return persistence.Profile{}, fmt.Errorf("get profile %s: %w", id, mapError(err))
	}
	return row.model(), nil
}

// ListProfessionals returns the professionals of a company ordered by name.
func (s *Store) ListProfessionals(ctx context.Context, companyID string) ([]persistence.Profile, error) {
	var rows []profileRow
	query := s.rebind(`SELECT ` + profileColumns + ` FROM profiles WHERE company = ? AND role = ? ORDER BY name, id`)
	if err := s.db.SelectContext(ctx, &rows, query, companyID, string(persistence.RoleProfessional)); err != nil {
		return nil, fmt.Errorf("list professionals of %s: %w", companyID, mapError(err))
	}
	out := make([]persistence.Profile, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

// UpsertProfile inserts or replaces a profile, including its credit balance.
func (s *Store) UpsertProfile(ctx context.Context, profile persistence.Profile) error {
	query := s.rebind(`
		INSERT INTO profiles (` + profileColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			company = excluded.company,
			role = excluded.role,
			name = excluded.name,
			class_credits = excluded.class_credits`)

	err := s.retry.do(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query,
			profile.ID, profile.User, profile.Company, string(profile.Role), profile.Name, nullableInt(profile.ClassCredits))
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", profile.ID, err)
	}
	return nil
}

// ClassCredits returns the stored balance, nil when the column is null.
func (s *Store) ClassCredits(ctx context.Context, clientID string) (*int, error) {
	var credits sql.NullInt64
	query := s.rebind(`SELECT class_credits FROM profiles WHERE id = ?`)
	if err := s.db.GetContext(ctx, &credits, query, clientID); err != nil {
		return nil, fmt.Errorf("class credits of %s: %w", clientID, mapError(err))
	}
	if !credits.Valid {
		return nil, nil
	}
	v := int(credits.Int64)
	return &v, nil
}

// SetClassCredits stores next only while the balance still equals expected.
// It returns persistence.ErrConflict when another writer changed the row
// first and persistence.ErrNotFound when the profile does not exist.
func (s *Store) SetClassCredits(ctx context.Context, clientID string, expected *int, next int) error {
	query := `UPDATE profiles SET class_credits = ? WHERE id = ? AND class_credits IS NULL`
	args := []any{next, clientID}
	if expected != nil {
		query = `UPDATE profiles SET class_credits = ? WHERE id = ? AND class_credits = ?`
		args = append(args, *expected)
	}
	query = s.rebind(query)

	var affected int64
	err := s.retry.do(ctx, func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("set class credits of %s: %w", clientID, err)
	}
	if affected > 0 {
		return nil
	}

	var exists int
	if err := s.db.GetContext(ctx, &exists, s.rebind(`SELECT COUNT(1) FROM profiles WHERE id = ?`), clientID); err != nil {
		return fmt.Errorf("set class credits of %s: %w", clientID, mapError(err))
	}
	if exists == 0 {
		return fmt.Errorf("set class credits of %s: %w", clientID, persistence.ErrNotFound)
	}
	return fmt.Errorf("set class credits of %s: %w", clientID, persistence.ErrConflict)
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
