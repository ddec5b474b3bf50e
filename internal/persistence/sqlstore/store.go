// Package sqlstore implements the persistence repositories on top of sqlx.
// Queries are written with '?' placeholders and rebound for the configured
// driver, so the same statements serve SQLite and PostgreSQL.
package sqlstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/example/studio-scheduler/internal/persistence"
)

const (
	// DriverSQLite selects the modernc.org/sqlite driver.
	DriverSQLite = "sqlite"
	// DriverPostgres selects the pgx stdlib driver.
	DriverPostgres = "pgx"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Options configures Open.
type Options struct {
	Driver string
	DSN    string
	// Location interprets naive event datetimes when deriving the stored
	// calendar date and UTC start. Defaults to time.Local.
	Location *time.Location
	Retry    RetryConfig
}

// Store is a connection pool exposing every persistence repository.
type Store struct {
	db       *sqlx.DB
	driver   string
	location *time.Location
	retry    *retrier
}

// Open connects to the database described by opts and verifies the connection.
func Open(ctx context.Context, opts Options) (*Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
	if opts.DSN == "" {
		return nil, errors.New("sqlstore: dsn is required")
	}

	db, err := sqlx.Open(driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// A single connection serializes writers and keeps in-memory
		// databases shared across queries.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: ping %s: %w", driver, err)
	}

	return New(db, opts), nil
}

// New wraps an existing connection. opts.Driver defaults to the sqlx driver name.
func New(db *sqlx.DB, opts Options) *Store {
	driver := opts.Driver
	if driver == "" {
		driver = db.DriverName()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	retry := opts.Retry
	if retry.MaxRetries == 0 && retry.InitialDelay == 0 {
		retry = DefaultRetryConfig()
	}
	return &Store{db: db, driver: driver, location: loc, retry: newRetrier(retry)}
}

// DB exposes the underlying connection pool.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	dialect := goose.DialectSQLite3
	if s.driver == DriverPostgres {
		dialect = goose.DialectPostgres
	}

	fsys, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("sqlstore: load migrations: %w", err)
	}
	provider, err := goose.NewProvider(dialect, s.db.DB, fsys)
	if err != nil {
		return fmt.Errorf("sqlstore: migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return nil
}

// TxFunc runs inside a transaction.
type TxFunc func(tx *sqlx.Tx) error

// WithTransaction runs fn in a transaction, rolling back when fn returns an
// error or panics and committing otherwise.
func (s *Store) WithTransaction(ctx context.Context, fn TxFunc) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("sqlstore: transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: commit transaction: %w", err)
	}
	return nil
}

func (s *Store) rebind(query string) string {
	return s.db.Rebind(query)
}

var (
	_ persistence.CompanyRepository  = (*Store)(nil)
	_ persistence.ProfileRepository  = (*Store)(nil)
	_ persistence.TemplateRepository = (*Store)(nil)
	_ persistence.EventRepository    = (*Store)(nil)
	_ persistence.PropagationWriter  = (*Store)(nil)
)
