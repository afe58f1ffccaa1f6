package bunstore

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"

	"github.com/uptrace/bun"

	"github.com/DiOS-Analysis/Backend/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a Bun ORM implementation of store.Store using PostgreSQL dialect.
// The caller owns the *bun.DB lifecycle; Store never closes it.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new Bun store. The Store does not close db on Close.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

// migrationLock is the advisory lock key that serializes concurrent
// Migrate calls from several dispatchd instances.
const migrationLock = 0x64696f73

// Migrate applies the embedded SQL files that dios_migrations does not
// list yet. Each file runs in its own transaction together with its
// bookkeeping row.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.NewRaw(`
		CREATE TABLE IF NOT EXISTS dios_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`).Exec(ctx); err != nil {
		return fmt.Errorf("backend/bun: create migrations table: %w", err)
	}

	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("backend/bun: list migrations: %w", err)
	}
	slices.Sort(files)

	for _, file := range files {
		name := path.Base(file)
		applied := false
		err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.NewRaw(`SELECT pg_advisory_xact_lock(?)`, migrationLock).Exec(ctx); err != nil {
				return err
			}
			var done bool
			if err := tx.NewRaw(
				`SELECT EXISTS(SELECT 1 FROM dios_migrations WHERE filename = ?)`, name,
			).Scan(ctx, &done); err != nil || done {
				return err
			}
			body, err := fs.ReadFile(migrationsFS, file)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, string(body)); err != nil {
				return err
			}
			if _, err := tx.NewRaw(`INSERT INTO dios_migrations (filename) VALUES (?)`, name).Exec(ctx); err != nil {
				return err
			}
			applied = true
			return nil
		})
		if err != nil {
			return fmt.Errorf("backend/bun: migration %s: %w", name, err)
		}
		if applied {
			s.logger.Info("applied migration", slog.String("file", name))
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op because the caller owns the *bun.DB lifecycle.
func (s *Store) Close() error {
	return nil
}
