package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/varoOP/biblestore/internal/domain"
	"github.com/varoOP/biblestore/internal/metrics"
)

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	identifier TEXT NOT NULL PRIMARY KEY
);`

// Migration is one named schema or data change. Once an identifier has
// shipped its Up body must never change; fixes go into a new migration.
type Migration struct {
	ID string
	Up func(ctx context.Context, tx *Tx) error
}

// Migrator applies migrations in registration order. Identifiers are never
// parsed or sorted.
type Migrator struct {
	log        zerolog.Logger
	migrations []Migration
	ids        map[string]struct{}
}

// NewMigrator creates a migrator with the given steps registered in order.
func NewMigrator(log zerolog.Logger, migrations ...Migration) *Migrator {
	m := &Migrator{
		log: log.With().Str("module", "migrator").Logger(),
		ids: make(map[string]struct{}),
	}
	m.Register(migrations...)
	return m
}

// Register appends steps. A duplicate or empty identifier is a programming
// error and panics.
func (m *Migrator) Register(migrations ...Migration) {
	for _, mig := range migrations {
		if mig.ID == "" || mig.Up == nil {
			panic("database: migration needs an identifier and a body")
		}
		if _, ok := m.ids[mig.ID]; ok {
			panic(fmt.Sprintf("database: migration %q registered twice", mig.ID))
		}
		m.ids[mig.ID] = struct{}{}
		m.migrations = append(m.migrations, mig)
	}
}

// IDs returns the registered identifiers in registration order.
func (m *Migrator) IDs() []string {
	ids := make([]string, 0, len(m.migrations))
	for _, mig := range m.migrations {
		ids = append(ids, mig.ID)
	}
	return ids
}

// Migrate applies every registered step that is not yet recorded. Each step
// runs in its own transaction together with the insert of its identifier. On
// failure the step is rolled back, earlier steps stay applied, and the error
// wraps domain.ErrMigrationFailed.
func (m *Migrator) Migrate(ctx context.Context, handler *sql.DB) error {
	if _, err := handler.ExecContext(ctx, createMigrationsTable); err != nil {
		return errors.Wrap(err, "failed to create migrations table")
	}

	applied, err := appliedSet(ctx, handler)
	if err != nil {
		return err
	}

	pending := 0
	for _, mig := range m.migrations {
		if _, ok := applied[mig.ID]; !ok {
			pending++
		}
	}
	if pending == 0 {
		m.log.Debug().Int("applied", len(applied)).Msg("Database schema is up to date")
		return nil
	}

	m.log.Info().Int("pending", pending).Int("applied", len(applied)).Msg("Beginning database schema upgrade")

	for _, mig := range m.migrations {
		if _, ok := applied[mig.ID]; ok {
			continue
		}

		if err := m.apply(ctx, handler, mig); err != nil {
			metrics.MigrationFailuresTotal.Inc()
			return errors.Wrapf(domain.ErrMigrationFailed, "%s: %v", mig.ID, err)
		}

		metrics.MigrationsAppliedTotal.Inc()
		m.log.Info().Str("migration", mig.ID).Msg("Applied migration")
	}

	m.log.Info().Int("applied", len(m.migrations)).Msg("Database schema upgrade complete")
	return nil
}

func (m *Migrator) apply(ctx context.Context, handler *sql.DB, mig Migration) error {
	tx, err := beginTx(ctx, handler, m.log, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := mig.Up(ctx, tx); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (identifier) VALUES (?)`, mig.ID); err != nil {
		return errors.Wrap(err, "failed to record migration")
	}

	return errors.Wrap(tx.Commit(), "failed to commit migration")
}

// Applied returns the recorded identifiers in the order they were recorded.
func (m *Migrator) Applied(ctx context.Context, db *DB) ([]string, error) {
	return ReadValue(ctx, db, func(tx *Tx) ([]string, error) {
		return appliedIDs(ctx, tx)
	})
}

// Pending returns registered identifiers that are not recorded, in registration order.
func (m *Migrator) Pending(ctx context.Context, db *DB) ([]string, error) {
	applied, err := m.Applied(ctx, db)
	if err != nil {
		return nil, err
	}

	done := make(map[string]struct{}, len(applied))
	for _, id := range applied {
		done[id] = struct{}{}
	}

	var pending []string
	for _, mig := range m.migrations {
		if _, ok := done[mig.ID]; !ok {
			pending = append(pending, mig.ID)
		}
	}
	return pending, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func appliedIDs(ctx context.Context, q querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT identifier FROM schema_migrations ORDER BY rowid`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query applied migrations")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "error scanning row")
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating rows")
	}
	return ids, nil
}

func appliedSet(ctx context.Context, q querier) (map[string]struct{}, error) {
	ids, err := appliedIDs(ctx, q)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// markApplied records ids without running their bodies. It is used against a
// freshly copied bundle whose schema already contains those steps.
func markApplied(ctx context.Context, handler *sql.DB, ids []string) error {
	tx, err := handler.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createMigrationsTable); err != nil {
		return errors.Wrap(err, "failed to create migrations table")
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO schema_migrations (identifier) VALUES (?)`, id); err != nil {
			return errors.Wrapf(err, "failed to mark migration %s", id)
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit migration marks")
}
