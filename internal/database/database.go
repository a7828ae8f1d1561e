package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"os"
	"path/filepath"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/varoOP/biblestore/internal/domain"
	"github.com/varoOP/biblestore/internal/metrics"
)

const dsnPragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"

// Config describes the database a DB manages.
type Config struct {
	// Path is the working database file.
	Path string
	// Migrator applies the registered schema steps at startup.
	Migrator *Migrator
	// Bootstrapper installs the bundled dataset. Nil when the build ships no bundle.
	Bootstrapper *Bootstrapper
}

// DB is the only access path to the database file. Every read and write
// goes through Read and Write; the *sql.DB handle never leaves this package.
type DB struct {
	handler *sql.DB
	log     zerolog.Logger
	lock    sync.RWMutex

	path      string
	migrator  *Migrator
	bootstrap *Bootstrapper
	ready     bool
}

// NewDB creates an unopened database. Call Open before Read or Write.
func NewDB(log zerolog.Logger, cfg Config) *DB {
	migrator := cfg.Migrator
	if migrator == nil {
		migrator = NewMigrator(log, Migrations()...)
	}

	return &DB{
		log:       log.With().Str("module", "database").Logger(),
		path:      cfg.Path,
		migrator:  migrator,
		bootstrap: cfg.Bootstrapper,
	}
}

// Path returns the working database file.
func (db *DB) Path() string {
	return db.path
}

// Open runs the startup sequence: bundle decision, possible copy, then
// migration. No Read or Write is dispatched until it returns.
func (db *DB) Open(ctx context.Context) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	return db.startupLocked(ctx)
}

func (db *DB) startupLocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if db.bootstrap != nil && db.bootstrap.ShouldInstall(db.path) {
		if err := db.closeLocked(); err != nil {
			db.log.Warn().Err(err).Msg("failed to close database before bundle install")
		}
		if err := db.bootstrap.Install(ctx, db.path); err != nil {
			return err
		}
	}

	if db.handler == nil {
		handler, err := openHandler(db.path)
		if err != nil {
			return err
		}
		db.handler = handler
	}

	if err := db.migrator.Migrate(ctx, db.handler); err != nil {
		return err
	}

	db.ready = true
	db.log.Info().Str("path", db.path).Msg("Database ready")
	return nil
}

// openHandler opens a connection pool on path, creating parent directories.
func openHandler(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "unable to create database directory")
	}

	handler, err := sql.Open("sqlite", path+dsnPragmas)
	if err != nil {
		return nil, errors.Wrap(err, "unable to connect to database")
	}

	if err := handler.Ping(); err != nil {
		handler.Close()
		return nil, errors.Wrap(err, "unable to reach database")
	}

	return handler, nil
}

// MarkDegraded lets Read and Write run on the handle left open by a failed
// startup, typically one whose schema upgrade stopped part way. It returns
// domain.ErrNotInitialized when startup never got a handle.
func (db *DB) MarkDegraded() error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.handler == nil {
		return domain.ErrNotInitialized
	}
	if db.ready {
		return nil
	}

	db.ready = true
	db.log.Warn().Str("path", db.path).Msg("Database running degraded on partially migrated schema")
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	db.lock.Lock()
	defer db.lock.Unlock()

	return db.closeLocked()
}

func (db *DB) closeLocked() error {
	db.ready = false
	if db.handler == nil {
		return nil
	}

	handler := db.handler
	db.handler = nil

	if _, err := handler.Exec(`PRAGMA optimize;`); err != nil {
		db.log.Debug().Err(err).Msg("query planner optimization skipped")
	}

	return handler.Close()
}

// Ping checks if the database connection is alive
func (db *DB) Ping(ctx context.Context) error {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if !db.ready {
		return domain.ErrNotInitialized
	}
	return db.handler.PingContext(ctx)
}

// Optimize lets the query planner refresh its statistics.
func (db *DB) Optimize(ctx context.Context) error {
	return db.maintain(ctx, `PRAGMA optimize`)
}

// maintain runs statements that cannot execute inside a transaction, such
// as VACUUM, holding the exclusive lock.
func (db *DB) maintain(ctx context.Context, stmts ...string) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if !db.ready {
		return domain.ErrNotInitialized
	}

	for _, stmt := range stmts {
		db.log.Trace().Str("query", stmt).Msg("maintain")
		if _, err := db.handler.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to run %s", stmt)
		}
	}
	return nil
}

// Read runs fn in a transaction that is always rolled back. Reads share the
// lock with each other and never overlap a write. The connection is switched
// to query_only for the duration of fn, so a statement that writes fails
// instead of taking the SQLite write lock.
func (db *DB) Read(ctx context.Context, fn func(tx *Tx) error) error {
	db.lock.RLock()
	defer db.lock.RUnlock()

	return db.run(ctx, metrics.OpRead, fn, false)
}

// Write runs fn in a transaction committed when fn returns nil. At most one
// Write is in flight at a time.
func (db *DB) Write(ctx context.Context, fn func(tx *Tx) error) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	return db.run(ctx, metrics.OpWrite, fn, true)
}

func (db *DB) run(ctx context.Context, op string, fn func(tx *Tx) error, commit bool) (err error) {
	if !db.ready {
		return domain.ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	started := time.Now()
	defer func() {
		metrics.ObserveGateway(op, time.Since(started), err)
	}()

	var tx *Tx
	if commit {
		tx, err = db.BeginTx(ctx, nil)
	} else {
		tx, err = db.beginReadTx(ctx)
	}
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if !commit {
		return nil
	}

	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}

// ReadValue is Read for blocks that produce a value.
func ReadValue[T any](ctx context.Context, db *DB, fn func(tx *Tx) (T, error)) (T, error) {
	var out T
	err := db.Read(ctx, func(tx *Tx) error {
		v, err := fn(tx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// WriteValue is Write for blocks that produce a value.
func WriteValue[T any](ctx context.Context, db *DB, fn func(tx *Tx) (T, error)) (T, error) {
	var out T
	err := db.Write(ctx, func(tx *Tx) error {
		v, err := fn(tx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// BeginTx starts a new transaction. The caller must hold the lock.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	return beginTx(ctx, db.handler, db.log, opts)
}

// beginReadTx starts a transaction on a connection of its own that is
// query_only until the transaction ends. A connection whose flag cannot be
// cleared is dropped from the pool.
func (db *DB) beginReadTx(ctx context.Context) (*Tx, error) {
	conn, err := db.handler.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get connection")
	}

	release := func() {
		if _, err := conn.ExecContext(context.Background(), `PRAGMA query_only = 0`); err != nil {
			db.log.Error().Err(err).Msg("failed to leave read only mode, dropping connection")
			conn.Raw(func(any) error { return driver.ErrBadConn })
		}
		conn.Close()
	}

	if _, err := conn.ExecContext(ctx, `PRAGMA query_only = 1`); err != nil {
		release()
		return nil, errors.Wrap(err, "failed to enter read only mode")
	}

	tx, err := beginTx(ctx, conn, db.log, nil)
	if err != nil {
		release()
		return nil, err
	}
	tx.done = release
	return tx, nil
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

func beginTx(ctx context.Context, handler txBeginner, log zerolog.Logger, opts *sql.TxOptions) (*Tx, error) {
	tx, err := handler.BeginTx(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}

	return &Tx{
		Tx:       tx,
		log:      log,
		squirrel: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

// Tx represents a database transaction
type Tx struct {
	*sql.Tx
	log      zerolog.Logger
	squirrel sq.StatementBuilderType
	done     func()
}

// Rollback aborts the transaction and releases a dedicated connection.
// Calling it after Commit or a previous Rollback is harmless.
func (tx *Tx) Rollback() error {
	err := tx.Tx.Rollback()
	if tx.done != nil {
		tx.done()
		tx.done = nil
	}
	return err
}

// Builder returns the statement builder bound to sqlite placeholders.
func (tx *Tx) Builder() sq.StatementBuilderType {
	return tx.squirrel
}

// exec builds and runs a statement, logging it at trace level.
func (tx *Tx) exec(ctx context.Context, name string, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	tx.log.Trace().Str("query", query).Interface("args", args).Msg(name)

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error executing query")
	}
	return res, nil
}

// query builds and runs a select, logging it at trace level.
func (tx *Tx) query(ctx context.Context, name string, b sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	tx.log.Trace().Str("query", query).Interface("args", args).Msg(name)

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error executing query")
	}
	return rows, nil
}

// queryRow builds and runs a single row select.
func (tx *Tx) queryRow(ctx context.Context, name string, b sq.Sqlizer) (*sql.Row, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	tx.log.Trace().Str("query", query).Interface("args", args).Msg(name)

	return tx.QueryRowContext(ctx, query, args...), nil
}
