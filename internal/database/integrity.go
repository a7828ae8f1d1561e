package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/varoOP/biblestore/internal/domain"
	"github.com/varoOP/biblestore/internal/metrics"
)

// CheckIntegrity inspects the database and lists every problem found. It
// holds the exclusive lock for the whole check.
func (db *DB) CheckIntegrity(ctx context.Context) domain.IntegrityReport {
	db.lock.Lock()
	defer db.lock.Unlock()

	report := domain.IntegrityReport{DatabasePath: db.path}

	if !db.ready {
		report.Problems = append(report.Problems, domain.ErrNotInitialized.Error())
		return report
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		report.Problems = append(report.Problems, err.Error())
		return report
	}
	defer tx.Rollback()

	if err := sqliteIntegrity(ctx, tx); err != nil {
		report.Problems = append(report.Problems, err.Error())
	}

	count, err := verseCount(ctx, tx)
	switch {
	case err != nil:
		report.Problems = append(report.Problems, err.Error())
	case count == 0 && db.HasBundle():
		report.Problems = append(report.Problems, "verses table is empty")
	}
	report.VerseCount = count

	for _, idx := range FTSIndexes {
		if err := checkFTS(ctx, tx, idx); err != nil {
			report.Problems = append(report.Problems, err.Error())
		}
	}

	return report
}

// HasBundle reports whether the build ships a bundled dataset. Without one
// an empty verses table is expected and a reset cannot restore content.
func (db *DB) HasBundle() bool {
	return db.bootstrap != nil && db.bootstrap.TargetVersion() > 0
}

// VerifyIntegrity reports whether the database passed every check. Problems
// are logged, never returned.
func (db *DB) VerifyIntegrity(ctx context.Context) bool {
	report := db.CheckIntegrity(ctx)

	metrics.IntegrityChecksTotal.WithLabelValues(statusOf(report.OK())).Inc()

	if !report.OK() {
		db.log.Error().Strs("problems", report.Problems).Str("path", report.DatabasePath).Msg("Database integrity check failed")
		return false
	}

	db.log.Debug().Int("verses", report.VerseCount).Msg("Database integrity check passed")
	return true
}

func statusOf(ok bool) string {
	if ok {
		return metrics.Ok
	}
	return metrics.Fail
}

func sqliteIntegrity(ctx context.Context, tx *Tx) error {
	rows, err := tx.QueryContext(ctx, `PRAGMA integrity_check`)
	if err != nil {
		return errors.Wrap(err, "integrity_check")
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return errors.Wrap(err, "error scanning row")
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "error iterating rows")
	}

	if len(lines) == 1 && lines[0] == "ok" {
		return nil
	}
	return errors.Errorf("integrity_check: %s", strings.Join(lines, "; "))
}

func verseCount(ctx context.Context, tx *Tx) (int, error) {
	exists, err := tableExists(ctx, tx, "verses")
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, errors.New("verses table is missing")
	}

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM verses`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "error counting verses")
	}
	return n, nil
}

// checkFTS skips indexes whose base table has not been created yet.
func checkFTS(ctx context.Context, tx *Tx, idx FTSIndex) error {
	base, err := tableExists(ctx, tx, idx.Table)
	if err != nil || !base {
		return err
	}

	exists, err := tableExists(ctx, tx, idx.Name())
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s is missing", idx.Name())
	}

	return idx.Check(ctx, tx)
}

// ResetToBundled discards the working database and runs startup again, which
// reinstalls the bundle and replays later migrations.
func (db *DB) ResetToBundled(ctx context.Context) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	db.log.Warn().Str("path", db.path).Msg("Resetting database to bundled state")

	if err := db.closeLocked(); err != nil {
		db.log.Warn().Err(err).Msg("failed to close database before reset")
	}

	if err := removeDatabaseFiles(db.path); err != nil {
		return err
	}

	if db.bootstrap != nil {
		if err := db.bootstrap.ClearVersion(); err != nil {
			return err
		}
	}

	metrics.RecoveriesTotal.Inc()

	return db.startupLocked(ctx)
}

// DeleteDatabase closes the connection and removes the database files. Read
// and Write return domain.ErrNotInitialized until Open runs again.
func (db *DB) DeleteDatabase() error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if err := db.closeLocked(); err != nil {
		db.log.Warn().Err(err).Msg("failed to close database before delete")
	}

	if err := removeDatabaseFiles(db.path); err != nil {
		return err
	}

	db.log.Info().Str("path", db.path).Msg("Database deleted")
	return nil
}
