package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/varoOP/biblestore/internal/domain"
)

// BuildBundle writes a fresh bundled dataset to dest. Only BundledMigrations
// are applied, so the result is exactly the schema a bundle install marks as
// applied.
func BuildBundle(ctx context.Context, log zerolog.Logger, dest string, manifest domain.BundleManifest) error {
	log = log.With().Str("module", "bundle-builder").Logger()

	steps, err := bundledSteps()
	if err != nil {
		return err
	}

	for _, src := range manifest.Verses {
		if _, err := os.Stat(src.Path); err != nil {
			return errors.Wrapf(err, "verse source for %s", src.Translation)
		}
	}
	for _, src := range manifest.CrossReferences {
		if _, err := os.Stat(src.Path); err != nil {
			return errors.Wrap(err, "cross reference source")
		}
	}
	for _, src := range manifest.Morphology {
		if _, err := os.Stat(src.Path); err != nil {
			return errors.Wrapf(err, "morphology source for %s", src.Language)
		}
	}

	if err := removeDatabaseFiles(dest); err != nil {
		return err
	}

	db := NewDB(log, Config{Path: dest, Migrator: NewMigrator(log, steps...)})
	if err := db.Open(ctx); err != nil {
		return errors.Wrap(err, "failed to create bundle database")
	}
	defer db.Close()

	importedAt := time.Now().UTC()

	err = db.Write(ctx, func(tx *Tx) error {
		for _, t := range manifest.Translations {
			if err := upsertTranslation(ctx, tx, t); err != nil {
				return err
			}
		}
		log.Info().Int("count", len(manifest.Translations)).Msg("Imported translations")

		for _, src := range manifest.Verses {
			n, err := importVerses(ctx, tx, src)
			if err != nil {
				return errors.Wrapf(err, "failed to import %s verses", src.Translation)
			}
			log.Info().Str("translation", src.Translation).Int("count", n).Msg("Imported verses")
		}

		if err := VersesFTS.Rebuild(ctx, tx); err != nil {
			return err
		}

		for _, src := range manifest.CrossReferences {
			n, skipped, err := importCrossReferences(ctx, tx, src)
			if err != nil {
				return errors.Wrapf(err, "failed to import cross references from %s", src.Path)
			}
			log.Info().Str("path", src.Path).Int("count", n).Int("skipped", skipped).Msg("Imported cross references")
		}

		for _, src := range manifest.Morphology {
			n, skipped, err := importMorphology(ctx, tx, src)
			if err != nil {
				return errors.Wrapf(err, "failed to import %s morphology", src.Language)
			}
			log.Info().Str("language", src.Language).Int("count", n).Int("skipped", skipped).Msg("Imported morphology")
		}

		for _, ds := range manifest.DataSources {
			ds.ImportedAt = importedAt
			if ds.ChecksumOf != "" {
				sum, err := fileChecksum(ds.ChecksumOf)
				if err != nil {
					return errors.Wrapf(err, "data source %s", ds.ID)
				}
				ds.Checksum = sum
			}
			if ds.CountOf != "" {
				n, err := countRows(ctx, tx, ds.CountOf)
				if err != nil {
					return err
				}
				ds.RecordCount = n
			}
			if err := upsertDataSource(ctx, tx, &ds); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := db.maintain(ctx, `VACUUM`, `ANALYZE`, `PRAGMA journal_mode=DELETE`); err != nil {
		return err
	}

	log.Info().Str("path", dest).Msg("Bundle built")
	return nil
}

func bundledSteps() ([]Migration, error) {
	byID := make(map[string]Migration)
	for _, m := range Migrations() {
		byID[m.ID] = m
	}

	steps := make([]Migration, 0, len(BundledMigrations))
	for _, id := range BundledMigrations {
		m, ok := byID[id]
		if !ok {
			return nil, errors.Errorf("bundled migration %s is not registered", id)
		}
		steps = append(steps, m)
	}
	return steps, nil
}

// importVerses copies a scrollmapper style source into verses. Three layouts
// are understood: t_<abbr>(b, c, v, t), <ABBR>_verses(book_id, chapter,
// verse, text) and verses(book, chapter, verse, text).
func importVerses(ctx context.Context, tx *Tx, src domain.VerseSource) (int, error) {
	source, err := sql.Open("sqlite", src.Path)
	if err != nil {
		return 0, errors.Wrap(err, "unable to open verse source")
	}
	defer source.Close()

	query, err := verseSourceQuery(ctx, source, src.Translation)
	if err != nil {
		return 0, err
	}

	rows, err := source.QueryContext(ctx, query)
	if err != nil {
		return 0, errors.Wrap(err, "error executing query")
	}
	defer rows.Close()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO verses (translation_id, book_id, chapter, verse, text) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(translation_id, book_id, chapter, verse) DO UPDATE SET text = excluded.text`)
	if err != nil {
		return 0, errors.Wrap(err, "error preparing insert")
	}
	defer stmt.Close()

	count := 0
	for rows.Next() {
		var book, chapter, verse int
		var text string
		if err := rows.Scan(&book, &chapter, &verse, &text); err != nil {
			return count, errors.Wrap(err, "error scanning row")
		}

		if _, err := stmt.ExecContext(ctx, src.Translation, book, chapter, verse, normalizeText(text)); err != nil {
			return count, errors.Wrap(err, "error executing query")
		}
		count++
	}

	return count, errors.Wrap(rows.Err(), "error iterating rows")
}

func verseSourceQuery(ctx context.Context, source *sql.DB, translation string) (string, error) {
	rows, err := source.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return "", errors.Wrap(err, "failed to list source tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return "", errors.Wrap(err, "error scanning row")
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return "", errors.Wrap(err, "error iterating rows")
	}

	short := "t_" + strings.ToLower(translation)
	long := strings.ToUpper(translation) + "_verses"

	switch {
	case slices.Contains(tables, short):
		return fmt.Sprintf(`SELECT b, c, v, t FROM %s ORDER BY b, c, v`, short), nil
	case slices.Contains(tables, long):
		return fmt.Sprintf(`SELECT book_id, chapter, verse, text FROM %s ORDER BY book_id, chapter, verse`, long), nil
	case slices.Contains(tables, "verses"):
		return `SELECT book, chapter, verse, text FROM verses ORDER BY book, chapter, verse`, nil
	}

	return "", errors.Errorf("unknown verse source layout, tables: %v", tables)
}

// normalizeText collapses runs of whitespace into single spaces.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func countRows(ctx context.Context, tx *Tx, table string) (int, error) {
	exists, err := tableExists(ctx, tx, table)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, errors.Errorf("count_of names unknown table %s", table)
	}

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "error scanning row")
	}
	return n, nil
}

// CheckBundleDrift compares the migrations recorded in the bundle at path
// with BundledMigrations. A bundle rebuilt with a newer schema than the list
// declares, or an outdated bundle, is reported as an error naming the
// identifiers.
func CheckBundleDrift(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return errors.Wrap(err, "bundle not found")
	}

	handler, err := sql.Open("sqlite", path)
	if err != nil {
		return errors.Wrap(err, "unable to open bundle")
	}
	defer handler.Close()

	exists, err := tableExists(ctx, handler, "schema_migrations")
	if err != nil {
		return err
	}

	var recorded []string
	if exists {
		recorded, err = appliedIDs(ctx, handler)
		if err != nil {
			return err
		}
	}

	var missing, unexpected []string
	for _, id := range BundledMigrations {
		if !slices.Contains(recorded, id) {
			missing = append(missing, id)
		}
	}
	for _, id := range recorded {
		if !slices.Contains(BundledMigrations, id) {
			unexpected = append(unexpected, id)
		}
	}

	if len(missing) == 0 && len(unexpected) == 0 {
		return nil
	}
	return errors.Errorf("bundle migrations drifted: missing %v, unexpected %v", missing, unexpected)
}
