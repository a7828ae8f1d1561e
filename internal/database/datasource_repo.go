package database

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/varoOP/biblestore/internal/domain"
)

// DataSourceRepo implements domain.DataSourceRepo interface
type DataSourceRepo struct {
	log zerolog.Logger
	db  *DB
}

// NewDataSourceRepo creates a new data source repository
func NewDataSourceRepo(log zerolog.Logger, db *DB) domain.DataSourceRepo {
	return &DataSourceRepo{
		log: log.With().Str("repo", "data_source").Logger(),
		db:  db,
	}
}

func (r *DataSourceRepo) Upsert(ctx context.Context, ds *domain.DataSource) error {
	if ds.ImportedAt.IsZero() {
		ds.ImportedAt = clock()
	}

	return r.db.Write(ctx, func(tx *Tx) error {
		return upsertDataSource(ctx, tx, ds)
	})
}

func (r *DataSourceRepo) List(ctx context.Context) ([]domain.DataSource, error) {
	return ReadValue(ctx, r.db, func(tx *Tx) ([]domain.DataSource, error) {
		queryBuilder := tx.Builder().
			Select("id", "name", "version", "source_url", "license", "license_url", "attribution", "record_count", "imported_at", "checksum").
			From("data_sources").
			OrderBy("id")

		rows, err := tx.query(ctx, "ListDataSources", queryBuilder)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []domain.DataSource
		for rows.Next() {
			var ds domain.DataSource
			var sourceURL, licenseURL, attribution, checksum sql.NullString
			var count sql.NullInt64
			var imported string

			if err := rows.Scan(&ds.ID, &ds.Name, &ds.Version, &sourceURL, &ds.License, &licenseURL, &attribution, &count, &imported, &checksum); err != nil {
				return nil, errors.Wrap(err, "error scanning row")
			}

			ds.SourceURL = sourceURL.String
			ds.LicenseURL = licenseURL.String
			ds.Attribution = attribution.String
			ds.Checksum = checksum.String
			ds.RecordCount = int(count.Int64)
			if ds.ImportedAt, err = parseTime(imported); err != nil {
				return nil, err
			}
			out = append(out, ds)
		}

		if err := rows.Err(); err != nil {
			return nil, errors.Wrap(err, "error iterating rows")
		}
		return out, nil
	})
}

func (r *DataSourceRepo) UpdateRecordCount(ctx context.Context, id string, count int) error {
	return r.db.Write(ctx, func(tx *Tx) error {
		queryBuilder := tx.Builder().
			Update("data_sources").
			Set("record_count", count).
			Where(sq.Eq{"id": id})

		res, err := tx.exec(ctx, "UpdateRecordCount", queryBuilder)
		if err != nil {
			return err
		}

		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "error getting rows affected")
		}
		if n == 0 {
			return errors.Wrapf(domain.ErrNotFound, "data source %s", id)
		}
		return nil
	})
}

func upsertDataSource(ctx context.Context, tx *Tx, ds *domain.DataSource) error {
	queryBuilder := tx.Builder().
		Insert("data_sources").
		Columns("id", "name", "version", "source_url", "license", "license_url", "attribution", "record_count", "imported_at", "checksum").
		Values(ds.ID, ds.Name, ds.Version, nullString(ds.SourceURL), ds.License, nullString(ds.LicenseURL), nullString(ds.Attribution), ds.RecordCount, formatTime(ds.ImportedAt), nullString(ds.Checksum)).
		Suffix(`ON CONFLICT(id) DO UPDATE SET name = excluded.name, version = excluded.version, source_url = excluded.source_url,
			license = excluded.license, license_url = excluded.license_url, attribution = excluded.attribution,
			record_count = excluded.record_count, imported_at = excluded.imported_at, checksum = excluded.checksum`)

	_, err := tx.exec(ctx, "UpsertDataSource", queryBuilder)
	return err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
