package database

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/varoOP/biblestore/internal/domain"
)

// SyncRepo implements domain.SyncRepo interface. It is the entry point of
// the external sync collaborator; the store itself only ever raises
// needs_sync.
type SyncRepo struct {
	log zerolog.Logger
	db  *DB
}

// NewSyncRepo creates a new sync repository
func NewSyncRepo(log zerolog.Logger, db *DB) domain.SyncRepo {
	return &SyncRepo{
		log: log.With().Str("repo", "sync").Logger(),
		db:  db,
	}
}

// Tables lists the content tables that take part in sync.
func (r *SyncRepo) Tables() []string {
	return append([]string{}, SyncTables...)
}

// Pending returns every row of table with needs_sync set, soft deleted rows
// included, oldest change first.
func (r *SyncRepo) Pending(ctx context.Context, table string) ([]domain.PendingRow, error) {
	if !isSyncTable(table) {
		return nil, errors.Errorf("unknown sync table %q", table)
	}

	return ReadValue(ctx, r.db, func(tx *Tx) ([]domain.PendingRow, error) {
		queryBuilder := tx.Builder().
			Select("*").
			From(table).
			Where(sq.Eq{"needs_sync": 1}).
			OrderBy("updated_at", "id")

		rows, err := tx.query(ctx, "Pending", queryBuilder)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return nil, errors.Wrap(err, "error reading columns")
		}

		var out []domain.PendingRow
		for rows.Next() {
			values := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return nil, errors.Wrap(err, "error scanning row")
			}

			row := domain.PendingRow{Table: table, Data: make(map[string]any, len(cols))}
			for i, c := range cols {
				v := values[i]
				if b, ok := v.([]byte); ok {
					v = string(b)
				}
				row.Data[c] = v
				switch c {
				case "id":
					row.ID = asString(v)
				case "updated_at":
					row.UpdatedAt = asString(v)
				}
			}
			out = append(out, row)
		}

		if err := rows.Err(); err != nil {
			return nil, errors.Wrap(err, "error iterating rows")
		}
		return out, nil
	})
}

// MarkSynced clears needs_sync on rows returned by Pending after a
// successful upload. A row changed since it was read keeps the flag so the
// newer version is uploaded too. The store never calls it.
func (r *SyncRepo) MarkSynced(ctx context.Context, table string, rows ...domain.PendingRow) error {
	if !isSyncTable(table) {
		return errors.Errorf("unknown sync table %q", table)
	}
	if len(rows) == 0 {
		return nil
	}

	return r.db.Write(ctx, func(tx *Tx) error {
		stale := 0
		for _, row := range rows {
			queryBuilder := tx.Builder().
				Update(table).
				Set("needs_sync", 0).
				Where(sq.Eq{"id": row.ID, "updated_at": row.UpdatedAt})

			res, err := tx.exec(ctx, "MarkSynced", queryBuilder)
			if err != nil {
				return err
			}

			n, err := res.RowsAffected()
			if err != nil {
				return errors.Wrap(err, "error getting rows affected")
			}
			if n == 0 {
				stale++
			}
		}

		if stale > 0 {
			r.log.Debug().Str("table", table).Int("stale", stale).Msg("rows changed since read, keeping needs_sync")
		}
		return nil
	})
}

// SoftDelete soft deletes a row of any content table.
func (r *SyncRepo) SoftDelete(ctx context.Context, table, id string) error {
	if !isSyncTable(table) {
		return errors.Errorf("unknown sync table %q", table)
	}

	return r.db.Write(ctx, func(tx *Tx) error {
		return softDelete(ctx, tx, table, id)
	})
}
