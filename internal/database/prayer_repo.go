package database

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/varoOP/biblestore/internal/domain"
)

// PrayerRepo implements domain.PrayerRepo interface
type PrayerRepo struct {
	log zerolog.Logger
	db  *DB
}

// NewPrayerRepo creates a new prayer repository
func NewPrayerRepo(log zerolog.Logger, db *DB) domain.PrayerRepo {
	return &PrayerRepo{
		log: log.With().Str("repo", "prayer").Logger(),
		db:  db,
	}
}

var prayerColumns = append(append([]string{}, syncColumns...),
	"title", "content", "category", "status", "answered_at")

// Save inserts or updates p. The prayers_fts triggers index the new title
// and content in the same transaction.
func (r *PrayerRepo) Save(ctx context.Context, p *domain.Prayer) error {
	touch(&p.SyncMeta, clock())
	if p.Status == "" {
		p.Status = domain.PrayerStatusActive
	}
	if p.Category == "" {
		p.Category = "personal"
	}

	return r.db.Write(ctx, func(tx *Tx) error {
		return upsertRow(ctx, tx, "prayers", prayerColumns, &p.SyncMeta,
			p.Title, p.Content, p.Category, string(p.Status), formatNullTime(p.AnsweredAt))
	})
}

func (r *PrayerRepo) Get(ctx context.Context, id string) (*domain.Prayer, error) {
	return r.get(ctx, sq.And{sq.Eq{"prayers.id": id}, live("prayers")})
}

// GetIncludingDeleted also returns soft deleted prayers, for sync reconciliation.
func (r *PrayerRepo) GetIncludingDeleted(ctx context.Context, id string) (*domain.Prayer, error) {
	return r.get(ctx, sq.Eq{"prayers.id": id})
}

func (r *PrayerRepo) get(ctx context.Context, where sq.Sqlizer) (*domain.Prayer, error) {
	return ReadValue(ctx, r.db, func(tx *Tx) (*domain.Prayer, error) {
		list, err := r.list(ctx, tx, tx.Builder().Select(prefixed("prayers", prayerColumns)...).From("prayers").Where(where))
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, domain.ErrNotFound
		}
		return &list[0], nil
	})
}

func (r *PrayerRepo) ListByUser(ctx context.Context, userID string) ([]domain.Prayer, error) {
	return ReadValue(ctx, r.db, func(tx *Tx) ([]domain.Prayer, error) {
		queryBuilder := tx.Builder().
			Select(prefixed("prayers", prayerColumns)...).
			From("prayers").
			Where(sq.And{sq.Eq{"prayers.user_id": userID}, live("prayers")}).
			OrderBy("prayers.created_at DESC")

		return r.list(ctx, tx, queryBuilder)
	})
}

// Search matches query against title and content. Soft deleted prayers
// stay in the index until purged and are filtered out here.
func (r *PrayerRepo) Search(ctx context.Context, userID, query string) ([]domain.Prayer, error) {
	match := matchQuery(query)
	if match == "" {
		return nil, nil
	}

	return ReadValue(ctx, r.db, func(tx *Tx) ([]domain.Prayer, error) {
		queryBuilder := tx.Builder().
			Select(prefixed("prayers", prayerColumns)...).
			From("prayers_fts").
			Join("prayers ON prayers.rowid = prayers_fts.rowid").
			Where("prayers_fts MATCH ?", match).
			Where(sq.And{sq.Eq{"prayers.user_id": userID}, live("prayers")}).
			OrderBy("bm25(prayers_fts)")

		return r.list(ctx, tx, queryBuilder)
	})
}

func (r *PrayerRepo) SoftDelete(ctx context.Context, id string) error {
	return r.db.Write(ctx, func(tx *Tx) error {
		return softDelete(ctx, tx, "prayers", id)
	})
}

func (r *PrayerRepo) list(ctx context.Context, tx *Tx, queryBuilder sq.SelectBuilder) ([]domain.Prayer, error) {
	rows, err := tx.query(ctx, "ListPrayers", queryBuilder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Prayer
	for rows.Next() {
		var p domain.Prayer
		var meta metaScanner
		var status string
		var answered sql.NullString

		dest := append(meta.dest(&p.SyncMeta), &p.Title, &p.Content, &p.Category, &status, &answered)
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, "error scanning row")
		}
		if err := meta.apply(&p.SyncMeta); err != nil {
			return nil, err
		}

		p.Status = domain.PrayerStatus(status)
		if p.AnsweredAt, err = parseNullTime(answered); err != nil {
			return nil, err
		}
		out = append(out, p)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating rows")
	}
	return out, nil
}
