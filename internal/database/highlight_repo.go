package database

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/varoOP/biblestore/internal/domain"
)

// HighlightRepo implements domain.HighlightRepo interface
type HighlightRepo struct {
	log zerolog.Logger
	db  *DB
}

// NewHighlightRepo creates a new highlight repository
func NewHighlightRepo(log zerolog.Logger, db *DB) domain.HighlightRepo {
	return &HighlightRepo{
		log: log.With().Str("repo", "highlight").Logger(),
		db:  db,
	}
}

var highlightColumns = append(append([]string{}, syncColumns...),
	"book_id", "chapter", "verse_start", "verse_end", "color", "category")

// Save inserts or updates h, raising needs_sync.
func (r *HighlightRepo) Save(ctx context.Context, h *domain.Highlight) error {
	touch(&h.SyncMeta, clock())
	if h.Category == "" {
		h.Category = "none"
	}

	return r.db.Write(ctx, func(tx *Tx) error {
		return upsertRow(ctx, tx, "highlights_cache", highlightColumns, &h.SyncMeta,
			h.BookID, h.Chapter, h.VerseStart, h.VerseEnd, h.Color, h.Category)
	})
}

func (r *HighlightRepo) Get(ctx context.Context, id string) (*domain.Highlight, error) {
	return r.get(ctx, sq.And{sq.Eq{"id": id}, live("highlights_cache")})
}

// GetIncludingDeleted also returns soft deleted highlights, for sync reconciliation.
func (r *HighlightRepo) GetIncludingDeleted(ctx context.Context, id string) (*domain.Highlight, error) {
	return r.get(ctx, sq.Eq{"id": id})
}

func (r *HighlightRepo) get(ctx context.Context, where sq.Sqlizer) (*domain.Highlight, error) {
	return ReadValue(ctx, r.db, func(tx *Tx) (*domain.Highlight, error) {
		list, err := r.list(ctx, tx, where)
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, domain.ErrNotFound
		}
		return &list[0], nil
	})
}

// ListByUser returns the live highlights of userID in verse order.
func (r *HighlightRepo) ListByUser(ctx context.Context, userID string) ([]domain.Highlight, error) {
	return ReadValue(ctx, r.db, func(tx *Tx) ([]domain.Highlight, error) {
		return r.list(ctx, tx, sq.And{sq.Eq{"user_id": userID}, live("highlights_cache")})
	})
}

func (r *HighlightRepo) SoftDelete(ctx context.Context, id string) error {
	return r.db.Write(ctx, func(tx *Tx) error {
		return softDelete(ctx, tx, "highlights_cache", id)
	})
}

func (r *HighlightRepo) list(ctx context.Context, tx *Tx, where sq.Sqlizer) ([]domain.Highlight, error) {
	queryBuilder := tx.Builder().
		Select(highlightColumns...).
		From("highlights_cache").
		Where(where).
		OrderBy("book_id", "chapter", "verse_start")

	rows, err := tx.query(ctx, "ListHighlights", queryBuilder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Highlight
	for rows.Next() {
		var h domain.Highlight
		var meta metaScanner
		var category sql.NullString

		dest := append(meta.dest(&h.SyncMeta), &h.BookID, &h.Chapter, &h.VerseStart, &h.VerseEnd, &h.Color, &category)
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, "error scanning row")
		}
		if err := meta.apply(&h.SyncMeta); err != nil {
			return nil, err
		}
		h.Category = category.String
		out = append(out, h)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating rows")
	}
	return out, nil
}
