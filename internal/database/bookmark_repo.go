package database

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/varoOP/biblestore/internal/domain"
)

// BookmarkRepo implements domain.BookmarkRepo interface
type BookmarkRepo struct {
	log zerolog.Logger
	db  *DB
}

// NewBookmarkRepo creates a new bookmark repository
func NewBookmarkRepo(log zerolog.Logger, db *DB) domain.BookmarkRepo {
	return &BookmarkRepo{
		log: log.With().Str("repo", "bookmark").Logger(),
		db:  db,
	}
}

var bookmarkColumns = append(append([]string{}, syncColumns...),
	"translation_id", "book_id", "chapter", "verse", "label")

func (r *BookmarkRepo) Save(ctx context.Context, b *domain.Bookmark) error {
	touch(&b.SyncMeta, clock())
	if b.TranslationID == "" {
		b.TranslationID = "kjv"
	}

	return r.db.Write(ctx, func(tx *Tx) error {
		return upsertRow(ctx, tx, "bookmarks", bookmarkColumns, &b.SyncMeta,
			b.TranslationID, b.BookID, b.Chapter, b.Verse, b.Label)
	})
}

func (r *BookmarkRepo) Get(ctx context.Context, id string) (*domain.Bookmark, error) {
	return r.get(ctx, sq.And{sq.Eq{"id": id}, live("bookmarks")})
}

// GetIncludingDeleted also returns soft deleted bookmarks, for sync reconciliation.
func (r *BookmarkRepo) GetIncludingDeleted(ctx context.Context, id string) (*domain.Bookmark, error) {
	return r.get(ctx, sq.Eq{"id": id})
}

func (r *BookmarkRepo) get(ctx context.Context, where sq.Sqlizer) (*domain.Bookmark, error) {
	return ReadValue(ctx, r.db, func(tx *Tx) (*domain.Bookmark, error) {
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

func (r *BookmarkRepo) ListByUser(ctx context.Context, userID string) ([]domain.Bookmark, error) {
	return ReadValue(ctx, r.db, func(tx *Tx) ([]domain.Bookmark, error) {
		return r.list(ctx, tx, sq.And{sq.Eq{"user_id": userID}, live("bookmarks")})
	})
}

func (r *BookmarkRepo) SoftDelete(ctx context.Context, id string) error {
	return r.db.Write(ctx, func(tx *Tx) error {
		return softDelete(ctx, tx, "bookmarks", id)
	})
}

func (r *BookmarkRepo) list(ctx context.Context, tx *Tx, where sq.Sqlizer) ([]domain.Bookmark, error) {
	queryBuilder := tx.Builder().
		Select(bookmarkColumns...).
		From("bookmarks").
		Where(where).
		OrderBy("updated_at DESC")

	rows, err := tx.query(ctx, "ListBookmarks", queryBuilder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Bookmark
	for rows.Next() {
		var b domain.Bookmark
		var meta metaScanner

		dest := append(meta.dest(&b.SyncMeta), &b.TranslationID, &b.BookID, &b.Chapter, &b.Verse, &b.Label)
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, "error scanning row")
		}
		if err := meta.apply(&b.SyncMeta); err != nil {
			return nil, err
		}
		out = append(out, b)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating rows")
	}
	return out, nil
}
