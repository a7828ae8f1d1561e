package database

import (
	"context"
	"database/sql"
	"encoding/json"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/varoOP/biblestore/internal/domain"
)

// NoteRepo implements domain.NoteRepo interface
type NoteRepo struct {
	log zerolog.Logger
	db  *DB
}

// NewNoteRepo creates a new note repository
func NewNoteRepo(log zerolog.Logger, db *DB) domain.NoteRepo {
	return &NoteRepo{
		log: log.With().Str("repo", "note").Logger(),
		db:  db,
	}
}

var noteColumns = append(append([]string{}, syncColumns...),
	"book_id", "chapter", "verse_start", "verse_end", "content", "template", "linked_note_ids")

// Save inserts or updates n, raising needs_sync. Linked note ids are stored
// as a JSON array.
func (r *NoteRepo) Save(ctx context.Context, n *domain.Note) error {
	touch(&n.SyncMeta, clock())
	if n.Template == "" {
		n.Template = "freeform"
	}

	links := n.LinkedNoteIDs
	if links == nil {
		links = []string{}
	}
	encoded, err := json.Marshal(links)
	if err != nil {
		return errors.Wrap(err, "failed to encode linked notes")
	}

	return r.db.Write(ctx, func(tx *Tx) error {
		return upsertRow(ctx, tx, "notes_cache", noteColumns, &n.SyncMeta,
			n.BookID, n.Chapter, n.VerseStart, n.VerseEnd, n.Content, n.Template, string(encoded))
	})
}

func (r *NoteRepo) Get(ctx context.Context, id string) (*domain.Note, error) {
	return r.get(ctx, sq.And{sq.Eq{"id": id}, live("notes_cache")})
}

// GetIncludingDeleted also returns soft deleted notes, for sync reconciliation.
func (r *NoteRepo) GetIncludingDeleted(ctx context.Context, id string) (*domain.Note, error) {
	return r.get(ctx, sq.Eq{"id": id})
}

func (r *NoteRepo) get(ctx context.Context, where sq.Sqlizer) (*domain.Note, error) {
	return ReadValue(ctx, r.db, func(tx *Tx) (*domain.Note, error) {
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

func (r *NoteRepo) ListByUser(ctx context.Context, userID string) ([]domain.Note, error) {
	return ReadValue(ctx, r.db, func(tx *Tx) ([]domain.Note, error) {
		return r.list(ctx, tx, sq.And{sq.Eq{"user_id": userID}, live("notes_cache")})
	})
}

func (r *NoteRepo) SoftDelete(ctx context.Context, id string) error {
	return r.db.Write(ctx, func(tx *Tx) error {
		return softDelete(ctx, tx, "notes_cache", id)
	})
}

func (r *NoteRepo) list(ctx context.Context, tx *Tx, where sq.Sqlizer) ([]domain.Note, error) {
	queryBuilder := tx.Builder().
		Select(noteColumns...).
		From("notes_cache").
		Where(where).
		OrderBy("book_id", "chapter", "verse_start", "created_at")

	rows, err := tx.query(ctx, "ListNotes", queryBuilder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Note
	for rows.Next() {
		var n domain.Note
		var meta metaScanner
		var template, links sql.NullString

		dest := append(meta.dest(&n.SyncMeta), &n.BookID, &n.Chapter, &n.VerseStart, &n.VerseEnd, &n.Content, &template, &links)
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, "error scanning row")
		}
		if err := meta.apply(&n.SyncMeta); err != nil {
			return nil, err
		}

		n.Template = template.String
		n.LinkedNoteIDs = []string{}
		if links.Valid && links.String != "" {
			if err := json.Unmarshal([]byte(links.String), &n.LinkedNoteIDs); err != nil {
				return nil, errors.Wrapf(err, "note %s has malformed links", n.ID)
			}
		}
		out = append(out, n)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating rows")
	}
	return out, nil
}
