package database

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/varoOP/biblestore/internal/domain"
)

// VerseRepo implements domain.VerseRepo interface
type VerseRepo struct {
	log zerolog.Logger
	db  *DB
}

// NewVerseRepo creates a new verse repository
func NewVerseRepo(log zerolog.Logger, db *DB) domain.VerseRepo {
	return &VerseRepo{
		log: log.With().Str("repo", "verse").Logger(),
		db:  db,
	}
}

var verseColumns = []string{"verses.translation_id", "verses.book_id", "verses.chapter", "verses.verse", "verses.text"}

func (r *VerseRepo) Get(ctx context.Context, translationID string, bookID, chapter, verse int) (*domain.Verse, error) {
	return ReadValue(ctx, r.db, func(tx *Tx) (*domain.Verse, error) {
		queryBuilder := tx.Builder().
			Select(verseColumns...).
			From("verses").
			Where(sq.Eq{
				"translation_id": translationID,
				"book_id":        bookID,
				"chapter":        chapter,
				"verse":          verse,
			})

		row, err := tx.queryRow(ctx, "GetVerse", queryBuilder)
		if err != nil {
			return nil, err
		}

		var v domain.Verse
		if err := row.Scan(&v.TranslationID, &v.BookID, &v.Chapter, &v.Verse, &v.Text); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domain.ErrNotFound
			}
			return nil, errors.Wrap(err, "error scanning row")
		}
		return &v, nil
	})
}

func (r *VerseRepo) Chapter(ctx context.Context, translationID string, bookID, chapter int) ([]domain.Verse, error) {
	return ReadValue(ctx, r.db, func(tx *Tx) ([]domain.Verse, error) {
		queryBuilder := tx.Builder().
			Select(verseColumns...).
			From("verses").
			Where(sq.Eq{
				"translation_id": translationID,
				"book_id":        bookID,
				"chapter":        chapter,
			}).
			OrderBy("verse")

		rows, err := tx.query(ctx, "Chapter", queryBuilder)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var verses []domain.Verse
		for rows.Next() {
			var v domain.Verse
			if err := rows.Scan(&v.TranslationID, &v.BookID, &v.Chapter, &v.Verse, &v.Text); err != nil {
				return nil, errors.Wrap(err, "error scanning row")
			}
			verses = append(verses, v)
		}

		if err := rows.Err(); err != nil {
			return nil, errors.Wrap(err, "error iterating rows")
		}
		return verses, nil
	})
}

// Search matches query against verses_fts, best match first. An empty
// translationID searches every translation.
func (r *VerseRepo) Search(ctx context.Context, translationID, query string, limit int) ([]domain.SearchHit, error) {
	match := matchQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	return ReadValue(ctx, r.db, func(tx *Tx) ([]domain.SearchHit, error) {
		queryBuilder := tx.Builder().
			Select(verseColumns...).
			Column("snippet(verses_fts, 0, '[', ']', '...', 12)").
			Column("bm25(verses_fts)").
			From("verses_fts").
			Join("verses ON verses.rowid = verses_fts.rowid").
			Where("verses_fts MATCH ?", match).
			OrderBy("bm25(verses_fts)").
			Limit(uint64(limit))

		if translationID != "" {
			queryBuilder = queryBuilder.Where(sq.Eq{"verses.translation_id": translationID})
		}

		rows, err := tx.query(ctx, "SearchVerses", queryBuilder)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var hits []domain.SearchHit
		for rows.Next() {
			var h domain.SearchHit
			if err := rows.Scan(&h.TranslationID, &h.BookID, &h.Chapter, &h.Verse, &h.Text, &h.Snippet, &h.Score); err != nil {
				return nil, errors.Wrap(err, "error scanning row")
			}
			hits = append(hits, h)
		}

		if err := rows.Err(); err != nil {
			return nil, errors.Wrap(err, "error iterating rows")
		}
		return hits, nil
	})
}

func (r *VerseRepo) Count(ctx context.Context) (int, error) {
	return ReadValue(ctx, r.db, func(tx *Tx) (int, error) {
		row, err := tx.queryRow(ctx, "CountVerses", tx.Builder().Select("COUNT(*)").From("verses"))
		if err != nil {
			return 0, err
		}

		var n int
		if err := row.Scan(&n); err != nil {
			return 0, errors.Wrap(err, "error scanning row")
		}
		return n, nil
	})
}

func (r *VerseRepo) Translations(ctx context.Context) ([]domain.Translation, error) {
	return ReadValue(ctx, r.db, func(tx *Tx) ([]domain.Translation, error) {
		queryBuilder := tx.Builder().
			Select("id", "name", "abbreviation", "language", "description", "COALESCE(copyright, '')", "is_default", "sort_order", "is_available").
			From("translations").
			OrderBy("sort_order", "id")

		rows, err := tx.query(ctx, "Translations", queryBuilder)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []domain.Translation
		for rows.Next() {
			var t domain.Translation
			if err := rows.Scan(&t.ID, &t.Name, &t.Abbreviation, &t.Language, &t.Description, &t.Copyright, &t.IsDefault, &t.SortOrder, &t.IsAvailable); err != nil {
				return nil, errors.Wrap(err, "error scanning row")
			}
			out = append(out, t)
		}

		if err := rows.Err(); err != nil {
			return nil, errors.Wrap(err, "error iterating rows")
		}
		return out, nil
	})
}

func upsertTranslation(ctx context.Context, tx *Tx, t domain.Translation) error {
	queryBuilder := tx.Builder().
		Insert("translations").
		Columns("id", "name", "abbreviation", "language", "description", "copyright", "is_default", "sort_order", "is_available").
		Values(t.ID, t.Name, t.Abbreviation, t.Language, t.Description, t.Copyright, boolToInt(t.IsDefault), t.SortOrder, boolToInt(t.IsAvailable)).
		Suffix(`ON CONFLICT(id) DO UPDATE SET name = excluded.name, abbreviation = excluded.abbreviation,
			language = excluded.language, description = excluded.description, copyright = excluded.copyright,
			is_default = excluded.is_default, sort_order = excluded.sort_order, is_available = excluded.is_available`)

	_, err := tx.exec(ctx, "UpsertTranslation", queryBuilder)
	return err
}
