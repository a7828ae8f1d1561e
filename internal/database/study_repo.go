package database

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/varoOP/biblestore/internal/domain"
)

// StudyRepo reads the bundled cross references and original language tokens.
type StudyRepo struct {
	log zerolog.Logger
	db  *DB
}

func NewStudyRepo(log zerolog.Logger, db *DB) domain.StudyRepo {
	return &StudyRepo{
		log: log.With().Str("repo", "study").Logger(),
		db:  db,
	}
}

// CrossReferences lists references whose source range covers the verse,
// strongest first.
func (r *StudyRepo) CrossReferences(ctx context.Context, bookID, chapter, verse int) ([]domain.CrossReference, error) {
	return ReadValue(ctx, r.db, func(tx *Tx) ([]domain.CrossReference, error) {
		queryBuilder := tx.Builder().
			Select(
				"source_book_id", "source_chapter", "source_verse_start", "source_verse_end",
				"target_book_id", "target_chapter", "target_verse_start", "target_verse_end",
				"weight", "source",
			).
			From("cross_references").
			Where(sq.Eq{"source_book_id": bookID, "source_chapter": chapter}).
			Where(sq.LtOrEq{"source_verse_start": verse}).
			Where(sq.GtOrEq{"source_verse_end": verse}).
			OrderBy("weight DESC", "target_book_id", "target_chapter", "target_verse_start")

		rows, err := tx.query(ctx, "CrossReferences", queryBuilder)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var refs []domain.CrossReference
		for rows.Next() {
			var ref domain.CrossReference
			var source sql.NullString
			if err := rows.Scan(
				&ref.SourceBookID, &ref.SourceChapter, &ref.SourceVerseStart, &ref.SourceVerseEnd,
				&ref.TargetBookID, &ref.TargetChapter, &ref.TargetVerseStart, &ref.TargetVerseEnd,
				&ref.Weight, &source,
			); err != nil {
				return nil, errors.Wrap(err, "error scanning row")
			}
			ref.Source = source.String
			refs = append(refs, ref)
		}

		return refs, errors.Wrap(rows.Err(), "error iterating rows")
	})
}

// Tokens lists the original language words of a verse in reading order.
func (r *StudyRepo) Tokens(ctx context.Context, bookID, chapter, verse int) ([]domain.LanguageToken, error) {
	return ReadValue(ctx, r.db, func(tx *Tx) ([]domain.LanguageToken, error) {
		queryBuilder := tx.Builder().
			Select("book_id", "chapter", "verse", "position", "surface", "lemma", "morph", "strong_id", "gloss", "language").
			From("language_tokens").
			Where(sq.Eq{"book_id": bookID, "chapter": chapter, "verse": verse}).
			OrderBy("position", "id")

		rows, err := tx.query(ctx, "Tokens", queryBuilder)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var tokens []domain.LanguageToken
		for rows.Next() {
			var t domain.LanguageToken
			var lemma, morph, strong, gloss sql.NullString
			if err := rows.Scan(&t.BookID, &t.Chapter, &t.Verse, &t.Position, &t.Surface, &lemma, &morph, &strong, &gloss, &t.Language); err != nil {
				return nil, errors.Wrap(err, "error scanning row")
			}
			t.Lemma = lemma.String
			t.Morph = morph.String
			t.StrongID = strong.String
			t.Gloss = gloss.String
			tokens = append(tokens, t)
		}

		return tokens, errors.Wrap(rows.Err(), "error iterating rows")
	})
}
