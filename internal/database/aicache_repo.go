package database

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/varoOP/biblestore/internal/domain"
	"github.com/varoOP/biblestore/internal/metrics"
)

// AICacheRepo implements domain.AICacheRepo interface
type AICacheRepo struct {
	log zerolog.Logger
	db  *DB
}

// NewAICacheRepo creates a new AI cache repository
func NewAICacheRepo(log zerolog.Logger, db *DB) domain.AICacheRepo {
	return &AICacheRepo{
		log: log.With().Str("repo", "ai_cache").Logger(),
		db:  db,
	}
}

// Get returns the entry stored under key unless it has expired.
func (r *AICacheRepo) Get(ctx context.Context, key string) (*domain.AICacheEntry, error) {
	return ReadValue(ctx, r.db, func(tx *Tx) (*domain.AICacheEntry, error) {
		queryBuilder := tx.Builder().
			Select("cache_key", "book_id", "chapter", "verse_start", "verse_end", "mode", "prompt_hash", "response", "COALESCE(model_used, '')", "created_at", "expires_at").
			From("ai_cache").
			Where(sq.Eq{"cache_key": key}).
			Where(sq.Or{sq.Eq{"expires_at": nil}, sq.Gt{"expires_at": formatTime(clock())}})

		row, err := tx.queryRow(ctx, "GetAICache", queryBuilder)
		if err != nil {
			return nil, err
		}

		var e domain.AICacheEntry
		var created string
		var expires sql.NullString
		if err := row.Scan(&e.CacheKey, &e.BookID, &e.Chapter, &e.VerseStart, &e.VerseEnd, &e.Mode, &e.PromptHash, &e.Response, &e.ModelUsed, &created, &expires); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domain.ErrNotFound
			}
			return nil, errors.Wrap(err, "error scanning row")
		}

		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if e.ExpiresAt, err = parseNullTime(expires); err != nil {
			return nil, err
		}
		return &e, nil
	})
}

// Put stores e under its key, replacing an earlier response.
func (r *AICacheRepo) Put(ctx context.Context, e *domain.AICacheEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = clock()
	}

	return r.db.Write(ctx, func(tx *Tx) error {
		queryBuilder := tx.Builder().
			Insert("ai_cache").
			Columns("cache_key", "book_id", "chapter", "verse_start", "verse_end", "mode", "prompt_hash", "response", "model_used", "created_at", "expires_at").
			Values(e.CacheKey, e.BookID, e.Chapter, e.VerseStart, e.VerseEnd, e.Mode, e.PromptHash, e.Response, e.ModelUsed, formatTime(e.CreatedAt), formatNullTime(e.ExpiresAt)).
			Suffix(`ON CONFLICT(cache_key) DO UPDATE SET response = excluded.response, prompt_hash = excluded.prompt_hash,
				model_used = excluded.model_used, created_at = excluded.created_at, expires_at = excluded.expires_at`)

		_, err := tx.exec(ctx, "PutAICache", queryBuilder)
		return err
	})
}

// PurgeExpired deletes entries that expired before at.
func (r *AICacheRepo) PurgeExpired(ctx context.Context, at time.Time) (int64, error) {
	return WriteValue(ctx, r.db, func(tx *Tx) (int64, error) {
		queryBuilder := tx.Builder().
			Delete("ai_cache").
			Where(sq.NotEq{"expires_at": nil}).
			Where(sq.LtOrEq{"expires_at": formatTime(at)})

		res, err := tx.exec(ctx, "PurgeAICache", queryBuilder)
		if err != nil {
			return 0, err
		}

		n, err := res.RowsAffected()
		if err != nil {
			return 0, errors.Wrap(err, "error getting rows affected")
		}

		metrics.AICachePurgedEntries.Add(float64(n))
		if n > 0 {
			r.log.Debug().Int64("purged", n).Msg("Purged expired AI cache entries")
		}
		return n, nil
	})
}
