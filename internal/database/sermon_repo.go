package database

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/varoOP/biblestore/internal/domain"
)

// SermonRepo implements domain.SermonRepo interface
type SermonRepo struct {
	log zerolog.Logger
	db  *DB
}

// NewSermonRepo creates a new sermon repository
func NewSermonRepo(log zerolog.Logger, db *DB) domain.SermonRepo {
	return &SermonRepo{
		log: log.With().Str("repo", "sermon").Logger(),
		db:  db,
	}
}

var sermonColumns = append(append([]string{}, syncColumns...),
	"title", "speaker", "audio_path", "duration_seconds", "status", "transcript_status", "recorded_at")

func (r *SermonRepo) Save(ctx context.Context, s *domain.Sermon) error {
	at := clock()
	touch(&s.SyncMeta, at)
	if s.Status == "" {
		s.Status = domain.SermonStatusRecording
	}
	if s.TranscriptStatus == "" {
		s.TranscriptStatus = domain.TranscriptStatusNone
	}
	if s.RecordedAt.IsZero() {
		s.RecordedAt = at
	}

	return r.db.Write(ctx, func(tx *Tx) error {
		return upsertRow(ctx, tx, "sermons", sermonColumns, &s.SyncMeta,
			s.Title, s.Speaker, s.AudioPath, s.DurationSeconds,
			string(s.Status), string(s.TranscriptStatus), formatTime(s.RecordedAt))
	})
}

func (r *SermonRepo) Get(ctx context.Context, id string) (*domain.Sermon, error) {
	return ReadValue(ctx, r.db, func(tx *Tx) (*domain.Sermon, error) {
		queryBuilder := tx.Builder().
			Select(prefixed("sermons", sermonColumns)...).
			From("sermons").
			Where(sq.And{sq.Eq{"sermons.id": id}, live("sermons")})

		list, err := r.list(ctx, tx, queryBuilder)
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, domain.ErrNotFound
		}
		return &list[0], nil
	})
}

func (r *SermonRepo) ListByUser(ctx context.Context, userID string) ([]domain.Sermon, error) {
	return ReadValue(ctx, r.db, func(tx *Tx) ([]domain.Sermon, error) {
		queryBuilder := tx.Builder().
			Select(prefixed("sermons", sermonColumns)...).
			From("sermons").
			Where(sq.And{sq.Eq{"sermons.user_id": userID}, live("sermons")}).
			OrderBy("sermons.recorded_at DESC")

		return r.list(ctx, tx, queryBuilder)
	})
}

// UpdateStatus records progress reported by the audio pipeline.
func (r *SermonRepo) UpdateStatus(ctx context.Context, id string, status domain.SermonStatus, transcript domain.TranscriptStatus) error {
	return r.db.Write(ctx, func(tx *Tx) error {
		return markChanged(ctx, tx, "sermons", id, map[string]any{
			"status":            string(status),
			"transcript_status": string(transcript),
		})
	})
}

// SaveTranscript stores the transcript of a sermon, replacing an earlier one,
// and marks the sermon's transcript ready.
func (r *SermonRepo) SaveTranscript(ctx context.Context, t *domain.SermonTranscript) error {
	at := clock()
	if t.ID == "" {
		t.ID = newID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = at
	}
	t.UpdatedAt = at
	if t.Language == "" {
		t.Language = "en"
	}

	return r.db.Write(ctx, func(tx *Tx) error {
		exists, err := rowExists(ctx, tx, "sermons", t.SermonID)
		if err != nil {
			return err
		}
		if !exists {
			return errors.Wrapf(domain.ErrNotFound, "sermon %s", t.SermonID)
		}

		queryBuilder := tx.Builder().
			Insert("sermon_transcripts").
			Columns("id", "sermon_id", "content", "language", "created_at", "updated_at").
			Values(t.ID, t.SermonID, t.Content, t.Language, formatTime(t.CreatedAt), formatTime(t.UpdatedAt)).
			Suffix("ON CONFLICT(sermon_id) DO UPDATE SET content = excluded.content, language = excluded.language, updated_at = excluded.updated_at")

		if _, err := tx.exec(ctx, "SaveTranscript", queryBuilder); err != nil {
			return err
		}

		return markChanged(ctx, tx, "sermons", t.SermonID, map[string]any{
			"transcript_status": string(domain.TranscriptStatusReady),
		})
	})
}

// SearchTranscripts returns the live sermons of userID whose transcript
// matches query.
func (r *SermonRepo) SearchTranscripts(ctx context.Context, userID, query string) ([]domain.Sermon, error) {
	match := matchQuery(query)
	if match == "" {
		return nil, nil
	}

	return ReadValue(ctx, r.db, func(tx *Tx) ([]domain.Sermon, error) {
		queryBuilder := tx.Builder().
			Select(prefixed("sermons", sermonColumns)...).
			From("sermon_transcripts_fts").
			Join("sermon_transcripts ON sermon_transcripts.rowid = sermon_transcripts_fts.rowid").
			Join("sermons ON sermons.id = sermon_transcripts.sermon_id").
			Where("sermon_transcripts_fts MATCH ?", match).
			Where(sq.And{sq.Eq{"sermons.user_id": userID}, live("sermons")}).
			OrderBy("bm25(sermon_transcripts_fts)")

		return r.list(ctx, tx, queryBuilder)
	})
}

func (r *SermonRepo) SoftDelete(ctx context.Context, id string) error {
	return r.db.Write(ctx, func(tx *Tx) error {
		return softDelete(ctx, tx, "sermons", id)
	})
}

func (r *SermonRepo) list(ctx context.Context, tx *Tx, queryBuilder sq.SelectBuilder) ([]domain.Sermon, error) {
	rows, err := tx.query(ctx, "ListSermons", queryBuilder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Sermon
	for rows.Next() {
		var s domain.Sermon
		var meta metaScanner
		var status, transcript, recorded string

		dest := append(meta.dest(&s.SyncMeta), &s.Title, &s.Speaker, &s.AudioPath, &s.DurationSeconds, &status, &transcript, &recorded)
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, "error scanning row")
		}
		if err := meta.apply(&s.SyncMeta); err != nil {
			return nil, err
		}

		s.Status = domain.SermonStatus(status)
		s.TranscriptStatus = domain.TranscriptStatus(transcript)
		if s.RecordedAt, err = parseTime(recorded); err != nil {
			return nil, err
		}
		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating rows")
	}
	return out, nil
}
