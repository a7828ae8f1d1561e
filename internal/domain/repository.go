package domain

import (
	"context"
	"time"
)

// VerseRepo reads bundled verse data.
type VerseRepo interface {
	Get(ctx context.Context, translationID string, bookID, chapter, verse int) (*Verse, error)
	Chapter(ctx context.Context, translationID string, bookID, chapter int) ([]Verse, error)
	Search(ctx context.Context, translationID, query string, limit int) ([]SearchHit, error)
	Count(ctx context.Context) (int, error)
	Translations(ctx context.Context) ([]Translation, error)
}

// StudyRepo reads bundled cross references and original-language tokens.
type StudyRepo interface {
	CrossReferences(ctx context.Context, bookID, chapter, verse int) ([]CrossReference, error)
	Tokens(ctx context.Context, bookID, chapter, verse int) ([]LanguageToken, error)
}

// HighlightRepo stores highlights.
type HighlightRepo interface {
	Save(ctx context.Context, h *Highlight) error
	Get(ctx context.Context, id string) (*Highlight, error)
	GetIncludingDeleted(ctx context.Context, id string) (*Highlight, error)
	ListByUser(ctx context.Context, userID string) ([]Highlight, error)
	SoftDelete(ctx context.Context, id string) error
}

// NoteRepo stores notes.
type NoteRepo interface {
	Save(ctx context.Context, n *Note) error
	Get(ctx context.Context, id string) (*Note, error)
	GetIncludingDeleted(ctx context.Context, id string) (*Note, error)
	ListByUser(ctx context.Context, userID string) ([]Note, error)
	SoftDelete(ctx context.Context, id string) error
}

// PrayerRepo stores prayers and searches them.
type PrayerRepo interface {
	Save(ctx context.Context, p *Prayer) error
	Get(ctx context.Context, id string) (*Prayer, error)
	GetIncludingDeleted(ctx context.Context, id string) (*Prayer, error)
	ListByUser(ctx context.Context, userID string) ([]Prayer, error)
	Search(ctx context.Context, userID, query string) ([]Prayer, error)
	SoftDelete(ctx context.Context, id string) error
}

// BookmarkRepo stores reading positions.
type BookmarkRepo interface {
	Save(ctx context.Context, b *Bookmark) error
	Get(ctx context.Context, id string) (*Bookmark, error)
	GetIncludingDeleted(ctx context.Context, id string) (*Bookmark, error)
	ListByUser(ctx context.Context, userID string) ([]Bookmark, error)
	SoftDelete(ctx context.Context, id string) error
}

// SermonRepo stores sermon metadata and transcripts.
type SermonRepo interface {
	Save(ctx context.Context, s *Sermon) error
	Get(ctx context.Context, id string) (*Sermon, error)
	ListByUser(ctx context.Context, userID string) ([]Sermon, error)
	UpdateStatus(ctx context.Context, id string, status SermonStatus, transcript TranscriptStatus) error
	SaveTranscript(ctx context.Context, t *SermonTranscript) error
	SearchTranscripts(ctx context.Context, userID, query string) ([]Sermon, error)
	SoftDelete(ctx context.Context, id string) error
}

// SyncRepo is the contract offered to the external sync collaborator.
type SyncRepo interface {
	Tables() []string
	Pending(ctx context.Context, table string) ([]PendingRow, error)
	MarkSynced(ctx context.Context, table string, rows ...PendingRow) error
	SoftDelete(ctx context.Context, table, id string) error
}

// AICacheRepo caches opaque AI responses.
type AICacheRepo interface {
	Get(ctx context.Context, key string) (*AICacheEntry, error)
	Put(ctx context.Context, e *AICacheEntry) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// DataSourceRepo stores attribution records.
type DataSourceRepo interface {
	Upsert(ctx context.Context, ds *DataSource) error
	List(ctx context.Context) ([]DataSource, error)
	UpdateRecordCount(ctx context.Context, id string, count int) error
}
