package database

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varoOP/biblestore/internal/domain"
)

func TestHighlightRepo_SoftDelete(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewHighlightRepo(zerolog.Nop(), db)
	syncRepo := NewSyncRepo(zerolog.Nop(), db)

	h := &domain.Highlight{SyncMeta: domain.SyncMeta{UserID: "u1"}, BookID: 43, Chapter: 3, VerseStart: 16, VerseEnd: 16, Color: "gold"}
	require.NoError(t, repo.Save(ctx, h))
	require.NotEmpty(t, h.ID)
	assert.True(t, h.NeedsSync)

	got, err := repo.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, "gold", got.Color)
	assert.Equal(t, "none", got.Category)
	assert.False(t, got.IsDeleted())

	pending, err := syncRepo.Pending(ctx, "highlights_cache")
	require.NoError(t, err)
	require.NoError(t, syncRepo.MarkSynced(ctx, "highlights_cache", pending...))
	pending, err = syncRepo.Pending(ctx, "highlights_cache")
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, repo.SoftDelete(ctx, h.ID))

	_, err = repo.Get(ctx, h.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)

	deleted, err := repo.GetIncludingDeleted(ctx, h.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted())
	assert.True(t, deleted.NeedsSync)

	pending, err = syncRepo.Pending(ctx, "highlights_cache")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, h.ID, pending[0].ID)
	assert.NotNil(t, pending[0].Data["deleted_at"])
	assert.EqualValues(t, 1, pending[0].Data["needs_sync"])

	// a second delete is a no-op, an unknown id is not found
	require.NoError(t, repo.SoftDelete(ctx, h.ID))
	assert.ErrorIs(t, repo.SoftDelete(ctx, "missing"), domain.ErrNotFound)
}

func TestHighlightRepo_UpdateKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewHighlightRepo(zerolog.Nop(), db)

	h := &domain.Highlight{SyncMeta: domain.SyncMeta{UserID: "u1"}, BookID: 1, Chapter: 1, VerseStart: 1, VerseEnd: 2, Color: "blue"}
	require.NoError(t, repo.Save(ctx, h))
	created := h.CreatedAt

	h.Color = "green"
	h.Category = "promise"
	require.NoError(t, repo.Save(ctx, h))

	got, err := repo.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, "green", got.Color)
	assert.Equal(t, "promise", got.Category)
	assert.WithinDuration(t, created, got.CreatedAt, time.Millisecond)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

// freezeClock pins the store clock to at for the rest of the test.
func freezeClock(t *testing.T, at time.Time) {
	t.Helper()

	prev := clock
	clock = func() time.Time { return at }
	t.Cleanup(func() { clock = prev })
}

func TestSyncRepo_MarkSyncedKeepsNewerChange(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewHighlightRepo(zerolog.Nop(), db)
	syncRepo := NewSyncRepo(zerolog.Nop(), db)

	// both saves land in the same millisecond
	freezeClock(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))

	h := &domain.Highlight{SyncMeta: domain.SyncMeta{UserID: "u1"}, BookID: 1, Chapter: 1, VerseStart: 1, VerseEnd: 1, Color: "yellow"}
	require.NoError(t, repo.Save(ctx, h))

	uploaded, err := syncRepo.Pending(ctx, "highlights_cache")
	require.NoError(t, err)
	require.Len(t, uploaded, 1)

	h.Color = "blue"
	require.NoError(t, repo.Save(ctx, h))

	require.NoError(t, syncRepo.MarkSynced(ctx, "highlights_cache", uploaded...))

	pending, err := syncRepo.Pending(ctx, "highlights_cache")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "blue", pending[0].Data["color"])
	assert.NotEqual(t, uploaded[0].UpdatedAt, pending[0].UpdatedAt)

	require.NoError(t, syncRepo.MarkSynced(ctx, "highlights_cache", pending...))
	pending, err = syncRepo.Pending(ctx, "highlights_cache")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSyncRepo_MarkSyncedKeepsSoftDelete(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewNoteRepo(zerolog.Nop(), db)
	syncRepo := NewSyncRepo(zerolog.Nop(), db)

	freezeClock(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))

	n := &domain.Note{SyncMeta: domain.SyncMeta{UserID: "u1"}, BookID: 1, Chapter: 1, VerseStart: 1, VerseEnd: 1, Content: "light"}
	require.NoError(t, repo.Save(ctx, n))

	uploaded, err := syncRepo.Pending(ctx, "notes_cache")
	require.NoError(t, err)

	require.NoError(t, repo.SoftDelete(ctx, n.ID))
	require.NoError(t, syncRepo.MarkSynced(ctx, "notes_cache", uploaded...))

	pending, err := syncRepo.Pending(ctx, "notes_cache")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.NotNil(t, pending[0].Data["deleted_at"])
}

func TestHighlightRepo_SaveRejectsOtherUser(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewHighlightRepo(zerolog.Nop(), db)

	h := &domain.Highlight{SyncMeta: domain.SyncMeta{UserID: "u1"}, BookID: 1, Chapter: 1, VerseStart: 1, VerseEnd: 1, Color: "yellow"}
	require.NoError(t, repo.Save(ctx, h))

	other := &domain.Highlight{SyncMeta: domain.SyncMeta{ID: h.ID, UserID: "u2"}, BookID: 2, Chapter: 2, VerseStart: 2, VerseEnd: 2, Color: "red"}
	assert.ErrorIs(t, repo.Save(ctx, other), domain.ErrOwnerMismatch)

	got, err := repo.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "yellow", got.Color)
	assert.Equal(t, 1, got.BookID)
}

func TestHighlightRepo_UpdateFromNewStructTakesStoredCreatedAt(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewHighlightRepo(zerolog.Nop(), db)

	created := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	freezeClock(t, created)

	h := &domain.Highlight{SyncMeta: domain.SyncMeta{UserID: "u1"}, BookID: 1, Chapter: 1, VerseStart: 1, VerseEnd: 1, Color: "yellow"}
	require.NoError(t, repo.Save(ctx, h))

	freezeClock(t, created.Add(time.Hour))

	update := &domain.Highlight{SyncMeta: domain.SyncMeta{ID: h.ID, UserID: "u1"}, BookID: 1, Chapter: 1, VerseStart: 1, VerseEnd: 1, Color: "green"}
	require.NoError(t, repo.Save(ctx, update))
	assert.True(t, created.Equal(update.CreatedAt))
	assert.True(t, created.Add(time.Hour).Equal(update.UpdatedAt))

	got, err := repo.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Equal(t, "green", got.Color)
}

func TestNoteRepo_Links(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewNoteRepo(zerolog.Nop(), db)

	first := &domain.Note{SyncMeta: domain.SyncMeta{UserID: "u1"}, BookID: 1, Chapter: 1, VerseStart: 1, VerseEnd: 1, Content: "creation"}
	require.NoError(t, repo.Save(ctx, first))

	second := &domain.Note{SyncMeta: domain.SyncMeta{UserID: "u1"}, BookID: 1, Chapter: 1, VerseStart: 3, VerseEnd: 3, Content: "light", Template: "observation", LinkedNoteIDs: []string{first.ID}}
	require.NoError(t, repo.Save(ctx, second))

	list, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "freeform", list[0].Template)
	assert.Empty(t, list[0].LinkedNoteIDs)
	assert.Equal(t, "observation", list[1].Template)
	assert.Equal(t, []string{first.ID}, list[1].LinkedNoteIDs)
}

func TestPrayerRepo_GetIncludingDeleted(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewPrayerRepo(zerolog.Nop(), db)

	answered := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	p := &domain.Prayer{SyncMeta: domain.SyncMeta{UserID: "u1"}, Title: "Job", Content: "new work", Status: domain.PrayerStatusAnswered, AnsweredAt: &answered}
	require.NoError(t, repo.Save(ctx, p))
	require.NoError(t, repo.SoftDelete(ctx, p.ID))

	_, err := repo.Get(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := repo.GetIncludingDeleted(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted())
	assert.True(t, got.NeedsSync)
	assert.Equal(t, domain.PrayerStatusAnswered, got.Status)
	require.NotNil(t, got.AnsweredAt)
	assert.True(t, answered.Equal(*got.AnsweredAt))
}

func TestBookmarkRepo(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewBookmarkRepo(zerolog.Nop(), db)

	b := &domain.Bookmark{SyncMeta: domain.SyncMeta{UserID: "u1"}, BookID: 19, Chapter: 23, Verse: 1, Label: "Shepherd"}
	require.NoError(t, repo.Save(ctx, b))

	got, err := repo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "kjv", got.TranslationID)
	assert.Equal(t, "Shepherd", got.Label)

	require.NoError(t, NewSyncRepo(zerolog.Nop(), db).SoftDelete(ctx, "bookmarks", b.ID))

	list, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSermonRepo_Transcripts(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewSermonRepo(zerolog.Nop(), db)

	s := &domain.Sermon{SyncMeta: domain.SyncMeta{UserID: "u1"}, Title: "Sunday", Speaker: "Pastor"}
	require.NoError(t, repo.Save(ctx, s))
	require.NoError(t, repo.UpdateStatus(ctx, s.ID, domain.SermonStatusUploaded, domain.TranscriptStatusProcessing))

	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SermonStatusUploaded, got.Status)
	assert.Equal(t, domain.TranscriptStatusProcessing, got.TranscriptStatus)

	require.NoError(t, repo.SaveTranscript(ctx, &domain.SermonTranscript{SermonID: s.ID, Content: "the prodigal son returns home"}))

	found, err := repo.SearchTranscripts(ctx, "u1", "prodigal")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, domain.TranscriptStatusReady, found[0].TranscriptStatus)

	// replacing the transcript reindexes it
	require.NoError(t, repo.SaveTranscript(ctx, &domain.SermonTranscript{SermonID: s.ID, Content: "the good samaritan"}))

	found, err = repo.SearchTranscripts(ctx, "u1", "prodigal")
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = repo.SearchTranscripts(ctx, "u1", "samaritan")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	require.NoError(t, repo.SoftDelete(ctx, s.ID))
	found, err = repo.SearchTranscripts(ctx, "u1", "samaritan")
	require.NoError(t, err)
	assert.Empty(t, found)

	assert.ErrorIs(t, repo.UpdateStatus(ctx, s.ID, domain.SermonStatusReady, domain.TranscriptStatusReady), domain.ErrNotFound)
	assert.ErrorIs(t, repo.SaveTranscript(ctx, &domain.SermonTranscript{SermonID: "missing", Content: "x"}), domain.ErrNotFound)
}

func TestSyncRepo_PendingAcrossTables(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	syncRepo := NewSyncRepo(zerolog.Nop(), db)

	assert.Equal(t, SyncTables, syncRepo.Tables())

	require.NoError(t, NewPrayerRepo(zerolog.Nop(), db).Save(ctx, &domain.Prayer{SyncMeta: domain.SyncMeta{UserID: "u1"}, Title: "a"}))
	require.NoError(t, NewPrayerRepo(zerolog.Nop(), db).Save(ctx, &domain.Prayer{SyncMeta: domain.SyncMeta{UserID: "u1"}, Title: "b"}))

	for _, table := range syncRepo.Tables() {
		rows, err := syncRepo.Pending(ctx, table)
		require.NoError(t, err, table)
		if table == "prayers" {
			assert.Len(t, rows, 2)
		} else {
			assert.Empty(t, rows, table)
		}
	}

	_, err := syncRepo.Pending(ctx, "verses")
	assert.Error(t, err)
	assert.Error(t, syncRepo.MarkSynced(ctx, "schema_migrations", domain.PendingRow{ID: "v1_verses"}))
	assert.Error(t, syncRepo.SoftDelete(ctx, "sqlite_master", "x"))
}

func TestAICacheRepo(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewAICacheRepo(zerolog.Nop(), db)

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	require.NoError(t, repo.Put(ctx, &domain.AICacheEntry{CacheKey: "fresh", BookID: 1, Chapter: 1, VerseStart: 1, VerseEnd: 1, Mode: "explain", PromptHash: "h1", Response: "{}", ExpiresAt: &future}))
	require.NoError(t, repo.Put(ctx, &domain.AICacheEntry{CacheKey: "stale", BookID: 1, Chapter: 1, VerseStart: 1, VerseEnd: 1, Mode: "explain", PromptHash: "h2", Response: "{}", ExpiresAt: &past}))
	require.NoError(t, repo.Put(ctx, &domain.AICacheEntry{CacheKey: "forever", BookID: 1, Chapter: 1, VerseStart: 1, VerseEnd: 1, Mode: "explain", PromptHash: "h3", Response: `{"a":1}`, ModelUsed: "m"}))

	got, err := repo.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, "h1", got.PromptHash)
	require.NotNil(t, got.ExpiresAt)

	_, err = repo.Get(ctx, "stale")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err = repo.Get(ctx, "forever")
	require.NoError(t, err)
	assert.Nil(t, got.ExpiresAt)
	assert.Equal(t, "m", got.ModelUsed)

	n, err := repo.PurgeExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = repo.PurgeExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDataSourceRepo(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewDataSourceRepo(zerolog.Nop(), db)

	require.NoError(t, repo.Upsert(ctx, &domain.DataSource{ID: "openbible", Name: "OpenBible cross references", Version: "2024", License: "CC-BY"}))
	require.NoError(t, repo.UpdateRecordCount(ctx, "openbible", 344799))
	assert.ErrorIs(t, repo.UpdateRecordCount(ctx, "missing", 1), domain.ErrNotFound)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 344799, list[0].RecordCount)
	assert.Empty(t, list[0].SourceURL)
	assert.False(t, list[0].ImportedAt.IsZero())
}
