package database

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varoOP/biblestore/internal/domain"
)

func searchCount(t *testing.T, repo domain.VerseRepo, query string) int {
	t.Helper()

	hits, err := repo.Search(context.Background(), "kjv", query, 10)
	require.NoError(t, err)
	return len(hits)
}

func TestVersesFTS_FollowsBaseTable(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewVerseRepo(zerolog.Nop(), db)

	insertVerse(t, db, testVerse{45, 5, 20, "grace abounds"})
	assert.Equal(t, 1, searchCount(t, repo, "grace"))
	assert.Equal(t, 1, searchCount(t, repo, "abounds"))

	err := db.Write(ctx, func(tx *Tx) error {
		_, err := tx.Exec(`UPDATE verses SET text = 'grace restored' WHERE book_id = 45 AND chapter = 5 AND verse = 20`)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, 0, searchCount(t, repo, "abounds"))
	assert.Equal(t, 1, searchCount(t, repo, "restored"))
	assert.Equal(t, 1, searchCount(t, repo, "grace"))

	err = db.Write(ctx, func(tx *Tx) error {
		_, err := tx.Exec(`DELETE FROM verses WHERE book_id = 45`)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, 0, searchCount(t, repo, "grace"))
	report := db.CheckIntegrity(ctx)
	assert.Empty(t, report.Problems)
	assert.Zero(t, report.VerseCount)
}

func TestVersesFTS_SearchRanksAndSnippets(t *testing.T) {
	db := openTestDB(t)
	repo := NewVerseRepo(zerolog.Nop(), db)

	for _, v := range genesis {
		insertVerse(t, db, v)
	}

	hits, err := repo.Search(context.Background(), "", "light", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 3, hits[0].Verse.Verse)
	assert.Contains(t, hits[0].Snippet, "[light]")

	// porter stemming matches inflections
	assert.Equal(t, 1, searchCount(t, repo, "create"))

	// query syntax is treated as text
	assert.Equal(t, 0, searchCount(t, repo, `"unbalanced`))
	assert.Equal(t, 0, searchCount(t, repo, "   "))
}

func TestFTSIndex_RepairRestoresStaleIndex(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewVerseRepo(zerolog.Nop(), db)

	insertVerse(t, db, testVerse{1, 1, 1, "grace abounds"})

	err := db.Write(ctx, func(tx *Tx) error {
		if _, err := tx.Exec(`DROP TRIGGER verses_fts_au`); err != nil {
			return err
		}
		_, err := tx.Exec(`UPDATE verses SET text = 'mercy endures' WHERE book_id = 1`)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, 0, searchCount(t, repo, "mercy"))
	assert.False(t, db.VerifyIntegrity(ctx))

	err = db.Write(ctx, func(tx *Tx) error {
		return VersesFTS.Repair(ctx, tx)
	})
	require.NoError(t, err)

	assert.Equal(t, 1, searchCount(t, repo, "mercy"))
	assert.Equal(t, 0, searchCount(t, repo, "abounds"))
	assert.True(t, db.VerifyIntegrity(ctx))

	err = db.Read(ctx, func(tx *Tx) error {
		installed, err := VersesFTS.triggersInstalled(ctx, tx)
		require.NoError(t, err)
		assert.True(t, installed)
		return nil
	})
	require.NoError(t, err)
}

func TestPrayersFTS_SkipsSoftDeleted(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewPrayerRepo(zerolog.Nop(), db)

	kept := &domain.Prayer{SyncMeta: domain.SyncMeta{UserID: "u1"}, Title: "Healing", Content: "for my mother's recovery"}
	gone := &domain.Prayer{SyncMeta: domain.SyncMeta{UserID: "u1"}, Title: "Recovery", Content: "strength after surgery"}
	other := &domain.Prayer{SyncMeta: domain.SyncMeta{UserID: "u2"}, Title: "Recovery", Content: "another user"}
	require.NoError(t, repo.Save(ctx, kept))
	require.NoError(t, repo.Save(ctx, gone))
	require.NoError(t, repo.Save(ctx, other))

	found, err := repo.Search(ctx, "u1", "recovery")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	require.NoError(t, repo.SoftDelete(ctx, gone.ID))

	found, err = repo.Search(ctx, "u1", "recovery")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, kept.ID, found[0].ID)

	// editing a prayer reindexes it
	kept.Content = "thanksgiving"
	require.NoError(t, repo.Save(ctx, kept))

	found, err = repo.Search(ctx, "u1", "recovery")
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = repo.Search(ctx, "u1", "thanksgiving")
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestMatchQuery(t *testing.T) {
	assert.Equal(t, `"grace" "abounds"`, matchQuery("  grace   abounds "))
	assert.Equal(t, `"say" """amen"""`, matchQuery(`say "amen"`))
	assert.Equal(t, `"a""b"`, matchQuery(`a"b`))
	assert.Empty(t, matchQuery(""))
}
