package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varoOP/biblestore/internal/domain"
)

func TestVerifyIntegrity(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	// without a bundle an empty verses table is expected
	assert.False(t, db.HasBundle())
	assert.True(t, db.VerifyIntegrity(ctx))

	insertVerse(t, db, genesis[0])
	assert.True(t, db.VerifyIntegrity(ctx))

	report := db.CheckIntegrity(ctx)
	assert.True(t, report.OK())
	assert.Equal(t, 1, report.VerseCount)
	assert.Equal(t, db.Path(), report.DatabasePath)
}

func TestVerifyIntegrity_EmptyVersesWithBundle(t *testing.T) {
	ctx := context.Background()
	dir, name := buildTestBundle(t)
	path := filepath.Join(t.TempDir(), "BibleStudy.sqlite")

	db, err := openBundledDB(t, path, NewDirBundle(dir, name, testBundleVersion), newTestPrefs(t))
	require.NoError(t, err)
	require.True(t, db.HasBundle())

	err = db.Write(ctx, func(tx *Tx) error {
		_, err := tx.Exec(`DELETE FROM verses`)
		return err
	})
	require.NoError(t, err)

	report := db.CheckIntegrity(ctx)
	assert.Contains(t, report.Problems, "verses table is empty")
}

func TestVerifyIntegrity_UserContentWithoutBundle(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	h := &domain.Highlight{SyncMeta: domain.SyncMeta{UserID: "u1"}, BookID: 1, Chapter: 1, VerseStart: 1, VerseEnd: 1, Color: "yellow"}
	require.NoError(t, NewHighlightRepo(zerolog.Nop(), db).Save(ctx, h))

	report := db.CheckIntegrity(ctx)
	assert.True(t, report.OK(), report.Problems)
	assert.Zero(t, report.VerseCount)
}

func TestVerifyIntegrity_MissingCoreTable(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	err := db.Write(ctx, func(tx *Tx) error {
		if err := VersesFTS.Drop(ctx, tx); err != nil {
			return err
		}
		_, err := tx.Exec(`DROP TABLE verses`)
		return err
	})
	require.NoError(t, err)

	report := db.CheckIntegrity(ctx)
	assert.Contains(t, report.Problems, "verses table is missing")
	assert.False(t, db.VerifyIntegrity(ctx))
}

func TestVerifyIntegrity_NotInitialized(t *testing.T) {
	db := NewDB(zerolog.Nop(), Config{Path: filepath.Join(t.TempDir(), "db.sqlite")})
	assert.False(t, db.VerifyIntegrity(context.Background()))
}

func TestResetToBundled(t *testing.T) {
	ctx := context.Background()
	dir, name := buildTestBundle(t)
	prefs := newTestPrefs(t)
	path := filepath.Join(t.TempDir(), "BibleStudy.sqlite")

	db, err := openBundledDB(t, path, NewDirBundle(dir, name, testBundleVersion), prefs)
	require.NoError(t, err)

	notes := NewNoteRepo(zerolog.Nop(), db)
	note := &domain.Note{SyncMeta: domain.SyncMeta{UserID: "u1"}, BookID: 1, Chapter: 1, VerseStart: 1, VerseEnd: 1, Content: "beginning"}
	require.NoError(t, notes.Save(ctx, note))

	err = db.Write(ctx, func(tx *Tx) error {
		_, err := tx.Exec(`DELETE FROM verses`)
		return err
	})
	require.NoError(t, err)
	require.False(t, db.VerifyIntegrity(ctx))

	require.NoError(t, db.ResetToBundled(ctx))

	assert.True(t, db.VerifyIntegrity(ctx))

	_, err = notes.Get(ctx, note.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	version, ok := prefs.Int(BundleVersionKey)
	require.True(t, ok)
	assert.Equal(t, testBundleVersion, version)

	count, err := NewVerseRepo(zerolog.Nop(), db).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(genesis), count)
}

func TestResetToBundled_WithoutBundle(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	insertVerse(t, db, genesis[0])

	require.NoError(t, db.ResetToBundled(ctx))

	count, err := NewVerseRepo(zerolog.Nop(), db).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDeleteDatabase(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	insertVerse(t, db, genesis[0])

	require.NoError(t, db.DeleteDatabase())

	for _, suffix := range []string{"", "-wal", "-shm"} {
		_, err := os.Stat(db.Path() + suffix)
		assert.True(t, os.IsNotExist(err), suffix)
	}

	err := db.Read(ctx, func(tx *Tx) error { return nil })
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	err = db.Write(ctx, func(tx *Tx) error { return nil })
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	require.NoError(t, db.Open(ctx))

	count, err := NewVerseRepo(zerolog.Nop(), db).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestResetToBundled_CorruptFile(t *testing.T) {
	ctx := context.Background()
	dir, name := buildTestBundle(t)
	prefs := newTestPrefs(t)
	path := filepath.Join(t.TempDir(), "BibleStudy.sqlite")

	db, err := openBundledDB(t, path, NewDirBundle(dir, name, testBundleVersion), prefs)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	require.NoError(t, os.WriteFile(path, []byte("definitely not a database file, just garbage bytes"), 0644))
	require.Error(t, db.Open(ctx))
	require.False(t, db.VerifyIntegrity(ctx))

	require.NoError(t, db.ResetToBundled(ctx))
	assert.True(t, db.VerifyIntegrity(ctx))

	count, err := NewVerseRepo(zerolog.Nop(), db).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(genesis), count)
}
