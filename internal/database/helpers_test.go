package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/varoOP/biblestore/internal/domain"
	"github.com/varoOP/biblestore/internal/preferences"
)

const testBundleVersion = 3

type testVerse struct {
	book, chapter, verse int
	text                 string
}

var genesis = []testVerse{
	{1, 1, 1, "In the beginning God created the heaven and the earth."},
	{1, 1, 2, "And the earth was without form,  and void;\nand darkness was upon the face of the deep."},
	{1, 1, 3, "And God said, Let there be light: and there was light."},
	{43, 3, 16, "For God so loved the world, that he gave his only begotten Son."},
}

// openTestDB opens a fully migrated database without a bundle.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	db := NewDB(zerolog.Nop(), Config{Path: filepath.Join(t.TempDir(), "BibleStudy.sqlite")})
	require.NoError(t, db.Open(context.Background()))
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestPrefs(t *testing.T) *preferences.Store {
	t.Helper()

	prefs, err := preferences.Open(afero.NewMemMapFs(), "/data/preferences.yaml")
	require.NoError(t, err)
	return prefs
}

// writeVerseSource creates a scrollmapper style t_kjv source file.
func writeVerseSource(t *testing.T, path string, verses []testVerse) {
	t.Helper()

	handler, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer handler.Close()

	_, err = handler.Exec(`CREATE TABLE t_kjv (id INTEGER PRIMARY KEY, b INTEGER, c INTEGER, v INTEGER, t TEXT)`)
	require.NoError(t, err)

	for _, v := range verses {
		_, err := handler.Exec(`INSERT INTO t_kjv (b, c, v, t) VALUES (?, ?, ?, ?)`, v.book, v.chapter, v.verse, v.text)
		require.NoError(t, err)
	}
}

func testManifest(sourcePath string) domain.BundleManifest {
	return domain.BundleManifest{
		Translations: []domain.Translation{
			{ID: "kjv", Name: "King James Version", Abbreviation: "KJV", Language: "en", Description: "Authorized Version", IsDefault: true, IsAvailable: true},
		},
		Verses: []domain.VerseSource{{Translation: "kjv", Path: sourcePath}},
		DataSources: []domain.DataSource{
			{ID: "kjv", Name: "King James Version", Version: "1769", License: "Public Domain", CountOf: "verses"},
		},
	}
}

// buildTestBundle builds a bundle and returns its directory and file name.
func buildTestBundle(t *testing.T) (string, string) {
	t.Helper()

	dir := t.TempDir()
	source := filepath.Join(dir, "kjv-source.sqlite")
	writeVerseSource(t, source, genesis)

	name := "BibleData.sqlite"
	require.NoError(t, BuildBundle(context.Background(), zerolog.Nop(), filepath.Join(dir, name), testManifest(source)))
	return dir, name
}

func openBundledDB(t *testing.T, path string, bundle *Bundle, prefs Preferences) (*DB, error) {
	t.Helper()

	boot := NewBootstrapper(zerolog.Nop(), bundle, prefs)
	db := NewDB(zerolog.Nop(), Config{Path: path, Bootstrapper: boot})
	err := db.Open(context.Background())
	t.Cleanup(func() { db.Close() })
	return db, err
}

func insertVerse(t *testing.T, db *DB, v testVerse) {
	t.Helper()

	err := db.Write(context.Background(), func(tx *Tx) error {
		_, err := tx.Exec(`INSERT INTO verses (translation_id, book_id, chapter, verse, text) VALUES ('kjv', ?, ?, ?, ?)`,
			v.book, v.chapter, v.verse, v.text)
		return err
	})
	require.NoError(t, err)
}
