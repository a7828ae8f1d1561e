package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varoOP/biblestore/internal/domain"
)

func TestDB_NotInitializedBeforeOpen(t *testing.T) {
	ctx := context.Background()
	db := NewDB(zerolog.Nop(), Config{Path: filepath.Join(t.TempDir(), "db.sqlite")})

	called := false
	err := db.Read(ctx, func(tx *Tx) error { called = true; return nil })
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	err = db.Write(ctx, func(tx *Tx) error { called = true; return nil })
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	_, err = ReadValue(ctx, db, func(tx *Tx) (int, error) { called = true; return 1, nil })
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	assert.False(t, called)
	assert.ErrorIs(t, db.Ping(ctx), domain.ErrNotInitialized)
}

func TestDB_WriteRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	failure := errors.New("abort")
	err := db.Write(ctx, func(tx *Tx) error {
		if _, err := tx.Exec(`INSERT INTO verses (translation_id, book_id, chapter, verse, text) VALUES ('kjv', 1, 1, 1, 'x')`); err != nil {
			return err
		}
		return failure
	})
	assert.ErrorIs(t, err, failure)

	count, err := NewVerseRepo(zerolog.Nop(), db).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDB_ReadDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	err := db.Read(ctx, func(tx *Tx) error {
		_, err := tx.Exec(`INSERT INTO verses (translation_id, book_id, chapter, verse, text) VALUES ('kjv', 1, 1, 1, 'x')`)
		return err
	})
	require.Error(t, err)

	count, err := NewVerseRepo(zerolog.Nop(), db).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	// the pooled connection is writable again afterwards
	insertVerse(t, db, genesis[0])
	count, err = NewVerseRepo(zerolog.Nop(), db).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDB_CanceledReadLeavesPoolWritable(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	err := db.Read(ctx, func(tx *Tx) error {
		cancel()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)

	for _, v := range genesis {
		insertVerse(t, db, v)
	}
}

func TestDB_MarkDegraded(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "BibleStudy.sqlite")

	broken := append(Migrations(), Migration{ID: "v99_broken", Up: func(ctx context.Context, tx *Tx) error {
		return errors.New("no such column: legacy")
	}})
	db := NewDB(zerolog.Nop(), Config{Path: path, Migrator: NewMigrator(zerolog.Nop(), broken...)})
	t.Cleanup(func() { db.Close() })

	err := db.Open(ctx)
	require.ErrorIs(t, err, domain.ErrMigrationFailed)

	_, err = NewVerseRepo(zerolog.Nop(), db).Count(ctx)
	require.ErrorIs(t, err, domain.ErrNotInitialized)

	require.NoError(t, db.MarkDegraded())

	insertVerse(t, db, genesis[0])
	count, err := NewVerseRepo(zerolog.Nop(), db).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDB_MarkDegraded_WithoutHandle(t *testing.T) {
	db := NewDB(zerolog.Nop(), Config{Path: filepath.Join(t.TempDir(), "BibleStudy.sqlite")})
	assert.ErrorIs(t, db.MarkDegraded(), domain.ErrNotInitialized)
}

func TestDB_CanceledContext(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := db.Write(ctx, func(tx *Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

// Writers move one unit between two rows; concurrent readers must always see
// the invariant total.
func TestDB_ReadsNeverSeePartialWrites(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	err := db.Write(ctx, func(tx *Tx) error {
		_, err := tx.Exec(`INSERT INTO verses (translation_id, book_id, chapter, verse, text) VALUES ('kjv', 1, 1, 1, '50'), ('kjv', 1, 1, 2, '50')`)
		return err
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 64)

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				err := db.Write(ctx, func(tx *Tx) error {
					if _, err := tx.Exec(`UPDATE verses SET text = CAST(text AS INTEGER) - 1 WHERE verse = 1`); err != nil {
						return err
					}
					_, err := tx.Exec(`UPDATE verses SET text = CAST(text AS INTEGER) + 1 WHERE verse = 2`)
					return err
				})
				if err != nil {
					errs <- err
					return
				}
			}
		}()
	}

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				total, err := ReadValue(ctx, db, func(tx *Tx) (int, error) {
					var sum int
					err := tx.QueryRow(`SELECT SUM(CAST(text AS INTEGER)) FROM verses`).Scan(&sum)
					return sum, err
				})
				if err != nil {
					errs <- err
					return
				}
				if total != 100 {
					errs <- errors.New("read observed a partial write")
					return
				}
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	verse, err := NewVerseRepo(zerolog.Nop(), db).Get(ctx, "kjv", 1, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "150", verse.Text)
}

func TestDB_CloseThenOpen(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	insertVerse(t, db, genesis[0])

	require.NoError(t, db.Close())
	assert.ErrorIs(t, db.Ping(ctx), domain.ErrNotInitialized)

	require.NoError(t, db.Open(ctx))
	require.NoError(t, db.Ping(ctx))

	count, err := NewVerseRepo(zerolog.Nop(), db).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
