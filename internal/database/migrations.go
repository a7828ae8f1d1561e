package database

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// Full text indexes. Changing a tokenizer needs a new repair migration.
var (
	VersesFTS = FTSIndex{
		Table:    "verses",
		Columns:  []string{"text"},
		Tokenize: "porter unicode61",
	}
	PrayersFTS = FTSIndex{
		Table:    "prayers",
		Columns:  []string{"title", "content"},
		Tokenize: "porter unicode61 remove_diacritics 2",
	}
	SermonTranscriptsFTS = FTSIndex{
		Table:    "sermon_transcripts",
		Columns:  []string{"content"},
		Tokenize: "porter unicode61",
	}

	legacyPrayersFTS = FTSIndex{
		Table:    "prayers",
		Columns:  []string{"title", "content"},
		Tokenize: "unicode61",
	}
)

// FTSIndexes lists every index the integrity check inspects.
var FTSIndexes = []FTSIndex{VersesFTS, PrayersFTS, SermonTranscriptsFTS}

// BundledMigrations are the steps already present in the schema of the
// shipped bundle. It must be extended whenever the bundle is rebuilt with a
// newer schema; CheckBundleDrift reports a mismatch.
var BundledMigrations = []string{
	"v1_verses",
	"v2_crossrefs",
	"v3_tokens",
	"v4_highlights_cache",
	"v5_notes_cache",
	"v6_ai_cache",
	"v7_translations",
	"v8_user_translation_prefs",
	"v9_memorization",
	"v10_note_templates",
	"v11_highlight_categories",
	"v12_note_links",
	"v13_study_collections",
	"v14_reading_sessions",
	"v15_fts5_search",
	"v16_data_sources",
}

// SyncTables is the content table family. Every table carries id, user_id,
// created_at, updated_at, deleted_at and needs_sync.
var SyncTables = []string{
	"highlights_cache",
	"notes_cache",
	"memorization_items",
	"study_collections",
	"prayers",
	"bookmarks",
	"sermons",
	"engagements",
}

// Migrations returns the registered steps in application order. Append only.
func Migrations() []Migration {
	return []Migration{
		statements("v1_verses",
			`CREATE TABLE IF NOT EXISTS verses (
				translation_id TEXT NOT NULL DEFAULT 'kjv',
				book_id INTEGER NOT NULL,
				chapter INTEGER NOT NULL,
				verse INTEGER NOT NULL,
				text TEXT NOT NULL,
				PRIMARY KEY (translation_id, book_id, chapter, verse)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_verses_translation_book_chapter ON verses(translation_id, book_id, chapter)`,
		),
		statements("v2_crossrefs",
			`CREATE TABLE IF NOT EXISTS cross_references (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				source_book_id INTEGER NOT NULL,
				source_chapter INTEGER NOT NULL,
				source_verse_start INTEGER NOT NULL,
				source_verse_end INTEGER NOT NULL,
				target_book_id INTEGER NOT NULL,
				target_chapter INTEGER NOT NULL,
				target_verse_start INTEGER NOT NULL,
				target_verse_end INTEGER NOT NULL,
				weight REAL NOT NULL DEFAULT 1.0,
				source TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_crossrefs_source ON cross_references(source_book_id, source_chapter, source_verse_start)`,
			`CREATE INDEX IF NOT EXISTS idx_crossrefs_target ON cross_references(target_book_id, target_chapter, target_verse_start)`,
		),
		statements("v3_tokens",
			`CREATE TABLE IF NOT EXISTS language_tokens (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				book_id INTEGER NOT NULL,
				chapter INTEGER NOT NULL,
				verse INTEGER NOT NULL,
				position INTEGER NOT NULL,
				surface TEXT NOT NULL,
				lemma TEXT,
				morph TEXT,
				strong_id TEXT,
				gloss TEXT,
				language TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tokens_verse ON language_tokens(book_id, chapter, verse)`,
			`CREATE INDEX IF NOT EXISTS idx_tokens_lemma ON language_tokens(lemma)`,
		),
		statements("v4_highlights_cache",
			`CREATE TABLE IF NOT EXISTS highlights_cache (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				book_id INTEGER NOT NULL,
				chapter INTEGER NOT NULL,
				verse_start INTEGER NOT NULL,
				verse_end INTEGER NOT NULL,
				color TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				deleted_at TEXT,
				needs_sync INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_highlights_verse ON highlights_cache(book_id, chapter, verse_start)`,
			`CREATE INDEX IF NOT EXISTS idx_highlights_user ON highlights_cache(user_id)`,
		),
		statements("v5_notes_cache",
			`CREATE TABLE IF NOT EXISTS notes_cache (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				book_id INTEGER NOT NULL,
				chapter INTEGER NOT NULL,
				verse_start INTEGER NOT NULL,
				verse_end INTEGER NOT NULL,
				content TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				deleted_at TEXT,
				needs_sync INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_notes_verse ON notes_cache(book_id, chapter, verse_start)`,
			`CREATE INDEX IF NOT EXISTS idx_notes_user ON notes_cache(user_id)`,
		),
		statements("v6_ai_cache",
			`CREATE TABLE IF NOT EXISTS ai_cache (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				cache_key TEXT NOT NULL UNIQUE,
				book_id INTEGER NOT NULL,
				chapter INTEGER NOT NULL,
				verse_start INTEGER NOT NULL,
				verse_end INTEGER NOT NULL,
				mode TEXT NOT NULL,
				prompt_hash TEXT NOT NULL,
				response TEXT NOT NULL,
				model_used TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_ai_cache_verse ON ai_cache(book_id, chapter, verse_start)`,
		),
		statements("v7_translations",
			`CREATE TABLE IF NOT EXISTS translations (
				id TEXT NOT NULL PRIMARY KEY,
				name TEXT NOT NULL,
				abbreviation TEXT NOT NULL,
				language TEXT NOT NULL,
				description TEXT NOT NULL,
				copyright TEXT,
				is_default INTEGER NOT NULL DEFAULT 0,
				sort_order INTEGER NOT NULL DEFAULT 0,
				is_available INTEGER NOT NULL DEFAULT 1
			)`,
		),
		statements("v8_user_translation_prefs",
			`CREATE TABLE IF NOT EXISTS user_translation_preferences (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id TEXT NOT NULL UNIQUE,
				primary_translation_id TEXT NOT NULL,
				secondary_translation_id TEXT,
				updated_at TEXT NOT NULL
			)`,
		),
		statements("v9_memorization",
			`CREATE TABLE IF NOT EXISTS memorization_items (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				book_id INTEGER NOT NULL,
				chapter INTEGER NOT NULL,
				verse_start INTEGER NOT NULL,
				verse_end INTEGER NOT NULL,
				verse_text TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				ease_factor REAL NOT NULL DEFAULT 2.5,
				interval INTEGER NOT NULL DEFAULT 0,
				repetitions INTEGER NOT NULL DEFAULT 0,
				next_review_date TEXT NOT NULL,
				last_review_date TEXT,
				mastery_level TEXT NOT NULL DEFAULT 'learning',
				total_reviews INTEGER NOT NULL DEFAULT 0,
				correct_reviews INTEGER NOT NULL DEFAULT 0,
				needs_sync INTEGER NOT NULL DEFAULT 0,
				deleted_at TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_memorization_user ON memorization_items(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_memorization_next_review ON memorization_items(user_id, next_review_date)`,
		),
		{ID: "v10_note_templates", Up: func(ctx context.Context, tx *Tx) error {
			return addColumnIfMissing(ctx, tx, "notes_cache", "template", `TEXT DEFAULT 'freeform'`)
		}},
		{ID: "v11_highlight_categories", Up: func(ctx context.Context, tx *Tx) error {
			if err := addColumnIfMissing(ctx, tx, "highlights_cache", "category", `TEXT DEFAULT 'none'`); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_highlights_category ON highlights_cache(category)`)
			return err
		}},
		{ID: "v12_note_links", Up: func(ctx context.Context, tx *Tx) error {
			return addColumnIfMissing(ctx, tx, "notes_cache", "linked_note_ids", `TEXT DEFAULT '[]'`)
		}},
		statements("v13_study_collections",
			`CREATE TABLE IF NOT EXISTS study_collections (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				name TEXT NOT NULL,
				description TEXT DEFAULT '',
				type TEXT NOT NULL DEFAULT 'personal',
				icon TEXT NOT NULL,
				color TEXT NOT NULL DEFAULT 'AccentGold',
				items TEXT NOT NULL DEFAULT '[]',
				is_pinned INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				deleted_at TEXT,
				needs_sync INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_collections_user ON study_collections(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_collections_pinned ON study_collections(user_id, is_pinned)`,
		),
		statements("v14_reading_sessions",
			`CREATE TABLE IF NOT EXISTS reading_sessions (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				started_at TEXT NOT NULL,
				ended_at TEXT,
				book_id INTEGER NOT NULL,
				chapter INTEGER NOT NULL,
				verses_read TEXT NOT NULL DEFAULT '[]',
				translation_id TEXT NOT NULL DEFAULT 'kjv',
				duration_seconds INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_user ON reading_sessions(user_id, started_at)`,
		),
		// The first verses index shipped without triggers. v17 repairs it.
		{ID: "v15_fts5_search", Up: func(ctx context.Context, tx *Tx) error {
			if err := VersesFTS.CreateTable(ctx, tx); err != nil {
				return err
			}
			return VersesFTS.Rebuild(ctx, tx)
		}},
		statements("v16_data_sources",
			`CREATE TABLE IF NOT EXISTS data_sources (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				version TEXT NOT NULL,
				source_url TEXT,
				license TEXT NOT NULL,
				license_url TEXT,
				attribution TEXT,
				record_count INTEGER,
				imported_at TEXT NOT NULL,
				checksum TEXT
			)`,
		),
		{ID: "v17_verses_fts_triggers", Up: VersesFTS.Repair},
		{ID: "v18_prayers", Up: func(ctx context.Context, tx *Tx) error {
			_, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS prayers (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				title TEXT NOT NULL,
				content TEXT NOT NULL DEFAULT '',
				category TEXT NOT NULL DEFAULT 'personal',
				status TEXT NOT NULL DEFAULT 'active',
				answered_at TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				deleted_at TEXT,
				needs_sync INTEGER NOT NULL DEFAULT 0
			)`)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_prayers_user ON prayers(user_id, status)`); err != nil {
				return err
			}
			return legacyPrayersFTS.Create(ctx, tx)
		}},
		statements("v19_bookmarks",
			`CREATE TABLE IF NOT EXISTS bookmarks (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				translation_id TEXT NOT NULL DEFAULT 'kjv',
				book_id INTEGER NOT NULL,
				chapter INTEGER NOT NULL,
				verse INTEGER NOT NULL DEFAULT 1,
				label TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				deleted_at TEXT,
				needs_sync INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_bookmarks_user ON bookmarks(user_id)`,
		),
		statements("v20_sermons",
			`CREATE TABLE IF NOT EXISTS sermons (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				title TEXT NOT NULL,
				speaker TEXT NOT NULL DEFAULT '',
				audio_path TEXT NOT NULL DEFAULT '',
				duration_seconds INTEGER NOT NULL DEFAULT 0,
				status TEXT NOT NULL DEFAULT 'recording',
				transcript_status TEXT NOT NULL DEFAULT 'none',
				recorded_at TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				deleted_at TEXT,
				needs_sync INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sermons_user ON sermons(user_id, recorded_at)`,
		),
		{ID: "v21_sermon_transcripts", Up: func(ctx context.Context, tx *Tx) error {
			_, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS sermon_transcripts (
				id TEXT PRIMARY KEY,
				sermon_id TEXT NOT NULL UNIQUE REFERENCES sermons(id) ON DELETE CASCADE,
				content TEXT NOT NULL,
				language TEXT NOT NULL DEFAULT 'en',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`)
			if err != nil {
				return err
			}
			return SermonTranscriptsFTS.Create(ctx, tx)
		}},
		statements("v22_engagements",
			`CREATE TABLE IF NOT EXISTS engagements (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				target_id TEXT NOT NULL,
				payload TEXT NOT NULL DEFAULT '{}',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				deleted_at TEXT,
				needs_sync INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_engagements_target ON engagements(kind, target_id)`,
		),
		statements("v23_commentary_insights",
			`CREATE TABLE IF NOT EXISTS commentary_insights (
				id TEXT PRIMARY KEY,
				book_id INTEGER NOT NULL,
				chapter INTEGER NOT NULL,
				verse_start INTEGER NOT NULL,
				verse_end INTEGER NOT NULL,
				segment_text TEXT,
				segment_start_char INTEGER,
				segment_end_char INTEGER,
				insight_type TEXT NOT NULL,
				title TEXT NOT NULL,
				content TEXT NOT NULL,
				icon TEXT,
				sources TEXT NOT NULL DEFAULT '[]',
				content_version INTEGER NOT NULL DEFAULT 1,
				prompt_version TEXT,
				model_version TEXT,
				quality_tier TEXT NOT NULL DEFAULT 'standard',
				is_interpretive INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_commentary_verse ON commentary_insights(book_id, chapter, verse_start)`,
		),
		{ID: "v24_sync_indexes", Up: func(ctx context.Context, tx *Tx) error {
			for _, table := range SyncTables {
				stmt := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_needs_sync ON %s(updated_at) WHERE needs_sync = 1`, table, table)
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return errors.Wrapf(err, "failed to index %s", table)
				}
			}
			return nil
		}},
		// Replaces the prayers index built with the v18 tokenizer.
		{ID: "v25_prayers_fts_repair", Up: PrayersFTS.Repair},
		statements("v26_sermon_transcript_status_backfill",
			`UPDATE sermons SET transcript_status = 'ready'
				WHERE transcript_status IN ('none', 'pending', 'processing')
				AND id IN (SELECT sermon_id FROM sermon_transcripts)`,
		),
		{ID: "v27_ai_cache_expiry", Up: func(ctx context.Context, tx *Tx) error {
			if err := addColumnIfMissing(ctx, tx, "ai_cache", "expires_at", `TEXT`); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_ai_cache_expires ON ai_cache(expires_at) WHERE expires_at IS NOT NULL`)
			return err
		}},
	}
}

// statements builds a step that runs stmts in order.
func statements(id string, stmts ...string) Migration {
	return Migration{
		ID: id,
		Up: func(ctx context.Context, tx *Tx) error {
			for _, stmt := range stmts {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// addColumnIfMissing adds column to table unless PRAGMA table_info already lists it.
func addColumnIfMissing(ctx context.Context, tx *Tx, table, column, decl string) error {
	exists, err := columnExists(ctx, tx, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, decl)); err != nil {
		return errors.Wrapf(err, "failed to add %s.%s", table, column)
	}
	return nil
}

func columnExists(ctx context.Context, tx *Tx, table, column string) (bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, errors.Wrapf(err, "failed to inspect %s", table)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return false, err
	}

	found := false
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return false, errors.Wrap(err, "error scanning row")
		}
		for i, c := range cols {
			if c == "name" && asString(values[i]) == column {
				found = true
			}
		}
	}
	return found, errors.Wrap(rows.Err(), "error iterating rows")
}

func tableExists(ctx context.Context, q querier, table string) (bool, error) {
	return schemaObjectExists(ctx, q, "table", table)
}

func indexExists(ctx context.Context, q querier, index string) (bool, error) {
	return schemaObjectExists(ctx, q, "index", index)
}

func schemaObjectExists(ctx context.Context, q querier, kind, name string) (bool, error) {
	rows, err := q.QueryContext(ctx, `SELECT 1 FROM sqlite_master WHERE type = ? AND name = ?`, kind, name)
	if err != nil {
		return false, errors.Wrapf(err, "failed to look up %s %s", kind, name)
	}
	defer rows.Close()

	exists := rows.Next()
	return exists, errors.Wrap(rows.Err(), "error iterating rows")
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(v)
	}
}
