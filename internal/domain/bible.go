package domain

import "time"

// Verse is a single verse of a translation. Verses are replaced only by a bundle refresh.
type Verse struct {
	TranslationID string `json:"translation_id"`
	BookID        int    `json:"book_id"`
	Chapter       int    `json:"chapter"`
	Verse         int    `json:"verse"`
	Text          string `json:"text"`
}

// Translation describes a Bible translation shipped in the bundle.
type Translation struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	Abbreviation string `json:"abbreviation" yaml:"abbreviation"`
	Language     string `json:"language" yaml:"language"`
	Description  string `json:"description" yaml:"description"`
	Copyright    string `json:"copyright,omitempty" yaml:"copyright,omitempty"`
	IsDefault    bool   `json:"is_default" yaml:"is_default"`
	SortOrder    int    `json:"sort_order" yaml:"sort_order"`
	IsAvailable  bool   `json:"is_available" yaml:"is_available"`
}

// DataSource is attribution and licensing metadata for imported data.
type DataSource struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Version     string    `json:"version" yaml:"version"`
	SourceURL   string    `json:"source_url,omitempty" yaml:"source_url,omitempty"`
	License     string    `json:"license" yaml:"license"`
	LicenseURL  string    `json:"license_url,omitempty" yaml:"license_url,omitempty"`
	Attribution string    `json:"attribution,omitempty" yaml:"attribution,omitempty"`
	RecordCount int       `json:"record_count" yaml:"record_count,omitempty"`
	ImportedAt  time.Time `json:"imported_at" yaml:"-"`
	Checksum    string    `json:"checksum,omitempty" yaml:"checksum,omitempty"`
	// CountOf names the table whose row count becomes RecordCount when a bundle is built.
	CountOf string `json:"-" yaml:"count_of,omitempty"`
	// ChecksumOf names the source file whose MD5 digest becomes Checksum when a bundle is built.
	ChecksumOf string `json:"-" yaml:"checksum_of,omitempty"`
}

// SearchHit is one full-text search match.
type SearchHit struct {
	Verse
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// AICacheEntry is an opaque response blob cached under a key.
type AICacheEntry struct {
	CacheKey   string     `json:"cache_key"`
	BookID     int        `json:"book_id"`
	Chapter    int        `json:"chapter"`
	VerseStart int        `json:"verse_start"`
	VerseEnd   int        `json:"verse_end"`
	Mode       string     `json:"mode"`
	PromptHash string     `json:"prompt_hash"`
	Response   string     `json:"response"`
	ModelUsed  string     `json:"model_used,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// BundleManifest drives the bundle builder.
type BundleManifest struct {
	Translations    []Translation          `yaml:"translations"`
	Verses          []VerseSource          `yaml:"verses"`
	CrossReferences []CrossReferenceSource `yaml:"cross_references,omitempty"`
	Morphology      []MorphologySource     `yaml:"morphology,omitempty"`
	DataSources     []DataSource           `yaml:"data_sources"`
}

// VerseSource points at a scrollmapper style SQLite file holding one translation.
type VerseSource struct {
	Translation string `yaml:"translation"`
	Path        string `yaml:"path"`
}

// CrossReferenceSource points at an OpenBible style TSV file
// (from verse, to verse, votes).
type CrossReferenceSource struct {
	Path string `yaml:"path"`
	// Source labels the imported rows, "openbible" when empty.
	Source string `yaml:"source,omitempty"`
}

// MorphologySource points at a STEPBible TAHOT/TAGNT style TSV file.
type MorphologySource struct {
	Path     string `yaml:"path"`
	Language string `yaml:"language"`
}

// CrossReference links a verse range to a related verse range.
type CrossReference struct {
	SourceBookID     int     `json:"source_book_id"`
	SourceChapter    int     `json:"source_chapter"`
	SourceVerseStart int     `json:"source_verse_start"`
	SourceVerseEnd   int     `json:"source_verse_end"`
	TargetBookID     int     `json:"target_book_id"`
	TargetChapter    int     `json:"target_chapter"`
	TargetVerseStart int     `json:"target_verse_start"`
	TargetVerseEnd   int     `json:"target_verse_end"`
	Weight           float64 `json:"weight"`
	Source           string  `json:"source,omitempty"`
}

// LanguageToken is one original-language word of a verse.
type LanguageToken struct {
	BookID   int    `json:"book_id"`
	Chapter  int    `json:"chapter"`
	Verse    int    `json:"verse"`
	Position int    `json:"position"`
	Surface  string `json:"surface"`
	Lemma    string `json:"lemma,omitempty"`
	Morph    string `json:"morph,omitempty"`
	StrongID string `json:"strong_id,omitempty"`
	Gloss    string `json:"gloss,omitempty"`
	Language string `json:"language"`
}
