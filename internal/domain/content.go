package domain

import "time"

// Highlight colors a verse range.
type Highlight struct {
	SyncMeta
	BookID     int    `json:"book_id"`
	Chapter    int    `json:"chapter"`
	VerseStart int    `json:"verse_start"`
	VerseEnd   int    `json:"verse_end"`
	Color      string `json:"color"`
	Category   string `json:"category"`
}

func (h *Highlight) Meta() *SyncMeta { return &h.SyncMeta }

// Note is free text attached to a verse range.
type Note struct {
	SyncMeta
	BookID        int      `json:"book_id"`
	Chapter       int      `json:"chapter"`
	VerseStart    int      `json:"verse_start"`
	VerseEnd      int      `json:"verse_end"`
	Content       string   `json:"content"`
	Template      string   `json:"template"`
	LinkedNoteIDs []string `json:"linked_note_ids"`
}

func (n *Note) Meta() *SyncMeta { return &n.SyncMeta }

// PrayerStatus tracks whether a prayer is still open.
type PrayerStatus string

const (
	PrayerStatusActive   PrayerStatus = "active"
	PrayerStatusAnswered PrayerStatus = "answered"
	PrayerStatusArchived PrayerStatus = "archived"
)

// Prayer is a journaled prayer. Title and content are full-text indexed.
type Prayer struct {
	SyncMeta
	Title      string       `json:"title"`
	Content    string       `json:"content"`
	Category   string       `json:"category"`
	Status     PrayerStatus `json:"status"`
	AnsweredAt *time.Time   `json:"answered_at,omitempty"`
}

func (p *Prayer) Meta() *SyncMeta { return &p.SyncMeta }

// Bookmark marks a reading position.
type Bookmark struct {
	SyncMeta
	TranslationID string `json:"translation_id"`
	BookID        int    `json:"book_id"`
	Chapter       int    `json:"chapter"`
	Verse         int    `json:"verse"`
	Label         string `json:"label"`
}

func (b *Bookmark) Meta() *SyncMeta { return &b.SyncMeta }

// SermonStatus is produced by the external recording pipeline.
type SermonStatus string

const (
	SermonStatusRecording SermonStatus = "recording"
	SermonStatusUploaded  SermonStatus = "uploaded"
	SermonStatusReady     SermonStatus = "ready"
	SermonStatusFailed    SermonStatus = "failed"
)

// TranscriptStatus is produced by the external transcription pipeline.
type TranscriptStatus string

const (
	TranscriptStatusNone       TranscriptStatus = "none"
	TranscriptStatusPending    TranscriptStatus = "pending"
	TranscriptStatusProcessing TranscriptStatus = "processing"
	TranscriptStatusReady      TranscriptStatus = "ready"
	TranscriptStatusFailed     TranscriptStatus = "failed"
)

// Sermon is the metadata of a recorded sermon.
type Sermon struct {
	SyncMeta
	Title            string           `json:"title"`
	Speaker          string           `json:"speaker"`
	AudioPath        string           `json:"audio_path"`
	DurationSeconds  int              `json:"duration_seconds"`
	Status           SermonStatus     `json:"status"`
	TranscriptStatus TranscriptStatus `json:"transcript_status"`
	RecordedAt       time.Time        `json:"recorded_at"`
}

func (s *Sermon) Meta() *SyncMeta { return &s.SyncMeta }

// SermonTranscript is the text produced for a sermon. It is full-text indexed.
type SermonTranscript struct {
	ID        string    `json:"id"`
	SermonID  string    `json:"sermon_id"`
	Content   string    `json:"content"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
