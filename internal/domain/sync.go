package domain

import "time"

// SyncMeta holds the columns every syncable table shares.
// A row with DeletedAt set is logically gone but stays on disk until the
// sync collaborator purges it. NeedsSync is raised on every local mutation.
type SyncMeta struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	NeedsSync bool       `json:"needs_sync"`
}

// IsDeleted reports whether the row was soft deleted.
func (m SyncMeta) IsDeleted() bool {
	return m.DeletedAt != nil
}

// Syncable is implemented by every entity of the content table family.
type Syncable interface {
	Meta() *SyncMeta
}

// PendingRow is a row awaiting upload by the sync collaborator.
type PendingRow struct {
	Table string `json:"table"`
	ID    string `json:"id"`
	// UpdatedAt is the stored updated_at the row was read with. MarkSynced
	// only clears rows that still carry it.
	UpdatedAt string         `json:"updated_at"`
	Data      map[string]any `json:"data"`
}
