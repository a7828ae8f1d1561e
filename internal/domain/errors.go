package domain

import "errors"

// Store errors. Callers match them with errors.Is.
var (
	ErrNotInitialized  = errors.New("database not initialized")
	ErrImportFailed    = errors.New("bundled dataset import failed")
	ErrMigrationFailed = errors.New("migration failed")
	ErrNotFound        = errors.New("record not found")
	ErrOwnerMismatch   = errors.New("record belongs to another user")
)
