package domain

import "context"

// NotificationService defines the interface for notification services
type NotificationService interface {
	// SendIntegrityReport sends a notification describing a failed integrity check
	SendIntegrityReport(ctx context.Context, report IntegrityReport) error

	// SendRecovery sends a notification after the database was reset to the bundle
	SendRecovery(ctx context.Context, report IntegrityReport) error

	// SendError sends an error notification with error details
	SendError(ctx context.Context, err error) error
}

// IntegrityReport is the outcome of a consistency check.
type IntegrityReport struct {
	DatabasePath string
	VerseCount   int
	Problems     []string
}

// OK reports whether the check found nothing wrong.
func (r IntegrityReport) OK() bool {
	return len(r.Problems) == 0
}
