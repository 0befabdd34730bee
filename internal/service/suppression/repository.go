package suppression

import (
	"context"

	"github.com/ignite/send-governor/internal/domain"
)

// Repository defines the data access contract for the suppression list.
// Emails passed to a Repository are already normalized.
type Repository interface {
	// Get returns the entry for an email. Returns ErrNotFound if absent.
	Get(ctx context.Context, workspaceID, email string) (*domain.Suppression, error)

	// GetMany returns the entries that exist among emails, keyed by email.
	GetMany(ctx context.Context, workspaceID string, emails []string) (map[string]domain.Suppression, error)

	// Upsert inserts an entry or, if (workspace, email) already exists,
	// overwrites its reason, timestamp and references.
	Upsert(ctx context.Context, s *domain.Suppression) error

	// Remove deletes an entry. Returns ErrNotFound if it doesn't exist.
	Remove(ctx context.Context, workspaceID, email string) error

	// List returns entries matching the filter, newest first, plus the total
	// count matching the filter before pagination.
	List(ctx context.Context, workspaceID string, filter ListFilter) ([]domain.Suppression, int, error)

	// CountByReason returns the number of entries per reason.
	CountByReason(ctx context.Context, workspaceID string) (map[domain.SuppressionReason]int, error)

	// AllEmails returns every suppressed address for a workspace (for export).
	AllEmails(ctx context.Context, workspaceID string) ([]string, error)
}

// ListFilter controls pagination and filtering for suppression lists.
type ListFilter struct {
	Reason domain.SuppressionReason
	Limit  int
	Offset int
}
