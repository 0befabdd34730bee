package experiment

import (
	"context"

	"github.com/ignite/send-governor/internal/domain"
)

// VariantRepository stores campaign variants.
type VariantRepository interface {
	// ListVariants returns a campaign's variants ordered by creation time.
	// With activeOnly set only status=active variants are returned.
	ListVariants(ctx context.Context, campaignID string, activeOnly bool) ([]domain.Variant, error)

	// GetVariant returns ErrVariantNotFound if the variant doesn't exist.
	GetVariant(ctx context.Context, id string) (*domain.Variant, error)

	CreateVariant(ctx context.Context, v *domain.Variant) error

	// UpdateWeights applies every update in one transaction. Returns
	// ErrVariantNotFound, and applies nothing, if any variant is not part
	// of the campaign.
	UpdateWeights(ctx context.Context, campaignID string, updates []domain.WeightUpdate) error

	// ApplyWinner sets the winner to weight 100 and every other variant of
	// the campaign to paused with weight 0, in one transaction.
	ApplyWinner(ctx context.Context, campaignID, winnerID string) error

	SetStatus(ctx context.Context, id string, status domain.VariantStatus) error
}

// AssignmentRepository stores sticky variant assignments.
type AssignmentRepository interface {
	// GetAssignment returns ErrAssignmentNotFound if the lead has none.
	GetAssignment(ctx context.Context, campaignLeadID string) (*domain.VariantAssignment, error)

	// InsertAssignment returns ErrAssignmentExists if the lead already has
	// an assignment. The existing row is left untouched.
	InsertAssignment(ctx context.Context, a *domain.VariantAssignment) error
}

// ExperimentRepository stores experiments.
type ExperimentRepository interface {
	Create(ctx context.Context, e *domain.Experiment) error

	// Get returns ErrExperimentNotFound if the experiment doesn't exist.
	Get(ctx context.Context, id string) (*domain.Experiment, error)

	// Transition persists e's status, winner, significance and timestamps
	// only if the stored status still equals from. Returns
	// ErrInvalidTransition if it doesn't.
	Transition(ctx context.Context, e *domain.Experiment, from domain.ExperimentStatus) error
}

// StatsRepository reads per-variant delivery counts. Returned stats carry
// raw counts; rates are derived by the service.
type StatsRepository interface {
	// AggregateStats returns the recorded aggregates for an experiment, or
	// an empty slice if none have been recorded.
	AggregateStats(ctx context.Context, experimentID string) ([]domain.VariantStats, error)

	// RawStats computes counts from individual send records for every
	// active variant of a campaign.
	RawStats(ctx context.Context, campaignID string) ([]domain.VariantStats, error)
}
