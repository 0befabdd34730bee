package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/send-governor/internal/domain"
	"github.com/ignite/send-governor/internal/service/experiment"
)

// AssignmentRepo implements experiment.AssignmentRepository against
// PostgreSQL. The primary key on campaign_lead_id arbitrates races.
type AssignmentRepo struct{ db *sql.DB }

// NewAssignmentRepo creates a Postgres-backed assignment repository.
func NewAssignmentRepo(db *sql.DB) *AssignmentRepo { return &AssignmentRepo{db: db} }

func (r *AssignmentRepo) GetAssignment(ctx context.Context, campaignLeadID string) (*domain.VariantAssignment, error) {
	a := &domain.VariantAssignment{}
	err := r.db.QueryRowContext(ctx, `
		SELECT campaign_lead_id, campaign_id, variant_id, assigned_at
		FROM variant_assignments
		WHERE campaign_lead_id = $1
	`, campaignLeadID).Scan(&a.CampaignLeadID, &a.CampaignID, &a.VariantID, &a.AssignedAt)
	if err == sql.ErrNoRows {
		return nil, experiment.ErrAssignmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

func (r *AssignmentRepo) InsertAssignment(ctx context.Context, a *domain.VariantAssignment) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO variant_assignments (campaign_lead_id, campaign_id, variant_id, assigned_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (campaign_lead_id) DO NOTHING
	`, a.CampaignLeadID, a.CampaignID, a.VariantID, a.AssignedAt)
	if err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return experiment.ErrAssignmentExists
	}
	return nil
}
