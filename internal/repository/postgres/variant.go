package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/send-governor/internal/domain"
	"github.com/ignite/send-governor/internal/service/experiment"
)

// VariantRepo implements experiment.VariantRepository against PostgreSQL.
type VariantRepo struct{ db *sql.DB }

// NewVariantRepo creates a Postgres-backed variant repository.
func NewVariantRepo(db *sql.DB) *VariantRepo { return &VariantRepo{db: db} }

const variantColumns = `id, campaign_id, workspace_id, name, variant_key, description, is_control,
		       subject_template, body_template, weight, status, created_at, updated_at`

func scanVariant(row rowScanner) (domain.Variant, error) {
	var v domain.Variant
	err := row.Scan(&v.ID, &v.CampaignID, &v.WorkspaceID, &v.Name, &v.VariantKey, &v.Description, &v.IsControl,
		&v.SubjectTemplate, &v.BodyTemplate, &v.Weight, &v.Status, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

func (r *VariantRepo) ListVariants(ctx context.Context, campaignID string, activeOnly bool) ([]domain.Variant, error) {
	q := `SELECT ` + variantColumns + ` FROM campaign_variants WHERE campaign_id = $1`
	if activeOnly {
		q += ` AND status = 'active'`
	}
	q += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, q, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	out := []domain.Variant{}
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *VariantRepo) GetVariant(ctx context.Context, id string) (*domain.Variant, error) {
	v, err := scanVariant(r.db.QueryRowContext(ctx,
		`SELECT `+variantColumns+` FROM campaign_variants WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, experiment.ErrVariantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get variant: %w", err)
	}
	return &v, nil
}

func (r *VariantRepo) CreateVariant(ctx context.Context, v *domain.Variant) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_variants
			(id, campaign_id, workspace_id, name, variant_key, description, is_control,
			 subject_template, body_template, weight, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, v.ID, v.CampaignID, v.WorkspaceID, v.Name, v.VariantKey, v.Description, v.IsControl,
		v.SubjectTemplate, v.BodyTemplate, v.Weight, v.Status, v.CreatedAt, v.UpdatedAt)
	if isUniqueViolation(err) {
		return experiment.ErrControlExists
	}
	if err != nil {
		return fmt.Errorf("create variant: %w", err)
	}
	return nil
}

func (r *VariantRepo) UpdateWeights(ctx context.Context, campaignID string, updates []domain.WeightUpdate) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, u := range updates {
			res, err := tx.ExecContext(ctx, `
				UPDATE campaign_variants SET weight = $1, updated_at = NOW()
				WHERE id = $2 AND campaign_id = $3
			`, u.Weight, u.VariantID, campaignID)
			if err != nil {
				return fmt.Errorf("update weight of %s: %w", u.VariantID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("%w: %s", experiment.ErrVariantNotFound, u.VariantID)
			}
		}
		return nil
	})
}

func (r *VariantRepo) ApplyWinner(ctx context.Context, campaignID, winnerID string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE campaign_variants SET weight = 100, status = 'active', updated_at = NOW()
			WHERE id = $1 AND campaign_id = $2
		`, winnerID, campaignID)
		if err != nil {
			return fmt.Errorf("promote winner: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return experiment.ErrVariantNotFound
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE campaign_variants SET weight = 0, status = 'paused', updated_at = NOW()
			WHERE campaign_id = $1 AND id <> $2
		`, campaignID, winnerID); err != nil {
			return fmt.Errorf("pause losing variants: %w", err)
		}
		return nil
	})
}

func (r *VariantRepo) SetStatus(ctx context.Context, id string, status domain.VariantStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE campaign_variants SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("set variant status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return experiment.ErrVariantNotFound
	}
	return nil
}
