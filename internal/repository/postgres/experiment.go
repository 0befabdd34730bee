package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/send-governor/internal/domain"
	"github.com/ignite/send-governor/internal/service/experiment"
)

// ExperimentRepo implements experiment.ExperimentRepository against PostgreSQL.
type ExperimentRepo struct{ db *sql.DB }

// NewExperimentRepo creates a Postgres-backed experiment repository.
func NewExperimentRepo(db *sql.DB) *ExperimentRepo { return &ExperimentRepo{db: db} }

func (r *ExperimentRepo) Create(ctx context.Context, e *domain.Experiment) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ab_experiments
			(id, workspace_id, campaign_id, name, test_type, success_metric,
			 minimum_sample_size, confidence_level, auto_end_on_significance, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, e.ID, e.WorkspaceID, e.CampaignID, e.Name, e.TestType, e.SuccessMetric,
		e.MinimumSampleSize, e.ConfidenceLevel, e.AutoEndOnSignificance, e.Status, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("create experiment: %w", err)
	}
	return nil
}

func (r *ExperimentRepo) Get(ctx context.Context, id string) (*domain.Experiment, error) {
	var (
		e            domain.Experiment
		winner       sql.NullString
		significance sql.NullFloat64
		started      sql.NullTime
		ended        sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, campaign_id, name, test_type, success_metric,
		       minimum_sample_size, confidence_level, auto_end_on_significance, status,
		       winner_variant_id, statistical_significance, started_at, ended_at, created_at
		FROM ab_experiments
		WHERE id = $1
	`, id).Scan(
		&e.ID, &e.WorkspaceID, &e.CampaignID, &e.Name, &e.TestType, &e.SuccessMetric,
		&e.MinimumSampleSize, &e.ConfidenceLevel, &e.AutoEndOnSignificance, &e.Status,
		&winner, &significance, &started, &ended, &e.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, experiment.ErrExperimentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get experiment: %w", err)
	}
	if winner.Valid {
		e.WinnerVariantID = &winner.String
	}
	if significance.Valid {
		e.StatisticalSignificance = &significance.Float64
	}
	if started.Valid {
		e.StartedAt = &started.Time
	}
	if ended.Valid {
		e.EndedAt = &ended.Time
	}
	return &e, nil
}

func (r *ExperimentRepo) Transition(ctx context.Context, e *domain.Experiment, from domain.ExperimentStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE ab_experiments
		SET status = $1, winner_variant_id = $2, statistical_significance = $3,
		    started_at = $4, ended_at = $5
		WHERE id = $6 AND status = $7
	`, e.Status, e.WinnerVariantID, e.StatisticalSignificance, e.StartedAt, e.EndedAt, e.ID, from)
	if err != nil {
		return fmt.Errorf("update experiment status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s is no longer %s", experiment.ErrInvalidTransition, e.ID, from)
	}
	return nil
}
