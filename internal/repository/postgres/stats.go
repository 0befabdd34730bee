package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/send-governor/internal/domain"
)

// StatsRepo implements experiment.StatsRepository against PostgreSQL.
// Aggregates come from variant_stats, maintained by the delivery
// subsystem; raw counts are computed from send_events, where delivery is
// the delivered_at stamp rather than the current status.
type StatsRepo struct{ db *sql.DB }

// NewStatsRepo creates a Postgres-backed stats repository.
func NewStatsRepo(db *sql.DB) *StatsRepo { return &StatsRepo{db: db} }

func (r *StatsRepo) AggregateStats(ctx context.Context, experimentID string) ([]domain.VariantStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT v.id, v.name, v.is_control,
		       s.emails_sent, s.emails_delivered, s.emails_bounced,
		       s.emails_opened, s.unique_opens, s.emails_clicked, s.unique_clicks,
		       s.emails_replied, s.conversions
		FROM variant_stats s
		JOIN campaign_variants v ON v.id = s.variant_id
		WHERE s.experiment_id = $1
		ORDER BY v.created_at, v.id
	`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("aggregate variant stats: %w", err)
	}
	return scanStats(rows)
}

func (r *StatsRepo) RawStats(ctx context.Context, campaignID string) ([]domain.VariantStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT v.id, v.name, v.is_control,
		       COUNT(e.id),
		       COUNT(e.delivered_at),
		       COUNT(e.id) FILTER (WHERE e.status = 'bounced'),
		       COALESCE(SUM(e.open_count), 0),
		       COUNT(e.opened_at),
		       COALESCE(SUM(e.click_count), 0),
		       COUNT(e.clicked_at),
		       COUNT(e.replied_at),
		       COUNT(e.converted_at)
		FROM campaign_variants v
		LEFT JOIN send_events e ON e.variant_id = v.id AND e.campaign_id = v.campaign_id
		WHERE v.campaign_id = $1 AND v.status = 'active'
		GROUP BY v.id, v.name, v.is_control, v.created_at
		ORDER BY v.created_at, v.id
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("raw variant stats: %w", err)
	}
	return scanStats(rows)
}

func scanStats(rows *sql.Rows) ([]domain.VariantStats, error) {
	defer rows.Close()
	out := []domain.VariantStats{}
	for rows.Next() {
		var s domain.VariantStats
		if err := rows.Scan(&s.VariantID, &s.VariantName, &s.IsControl,
			&s.EmailsSent, &s.EmailsDelivered, &s.EmailsBounced,
			&s.EmailsOpened, &s.UniqueOpens, &s.EmailsClicked, &s.UniqueClicks,
			&s.EmailsReplied, &s.Conversions); err != nil {
			return nil, fmt.Errorf("scan variant stats: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
