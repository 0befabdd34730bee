package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/send-governor/internal/domain"
	"github.com/ignite/send-governor/internal/service/quota"
)

// QuotaStore implements quota.Store against PostgreSQL. TryConsume locks
// both counter rows (campaign first, then workspace) inside one
// transaction, so concurrent consumers serialize on the rows.
type QuotaStore struct {
	db       *sql.DB
	defaults quota.Limits
}

// NewQuotaStore creates a Postgres-backed quota store. Counters are created
// on first use with the given default limits.
func NewQuotaStore(db *sql.DB, defaults quota.Limits) *QuotaStore {
	return &QuotaStore{db: db, defaults: defaults}
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func scanCounter(row *sql.Row, c *domain.QuotaCounter) error {
	var last sql.NullTime
	if err := row.Scan(&c.Limit, &c.SentCount, &last); err != nil {
		return err
	}
	c.LastResetDate = time.Time{}
	if last.Valid {
		c.LastResetDate = last.Time
	}
	return nil
}

func (s *QuotaStore) loadCampaign(ctx context.Context, q querier, campaignID, suffix string) (domain.QuotaCounter, error) {
	c := domain.QuotaCounter{Scope: domain.ScopeCampaign, ID: campaignID, Limit: s.defaults.Campaign}
	err := scanCounter(q.QueryRowContext(ctx, `
		SELECT daily_limit, sent_count, last_reset_date
		FROM campaign_send_quotas
		WHERE campaign_id = $1`+suffix, campaignID), &c)
	if err == sql.ErrNoRows {
		return c, nil
	}
	return c, err
}

func (s *QuotaStore) loadWorkspace(ctx context.Context, q querier, workspaceID, suffix string) (domain.QuotaCounter, error) {
	w := domain.QuotaCounter{Scope: domain.ScopeWorkspace, ID: workspaceID, Limit: s.defaults.Workspace}
	err := scanCounter(q.QueryRowContext(ctx, `
		SELECT daily_limit, sent_count, last_reset_date
		FROM workspace_send_quotas
		WHERE workspace_id = $1`+suffix, workspaceID), &w)
	if err == sql.ErrNoRows {
		return w, nil
	}
	return w, err
}

func (s *QuotaStore) Load(ctx context.Context, campaignID, workspaceID string) (domain.QuotaCounter, domain.QuotaCounter, error) {
	c, err := s.loadCampaign(ctx, s.db, campaignID, "")
	if err != nil {
		return c, domain.QuotaCounter{}, fmt.Errorf("load campaign quota: %w", err)
	}
	w, err := s.loadWorkspace(ctx, s.db, workspaceID, "")
	if err != nil {
		return c, w, fmt.Errorf("load workspace quota: %w", err)
	}
	return c, w, nil
}

func (s *QuotaStore) TryConsume(ctx context.Context, campaignID, workspaceID string, today time.Time) (quota.ConsumeResult, error) {
	var res quota.ConsumeResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin quota tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO campaign_send_quotas (campaign_id, workspace_id, daily_limit)
		VALUES ($1, $2, $3)
		ON CONFLICT (campaign_id) DO NOTHING
	`, campaignID, workspaceID, s.defaults.Campaign); err != nil {
		return res, fmt.Errorf("ensure campaign quota: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO workspace_send_quotas (workspace_id, daily_limit)
		VALUES ($1, $2)
		ON CONFLICT (workspace_id) DO NOTHING
	`, workspaceID, s.defaults.Workspace); err != nil {
		return res, fmt.Errorf("ensure workspace quota: %w", err)
	}

	c, err := s.loadCampaign(ctx, tx, campaignID, " FOR UPDATE")
	if err != nil {
		return res, fmt.Errorf("lock campaign quota: %w", err)
	}
	w, err := s.loadWorkspace(ctx, tx, workspaceID, " FOR UPDATE")
	if err != nil {
		return res, fmt.Errorf("lock workspace quota: %w", err)
	}

	res.Allowed, res.Blocked = quota.Decide(c, w, today)
	if !res.Allowed {
		res.Campaign, res.Workspace = c, w
		return res, tx.Commit()
	}

	if err := scanCounter(tx.QueryRowContext(ctx, `
		UPDATE campaign_send_quotas
		SET sent_count = CASE WHEN last_reset_date IS DISTINCT FROM $2::date THEN 1 ELSE sent_count + 1 END,
		    last_reset_date = $2::date,
		    updated_at = NOW()
		WHERE campaign_id = $1
		RETURNING daily_limit, sent_count, last_reset_date
	`, campaignID, today), &c); err != nil {
		return res, fmt.Errorf("increment campaign quota: %w", err)
	}
	if err := scanCounter(tx.QueryRowContext(ctx, `
		UPDATE workspace_send_quotas
		SET sent_count = CASE WHEN last_reset_date IS DISTINCT FROM $2::date THEN 1 ELSE sent_count + 1 END,
		    last_reset_date = $2::date,
		    updated_at = NOW()
		WHERE workspace_id = $1
		RETURNING daily_limit, sent_count, last_reset_date
	`, workspaceID, today), &w); err != nil {
		return res, fmt.Errorf("increment workspace quota: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit quota tx: %w", err)
	}
	res.Campaign, res.Workspace = c, w
	return res, nil
}

func (s *QuotaStore) SetCampaignLimit(ctx context.Context, campaignID, workspaceID string, limit int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaign_send_quotas (campaign_id, workspace_id, daily_limit)
		VALUES ($1, $2, $3)
		ON CONFLICT (campaign_id) DO UPDATE SET daily_limit = EXCLUDED.daily_limit, updated_at = NOW()
	`, campaignID, workspaceID, limit)
	if err != nil {
		return fmt.Errorf("set campaign limit: %w", err)
	}
	return nil
}

func (s *QuotaStore) SetWorkspaceLimit(ctx context.Context, workspaceID string, limit int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspace_send_quotas (workspace_id, daily_limit)
		VALUES ($1, $2)
		ON CONFLICT (workspace_id) DO UPDATE SET daily_limit = EXCLUDED.daily_limit, updated_at = NOW()
	`, workspaceID, limit)
	if err != nil {
		return fmt.Errorf("set workspace limit: %w", err)
	}
	return nil
}

func (s *QuotaStore) RegisterCampaign(ctx context.Context, campaignID, workspaceID, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaign_send_quotas (campaign_id, workspace_id, name, daily_limit)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (campaign_id) DO UPDATE SET
			workspace_id = EXCLUDED.workspace_id,
			name = EXCLUDED.name,
			updated_at = NOW()
	`, campaignID, workspaceID, name, s.defaults.Campaign)
	if err != nil {
		return fmt.Errorf("register campaign quota: %w", err)
	}
	return nil
}

func (s *QuotaStore) LoadWorkspace(ctx context.Context, workspaceID string) (domain.QuotaCounter, []domain.QuotaCounter, error) {
	w, err := s.loadWorkspace(ctx, s.db, workspaceID, "")
	if err != nil {
		return w, nil, fmt.Errorf("load workspace quota: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT campaign_id, name, daily_limit, sent_count, last_reset_date
		FROM campaign_send_quotas
		WHERE workspace_id = $1
		ORDER BY campaign_id
	`, workspaceID)
	if err != nil {
		return w, nil, fmt.Errorf("list campaign quotas: %w", err)
	}
	defer rows.Close()

	var campaigns []domain.QuotaCounter
	for rows.Next() {
		c := domain.QuotaCounter{Scope: domain.ScopeCampaign}
		var last sql.NullTime
		if err := rows.Scan(&c.ID, &c.Name, &c.Limit, &c.SentCount, &last); err != nil {
			return w, nil, fmt.Errorf("scan campaign quota: %w", err)
		}
		if last.Valid {
			c.LastResetDate = last.Time
		}
		campaigns = append(campaigns, c)
	}
	return w, campaigns, rows.Err()
}
