package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/send-governor/internal/domain"
	"github.com/ignite/send-governor/internal/service/suppression"
)

// SuppressionRepo implements suppression.Repository against PostgreSQL.
type SuppressionRepo struct{ db *sql.DB }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

const suppressionColumns = `id, workspace_id, email, reason, suppressed_at,
		       COALESCE(campaign_id, ''), COALESCE(lead_id, ''), metadata`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSuppression(row rowScanner) (domain.Suppression, error) {
	var (
		s    domain.Suppression
		meta []byte
	)
	if err := row.Scan(&s.ID, &s.WorkspaceID, &s.Email, &s.Reason, &s.SuppressedAt,
		&s.CampaignID, &s.LeadID, &meta); err != nil {
		return s, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return s, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return s, nil
}

func (r *SuppressionRepo) Get(ctx context.Context, workspaceID, email string) (*domain.Suppression, error) {
	s, err := scanSuppression(r.db.QueryRowContext(ctx, `
		SELECT `+suppressionColumns+`
		FROM suppression_entries
		WHERE workspace_id = $1 AND email = $2
	`, workspaceID, email))
	if err == sql.ErrNoRows {
		return nil, suppression.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get suppression: %w", err)
	}
	return &s, nil
}

func (r *SuppressionRepo) GetMany(ctx context.Context, workspaceID string, emails []string) (map[string]domain.Suppression, error) {
	out := make(map[string]domain.Suppression)
	if len(emails) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+suppressionColumns+`
		FROM suppression_entries
		WHERE workspace_id = $1 AND email = ANY($2)
	`, workspaceID, pq.Array(emails))
	if err != nil {
		return nil, fmt.Errorf("bulk suppression lookup: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSuppression(rows)
		if err != nil {
			return nil, fmt.Errorf("scan suppression: %w", err)
		}
		out[s.Email] = s
	}
	return out, rows.Err()
}

func (r *SuppressionRepo) Upsert(ctx context.Context, s *domain.Suppression) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	meta := []byte("{}")
	if len(s.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(s.Metadata); err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO suppression_entries
			(id, workspace_id, email, reason, suppressed_at, campaign_id, lead_id, metadata)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)
		ON CONFLICT (workspace_id, email) DO UPDATE SET
			reason = EXCLUDED.reason,
			suppressed_at = EXCLUDED.suppressed_at,
			campaign_id = EXCLUDED.campaign_id,
			lead_id = EXCLUDED.lead_id,
			metadata = EXCLUDED.metadata
		RETURNING id
	`, s.ID, s.WorkspaceID, s.Email, s.Reason, s.SuppressedAt, s.CampaignID, s.LeadID, meta).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("upsert suppression: %w", err)
	}
	return nil
}

func (r *SuppressionRepo) Remove(ctx context.Context, workspaceID, email string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM suppression_entries WHERE workspace_id = $1 AND email = $2`,
		workspaceID, email,
	)
	if err != nil {
		return fmt.Errorf("remove suppression: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return suppression.ErrNotFound
	}
	return nil
}

func (r *SuppressionRepo) List(ctx context.Context, workspaceID string, f suppression.ListFilter) ([]domain.Suppression, int, error) {
	where := `WHERE workspace_id = $1`
	args := []interface{}{workspaceID}
	idx := 2
	if f.Reason != "" {
		where += fmt.Sprintf(" AND reason = $%d", idx)
		args = append(args, f.Reason)
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM suppression_entries `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count suppressions: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = total
	}
	q := `SELECT ` + suppressionColumns + ` FROM suppression_entries ` + where +
		fmt.Sprintf(" ORDER BY suppressed_at DESC, email LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	out := []domain.Suppression{}
	for rows.Next() {
		s, err := scanSuppression(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan suppression: %w", err)
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *SuppressionRepo) CountByReason(ctx context.Context, workspaceID string) (map[domain.SuppressionReason]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT reason, COUNT(*)
		FROM suppression_entries
		WHERE workspace_id = $1
		GROUP BY reason
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("count suppressions by reason: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.SuppressionReason]int)
	for rows.Next() {
		var (
			reason domain.SuppressionReason
			n      int
		)
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		out[reason] = n
	}
	return out, rows.Err()
}

func (r *SuppressionRepo) AllEmails(ctx context.Context, workspaceID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT email FROM suppression_entries WHERE workspace_id = $1 ORDER BY email`,
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("all suppressed emails: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		out = append(out, email)
	}
	return out, rows.Err()
}
