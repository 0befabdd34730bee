package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/send-governor/internal/domain"
	"github.com/ignite/send-governor/internal/pkg/logger"
	"github.com/ignite/send-governor/internal/pkg/retry"
)

// Service implements the quota governor. It is safe for concurrent use if
// the underlying Store is.
type Service struct {
	store  Store
	day    *ServiceDay
	policy retry.Policy
}

// Option configures a Service.
type Option func(*Service)

// WithRetryPolicy overrides the store retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// NewService creates a quota governor over store, resetting counters on the
// days defined by day.
func NewService(store Store, day *ServiceDay, opts ...Option) *Service {
	s := &Service{store: store, day: day, policy: retry.DefaultPolicy()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckSendLimits reports both daily ceilings without consuming a slot.
// Any store error is returned wrapped in ErrQuotaUnavailable; callers must
// treat that as "do not send".
func (s *Service) CheckSendLimits(ctx context.Context, campaignID, workspaceID string) (*domain.SendLimitsStatus, error) {
	var campaign, workspace domain.QuotaCounter
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		var err error
		campaign, workspace, err = s.store.Load(ctx, campaignID, workspaceID)
		return err
	})
	if err != nil {
		logger.Error("quota lookup failed; failing closed",
			"campaign_id", campaignID, "workspace_id", workspaceID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrQuotaUnavailable, err)
	}
	status := StatusFor(campaign, workspace, s.day.Today())
	return &status, nil
}

// TryConsumeSlot atomically checks both ceilings and, if neither is
// reached, counts one send against each. The returned status reflects the
// counters after the call.
func (s *Service) TryConsumeSlot(ctx context.Context, campaignID, workspaceID string) (bool, *domain.SendLimitsStatus, error) {
	today := s.day.Today()
	var res ConsumeResult
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		var err error
		res, err = s.store.TryConsume(ctx, campaignID, workspaceID, today)
		return err
	})
	if err != nil {
		logger.Error("quota consume failed; failing closed",
			"campaign_id", campaignID, "workspace_id", workspaceID, "error", err)
		return false, nil, fmt.Errorf("%w: %v", ErrQuotaUnavailable, err)
	}

	status := StatusFor(res.Campaign, res.Workspace, today)
	if !res.Allowed {
		status.CanSend = false
		status.LimitReached = true
		status.LimitType = res.Blocked
		logger.Debug("send slot refused", "campaign_id", campaignID, "workspace_id", workspaceID, "limit_type", res.Blocked)
	}
	return res.Allowed, &status, nil
}

// IncrementSendCount records one send against both counters. It never
// pushes a counter past its limit: if either ceiling is already reached it
// returns ErrQuotaExceeded and nothing is counted. Transient store errors
// are retried before ErrQuotaUnavailable is returned.
func (s *Service) IncrementSendCount(ctx context.Context, campaignID, workspaceID string) error {
	allowed, status, err := s.TryConsumeSlot(ctx, campaignID, workspaceID)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: %s", ErrQuotaExceeded, status.LimitType)
	}
	return nil
}

// UpdateCampaignDailyLimit sets a campaign's daily limit. The limit must be
// within [1, 500].
func (s *Service) UpdateCampaignDailyLimit(ctx context.Context, campaignID, workspaceID string, limit int) error {
	if limit < domain.MinCampaignDailyLimit || limit > domain.MaxCampaignDailyLimit {
		return fmt.Errorf("%w: campaign limit must be between %d and %d, got %d",
			ErrLimitOutOfRange, domain.MinCampaignDailyLimit, domain.MaxCampaignDailyLimit, limit)
	}
	if err := s.store.SetCampaignLimit(ctx, campaignID, workspaceID, limit); err != nil {
		return fmt.Errorf("update campaign limit: %w", err)
	}
	logger.Info("campaign daily limit updated", "campaign_id", campaignID, "limit", limit)
	return nil
}

// UpdateWorkspaceDailyLimit sets a workspace's daily limit. The limit must
// be within [1, 2000].
func (s *Service) UpdateWorkspaceDailyLimit(ctx context.Context, workspaceID string, limit int) error {
	if limit < domain.MinWorkspaceDailyLimit || limit > domain.MaxWorkspaceDailyLimit {
		return fmt.Errorf("%w: workspace limit must be between %d and %d, got %d",
			ErrLimitOutOfRange, domain.MinWorkspaceDailyLimit, domain.MaxWorkspaceDailyLimit, limit)
	}
	if err := s.store.SetWorkspaceLimit(ctx, workspaceID, limit); err != nil {
		return fmt.Errorf("update workspace limit: %w", err)
	}
	logger.Info("workspace daily limit updated", "workspace_id", workspaceID, "limit", limit)
	return nil
}

// RegisterCampaign records a campaign's name and workspace so it appears in
// the workspace rollup.
func (s *Service) RegisterCampaign(ctx context.Context, campaignID, workspaceID, name string) error {
	if campaignID == "" || workspaceID == "" {
		return fmt.Errorf("%w: campaign and workspace are required", domain.ErrValidation)
	}
	return s.store.RegisterCampaign(ctx, campaignID, workspaceID, name)
}

// GetWorkspaceSendStats returns today's usage for a workspace and each of
// its campaigns.
func (s *Service) GetWorkspaceSendStats(ctx context.Context, workspaceID string) (*domain.WorkspaceSendStats, error) {
	ws, campaigns, err := s.store.LoadWorkspace(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrQuotaUnavailable, err)
	}
	today := s.day.Today()

	wsSent := ws.EffectiveSent(today)
	out := &domain.WorkspaceSendStats{
		GlobalLimit:     ws.Limit,
		GlobalSent:      wsSent,
		GlobalRemaining: remaining(ws.Limit, wsSent),
		Campaigns:       make([]domain.CampaignSendStats, 0, len(campaigns)),
	}
	for _, c := range campaigns {
		sent := c.EffectiveSent(today)
		out.Campaigns = append(out.Campaigns, domain.CampaignSendStats{
			ID:        c.ID,
			Name:      c.Name,
			Limit:     c.Limit,
			Sent:      sent,
			Remaining: remaining(c.Limit, sent),
		})
	}
	return out, nil
}

// StatusFor builds the limits report for both counters as of today.
func StatusFor(campaign, workspace domain.QuotaCounter, today time.Time) domain.SendLimitsStatus {
	cSent := campaign.EffectiveSent(today)
	wSent := workspace.EffectiveSent(today)
	allowed, blocked := Decide(campaign, workspace, today)
	return domain.SendLimitsStatus{
		CanSend:            allowed,
		CampaignLimit:      campaign.Limit,
		CampaignSent:       cSent,
		CampaignRemaining:  remaining(campaign.Limit, cSent),
		WorkspaceLimit:     workspace.Limit,
		WorkspaceSent:      wSent,
		WorkspaceRemaining: remaining(workspace.Limit, wSent),
		LimitReached:       !allowed,
		LimitType:          blocked,
	}
}

func remaining(limit, sent int) int {
	if sent >= limit {
		return 0
	}
	return limit - sent
}
