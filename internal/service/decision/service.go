package decision

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/send-governor/internal/domain"
	"github.com/ignite/send-governor/internal/pkg/logger"
)

// Reason explains why a send was blocked.
type Reason string

const (
	ReasonSuppressed             Reason = "suppressed"
	ReasonCampaignLimit          Reason = "campaign_limit"
	ReasonWorkspaceLimit         Reason = "workspace_limit"
	ReasonQuotaUnavailable       Reason = "quota_unavailable"
	ReasonSuppressionUnavailable Reason = "suppression_unavailable"
)

// Request identifies one intended send.
type Request struct {
	WorkspaceID    string `json:"workspace_id"`
	CampaignID     string `json:"campaign_id"`
	CampaignLeadID string `json:"campaign_lead_id"`
	Email          string `json:"email"`
}

// Recipient is one entry of a batch decision.
type Recipient struct {
	CampaignLeadID string `json:"campaign_lead_id"`
	Email          string `json:"email"`
}

// Decision is the answer for one intended send. Variant is nil when the
// campaign has no experiment or the send is blocked.
type Decision struct {
	Email       string                    `json:"email"`
	Accepted    bool                      `json:"accepted"`
	Reason      Reason                    `json:"reason,omitempty"`
	Variant     *domain.Variant           `json:"variant,omitempty"`
	Limits      *domain.SendLimitsStatus  `json:"limits,omitempty"`
	Suppression *domain.SuppressionResult `json:"suppression,omitempty"`
}

// SuppressionChecker is the part of the suppression registry the pipeline uses.
type SuppressionChecker interface {
	IsSuppressed(ctx context.Context, workspaceID, email string) (domain.SuppressionResult, error)
	CheckBulk(ctx context.Context, workspaceID string, emails []string) (map[string]domain.SuppressionResult, error)
}

// QuotaGovernor is the part of the quota governor the pipeline uses.
type QuotaGovernor interface {
	TryConsumeSlot(ctx context.Context, campaignID, workspaceID string) (bool, *domain.SendLimitsStatus, error)
}

// VariantAssigner is the part of the experiment engine the pipeline uses.
type VariantAssigner interface {
	AssignVariant(ctx context.Context, campaignLeadID, campaignID string) (*domain.Variant, error)
}

// Service makes send decisions. Checks run in a fixed order: suppression,
// then quota (which consumes a slot), then variant assignment. A blocked
// recipient never consumes quota.
type Service struct {
	suppression SuppressionChecker
	quota       QuotaGovernor
	variants    VariantAssigner
}

// NewService creates a decision pipeline.
func NewService(s SuppressionChecker, q QuotaGovernor, v VariantAssigner) *Service {
	return &Service{suppression: s, quota: q, variants: v}
}

func validate(workspaceID, campaignID string) error {
	if workspaceID == "" || campaignID == "" {
		return fmt.Errorf("%w: workspace and campaign are required", domain.ErrValidation)
	}
	return nil
}

// Decide answers whether one recipient may be sent to now, and with which
// variant. An accepted decision has already been counted against quota.
func (s *Service) Decide(ctx context.Context, req Request) (*Decision, error) {
	if err := validate(req.WorkspaceID, req.CampaignID); err != nil {
		return nil, err
	}
	if req.Email == "" {
		return nil, fmt.Errorf("%w: email is required", domain.ErrValidation)
	}

	res, err := s.suppression.IsSuppressed(ctx, req.WorkspaceID, req.Email)
	if err != nil {
		return &Decision{Email: req.Email, Reason: ReasonSuppressionUnavailable}, nil
	}
	if res.IsSuppressed {
		return &Decision{Email: req.Email, Reason: ReasonSuppressed, Suppression: &res}, nil
	}
	return s.admit(ctx, req.WorkspaceID, req.CampaignID, Recipient{CampaignLeadID: req.CampaignLeadID, Email: req.Email}), nil
}

// DecideBatch decides a batch of recipients of one campaign with a single
// suppression lookup. Decisions are returned in input order. Once a daily
// ceiling blocks a recipient, the rest of the batch is blocked with the
// same reason without further quota calls.
func (s *Service) DecideBatch(ctx context.Context, workspaceID, campaignID string, recipients []Recipient) ([]Decision, error) {
	if err := validate(workspaceID, campaignID); err != nil {
		return nil, err
	}
	emails := make([]string, len(recipients))
	for i, r := range recipients {
		emails[i] = r.Email
	}

	out := make([]Decision, len(recipients))
	results, err := s.suppression.CheckBulk(ctx, workspaceID, emails)
	if err != nil {
		for i, r := range recipients {
			out[i] = Decision{Email: r.Email, Reason: ReasonSuppressionUnavailable}
		}
		return out, nil
	}

	var stopped *Decision
	for i, r := range recipients {
		if res := results[r.Email]; res.IsSuppressed {
			out[i] = Decision{Email: r.Email, Reason: ReasonSuppressed, Suppression: &res}
			continue
		}
		if stopped != nil {
			out[i] = Decision{Email: r.Email, Reason: stopped.Reason, Limits: stopped.Limits}
			continue
		}
		d := s.admit(ctx, workspaceID, campaignID, r)
		out[i] = *d
		if !d.Accepted {
			stopped = d
		}
	}
	return out, nil
}

// admit consumes a quota slot and assigns a variant for a recipient that
// passed the suppression check.
func (s *Service) admit(ctx context.Context, workspaceID, campaignID string, r Recipient) *Decision {
	d := &Decision{Email: r.Email}
	ok, limits, err := s.quota.TryConsumeSlot(ctx, campaignID, workspaceID)
	if err != nil {
		d.Reason = ReasonQuotaUnavailable
		return d
	}
	d.Limits = limits
	if !ok {
		d.Reason = ReasonWorkspaceLimit
		if limits.LimitType == domain.ScopeCampaign {
			d.Reason = ReasonCampaignLimit
		}
		return d
	}

	d.Accepted = true
	if r.CampaignLeadID == "" {
		return d
	}
	v, err := s.variants.AssignVariant(ctx, r.CampaignLeadID, campaignID)
	if err != nil && !errors.Is(err, domain.ErrValidation) {
		logger.Warn("variant assignment failed; sending default message",
			"campaign_id", campaignID, "campaign_lead_id", r.CampaignLeadID, "error", err)
	}
	d.Variant = v
	return d
}
