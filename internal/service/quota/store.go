package quota

import (
	"context"
	"time"

	"github.com/ignite/send-governor/internal/domain"
)

// Store holds the daily counters. Every implementation must make TryConsume
// atomic across concurrent callers for the same campaign and workspace.
// Counters that do not exist yet are created with the store's default limits.
type Store interface {
	// Load returns both counters as stored, without applying the day reset.
	Load(ctx context.Context, campaignID, workspaceID string) (campaign, workspace domain.QuotaCounter, err error)

	// TryConsume applies the lazy reset for today, checks both ceilings and,
	// only if neither is reached, increments both counters. The returned
	// counters reflect the state after the operation.
	TryConsume(ctx context.Context, campaignID, workspaceID string, today time.Time) (ConsumeResult, error)

	// SetCampaignLimit sets a campaign's daily limit.
	SetCampaignLimit(ctx context.Context, campaignID, workspaceID string, limit int) error

	// SetWorkspaceLimit sets a workspace's daily limit.
	SetWorkspaceLimit(ctx context.Context, workspaceID string, limit int) error

	// RegisterCampaign creates the campaign counter if needed and records its
	// display name and owning workspace.
	RegisterCampaign(ctx context.Context, campaignID, workspaceID, name string) error

	// LoadWorkspace returns the workspace counter and every campaign counter
	// registered under it.
	LoadWorkspace(ctx context.Context, workspaceID string) (workspace domain.QuotaCounter, campaigns []domain.QuotaCounter, err error)
}

// ConsumeResult is the outcome of Store.TryConsume. Blocked names the first
// ceiling (campaign before workspace) that refused the slot.
type ConsumeResult struct {
	Allowed   bool
	Blocked   domain.QuotaScope
	Campaign  domain.QuotaCounter
	Workspace domain.QuotaCounter
}

// Limits are the defaults given to newly created counters.
type Limits struct {
	Campaign  int
	Workspace int
}

// DefaultLimits returns the built-in default limits.
func DefaultLimits() Limits {
	return Limits{Campaign: domain.DefaultCampaignDailyLimit, Workspace: domain.DefaultWorkspaceDailyLimit}
}

// Decide evaluates both counters for today and reports which ceiling, if
// any, blocks the next send. Store implementations that hold counters in
// process share this logic.
func Decide(campaign, workspace domain.QuotaCounter, today time.Time) (allowed bool, blocked domain.QuotaScope) {
	if campaign.EffectiveSent(today) >= campaign.Limit {
		return false, domain.ScopeCampaign
	}
	if workspace.EffectiveSent(today) >= workspace.Limit {
		return false, domain.ScopeWorkspace
	}
	return true, ""
}

// Consume applies the lazy reset and increments c in place.
func Consume(c *domain.QuotaCounter, today time.Time) {
	if !domain.SameDay(c.LastResetDate, today) {
		c.SentCount = 0
	}
	c.SentCount++
	c.LastResetDate = today
}
