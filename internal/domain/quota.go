package domain

import "time"

// Daily send limit defaults and bounds.
const (
	DefaultCampaignDailyLimit  = 50
	DefaultWorkspaceDailyLimit = 200

	MinCampaignDailyLimit  = 1
	MaxCampaignDailyLimit  = 500
	MinWorkspaceDailyLimit = 1
	MaxWorkspaceDailyLimit = 2000
)

// QuotaScope identifies which ceiling a counter enforces.
type QuotaScope string

const (
	ScopeCampaign  QuotaScope = "campaign"
	ScopeWorkspace QuotaScope = "workspace"
)

// QuotaCounter is a daily send counter for one campaign or one workspace.
// LastResetDate is a service day (midnight in the configured zone), not an
// instant; SentCount is only meaningful when LastResetDate equals today.
type QuotaCounter struct {
	Scope         QuotaScope `json:"scope"`
	ID            string     `json:"id"`
	Name          string     `json:"name,omitempty"`
	Limit         int        `json:"limit"`
	SentCount     int        `json:"sent_count"`
	LastResetDate time.Time  `json:"last_reset_date"`
}

// EffectiveSent returns the sent count as seen on the given service day,
// applying the lazy reset.
func (c QuotaCounter) EffectiveSent(today time.Time) int {
	if !SameDay(c.LastResetDate, today) {
		return 0
	}
	return c.SentCount
}

// SameDay reports whether a and b fall on the same calendar date. Both are
// expected to already be normalized to the service time zone.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// SendLimitsStatus reports both daily ceilings for a campaign/workspace pair.
// LimitType is empty when sending is allowed.
type SendLimitsStatus struct {
	CanSend            bool       `json:"can_send"`
	CampaignLimit      int        `json:"campaign_limit"`
	CampaignSent       int        `json:"campaign_sent"`
	CampaignRemaining  int        `json:"campaign_remaining"`
	WorkspaceLimit     int        `json:"workspace_limit"`
	WorkspaceSent      int        `json:"workspace_sent"`
	WorkspaceRemaining int        `json:"workspace_remaining"`
	LimitReached       bool       `json:"limit_reached"`
	LimitType          QuotaScope `json:"limit_type,omitempty"`
}

// CampaignSendStats is one row of the workspace dashboard rollup.
type CampaignSendStats struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Limit     int    `json:"limit"`
	Sent      int    `json:"sent"`
	Remaining int    `json:"remaining"`
}

// WorkspaceSendStats is the read-only dashboard rollup for a workspace.
type WorkspaceSendStats struct {
	GlobalLimit     int                 `json:"global_limit"`
	GlobalSent      int                 `json:"global_sent"`
	GlobalRemaining int                 `json:"global_remaining"`
	Campaigns       []CampaignSendStats `json:"campaigns"`
}
