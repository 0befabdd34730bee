package domain

import "time"

// SuppressionReason enumerates why an email was suppressed.
type SuppressionReason string

const (
	ReasonUnsubscribe SuppressionReason = "unsubscribe"
	ReasonHardBounce  SuppressionReason = "hard_bounce"
	ReasonComplaint   SuppressionReason = "complaint"
	ReasonManual      SuppressionReason = "manual"
)

// Valid reports whether r is one of the known suppression reasons.
func (r SuppressionReason) Valid() bool {
	switch r {
	case ReasonUnsubscribe, ReasonHardBounce, ReasonComplaint, ReasonManual:
		return true
	}
	return false
}

// Suppression represents a single entry in a workspace's suppression list.
// (WorkspaceID, Email) is unique; Email is always stored lowercased.
type Suppression struct {
	ID           string            `json:"id" db:"id"`
	WorkspaceID  string            `json:"workspace_id" db:"workspace_id"`
	Email        string            `json:"email" db:"email"`
	Reason       SuppressionReason `json:"reason" db:"reason"`
	SuppressedAt time.Time         `json:"suppressed_at" db:"suppressed_at"`
	CampaignID   string            `json:"campaign_id,omitempty" db:"campaign_id"`
	LeadID       string            `json:"lead_id,omitempty" db:"lead_id"`
	Metadata     map[string]any    `json:"metadata,omitempty" db:"metadata"`
}

// SuppressionResult is the answer to a single suppression lookup. Reason and
// SuppressedAt are only set when IsSuppressed is true.
type SuppressionResult struct {
	IsSuppressed bool              `json:"is_suppressed"`
	Reason       SuppressionReason `json:"reason,omitempty"`
	SuppressedAt *time.Time        `json:"suppressed_at,omitempty"`
}
