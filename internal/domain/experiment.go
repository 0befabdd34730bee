package domain

import "time"

// VariantStatus is the lifecycle state of a message variant.
type VariantStatus string

const (
	VariantActive   VariantStatus = "active"
	VariantPaused   VariantStatus = "paused"
	VariantArchived VariantStatus = "archived"
)

// Valid reports whether s is a known variant status.
func (s VariantStatus) Valid() bool {
	switch s {
	case VariantActive, VariantPaused, VariantArchived:
		return true
	}
	return false
}

// Variant is one candidate message in a campaign's experiment.
type Variant struct {
	ID              string        `json:"id" db:"id"`
	CampaignID      string        `json:"campaign_id" db:"campaign_id"`
	WorkspaceID     string        `json:"workspace_id" db:"workspace_id"`
	Name            string        `json:"name" db:"name"`
	VariantKey      string        `json:"variant_key" db:"variant_key"`
	Description     string        `json:"description,omitempty" db:"description"`
	IsControl       bool          `json:"is_control" db:"is_control"`
	SubjectTemplate string        `json:"subject_template" db:"subject_template"`
	BodyTemplate    string        `json:"body_template" db:"body_template"`
	Weight          int           `json:"weight" db:"weight"`
	Status          VariantStatus `json:"status" db:"status"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// VariantAssignment records the sticky variant choice for one recipient in
// one campaign. CampaignLeadID is unique.
type VariantAssignment struct {
	CampaignLeadID string    `json:"campaign_lead_id" db:"campaign_lead_id"`
	CampaignID     string    `json:"campaign_id" db:"campaign_id"`
	VariantID      string    `json:"variant_id" db:"variant_id"`
	AssignedAt     time.Time `json:"assigned_at" db:"assigned_at"`
}

// WeightUpdate is one entry of a weight rebalance request.
type WeightUpdate struct {
	VariantID string `json:"variant_id"`
	Weight    int    `json:"weight"`
}

// TestType is what an experiment varies.
type TestType string

const (
	TestSubject      TestType = "subject"
	TestBody         TestType = "body"
	TestFullTemplate TestType = "full_template"
	TestSendTime     TestType = "send_time"
)

// Valid reports whether t is a known test type.
func (t TestType) Valid() bool {
	switch t {
	case TestSubject, TestBody, TestFullTemplate, TestSendTime:
		return true
	}
	return false
}

// SuccessMetric is the rate an experiment optimizes.
type SuccessMetric string

const (
	MetricOpenRate       SuccessMetric = "open_rate"
	MetricClickRate      SuccessMetric = "click_rate"
	MetricReplyRate      SuccessMetric = "reply_rate"
	MetricConversionRate SuccessMetric = "conversion_rate"
)

// Valid reports whether m is a known success metric.
func (m SuccessMetric) Valid() bool {
	switch m {
	case MetricOpenRate, MetricClickRate, MetricReplyRate, MetricConversionRate:
		return true
	}
	return false
}

// ExperimentStatus is the lifecycle state of an experiment.
type ExperimentStatus string

const (
	ExperimentDraft     ExperimentStatus = "draft"
	ExperimentRunning   ExperimentStatus = "running"
	ExperimentPaused    ExperimentStatus = "paused"
	ExperimentCompleted ExperimentStatus = "completed"
	ExperimentCancelled ExperimentStatus = "cancelled"
)

var experimentTransitions = map[ExperimentStatus][]ExperimentStatus{
	ExperimentDraft:   {ExperimentRunning, ExperimentCancelled},
	ExperimentRunning: {ExperimentPaused, ExperimentCompleted, ExperimentCancelled},
	ExperimentPaused:  {ExperimentRunning, ExperimentCompleted, ExperimentCancelled},
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Completed and cancelled are terminal.
func (s ExperimentStatus) CanTransitionTo(next ExperimentStatus) bool {
	for _, allowed := range experimentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Experiment defaults.
const (
	DefaultMinimumSampleSize = 100
	DefaultConfidenceLevel   = 95
)

// Experiment is an A/B test over a campaign's variants.
type Experiment struct {
	ID                      string           `json:"id" db:"id"`
	WorkspaceID             string           `json:"workspace_id" db:"workspace_id"`
	CampaignID              string           `json:"campaign_id" db:"campaign_id"`
	Name                    string           `json:"name" db:"name"`
	TestType                TestType         `json:"test_type" db:"test_type"`
	SuccessMetric           SuccessMetric    `json:"success_metric" db:"success_metric"`
	MinimumSampleSize       int              `json:"minimum_sample_size" db:"minimum_sample_size"`
	ConfidenceLevel         int              `json:"confidence_level" db:"confidence_level"`
	AutoEndOnSignificance   bool             `json:"auto_end_on_significance" db:"auto_end_on_significance"`
	Status                  ExperimentStatus `json:"status" db:"status"`
	WinnerVariantID         *string          `json:"winner_variant_id,omitempty" db:"winner_variant_id"`
	StatisticalSignificance *float64         `json:"statistical_significance,omitempty" db:"statistical_significance"`
	StartedAt               *time.Time       `json:"started_at,omitempty" db:"started_at"`
	EndedAt                 *time.Time       `json:"ended_at,omitempty" db:"ended_at"`
	CreatedAt               time.Time        `json:"created_at" db:"created_at"`
}

// VariantStats are the aggregated delivery counts for one variant.
type VariantStats struct {
	VariantID       string  `json:"variant_id"`
	VariantName     string  `json:"variant_name"`
	IsControl       bool    `json:"is_control"`
	EmailsSent      int     `json:"emails_sent"`
	EmailsDelivered int     `json:"emails_delivered"`
	EmailsBounced   int     `json:"emails_bounced"`
	EmailsOpened    int     `json:"emails_opened"`
	UniqueOpens     int     `json:"unique_opens"`
	EmailsClicked   int     `json:"emails_clicked"`
	UniqueClicks    int     `json:"unique_clicks"`
	EmailsReplied   int     `json:"emails_replied"`
	Conversions     int     `json:"conversions"`
	OpenRate        float64 `json:"open_rate"`
	ClickRate       float64 `json:"click_rate"`
	ReplyRate       float64 `json:"reply_rate"`
	ConversionRate  float64 `json:"conversion_rate"`
	ClickToOpenRate float64 `json:"click_to_open_rate"`
	SampleSize      int     `json:"sample_size"`
}

// ComputeRates fills the derived rate fields from the raw counts. Rates are
// percentages over delivered mail; click-to-open is over unique opens.
func (s *VariantStats) ComputeRates() {
	s.OpenRate, s.ClickRate, s.ReplyRate, s.ConversionRate, s.ClickToOpenRate = 0, 0, 0, 0, 0
	if s.EmailsDelivered > 0 {
		d := float64(s.EmailsDelivered)
		s.OpenRate = float64(s.UniqueOpens) / d * 100
		s.ClickRate = float64(s.UniqueClicks) / d * 100
		s.ReplyRate = float64(s.EmailsReplied) / d * 100
		s.ConversionRate = float64(s.Conversions) / d * 100
	}
	if s.UniqueOpens > 0 {
		s.ClickToOpenRate = float64(s.UniqueClicks) / float64(s.UniqueOpens) * 100
	}
}

// SuccessCount returns the numerator the given metric is measured on.
func (s VariantStats) SuccessCount(m SuccessMetric) int {
	switch m {
	case MetricOpenRate:
		return s.UniqueOpens
	case MetricClickRate:
		return s.UniqueClicks
	case MetricReplyRate:
		return s.EmailsReplied
	case MetricConversionRate:
		return s.Conversions
	}
	return 0
}

// Rate returns the rate (percentage) for the given metric.
func (s VariantStats) Rate(m SuccessMetric) float64 {
	switch m {
	case MetricOpenRate:
		return s.OpenRate
	case MetricClickRate:
		return s.ClickRate
	case MetricReplyRate:
		return s.ReplyRate
	case MetricConversionRate:
		return s.ConversionRate
	}
	return 0
}

// ResultStatus summarizes the outcome of an experiment analysis.
type ResultStatus string

const (
	ResultInsufficientData ResultStatus = "insufficient_data"
	ResultNoWinner         ResultStatus = "no_winner"
	ResultWinnerFound      ResultStatus = "winner_found"
)

// ExperimentResult is the outcome of analysing an experiment's variants.
type ExperimentResult struct {
	ExperimentID    string         `json:"experiment_id"`
	Status          ResultStatus   `json:"status"`
	WinnerVariantID string         `json:"winner_variant_id,omitempty"`
	WinnerName      string         `json:"winner_name,omitempty"`
	ConfidenceLevel float64        `json:"confidence_level"`
	LiftPercent     float64        `json:"lift_percent"`
	TotalSamples    int            `json:"total_samples"`
	Recommendation  string         `json:"recommendation"`
	Variants        []VariantStats `json:"variants"`
}

// SendRecord is one send as reported by the delivery subsystem. Analysis
// falls back to these when no aggregates have been recorded.
type SendRecord struct {
	CampaignLeadID string `json:"campaign_lead_id"`
	CampaignID     string `json:"campaign_id"`
	VariantID      string `json:"variant_id"`
	Delivered      bool   `json:"delivered"`
	Bounced        bool   `json:"bounced"`
	OpenCount      int    `json:"open_count"`
	ClickCount     int    `json:"click_count"`
	Replied        bool   `json:"replied"`
	Converted      bool   `json:"converted"`
}
