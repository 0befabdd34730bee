package experiment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ignite/send-governor/internal/domain"
	"github.com/ignite/send-governor/internal/pkg/logger"
)

// DefaultVariantWeight is used when CreateVariant is called without a weight.
const DefaultVariantWeight = 50

// VariantInput holds the caller-supplied fields of a new variant.
type VariantInput struct {
	Name            string `json:"name"`
	VariantKey      string `json:"variant_key"`
	Description     string `json:"description"`
	SubjectTemplate string `json:"subject_template"`
	BodyTemplate    string `json:"body_template"`
	IsControl       bool   `json:"is_control"`
	Weight          *int   `json:"weight"`
}

// AssignVariant returns the variant a campaign lead receives. An existing
// assignment is always returned unchanged. Otherwise an active variant is
// drawn by weight and recorded; a concurrent caller that recorded first
// wins. A nil variant with a nil error means the campaign has nothing to
// assign and the default message should be sent.
func (s *Service) AssignVariant(ctx context.Context, campaignLeadID, campaignID string) (*domain.Variant, error) {
	if campaignLeadID == "" || campaignID == "" {
		return nil, fmt.Errorf("%w: campaign lead and campaign are required", domain.ErrValidation)
	}

	if v, err := s.assignedVariant(ctx, campaignLeadID); err == nil || !errors.Is(err, ErrAssignmentNotFound) {
		return v, err
	}

	variants, err := s.variants.ListVariants(ctx, campaignID, true)
	if err != nil {
		return nil, fmt.Errorf("list active variants: %w", err)
	}
	if len(variants) == 0 {
		return nil, nil
	}
	chosen := pickWeighted(variants, s.rand())
	if chosen == nil {
		return nil, nil
	}

	err = s.assignments.InsertAssignment(ctx, &domain.VariantAssignment{
		CampaignLeadID: campaignLeadID,
		CampaignID:     campaignID,
		VariantID:      chosen.ID,
		AssignedAt:     s.now().UTC(),
	})
	if err == nil {
		return chosen, nil
	}

	if errors.Is(err, ErrAssignmentExists) {
		v, rerr := s.assignedVariant(ctx, campaignLeadID)
		if rerr == nil {
			return v, nil
		}
		err = rerr
	}
	logger.Warn("variant assignment not recorded; using first variant",
		"campaign_id", campaignID, "campaign_lead_id", campaignLeadID, "error", err)
	return &variants[0], nil
}

func (s *Service) assignedVariant(ctx context.Context, campaignLeadID string) (*domain.Variant, error) {
	a, err := s.assignments.GetAssignment(ctx, campaignLeadID)
	if err != nil {
		if errors.Is(err, ErrAssignmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("lookup assignment: %w", err)
	}
	v, err := s.variants.GetVariant(ctx, a.VariantID)
	if err != nil {
		return nil, fmt.Errorf("load assigned variant: %w", err)
	}
	return v, nil
}

// pickWeighted walks variants in order and returns the first whose
// cumulative weight exceeds u*total. It returns nil when total weight is 0.
func pickWeighted(variants []domain.Variant, u float64) *domain.Variant {
	total := 0
	for _, v := range variants {
		total += v.Weight
	}
	if total <= 0 {
		return nil
	}
	r := u * float64(total)
	cum := 0
	for i := range variants {
		cum += variants[i].Weight
		if float64(cum) > r {
			return &variants[i]
		}
	}
	// u is in [0, 1); only reachable through rounding.
	for i := len(variants) - 1; i >= 0; i-- {
		if variants[i].Weight > 0 {
			return &variants[i]
		}
	}
	return nil
}

// CreateVariant adds an active variant to a campaign. The campaign's active
// weights including the new one may not exceed 100, a campaign has at most
// one control, and both templates must parse.
func (s *Service) CreateVariant(ctx context.Context, campaignID, workspaceID string, in VariantInput) (*domain.Variant, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.VariantKey = strings.TrimSpace(in.VariantKey)
	if campaignID == "" || workspaceID == "" {
		return nil, fmt.Errorf("%w: campaign and workspace are required", ErrInvalidVariant)
	}
	if in.Name == "" || in.VariantKey == "" {
		return nil, fmt.Errorf("%w: name and variant_key are required", ErrInvalidVariant)
	}
	weight := DefaultVariantWeight
	if in.Weight != nil {
		weight = *in.Weight
	}
	if weight < 0 || weight > 100 {
		return nil, fmt.Errorf("%w: weight must be between 0 and 100", ErrInvalidVariant)
	}
	if err := s.validateTemplate("subject", in.SubjectTemplate); err != nil {
		return nil, err
	}
	if err := s.validateTemplate("body", in.BodyTemplate); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	v := &domain.Variant{
		ID:              uuid.New().String(),
		CampaignID:      campaignID,
		WorkspaceID:     workspaceID,
		Name:            in.Name,
		VariantKey:      in.VariantKey,
		Description:     in.Description,
		IsControl:       in.IsControl,
		SubjectTemplate: in.SubjectTemplate,
		BodyTemplate:    in.BodyTemplate,
		Weight:          weight,
		Status:          domain.VariantActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.withLock(ctx, campaignLockKey(campaignID), func() error {
		existing, err := s.variants.ListVariants(ctx, campaignID, false)
		if err != nil {
			return fmt.Errorf("list variants: %w", err)
		}
		active := 0
		for _, e := range existing {
			if e.IsControl && in.IsControl {
				return ErrControlExists
			}
			if e.Status == domain.VariantActive {
				active += e.Weight
			}
		}
		if active+weight > 100 {
			return fmt.Errorf("%w: active total %d plus %d", ErrWeightExceeded, active, weight)
		}
		return s.variants.CreateVariant(ctx, v)
	})
	if err != nil {
		return nil, err
	}
	logger.Info("variant created", "campaign_id", campaignID, "variant_id", v.ID, "weight", weight, "is_control", v.IsControl)
	return v, nil
}

func (s *Service) validateTemplate(field, src string) error {
	if src == "" {
		return nil
	}
	if _, err := s.engine.ParseString(src); err != nil {
		return fmt.Errorf("%w: %s: %s", ErrInvalidTemplate, field, err.Error())
	}
	return nil
}

// GetVariants returns every variant of a campaign in creation order.
func (s *Service) GetVariants(ctx context.Context, campaignID string) ([]domain.Variant, error) {
	return s.variants.ListVariants(ctx, campaignID, false)
}

// UpdateVariantWeights replaces the weights of the given variants. The
// weights must sum to exactly 100 and the update is all or nothing.
func (s *Service) UpdateVariantWeights(ctx context.Context, campaignID string, updates []domain.WeightUpdate) error {
	if len(updates) == 0 {
		return ErrInvalidWeights
	}
	sum := 0
	seen := make(map[string]bool, len(updates))
	for _, u := range updates {
		if u.Weight < 0 || u.Weight > 100 || seen[u.VariantID] {
			return ErrInvalidWeights
		}
		seen[u.VariantID] = true
		sum += u.Weight
	}
	if sum != 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidWeights, sum)
	}

	return s.withLock(ctx, campaignLockKey(campaignID), func() error {
		existing, err := s.variants.ListVariants(ctx, campaignID, false)
		if err != nil {
			return fmt.Errorf("list variants: %w", err)
		}
		byID := make(map[string]domain.Variant, len(existing))
		for _, v := range existing {
			byID[v.ID] = v
		}
		active := 0
		for _, v := range existing {
			if v.Status == domain.VariantActive && !seen[v.ID] {
				active += v.Weight
			}
		}
		for _, u := range updates {
			v, ok := byID[u.VariantID]
			if !ok {
				return fmt.Errorf("%w: %s", ErrVariantNotFound, u.VariantID)
			}
			if v.Status == domain.VariantActive {
				active += u.Weight
			}
		}
		if active > 100 {
			return fmt.Errorf("%w: active total would be %d", ErrWeightExceeded, active)
		}
		if err := s.variants.UpdateWeights(ctx, campaignID, updates); err != nil {
			return fmt.Errorf("update variant weights: %w", err)
		}
		logger.Info("variant weights updated", "campaign_id", campaignID, "variants", len(updates))
		return nil
	})
}

// ApplyWinner routes all of a campaign's traffic to the winning variant.
func (s *Service) ApplyWinner(ctx context.Context, campaignID, winnerVariantID string) error {
	return s.withLock(ctx, campaignLockKey(campaignID), func() error {
		winner, err := s.variants.GetVariant(ctx, winnerVariantID)
		if err != nil {
			return err
		}
		if winner.CampaignID != campaignID {
			return fmt.Errorf("%w: %s is not part of campaign %s", ErrVariantNotFound, winnerVariantID, campaignID)
		}
		if err := s.variants.ApplyWinner(ctx, campaignID, winnerVariantID); err != nil {
			return fmt.Errorf("apply winner: %w", err)
		}
		logger.Info("winner applied", "campaign_id", campaignID, "variant_id", winnerVariantID)
		return nil
	})
}

// SetVariantStatus pauses, archives or reactivates a variant. Reactivating
// is refused if it would push active weights above 100.
func (s *Service) SetVariantStatus(ctx context.Context, variantID string, status domain.VariantStatus) (*domain.Variant, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidVariant, status)
	}
	v, err := s.variants.GetVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}
	if v.Status == status {
		return v, nil
	}

	err = s.withLock(ctx, campaignLockKey(v.CampaignID), func() error {
		if status == domain.VariantActive {
			active, err := s.variants.ListVariants(ctx, v.CampaignID, true)
			if err != nil {
				return fmt.Errorf("list active variants: %w", err)
			}
			total := v.Weight
			for _, a := range active {
				total += a.Weight
			}
			if total > 100 {
				return fmt.Errorf("%w: active total would be %d", ErrWeightExceeded, total)
			}
		}
		return s.variants.SetStatus(ctx, variantID, status)
	})
	if err != nil {
		return nil, err
	}
	v.Status = status
	v.UpdatedAt = s.now().UTC()
	return v, nil
}
