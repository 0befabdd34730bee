package experiment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ignite/send-governor/internal/domain"
	"github.com/ignite/send-governor/internal/pkg/logger"
)

// ExperimentInput holds the caller-supplied fields of a new experiment.
type ExperimentInput struct {
	WorkspaceID           string               `json:"workspace_id"`
	CampaignID            string               `json:"campaign_id"`
	Name                  string               `json:"name"`
	TestType              domain.TestType      `json:"test_type"`
	SuccessMetric         domain.SuccessMetric `json:"success_metric"`
	MinimumSampleSize     int                  `json:"minimum_sample_size"`
	ConfidenceLevel       int                  `json:"confidence_level"`
	AutoEndOnSignificance bool                 `json:"auto_end_on_significance"`
}

// CreateExperiment creates a draft experiment.
func (s *Service) CreateExperiment(ctx context.Context, in ExperimentInput) (*domain.Experiment, error) {
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.WorkspaceID == "" || in.CampaignID == "":
		return nil, fmt.Errorf("%w: workspace and campaign are required", ErrInvalidExperiment)
	case in.Name == "":
		return nil, fmt.Errorf("%w: name is required", ErrInvalidExperiment)
	case !in.TestType.Valid():
		return nil, fmt.Errorf("%w: unknown test type %q", ErrInvalidExperiment, in.TestType)
	case !in.SuccessMetric.Valid():
		return nil, fmt.Errorf("%w: unknown success metric %q", ErrInvalidExperiment, in.SuccessMetric)
	case in.MinimumSampleSize < 0:
		return nil, fmt.Errorf("%w: minimum sample size must be positive", ErrInvalidExperiment)
	case in.ConfidenceLevel < 0 || in.ConfidenceLevel > 99:
		return nil, fmt.Errorf("%w: confidence level must be between 1 and 99", ErrInvalidExperiment)
	}
	if in.MinimumSampleSize == 0 {
		in.MinimumSampleSize = domain.DefaultMinimumSampleSize
	}
	if in.ConfidenceLevel == 0 {
		in.ConfidenceLevel = domain.DefaultConfidenceLevel
	}

	e := &domain.Experiment{
		ID:                    uuid.New().String(),
		WorkspaceID:           in.WorkspaceID,
		CampaignID:            in.CampaignID,
		Name:                  in.Name,
		TestType:              in.TestType,
		SuccessMetric:         in.SuccessMetric,
		MinimumSampleSize:     in.MinimumSampleSize,
		ConfidenceLevel:       in.ConfidenceLevel,
		AutoEndOnSignificance: in.AutoEndOnSignificance,
		Status:                domain.ExperimentDraft,
		CreatedAt:             s.now().UTC(),
	}
	if err := s.experiments.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create experiment: %w", err)
	}
	logger.Info("experiment created", "experiment_id", e.ID, "campaign_id", e.CampaignID)
	return e, nil
}

// GetExperiment returns ErrExperimentNotFound if the experiment doesn't exist.
func (s *Service) GetExperiment(ctx context.Context, id string) (*domain.Experiment, error) {
	return s.experiments.Get(ctx, id)
}

// StartExperiment moves a draft experiment to running.
func (s *Service) StartExperiment(ctx context.Context, id string) (*domain.Experiment, error) {
	return s.transition(ctx, id, domain.ExperimentRunning, []domain.ExperimentStatus{domain.ExperimentDraft},
		func(e *domain.Experiment) error {
			now := s.now().UTC()
			e.StartedAt = &now
			return nil
		})
}

// PauseExperiment moves a running experiment to paused.
func (s *Service) PauseExperiment(ctx context.Context, id string) (*domain.Experiment, error) {
	return s.transition(ctx, id, domain.ExperimentPaused, []domain.ExperimentStatus{domain.ExperimentRunning}, nil)
}

// ResumeExperiment moves a paused experiment back to running.
func (s *Service) ResumeExperiment(ctx context.Context, id string) (*domain.Experiment, error) {
	return s.transition(ctx, id, domain.ExperimentRunning, []domain.ExperimentStatus{domain.ExperimentPaused}, nil)
}

// CancelExperiment abandons an experiment without a winner.
func (s *Service) CancelExperiment(ctx context.Context, id string) (*domain.Experiment, error) {
	return s.transition(ctx, id, domain.ExperimentCancelled,
		[]domain.ExperimentStatus{domain.ExperimentDraft, domain.ExperimentRunning, domain.ExperimentPaused},
		func(e *domain.Experiment) error {
			now := s.now().UTC()
			e.EndedAt = &now
			return nil
		})
}

// EndExperiment completes a running or paused experiment. If
// winnerVariantID is empty the current analysis decides: its winner and
// confidence are recorded when it found one. Completion holds the
// experiment lock so two operators cannot end it concurrently.
func (s *Service) EndExperiment(ctx context.Context, id, winnerVariantID string) (*domain.Experiment, error) {
	var out *domain.Experiment
	err := s.withLock(ctx, experimentLockKey(id), func() error {
		var err error
		out, err = s.transition(ctx, id, domain.ExperimentCompleted,
			[]domain.ExperimentStatus{domain.ExperimentRunning, domain.ExperimentPaused},
			func(e *domain.Experiment) error {
				if winnerVariantID != "" {
					v, err := s.variants.GetVariant(ctx, winnerVariantID)
					if err != nil {
						return err
					}
					if v.CampaignID != e.CampaignID {
						return fmt.Errorf("%w: %s is not part of campaign %s", ErrVariantNotFound, winnerVariantID, e.CampaignID)
					}
					e.WinnerVariantID = &winnerVariantID
				} else {
					res, err := s.GetExperimentResults(ctx, e.ID)
					if err != nil {
						return err
					}
					if res != nil && res.Status == domain.ResultWinnerFound {
						winner, conf := res.WinnerVariantID, res.ConfidenceLevel
						e.WinnerVariantID = &winner
						e.StatisticalSignificance = &conf
					}
				}
				now := s.now().UTC()
				e.EndedAt = &now
				return nil
			})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// transition loads an experiment, checks it is in one of from, applies
// mutate and persists the new status if nobody changed it meanwhile.
func (s *Service) transition(ctx context.Context, id string, to domain.ExperimentStatus, from []domain.ExperimentStatus, mutate func(*domain.Experiment) error) (*domain.Experiment, error) {
	e, err := s.experiments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := e.Status
	if !statusIn(prev, from) || !prev.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, to)
	}
	if mutate != nil {
		if err := mutate(e); err != nil {
			return nil, err
		}
	}
	e.Status = to
	if err := s.experiments.Transition(ctx, e, prev); err != nil {
		return nil, err
	}
	logger.Info("experiment status changed", "experiment_id", id, "from", prev, "to", to)
	return e, nil
}

func statusIn(s domain.ExperimentStatus, set []domain.ExperimentStatus) bool {
	for _, c := range set {
		if s == c {
			return true
		}
	}
	return false
}
