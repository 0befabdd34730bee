package experiment

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ignite/send-governor/internal/domain"
)

// GetExperimentResults analyses an experiment's variants against its
// control. It returns nil, nil if the experiment does not exist. When no
// aggregates have been recorded the counts are computed from raw send
// records for the campaign's active variants.
func (s *Service) GetExperimentResults(ctx context.Context, experimentID string) (*domain.ExperimentResult, error) {
	exp, err := s.experiments.Get(ctx, experimentID)
	if errors.Is(err, ErrExperimentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load experiment: %w", err)
	}

	stats, err := s.stats.AggregateStats(ctx, exp.ID)
	if err != nil {
		return nil, fmt.Errorf("load variant stats: %w", err)
	}
	if len(stats) == 0 {
		if stats, err = s.stats.RawStats(ctx, exp.CampaignID); err != nil {
			return nil, fmt.Errorf("compute variant stats: %w", err)
		}
	}
	return Analyze(exp, stats), nil
}

// Analyze runs the significance analysis over per-variant counts. The
// sample size of a variant is its delivered count. A non-control winner
// takes precedence; control wins only if no other variant qualifies and it
// beats every non-control variant at the target confidence.
func Analyze(exp *domain.Experiment, stats []domain.VariantStats) *domain.ExperimentResult {
	total := 0
	for i := range stats {
		stats[i].SampleSize = stats[i].EmailsDelivered
		stats[i].ComputeRates()
		total += stats[i].SampleSize
	}
	res := &domain.ExperimentResult{
		ExperimentID: exp.ID,
		TotalSamples: total,
		Variants:     stats,
	}

	minSample := exp.MinimumSampleSize
	if minSample <= 0 {
		minSample = domain.DefaultMinimumSampleSize
	}
	if total < minSample {
		res.Status = domain.ResultInsufficientData
		res.Recommendation = fmt.Sprintf("Need %d more sends to reach the minimum sample size of %d.", minSample-total, minSample)
		return res
	}

	var control *domain.VariantStats
	var others []*domain.VariantStats
	for i := range stats {
		if stats[i].IsControl && control == nil {
			control = &stats[i]
			continue
		}
		others = append(others, &stats[i])
	}
	if control == nil || len(others) == 0 {
		res.Status = domain.ResultNoWinner
		res.Recommendation = "Mark one variant as the control and add at least one test variant to compare."
		return res
	}

	metric := exp.SuccessMetric
	target := float64(exp.ConfidenceLevel)
	if target <= 0 {
		target = domain.DefaultConfidenceLevel
	}
	controlRate := control.Rate(metric)

	var (
		winner     *domain.VariantStats
		winnerConf float64
		winnerLift float64
		bestConf   float64
		confs      = make([]float64, len(others))
	)
	for i, v := range others {
		_, conf := TwoProportionZTest(v.SuccessCount(metric), v.SampleSize, control.SuccessCount(metric), control.SampleSize)
		confs[i] = conf
		if conf > bestConf {
			bestConf = conf
		}
		rate := v.Rate(metric)
		if rate > controlRate && conf >= target && conf > winnerConf {
			winner, winnerConf, winnerLift = v, conf, lift(rate, controlRate)
		}
	}

	if winner == nil {
		if conf, l, ok := controlBeatsAll(controlRate, others, confs, metric, target); ok {
			winner, winnerConf, winnerLift = control, conf, l
		}
	}

	if winner == nil {
		res.Status = domain.ResultNoWinner
		res.ConfidenceLevel = bestConf
		res.Recommendation = fmt.Sprintf("Keep collecting data. Best confidence so far is %.0f%%, target is %.0f%%.", bestConf, target)
		return res
	}

	res.Status = domain.ResultWinnerFound
	res.WinnerVariantID = winner.VariantID
	res.WinnerName = winner.VariantName
	res.ConfidenceLevel = winnerConf
	res.LiftPercent = winnerLift
	res.Recommendation = fmt.Sprintf("%s wins on %s with %.0f%% confidence (%+.1f%% lift). Apply it as the winner to send all remaining traffic to it.",
		winner.VariantName, metric, winnerConf, winnerLift)
	return res
}

// controlBeatsAll reports whether control's rate exceeds every other
// variant's at the target confidence. It returns the weakest confidence
// and lift among those comparisons.
func controlBeatsAll(controlRate float64, others []*domain.VariantStats, confs []float64, metric domain.SuccessMetric, target float64) (conf, l float64, ok bool) {
	conf, l = math.Inf(1), math.Inf(1)
	for i, v := range others {
		rate := v.Rate(metric)
		if controlRate <= rate || confs[i] < target {
			return 0, 0, false
		}
		conf = math.Min(conf, confs[i])
		l = math.Min(l, lift(controlRate, rate))
	}
	return conf, l, len(others) > 0
}

// lift is the relative improvement of rate over base in percent. A zero
// base with a positive rate reports 100.
func lift(rate, base float64) float64 {
	if base == 0 {
		if rate > 0 {
			return 100
		}
		return 0
	}
	return (rate - base) / base * 100
}
