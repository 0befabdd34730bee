package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/send-governor/internal/domain"
	"github.com/ignite/send-governor/internal/service/experiment"
)

// ExperimentStore implements the experiment engine's variant, assignment,
// experiment and stats repositories in memory.
type ExperimentStore struct {
	mu          sync.RWMutex
	variants    map[string]*domain.Variant
	order       []string // variant ids in insertion order
	assignments map[string]domain.VariantAssignment
	experiments map[string]domain.Experiment
	aggregates  map[string][]domain.VariantStats
	sends       []domain.SendRecord
}

// NewExperimentStore creates an empty store.
func NewExperimentStore() *ExperimentStore {
	return &ExperimentStore{
		variants:    make(map[string]*domain.Variant),
		assignments: make(map[string]domain.VariantAssignment),
		experiments: make(map[string]domain.Experiment),
		aggregates:  make(map[string][]domain.VariantStats),
	}
}

// RecordAggregates replaces the aggregate stats recorded for an experiment.
func (s *ExperimentStore) RecordAggregates(experimentID string, stats []domain.VariantStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggregates[experimentID] = append([]domain.VariantStats(nil), stats...)
}

// RecordSend appends a raw send record.
func (s *ExperimentStore) RecordSend(r domain.SendRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, r)
}

func (s *ExperimentStore) listLocked(campaignID string, activeOnly bool) []domain.Variant {
	var out []domain.Variant
	for _, id := range s.order {
		v := s.variants[id]
		if v.CampaignID != campaignID || (activeOnly && v.Status != domain.VariantActive) {
			continue
		}
		out = append(out, *v)
	}
	return out
}

func (s *ExperimentStore) ListVariants(_ context.Context, campaignID string, activeOnly bool) ([]domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(campaignID, activeOnly), nil
}

func (s *ExperimentStore) GetVariant(_ context.Context, id string) (*domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.variants[id]
	if !ok {
		return nil, experiment.ErrVariantNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *ExperimentStore) CreateVariant(_ context.Context, v *domain.Variant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.variants[v.ID] = &cp
	s.order = append(s.order, v.ID)
	return nil
}

func (s *ExperimentStore) UpdateWeights(_ context.Context, campaignID string, updates []domain.WeightUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		v, ok := s.variants[u.VariantID]
		if !ok || v.CampaignID != campaignID {
			return experiment.ErrVariantNotFound
		}
	}
	now := time.Now().UTC()
	for _, u := range updates {
		v := s.variants[u.VariantID]
		v.Weight = u.Weight
		v.UpdatedAt = now
	}
	return nil
}

func (s *ExperimentStore) ApplyWinner(_ context.Context, campaignID, winnerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.variants[winnerID]
	if !ok || w.CampaignID != campaignID {
		return experiment.ErrVariantNotFound
	}
	now := time.Now().UTC()
	for _, v := range s.variants {
		if v.CampaignID != campaignID {
			continue
		}
		if v.ID == winnerID {
			v.Weight = 100
			v.Status = domain.VariantActive
		} else {
			v.Weight = 0
			v.Status = domain.VariantPaused
		}
		v.UpdatedAt = now
	}
	return nil
}

func (s *ExperimentStore) SetStatus(_ context.Context, id string, status domain.VariantStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.variants[id]
	if !ok {
		return experiment.ErrVariantNotFound
	}
	v.Status = status
	v.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *ExperimentStore) GetAssignment(_ context.Context, campaignLeadID string) (*domain.VariantAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[campaignLeadID]
	if !ok {
		return nil, experiment.ErrAssignmentNotFound
	}
	return &a, nil
}

func (s *ExperimentStore) InsertAssignment(_ context.Context, a *domain.VariantAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[a.CampaignLeadID]; ok {
		return experiment.ErrAssignmentExists
	}
	s.assignments[a.CampaignLeadID] = *a
	return nil
}

func (s *ExperimentStore) Create(_ context.Context, e *domain.Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.experiments[e.ID] = *e
	return nil
}

func (s *ExperimentStore) Get(_ context.Context, id string) (*domain.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.experiments[id]
	if !ok {
		return nil, experiment.ErrExperimentNotFound
	}
	return &e, nil
}

func (s *ExperimentStore) Transition(_ context.Context, e *domain.Experiment, from domain.ExperimentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.experiments[e.ID]
	if !ok {
		return experiment.ErrExperimentNotFound
	}
	if cur.Status != from {
		return experiment.ErrInvalidTransition
	}
	s.experiments[e.ID] = *e
	return nil
}

func (s *ExperimentStore) AggregateStats(_ context.Context, experimentID string) ([]domain.VariantStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.VariantStats(nil), s.aggregates[experimentID]...), nil
}

func (s *ExperimentStore) RawStats(_ context.Context, campaignID string) ([]domain.VariantStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active := s.listLocked(campaignID, true)
	idx := make(map[string]int, len(active))
	out := make([]domain.VariantStats, len(active))
	for i, v := range active {
		idx[v.ID] = i
		out[i] = domain.VariantStats{VariantID: v.ID, VariantName: v.Name, IsControl: v.IsControl}
	}
	for _, r := range s.sends {
		i, ok := idx[r.VariantID]
		if !ok || r.CampaignID != campaignID {
			continue
		}
		st := &out[i]
		st.EmailsSent++
		if r.Delivered {
			st.EmailsDelivered++
		}
		if r.Bounced {
			st.EmailsBounced++
		}
		st.EmailsOpened += r.OpenCount
		if r.OpenCount > 0 {
			st.UniqueOpens++
		}
		st.EmailsClicked += r.ClickCount
		if r.ClickCount > 0 {
			st.UniqueClicks++
		}
		if r.Replied {
			st.EmailsReplied++
		}
		if r.Converted {
			st.Conversions++
		}
	}
	return out, nil
}

// Assignments returns the number of recorded assignments per variant.
func (s *ExperimentStore) Assignments(campaignID string) map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int)
	for _, a := range s.assignments {
		if a.CampaignID == campaignID {
			out[a.VariantID]++
		}
	}
	return out
}

