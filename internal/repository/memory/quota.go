package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/send-governor/internal/domain"
	"github.com/ignite/send-governor/internal/service/quota"
)

// QuotaStore implements quota.Store with a single mutex guarding every
// counter, which makes TryConsume atomic across both scopes.
type QuotaStore struct {
	mu         sync.Mutex
	defaults   quota.Limits
	campaigns  map[string]*campaignCounter
	workspaces map[string]*domain.QuotaCounter
}

type campaignCounter struct {
	domain.QuotaCounter
	workspaceID string
}

// NewQuotaStore creates an empty store that provisions counters with defaults.
func NewQuotaStore(defaults quota.Limits) *QuotaStore {
	return &QuotaStore{
		defaults:   defaults,
		campaigns:  make(map[string]*campaignCounter),
		workspaces: make(map[string]*domain.QuotaCounter),
	}
}

// Seed overwrites a counter's state. Tests use it to set up a previous day.
func (s *QuotaStore) Seed(scope domain.QuotaScope, id, workspaceID string, limit, sent int, lastReset time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := domain.QuotaCounter{Scope: scope, ID: id, Limit: limit, SentCount: sent, LastResetDate: lastReset}
	if scope == domain.ScopeCampaign {
		s.campaigns[id] = &campaignCounter{QuotaCounter: c, workspaceID: workspaceID}
		return
	}
	s.workspaces[id] = &c
}

func (s *QuotaStore) campaign(campaignID, workspaceID string) *campaignCounter {
	c, ok := s.campaigns[campaignID]
	if !ok {
		c = &campaignCounter{
			QuotaCounter: domain.QuotaCounter{Scope: domain.ScopeCampaign, ID: campaignID, Limit: s.defaults.Campaign},
			workspaceID:  workspaceID,
		}
		s.campaigns[campaignID] = c
	}
	return c
}

func (s *QuotaStore) workspace(workspaceID string) *domain.QuotaCounter {
	w, ok := s.workspaces[workspaceID]
	if !ok {
		w = &domain.QuotaCounter{Scope: domain.ScopeWorkspace, ID: workspaceID, Limit: s.defaults.Workspace}
		s.workspaces[workspaceID] = w
	}
	return w
}

func (s *QuotaStore) Load(_ context.Context, campaignID, workspaceID string) (domain.QuotaCounter, domain.QuotaCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.campaign(campaignID, workspaceID).QuotaCounter, *s.workspace(workspaceID), nil
}

func (s *QuotaStore) TryConsume(_ context.Context, campaignID, workspaceID string, today time.Time) (quota.ConsumeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.campaign(campaignID, workspaceID)
	w := s.workspace(workspaceID)

	allowed, blocked := quota.Decide(c.QuotaCounter, *w, today)
	if allowed {
		quota.Consume(&c.QuotaCounter, today)
		quota.Consume(w, today)
	}
	return quota.ConsumeResult{Allowed: allowed, Blocked: blocked, Campaign: c.QuotaCounter, Workspace: *w}, nil
}

func (s *QuotaStore) SetCampaignLimit(_ context.Context, campaignID, workspaceID string, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaign(campaignID, workspaceID).Limit = limit
	return nil
}

func (s *QuotaStore) SetWorkspaceLimit(_ context.Context, workspaceID string, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspace(workspaceID).Limit = limit
	return nil
}

func (s *QuotaStore) RegisterCampaign(_ context.Context, campaignID, workspaceID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.campaign(campaignID, workspaceID)
	c.workspaceID = workspaceID
	c.Name = name
	return nil
}

func (s *QuotaStore) LoadWorkspace(_ context.Context, workspaceID string) (domain.QuotaCounter, []domain.QuotaCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var campaigns []domain.QuotaCounter
	for _, c := range s.campaigns {
		if c.workspaceID == workspaceID {
			campaigns = append(campaigns, c.QuotaCounter)
		}
	}
	sort.Slice(campaigns, func(i, j int) bool { return campaigns[i].ID < campaigns[j].ID })
	return *s.workspace(workspaceID), campaigns, nil
}
