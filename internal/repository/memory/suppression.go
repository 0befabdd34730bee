package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/ignite/send-governor/internal/domain"
	"github.com/ignite/send-governor/internal/service/suppression"
)

// SuppressionRepo implements suppression.Repository in memory.
type SuppressionRepo struct {
	mu    sync.RWMutex
	byKey map[string]domain.Suppression // "workspaceID\x00email"
}

// NewSuppressionRepo creates an empty suppression repository.
func NewSuppressionRepo() *SuppressionRepo {
	return &SuppressionRepo{byKey: make(map[string]domain.Suppression)}
}

func suppressionKey(workspaceID, email string) string { return workspaceID + "\x00" + email }

func (r *SuppressionRepo) Get(_ context.Context, workspaceID, email string) (*domain.Suppression, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byKey[suppressionKey(workspaceID, email)]
	if !ok {
		return nil, suppression.ErrNotFound
	}
	return &s, nil
}

func (r *SuppressionRepo) GetMany(_ context.Context, workspaceID string, emails []string) (map[string]domain.Suppression, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]domain.Suppression)
	for _, e := range emails {
		if s, ok := r.byKey[suppressionKey(workspaceID, e)]; ok {
			out[e] = s
		}
	}
	return out, nil
}

func (r *SuppressionRepo) Upsert(_ context.Context, s *domain.Suppression) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := suppressionKey(s.WorkspaceID, s.Email)
	if existing, ok := r.byKey[k]; ok {
		s.ID = existing.ID
	} else if s.ID == "" {
		s.ID = uuid.New().String()
	}
	r.byKey[k] = *s
	return nil
}

func (r *SuppressionRepo) Remove(_ context.Context, workspaceID, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := suppressionKey(workspaceID, email)
	if _, ok := r.byKey[k]; !ok {
		return suppression.ErrNotFound
	}
	delete(r.byKey, k)
	return nil
}

func (r *SuppressionRepo) List(_ context.Context, workspaceID string, f suppression.ListFilter) ([]domain.Suppression, int, error) {
	r.mu.RLock()
	var matched []domain.Suppression
	for _, s := range r.byKey {
		if s.WorkspaceID != workspaceID || (f.Reason != "" && s.Reason != f.Reason) {
			continue
		}
		matched = append(matched, s)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].SuppressedAt.Equal(matched[j].SuppressedAt) {
			return matched[i].Email < matched[j].Email
		}
		return matched[i].SuppressedAt.After(matched[j].SuppressedAt)
	})
	total := len(matched)
	if f.Offset >= total {
		return []domain.Suppression{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}

func (r *SuppressionRepo) CountByReason(_ context.Context, workspaceID string) (map[domain.SuppressionReason]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domain.SuppressionReason]int)
	for _, s := range r.byKey {
		if s.WorkspaceID == workspaceID {
			out[s.Reason]++
		}
	}
	return out, nil
}

func (r *SuppressionRepo) AllEmails(_ context.Context, workspaceID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, s := range r.byKey {
		if s.WorkspaceID == workspaceID {
			out = append(out, s.Email)
		}
	}
	sort.Strings(out)
	return out, nil
}
