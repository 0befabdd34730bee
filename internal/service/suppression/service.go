package suppression

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/ignite/send-governor/internal/domain"
	"github.com/ignite/send-governor/internal/pkg/logger"
	"github.com/ignite/send-governor/internal/pkg/retry"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// Service implements suppression business logic. It is safe for concurrent use.
type Service struct {
	repo       Repository
	failClosed bool
	policy     retry.Policy
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithFailClosed makes lookup errors propagate instead of reporting the
// address as not suppressed.
func WithFailClosed(failClosed bool) Option {
	return func(s *Service) { s.failClosed = failClosed }
}

// WithRetryPolicy overrides the store retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithClock overrides the timestamp source for new entries.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a suppression service backed by the given repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		policy: retry.DefaultPolicy(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailClosed reports the configured lookup-error policy.
func (s *Service) FailClosed() bool { return s.failClosed }

// Normalize lowercases and trims an address.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidEmail)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return nil
}

// IsSuppressed checks whether an email address must be blocked from sending.
func (s *Service) IsSuppressed(ctx context.Context, workspaceID, email string) (domain.SuppressionResult, error) {
	email = Normalize(email)

	var entry *domain.Suppression
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		e, err := s.repo.Get(ctx, workspaceID, email)
		if errors.Is(err, ErrNotFound) {
			return retry.Permanent(err)
		}
		entry = e
		return err
	})
	switch {
	case err == nil:
		return resultFor(entry), nil
	case errors.Is(err, ErrNotFound):
		return domain.SuppressionResult{}, nil
	}
	return s.lookupFailed(workspaceID, err, "email", email)
}

// CheckBulk looks up many addresses at once. The result is keyed by each
// input string exactly as given, so every input has an entry, including
// those that are not suppressed and case variants of the same address.
func (s *Service) CheckBulk(ctx context.Context, workspaceID string, emails []string) (map[string]domain.SuppressionResult, error) {
	out := make(map[string]domain.SuppressionResult, len(emails))
	normalized := make(map[string]string, len(emails))
	unique := make([]string, 0, len(emails))
	seen := make(map[string]bool, len(emails))
	for _, e := range emails {
		n := Normalize(e)
		normalized[e] = n
		out[e] = domain.SuppressionResult{}
		if !seen[n] {
			seen[n] = true
			unique = append(unique, n)
		}
	}
	if len(unique) == 0 {
		return out, nil
	}

	var found map[string]domain.Suppression
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		m, err := s.repo.GetMany(ctx, workspaceID, unique)
		found = m
		return err
	})
	if err != nil {
		if _, ferr := s.lookupFailed(workspaceID, err, "count", len(unique)); ferr != nil {
			return nil, ferr
		}
		return out, nil
	}

	for input, n := range normalized {
		if entry, ok := found[n]; ok {
			out[input] = resultFor(&entry)
		}
	}
	return out, nil
}

// FilterAllowed returns the addresses that are not suppressed, in input order.
func (s *Service) FilterAllowed(ctx context.Context, emails []string, workspaceID string) ([]string, error) {
	results, err := s.CheckBulk(ctx, workspaceID, emails)
	if err != nil {
		return nil, err
	}
	allowed := make([]string, 0, len(emails))
	for _, e := range emails {
		if !results[e].IsSuppressed {
			allowed = append(allowed, e)
		}
	}
	return allowed, nil
}

// AddOptions carries the optional references recorded with a suppression.
type AddOptions struct {
	CampaignID string
	LeadID     string
	Metadata   map[string]any
}

// Add suppresses an address. Re-adding an address overwrites its reason and
// timestamp; it never creates a second entry.
func (s *Service) Add(ctx context.Context, workspaceID, email string, reason domain.SuppressionReason, opts AddOptions) (*domain.Suppression, error) {
	email = Normalize(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if !reason.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReason, reason)
	}

	entry := &domain.Suppression{
		WorkspaceID:  workspaceID,
		Email:        email,
		Reason:       reason,
		SuppressedAt: s.now().UTC(),
		CampaignID:   opts.CampaignID,
		LeadID:       opts.LeadID,
		Metadata:     opts.Metadata,
	}
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		return s.repo.Upsert(ctx, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("add suppression: %w", err)
	}
	logger.Info("address suppressed", "workspace_id", workspaceID, "email", email, "reason", reason)
	return entry, nil
}

// Remove deletes a suppression entry. Returns ErrNotFound if the address is
// not suppressed.
func (s *Service) Remove(ctx context.Context, workspaceID, email string) error {
	email = Normalize(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidEmail)
	}
	if err := s.repo.Remove(ctx, workspaceID, email); err != nil {
		return err
	}
	logger.Info("suppression removed", "workspace_id", workspaceID, "email", email)
	return nil
}

// List returns a page of suppression entries, newest first, and the total
// number of entries matching the filter.
func (s *Service) List(ctx context.Context, workspaceID string, filter ListFilter) ([]domain.Suppression, int, error) {
	if filter.Reason != "" && !filter.Reason.Valid() {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidReason, filter.Reason)
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, workspaceID, filter)
}

// Stats returns aggregate counts grouped by reason.
type Stats struct {
	Total    int            `json:"total"`
	ByReason map[string]int `json:"by_reason"`
}

// GetStats computes suppression statistics for the dashboard.
func (s *Service) GetStats(ctx context.Context, workspaceID string) (*Stats, error) {
	counts, err := s.repo.CountByReason(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	stats := &Stats{ByReason: make(map[string]int, len(counts))}
	for reason, n := range counts {
		stats.ByReason[string(reason)] = n
		stats.Total += n
	}
	return stats, nil
}

// AllEmails returns every suppressed address for the workspace. Used by the
// snapshot exporter.
func (s *Service) AllEmails(ctx context.Context, workspaceID string) ([]string, error) {
	return s.repo.AllEmails(ctx, workspaceID)
}

func (s *Service) lookupFailed(workspaceID string, err error, kv ...interface{}) (domain.SuppressionResult, error) {
	if s.failClosed {
		return domain.SuppressionResult{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	fields := append([]interface{}{"workspace_id", workspaceID, "error", err, "policy", "fail_open"}, kv...)
	logger.Warn("suppression lookup failed; treating as not suppressed", fields...)
	return domain.SuppressionResult{}, nil
}

func resultFor(e *domain.Suppression) domain.SuppressionResult {
	if e == nil {
		return domain.SuppressionResult{}
	}
	at := e.SuppressedAt
	return domain.SuppressionResult{IsSuppressed: true, Reason: e.Reason, SuppressedAt: &at}
}
