package quota_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/send-governor/internal/domain"
	"github.com/ignite/send-governor/internal/pkg/retry"
	"github.com/ignite/send-governor/internal/repository/memory"
	"github.com/ignite/send-governor/internal/service/quota"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T, store quota.Store) (*quota.Service, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)}
	day := quota.NewServiceDay(time.UTC, clock.Now)
	return quota.NewService(store, day, quota.WithRetryPolicy(retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond})), clock
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCheckSendLimits_Fresh(t *testing.T) {
	svc, _ := newTestService(t, memory.NewQuotaStore(quota.DefaultLimits()))

	status, err := svc.CheckSendLimits(context.Background(), "c1", "w1")
	require.NoError(t, err)
	assert.True(t, status.CanSend)
	assert.Equal(t, 50, status.CampaignLimit)
	assert.Equal(t, 50, status.CampaignRemaining)
	assert.Equal(t, 200, status.WorkspaceLimit)
	assert.Equal(t, 200, status.WorkspaceRemaining)
	assert.Empty(t, status.LimitType)
}

func TestTryConsumeSlot_CampaignLimitReached(t *testing.T) {
	store := memory.NewQuotaStore(quota.DefaultLimits())
	today := date(2026, 3, 10)
	store.Seed(domain.ScopeCampaign, "c1", "w1", 50, 49, today)
	store.Seed(domain.ScopeWorkspace, "w1", "", 200, 199, today)
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	status, err := svc.CheckSendLimits(ctx, "c1", "w1")
	require.NoError(t, err)
	assert.True(t, status.CanSend)

	require.NoError(t, svc.IncrementSendCount(ctx, "c1", "w1"))

	status, err = svc.CheckSendLimits(ctx, "c1", "w1")
	require.NoError(t, err)
	assert.False(t, status.CanSend)
	assert.True(t, status.LimitReached)
	assert.Equal(t, domain.ScopeCampaign, status.LimitType)
	assert.Equal(t, 50, status.CampaignSent)
	assert.Equal(t, 200, status.WorkspaceSent)

	err = svc.IncrementSendCount(ctx, "c1", "w1")
	assert.ErrorIs(t, err, quota.ErrQuotaExceeded)
}

func TestTryConsumeSlot_WorkspaceLimitReached(t *testing.T) {
	store := memory.NewQuotaStore(quota.DefaultLimits())
	today := date(2026, 3, 10)
	store.Seed(domain.ScopeWorkspace, "w1", "", 200, 200, today)
	svc, _ := newTestService(t, store)

	ok, status, err := svc.TryConsumeSlot(context.Background(), "c1", "w1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, domain.ScopeWorkspace, status.LimitType)
	assert.Equal(t, 0, status.CampaignSent)
}

func TestTryConsumeSlot_ConcurrentNeverExceedsLimit(t *testing.T) {
	store := memory.NewQuotaStore(quota.DefaultLimits())
	svc, _ := newTestService(t, store)
	ctx := context.Background()
	require.NoError(t, svc.UpdateCampaignDailyLimit(ctx, "c1", "w1", 10))

	const callers = 40
	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := svc.TryConsumeSlot(ctx, "c1", "w1")
			if err == nil && ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), granted.Load())
	status, err := svc.CheckSendLimits(ctx, "c1", "w1")
	require.NoError(t, err)
	assert.Equal(t, 10, status.CampaignSent)
	assert.Equal(t, 10, status.WorkspaceSent)
}

func TestDayRollover_ResetsCounters(t *testing.T) {
	store := memory.NewQuotaStore(quota.DefaultLimits())
	store.Seed(domain.ScopeCampaign, "c1", "w1", 50, 50, date(2026, 3, 9))
	store.Seed(domain.ScopeWorkspace, "w1", "", 200, 120, date(2026, 3, 9))
	svc, clock := newTestService(t, store)
	ctx := context.Background()

	status, err := svc.CheckSendLimits(ctx, "c1", "w1")
	require.NoError(t, err)
	assert.True(t, status.CanSend)
	assert.Equal(t, 0, status.CampaignSent)
	assert.Equal(t, 0, status.WorkspaceSent)

	ok, status, err := svc.TryConsumeSlot(ctx, "c1", "w1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, status.CampaignSent)
	assert.Equal(t, 1, status.WorkspaceSent)

	clock.Advance(24 * time.Hour)
	status, err = svc.CheckSendLimits(ctx, "c1", "w1")
	require.NoError(t, err)
	assert.Equal(t, 0, status.CampaignSent)
}

func TestServiceDay_UsesConfiguredZone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// 02:00 UTC on the 11th is still the 10th in New York.
	day := quota.NewServiceDay(loc, func() time.Time { return time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC) })
	assert.Equal(t, date(2026, 3, 10), day.Today())
}

func TestUpdateLimits_Bounds(t *testing.T) {
	svc, _ := newTestService(t, memory.NewQuotaStore(quota.DefaultLimits()))
	ctx := context.Background()

	tests := []struct {
		name    string
		update  func() error
		wantErr bool
	}{
		{"campaign min", func() error { return svc.UpdateCampaignDailyLimit(ctx, "c1", "w1", 1) }, false},
		{"campaign max", func() error { return svc.UpdateCampaignDailyLimit(ctx, "c1", "w1", 500) }, false},
		{"campaign zero", func() error { return svc.UpdateCampaignDailyLimit(ctx, "c1", "w1", 0) }, true},
		{"campaign over", func() error { return svc.UpdateCampaignDailyLimit(ctx, "c1", "w1", 501) }, true},
		{"workspace min", func() error { return svc.UpdateWorkspaceDailyLimit(ctx, "w1", 1) }, false},
		{"workspace max", func() error { return svc.UpdateWorkspaceDailyLimit(ctx, "w1", 2000) }, false},
		{"workspace over", func() error { return svc.UpdateWorkspaceDailyLimit(ctx, "w1", 2001) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.update()
			if tt.wantErr {
				assert.ErrorIs(t, err, quota.ErrLimitOutOfRange)
				assert.ErrorIs(t, err, domain.ErrValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestUpdateLimit_AppliesToNextCheck(t *testing.T) {
	store := memory.NewQuotaStore(quota.DefaultLimits())
	store.Seed(domain.ScopeCampaign, "c1", "w1", 50, 20, date(2026, 3, 10))
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	require.NoError(t, svc.UpdateCampaignDailyLimit(ctx, "c1", "w1", 20))
	status, err := svc.CheckSendLimits(ctx, "c1", "w1")
	require.NoError(t, err)
	assert.False(t, status.CanSend)
	assert.Equal(t, domain.ScopeCampaign, status.LimitType)
	assert.Equal(t, 0, status.CampaignRemaining)
}

type failingStore struct {
	quota.Store
	calls atomic.Int32
}

func (f *failingStore) Load(context.Context, string, string) (domain.QuotaCounter, domain.QuotaCounter, error) {
	f.calls.Add(1)
	return domain.QuotaCounter{}, domain.QuotaCounter{}, errors.New("connection refused")
}

func (f *failingStore) TryConsume(context.Context, string, string, time.Time) (quota.ConsumeResult, error) {
	f.calls.Add(1)
	return quota.ConsumeResult{}, errors.New("connection refused")
}

func TestStoreFailure_FailsClosed(t *testing.T) {
	store := &failingStore{}
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	status, err := svc.CheckSendLimits(ctx, "c1", "w1")
	assert.Nil(t, status)
	assert.ErrorIs(t, err, quota.ErrQuotaUnavailable)

	ok, _, err := svc.TryConsumeSlot(ctx, "c1", "w1")
	assert.False(t, ok)
	assert.ErrorIs(t, err, quota.ErrQuotaUnavailable)

	err = svc.IncrementSendCount(ctx, "c1", "w1")
	assert.ErrorIs(t, err, quota.ErrQuotaUnavailable)
	// one retry per call
	assert.Equal(t, int32(6), store.calls.Load())
}

func TestGetWorkspaceSendStats(t *testing.T) {
	store := memory.NewQuotaStore(quota.DefaultLimits())
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	require.NoError(t, svc.RegisterCampaign(ctx, "c1", "w1", "Spring outreach"))
	require.NoError(t, svc.RegisterCampaign(ctx, "c2", "w1", "Follow-ups"))
	require.NoError(t, svc.RegisterCampaign(ctx, "c3", "w2", "Other workspace"))
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.IncrementSendCount(ctx, "c1", "w1"))
	}
	require.NoError(t, svc.IncrementSendCount(ctx, "c2", "w1"))

	stats, err := svc.GetWorkspaceSendStats(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 200, stats.GlobalLimit)
	assert.Equal(t, 4, stats.GlobalSent)
	assert.Equal(t, 196, stats.GlobalRemaining)
	require.Len(t, stats.Campaigns, 2)
	assert.Equal(t, "c1", stats.Campaigns[0].ID)
	assert.Equal(t, "Spring outreach", stats.Campaigns[0].Name)
	assert.Equal(t, 3, stats.Campaigns[0].Sent)
	assert.Equal(t, 47, stats.Campaigns[0].Remaining)
	assert.Equal(t, 1, stats.Campaigns[1].Sent)
}

func TestRegisterCampaign_RequiresIDs(t *testing.T) {
	svc, _ := newTestService(t, memory.NewQuotaStore(quota.DefaultLimits()))
	err := svc.RegisterCampaign(context.Background(), "", "w1", "x")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
