package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/send-governor/internal/domain"
	"github.com/ignite/send-governor/internal/service/quota"
)

func setupQuotaStore(t *testing.T, limits quota.Limits) (*QuotaStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewQuotaStore(client, limits), mr
}

var day1 = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func TestQuotaStore_ConsumeUntilCampaignLimit(t *testing.T) {
	store, _ := setupQuotaStore(t, quota.Limits{Campaign: 3, Workspace: 10})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := store.TryConsume(ctx, "c1", "w1", day1)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		assert.Equal(t, i, res.Campaign.SentCount)
		assert.Equal(t, i, res.Workspace.SentCount)
		assert.True(t, res.Campaign.LastResetDate.Equal(day1))
	}

	res, err := store.TryConsume(ctx, "c1", "w1", day1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, domain.ScopeCampaign, res.Blocked)
	assert.Equal(t, 3, res.Campaign.SentCount)
}

func TestQuotaStore_WorkspaceLimitSpansCampaigns(t *testing.T) {
	store, _ := setupQuotaStore(t, quota.Limits{Campaign: 5, Workspace: 2})
	ctx := context.Background()

	res, err := store.TryConsume(ctx, "c1", "w1", day1)
	require.NoError(t, err)
	require.True(t, res.Allowed)
	res, err = store.TryConsume(ctx, "c2", "w1", day1)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = store.TryConsume(ctx, "c3", "w1", day1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, domain.ScopeWorkspace, res.Blocked)
	assert.Equal(t, 0, res.Campaign.SentCount)
}

func TestQuotaStore_NewDayResets(t *testing.T) {
	store, _ := setupQuotaStore(t, quota.Limits{Campaign: 1, Workspace: 10})
	ctx := context.Background()

	res, err := store.TryConsume(ctx, "c1", "w1", day1)
	require.NoError(t, err)
	require.True(t, res.Allowed)
	res, err = store.TryConsume(ctx, "c1", "w1", day1)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	day2 := day1.AddDate(0, 0, 1)
	res, err = store.TryConsume(ctx, "c1", "w1", day2)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Campaign.SentCount)
	assert.Equal(t, 1, res.Workspace.SentCount)
	assert.True(t, res.Workspace.LastResetDate.Equal(day2))
}

func TestQuotaStore_ConcurrentConsume(t *testing.T) {
	store, _ := setupQuotaStore(t, quota.Limits{Campaign: 7, Workspace: 100})
	ctx := context.Background()

	var (
		mu      sync.Mutex
		granted int
		wg      sync.WaitGroup
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := store.TryConsume(ctx, "c1", "w1", day1)
			if err == nil && res.Allowed {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 7, granted)
}

func TestQuotaStore_LimitsAndRollup(t *testing.T) {
	store, mr := setupQuotaStore(t, quota.DefaultLimits())
	ctx := context.Background()

	require.NoError(t, store.RegisterCampaign(ctx, "c2", "w1", "Nurture"))
	require.NoError(t, store.SetCampaignLimit(ctx, "c1", "w1", 120))
	require.NoError(t, store.SetWorkspaceLimit(ctx, "w1", 900))
	_, err := store.TryConsume(ctx, "c1", "w1", day1)
	require.NoError(t, err)

	assert.Equal(t, "120", mr.HGet("governor:quota:{w1}:campaign:c1", "limit"))

	c, w, err := store.Load(ctx, "c1", "w1")
	require.NoError(t, err)
	assert.Equal(t, 120, c.Limit)
	assert.Equal(t, 1, c.SentCount)
	assert.Equal(t, 900, w.Limit)

	w, campaigns, err := store.LoadWorkspace(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 1, w.SentCount)
	require.Len(t, campaigns, 2)
	assert.Equal(t, "c1", campaigns[0].ID)
	assert.Equal(t, "c2", campaigns[1].ID)
	assert.Equal(t, "Nurture", campaigns[1].Name)
	assert.Equal(t, domain.DefaultCampaignDailyLimit, campaigns[1].Limit)
}

func TestQuotaStore_LoadUnknownUsesDefaults(t *testing.T) {
	store, _ := setupQuotaStore(t, quota.DefaultLimits())

	c, w, err := store.Load(context.Background(), "nope", "nowhere")
	require.NoError(t, err)
	assert.Equal(t, 50, c.Limit)
	assert.Equal(t, 200, w.Limit)
	assert.Zero(t, c.SentCount)
	assert.True(t, c.LastResetDate.IsZero())
}

func TestQuotaStore_RedisDown(t *testing.T) {
	store, mr := setupQuotaStore(t, quota.DefaultLimits())
	mr.Close()

	_, err := store.TryConsume(context.Background(), "c1", "w1", day1)
	assert.Error(t, err)
}
