package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ignite/send-governor/internal/domain"
	"github.com/ignite/send-governor/internal/service/quota"
)

const dayLayout = "2006-01-02"

// Lua script for the atomic two-counter consume. Both ceilings are checked
// before either counter is written.
const consumeLuaScript = `
local campaignKey = KEYS[1]
local workspaceKey = KEYS[2]
local indexKey = KEYS[3]
local today = ARGV[1]
local campaignDefault = tonumber(ARGV[2])
local workspaceDefault = tonumber(ARGV[3])
local campaignID = ARGV[4]
local workspaceID = ARGV[5]

redis.call("HSETNX", campaignKey, "limit", campaignDefault)
redis.call("HSETNX", campaignKey, "workspace", workspaceID)
redis.call("HSETNX", workspaceKey, "limit", workspaceDefault)
redis.call("SADD", indexKey, campaignID)

local function load(key)
    local v = redis.call("HMGET", key, "limit", "sent", "day")
    local limit = tonumber(v[1])
    local sent = 0
    local day = ""
    if v[2] then sent = tonumber(v[2]) end
    if v[3] then day = v[3] end
    local effective = sent
    if day ~= today then effective = 0 end
    return limit, sent, day, effective
end

local cLimit, cSent, cDay, cEff = load(campaignKey)
local wLimit, wSent, wDay, wEff = load(workspaceKey)

if cEff >= cLimit then
    return {0, 1, cLimit, cSent, cDay, wLimit, wSent, wDay}  -- denied, campaign
end
if wEff >= wLimit then
    return {0, 2, cLimit, cSent, cDay, wLimit, wSent, wDay}  -- denied, workspace
end

redis.call("HSET", campaignKey, "sent", cEff + 1, "day", today)
redis.call("HSET", workspaceKey, "sent", wEff + 1, "day", today)

return {1, 0, cLimit, cEff + 1, today, wLimit, wEff + 1, today}
`

// QuotaStore implements quota.Store on Redis.
type QuotaStore struct {
	client        *goredis.Client
	defaults      quota.Limits
	consumeScript *goredis.Script
}

// NewQuotaStore creates a Redis-backed quota store.
func NewQuotaStore(client *goredis.Client, defaults quota.Limits) *QuotaStore {
	return &QuotaStore{
		client:        client,
		defaults:      defaults,
		consumeScript: goredis.NewScript(consumeLuaScript),
	}
}

func campaignKey(workspaceID, campaignID string) string {
	return fmt.Sprintf("governor:quota:{%s}:campaign:%s", workspaceID, campaignID)
}

func workspaceKey(workspaceID string) string {
	return fmt.Sprintf("governor:quota:{%s}:workspace", workspaceID)
}

func indexKey(workspaceID string) string {
	return fmt.Sprintf("governor:quota:{%s}:campaigns", workspaceID)
}

func (s *QuotaStore) TryConsume(ctx context.Context, campaignID, workspaceID string, today time.Time) (quota.ConsumeResult, error) {
	var res quota.ConsumeResult
	out, err := s.consumeScript.Run(ctx, s.client,
		[]string{campaignKey(workspaceID, campaignID), workspaceKey(workspaceID), indexKey(workspaceID)},
		today.Format(dayLayout),
		s.defaults.Campaign,
		s.defaults.Workspace,
		campaignID,
		workspaceID,
	).Slice()
	if err != nil {
		return res, fmt.Errorf("quota consume script: %w", err)
	}
	if len(out) != 8 {
		return res, fmt.Errorf("quota consume script: unexpected reply length %d", len(out))
	}

	res.Allowed = toInt(out[0]) == 1
	switch toInt(out[1]) {
	case 1:
		res.Blocked = domain.ScopeCampaign
	case 2:
		res.Blocked = domain.ScopeWorkspace
	}
	res.Campaign = domain.QuotaCounter{
		Scope: domain.ScopeCampaign, ID: campaignID,
		Limit: toInt(out[2]), SentCount: toInt(out[3]), LastResetDate: parseDay(out[4]),
	}
	res.Workspace = domain.QuotaCounter{
		Scope: domain.ScopeWorkspace, ID: workspaceID,
		Limit: toInt(out[5]), SentCount: toInt(out[6]), LastResetDate: parseDay(out[7]),
	}
	return res, nil
}

func (s *QuotaStore) Load(ctx context.Context, campaignID, workspaceID string) (domain.QuotaCounter, domain.QuotaCounter, error) {
	pipe := s.client.Pipeline()
	cCmd := pipe.HMGet(ctx, campaignKey(workspaceID, campaignID), "limit", "sent", "day", "name")
	wCmd := pipe.HMGet(ctx, workspaceKey(workspaceID), "limit", "sent", "day")
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.QuotaCounter{}, domain.QuotaCounter{}, fmt.Errorf("load quota counters: %w", err)
	}
	c := counterFrom(domain.ScopeCampaign, campaignID, s.defaults.Campaign, cCmd.Val())
	w := counterFrom(domain.ScopeWorkspace, workspaceID, s.defaults.Workspace, wCmd.Val())
	return c, w, nil
}

func (s *QuotaStore) SetCampaignLimit(ctx context.Context, campaignID, workspaceID string, limit int) error {
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, campaignKey(workspaceID, campaignID), "limit", limit, "workspace", workspaceID)
		pipe.SAdd(ctx, indexKey(workspaceID), campaignID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set campaign limit: %w", err)
	}
	return nil
}

func (s *QuotaStore) SetWorkspaceLimit(ctx context.Context, workspaceID string, limit int) error {
	if err := s.client.HSet(ctx, workspaceKey(workspaceID), "limit", limit).Err(); err != nil {
		return fmt.Errorf("set workspace limit: %w", err)
	}
	return nil
}

func (s *QuotaStore) RegisterCampaign(ctx context.Context, campaignID, workspaceID, name string) error {
	key := campaignKey(workspaceID, campaignID)
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "limit", s.defaults.Campaign)
		pipe.HSet(ctx, key, "name", name, "workspace", workspaceID)
		pipe.SAdd(ctx, indexKey(workspaceID), campaignID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("register campaign quota: %w", err)
	}
	return nil
}

func (s *QuotaStore) LoadWorkspace(ctx context.Context, workspaceID string) (domain.QuotaCounter, []domain.QuotaCounter, error) {
	ids, err := s.client.SMembers(ctx, indexKey(workspaceID)).Result()
	if err != nil {
		return domain.QuotaCounter{}, nil, fmt.Errorf("list campaign quotas: %w", err)
	}
	sort.Strings(ids)

	pipe := s.client.Pipeline()
	wCmd := pipe.HMGet(ctx, workspaceKey(workspaceID), "limit", "sent", "day")
	cCmds := make([]*goredis.SliceCmd, len(ids))
	for i, id := range ids {
		cCmds[i] = pipe.HMGet(ctx, campaignKey(workspaceID, id), "limit", "sent", "day", "name")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.QuotaCounter{}, nil, fmt.Errorf("load workspace quotas: %w", err)
	}

	w := counterFrom(domain.ScopeWorkspace, workspaceID, s.defaults.Workspace, wCmd.Val())
	campaigns := make([]domain.QuotaCounter, 0, len(ids))
	for i, id := range ids {
		campaigns = append(campaigns, counterFrom(domain.ScopeCampaign, id, s.defaults.Campaign, cCmds[i].Val()))
	}
	return w, campaigns, nil
}

// counterFrom builds a counter from an HMGET reply of limit, sent, day and
// optionally name. Missing fields fall back to defaults.
func counterFrom(scope domain.QuotaScope, id string, defaultLimit int, vals []interface{}) domain.QuotaCounter {
	c := domain.QuotaCounter{Scope: scope, ID: id, Limit: defaultLimit}
	if len(vals) > 0 && vals[0] != nil {
		c.Limit = toInt(vals[0])
	}
	if len(vals) > 1 && vals[1] != nil {
		c.SentCount = toInt(vals[1])
	}
	if len(vals) > 2 {
		c.LastResetDate = parseDay(vals[2])
	}
	if len(vals) > 3 {
		if name, ok := vals[3].(string); ok {
			c.Name = name
		}
	}
	return c
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}

func parseDay(v interface{}) time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}
	}
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
