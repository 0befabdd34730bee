package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/send-governor/internal/config"
	"github.com/ignite/send-governor/internal/domain"
	"github.com/ignite/send-governor/internal/repository/memory"
	"github.com/ignite/send-governor/internal/service/decision"
	"github.com/ignite/send-governor/internal/service/experiment"
	"github.com/ignite/send-governor/internal/service/quota"
	"github.com/ignite/send-governor/internal/service/suppression"
)

func setupTestServer(t *testing.T) http.Handler {
	t.Helper()
	now := func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	supp := suppression.NewService(memory.NewSuppressionRepo(), suppression.WithClock(now))
	q := quota.NewService(memory.NewQuotaStore(quota.DefaultLimits()), quota.NewServiceDay(time.UTC, now))
	es := memory.NewExperimentStore()
	exp := experiment.NewService(es, es, es, es, experiment.WithClock(now))
	h := NewHandlers(supp, q, exp, decision.NewService(supp, q, exp), nil)
	return NewServer(config.ServerConfig{Port: 0}, h, []string{"http://localhost:5173"}).Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	w := do(t, setupTestServer(t), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestSuppressionEndpoints(t *testing.T) {
	h := setupTestServer(t)
	base := "/api/v1/workspaces/w1/suppressions"

	w := do(t, h, http.MethodPost, base, map[string]any{"email": "Foo@Example.com", "reason": "complaint"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	entry := decode[domain.Suppression](t, w)
	assert.Equal(t, "foo@example.com", entry.Email)

	w = do(t, h, http.MethodGet, base+"/foo@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[domain.SuppressionResult](t, w).IsSuppressed)

	w = do(t, h, http.MethodPost, base+"/check", map[string]any{"emails": []string{"ok@example.com", "FOO@example.com"}})
	require.Equal(t, http.StatusOK, w.Code)
	check := decode[struct {
		Results map[string]domain.SuppressionResult `json:"results"`
		Allowed []string                            `json:"allowed"`
	}](t, w)
	assert.Equal(t, []string{"ok@example.com"}, check.Allowed)
	assert.Len(t, check.Results, 2)

	w = do(t, h, http.MethodGet, base+"?reason=complaint", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[struct {
		Data       []domain.Suppression `json:"data"`
		Pagination PaginationMeta       `json:"pagination"`
	}](t, w)
	assert.Len(t, page.Data, 1)
	assert.Equal(t, 1, page.Pagination.Total)

	w = do(t, h, http.MethodGet, base+"/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"complaint":1`)

	w = do(t, h, http.MethodDelete, base+"/foo@example.com", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, h, http.MethodDelete, base+"/foo@example.com", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSuppressionValidation(t *testing.T) {
	h := setupTestServer(t)

	w := do(t, h, http.MethodPost, "/api/v1/workspaces/w1/suppressions", map[string]any{"email": "not-an-email", "reason": "manual"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, h, http.MethodPost, "/api/v1/workspaces/w1/suppressions", map[string]any{"email": "a@example.com", "reason": "bored"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workspaces/w1/suppressions", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuotaEndpoints(t *testing.T) {
	h := setupTestServer(t)

	w := do(t, h, http.MethodPut, "/api/v1/workspaces/w1/campaigns/c1/quota/limit", map[string]int{"limit": 501})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPut, "/api/v1/workspaces/w1/campaigns/c1/quota/limit", map[string]int{"limit": 1})
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, h, http.MethodPut, "/api/v1/workspaces/w1/campaigns/c1", map[string]string{"name": "Spring"})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/workspaces/w1/campaigns/c1/quota", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[domain.SendLimitsStatus](t, w)
	assert.Equal(t, 1, status.CampaignLimit)
	assert.True(t, status.CanSend)

	w = do(t, h, http.MethodPost, "/api/v1/decisions", decision.Request{WorkspaceID: "w1", CampaignID: "c1", Email: "a@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[decision.Decision](t, w).Accepted)

	w = do(t, h, http.MethodPost, "/api/v1/decisions", decision.Request{WorkspaceID: "w1", CampaignID: "c1", Email: "b@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	d := decode[decision.Decision](t, w)
	assert.False(t, d.Accepted)
	assert.Equal(t, decision.ReasonCampaignLimit, d.Reason)

	w = do(t, h, http.MethodGet, "/api/v1/workspaces/w1/quota", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[domain.WorkspaceSendStats](t, w)
	require.Len(t, stats.Campaigns, 1)
	assert.Equal(t, "Spring", stats.Campaigns[0].Name)
	assert.Equal(t, 1, stats.Campaigns[0].Sent)
}

func TestVariantAndExperimentFlow(t *testing.T) {
	h := setupTestServer(t)

	w := do(t, h, http.MethodPost, "/api/v1/campaigns/c1/variants", map[string]any{
		"workspace_id": "w1", "name": "A", "variant_key": "a", "is_control": true, "weight": 60,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	a := decode[domain.Variant](t, w)

	w = do(t, h, http.MethodPost, "/api/v1/campaigns/c1/variants", map[string]any{
		"workspace_id": "w1", "name": "B", "variant_key": "b", "weight": 50,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/campaigns/c1/variants", map[string]any{
		"workspace_id": "w1", "name": "B", "variant_key": "b", "weight": 40,
		"subject_template": "{% if x %}unterminated",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/campaigns/c1/variants", map[string]any{
		"workspace_id": "w1", "name": "B", "variant_key": "b", "weight": 40,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	b := decode[domain.Variant](t, w)

	w = do(t, h, http.MethodPost, "/api/v1/campaigns/c1/variants", map[string]any{
		"workspace_id": "w1", "name": "C", "variant_key": "c", "is_control": true, "weight": 0,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodPut, "/api/v1/campaigns/c1/variants/weights", map[string]any{
		"weights": []domain.WeightUpdate{{VariantID: a.ID, Weight: 50}, {VariantID: b.ID, Weight: 40}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/campaigns/c1/assignments", map[string]string{"campaign_lead_id": "l1"})
	require.Equal(t, http.StatusOK, w.Code)
	first := decode[struct {
		Variant *domain.Variant `json:"variant"`
	}](t, w)
	require.NotNil(t, first.Variant)

	w = do(t, h, http.MethodPost, "/api/v1/experiments", map[string]any{
		"workspace_id": "w1", "campaign_id": "c1", "name": "Subject test",
		"test_type": "subject", "success_metric": "open_rate",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	exp := decode[domain.Experiment](t, w)
	assert.Equal(t, domain.ExperimentDraft, exp.Status)

	w = do(t, h, http.MethodPost, "/api/v1/experiments/"+exp.ID+"/pause", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/experiments/"+exp.ID+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.ExperimentRunning, decode[domain.Experiment](t, w).Status)

	w = do(t, h, http.MethodGet, "/api/v1/experiments/"+exp.ID+"/results", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.ResultInsufficientData, decode[domain.ExperimentResult](t, w).Status)

	w = do(t, h, http.MethodPost, "/api/v1/experiments/"+exp.ID+"/end", map[string]string{"winner_variant_id": b.ID})
	require.Equal(t, http.StatusOK, w.Code)
	ended := decode[domain.Experiment](t, w)
	assert.Equal(t, domain.ExperimentCompleted, ended.Status)
	require.NotNil(t, ended.WinnerVariantID)
	assert.Equal(t, b.ID, *ended.WinnerVariantID)

	w = do(t, h, http.MethodPost, "/api/v1/campaigns/c1/variants/apply-winner", map[string]string{"variant_id": b.ID})
	require.Equal(t, http.StatusOK, w.Code)
	variants := decode[[]domain.Variant](t, w)
	require.Len(t, variants, 2)
	assert.Equal(t, 0, variants[0].Weight)
	assert.Equal(t, domain.VariantPaused, variants[0].Status)
	assert.Equal(t, 100, variants[1].Weight)
}

func TestExperimentNotFound(t *testing.T) {
	h := setupTestServer(t)

	w := do(t, h, http.MethodGet, "/api/v1/experiments/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, h, http.MethodGet, "/api/v1/experiments/missing/results", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDecideBatchEndpoint(t *testing.T) {
	h := setupTestServer(t)
	do(t, h, http.MethodPost, "/api/v1/workspaces/w1/suppressions", map[string]any{"email": "b@example.com", "reason": "hard_bounce"})

	w := do(t, h, http.MethodPost, "/api/v1/decisions/batch", map[string]any{
		"workspace_id": "w1",
		"campaign_id":  "c1",
		"recipients":   []decision.Recipient{{Email: "a@example.com"}, {Email: "b@example.com"}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	out := decode[struct {
		Decisions []decision.Decision `json:"decisions"`
		Accepted  int                 `json:"accepted"`
		Blocked   int                 `json:"blocked"`
	}](t, w)
	assert.Equal(t, 1, out.Accepted)
	assert.Equal(t, 1, out.Blocked)
	assert.Equal(t, decision.ReasonSuppressed, out.Decisions[1].Reason)

	w = do(t, h, http.MethodPost, "/api/v1/decisions/batch", map[string]any{"workspace_id": "w1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRespondError(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{experiment.ErrInvalidWeights, http.StatusBadRequest},
		{experiment.ErrVariantNotFound, http.StatusNotFound},
		{experiment.ErrInvalidTransition, http.StatusConflict},
		{quota.ErrQuotaUnavailable, http.StatusServiceUnavailable},
		{errors.New("pq: connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		respondError(w, tc.err)
		assert.Equal(t, tc.code, w.Code, tc.err.Error())
	}

	w := httptest.NewRecorder()
	respondError(w, errors.New("pq: relation does not exist"))
	assert.NotContains(t, w.Body.String(), "pq:")
}

type stubBucket struct{ err error }

func (s stubBucket) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, s.err
}

func TestHealthChecker(t *testing.T) {
	hc := NewHealthChecker(nil, nil, false, stubBucket{}, "snapshots")
	w := httptest.NewRecorder()
	hc.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ready":true`)

	hc = NewHealthChecker(nil, nil, false, stubBucket{err: errors.New("forbidden")}, "snapshots")
	w = httptest.NewRecorder()
	hc.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	status := decode[HealthStatus](t, w)
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "down", status.Checks["s3"].Status)
	assert.Equal(t, "not_configured", status.Checks["database"].Status)
}
