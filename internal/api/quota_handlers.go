package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/send-governor/internal/pkg/httputil"
)

type limitRequest struct {
	Limit int `json:"limit"`
}

type registerCampaignRequest struct {
	Name string `json:"name"`
}

// WorkspaceQuota returns the workspace dashboard rollup.
//
//	GET /api/v1/workspaces/{workspaceID}/quota
func (h *Handlers) WorkspaceQuota(w http.ResponseWriter, r *http.Request) {
	stats, err := h.quota.GetWorkspaceSendStats(r.Context(), chi.URLParam(r, "workspaceID"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, stats)
}

// UpdateWorkspaceLimit sets the workspace daily ceiling.
//
//	PUT /api/v1/workspaces/{workspaceID}/quota/limit
func (h *Handlers) UpdateWorkspaceLimit(w http.ResponseWriter, r *http.Request) {
	var req limitRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if err := h.quota.UpdateWorkspaceDailyLimit(r.Context(), chi.URLParam(r, "workspaceID"), req.Limit); err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]int{"limit": req.Limit})
}

// CampaignQuota reports both ceilings for a campaign without consuming.
//
//	GET /api/v1/workspaces/{workspaceID}/campaigns/{campaignID}/quota
func (h *Handlers) CampaignQuota(w http.ResponseWriter, r *http.Request) {
	status, err := h.quota.CheckSendLimits(r.Context(), chi.URLParam(r, "campaignID"), chi.URLParam(r, "workspaceID"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, status)
}

// UpdateCampaignLimit sets a campaign's daily ceiling.
//
//	PUT /api/v1/workspaces/{workspaceID}/campaigns/{campaignID}/quota/limit
func (h *Handlers) UpdateCampaignLimit(w http.ResponseWriter, r *http.Request) {
	var req limitRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	err := h.quota.UpdateCampaignDailyLimit(r.Context(), chi.URLParam(r, "campaignID"), chi.URLParam(r, "workspaceID"), req.Limit)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]int{"limit": req.Limit})
}

// RegisterCampaign records a campaign's display name for the rollup.
//
//	PUT /api/v1/workspaces/{workspaceID}/campaigns/{campaignID}
func (h *Handlers) RegisterCampaign(w http.ResponseWriter, r *http.Request) {
	var req registerCampaignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if err := h.quota.RegisterCampaign(r.Context(), chi.URLParam(r, "campaignID"), chi.URLParam(r, "workspaceID"), req.Name); err != nil {
		respondError(w, err)
		return
	}
	httputil.NoContent(w)
}
