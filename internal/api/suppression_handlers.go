package api

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/send-governor/internal/domain"
	"github.com/ignite/send-governor/internal/pkg/httputil"
	"github.com/ignite/send-governor/internal/service/suppression"
)

type addSuppressionRequest struct {
	Email      string                   `json:"email"`
	Reason     domain.SuppressionReason `json:"reason"`
	CampaignID string                   `json:"campaign_id"`
	LeadID     string                   `json:"lead_id"`
	Metadata   map[string]any           `json:"metadata"`
}

type checkSuppressionRequest struct {
	Emails []string `json:"emails"`
}

func emailParam(r *http.Request) string {
	raw := chi.URLParam(r, "email")
	if e, err := url.PathUnescape(raw); err == nil {
		return e
	}
	return raw
}

// ListSuppressions returns a page of entries, newest first.
//
//	GET /api/v1/workspaces/{workspaceID}/suppressions?reason=&page=&limit=
func (h *Handlers) ListSuppressions(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, 50, 500)
	entries, total, err := h.suppression.List(r.Context(), chi.URLParam(r, "workspaceID"), suppression.ListFilter{
		Reason: domain.SuppressionReason(r.URL.Query().Get("reason")),
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.Suppression{}
	}
	httputil.OK(w, NewPaginatedResponse(entries, p, total))
}

// AddSuppression suppresses an address, overwriting any previous entry.
//
//	POST /api/v1/workspaces/{workspaceID}/suppressions
func (h *Handlers) AddSuppression(w http.ResponseWriter, r *http.Request) {
	var req addSuppressionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	entry, err := h.suppression.Add(r.Context(), chi.URLParam(r, "workspaceID"), req.Email, req.Reason, suppression.AddOptions{
		CampaignID: req.CampaignID,
		LeadID:     req.LeadID,
		Metadata:   req.Metadata,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, entry)
}

// GetSuppression reports whether one address is suppressed.
//
//	GET /api/v1/workspaces/{workspaceID}/suppressions/{email}
func (h *Handlers) GetSuppression(w http.ResponseWriter, r *http.Request) {
	res, err := h.suppression.IsSuppressed(r.Context(), chi.URLParam(r, "workspaceID"), emailParam(r))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, res)
}

// RemoveSuppression deletes an entry so the address may be mailed again.
//
//	DELETE /api/v1/workspaces/{workspaceID}/suppressions/{email}
func (h *Handlers) RemoveSuppression(w http.ResponseWriter, r *http.Request) {
	if err := h.suppression.Remove(r.Context(), chi.URLParam(r, "workspaceID"), emailParam(r)); err != nil {
		respondError(w, err)
		return
	}
	httputil.NoContent(w)
}

// CheckSuppressions looks up many addresses at once.
//
//	POST /api/v1/workspaces/{workspaceID}/suppressions/check
func (h *Handlers) CheckSuppressions(w http.ResponseWriter, r *http.Request) {
	var req checkSuppressionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	ws := chi.URLParam(r, "workspaceID")
	results, err := h.suppression.CheckBulk(r.Context(), ws, req.Emails)
	if err != nil {
		respondError(w, err)
		return
	}
	allowed := make([]string, 0, len(req.Emails))
	for _, e := range req.Emails {
		if !results[e].IsSuppressed {
			allowed = append(allowed, e)
		}
	}
	httputil.OK(w, map[string]any{
		"results": results,
		"allowed": allowed,
	})
}

// SuppressionStats returns counts by reason.
//
//	GET /api/v1/workspaces/{workspaceID}/suppressions/stats
func (h *Handlers) SuppressionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.suppression.GetStats(r.Context(), chi.URLParam(r, "workspaceID"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, stats)
}
