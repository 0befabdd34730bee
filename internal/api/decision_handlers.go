package api

import (
	"net/http"

	"github.com/ignite/send-governor/internal/pkg/httputil"
	"github.com/ignite/send-governor/internal/service/decision"
)

type batchDecisionRequest struct {
	WorkspaceID string               `json:"workspace_id"`
	CampaignID  string               `json:"campaign_id"`
	Recipients  []decision.Recipient `json:"recipients"`
}

// Decide answers whether one recipient may be sent to now. An accepted
// decision has already consumed a quota slot.
//
//	POST /api/v1/decisions
func (h *Handlers) Decide(w http.ResponseWriter, r *http.Request) {
	var req decision.Request
	if !httputil.Decode(w, r, &req) {
		return
	}
	d, err := h.decisions.Decide(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, d)
}

// DecideBatch decides a batch of recipients of one campaign.
//
//	POST /api/v1/decisions/batch
func (h *Handlers) DecideBatch(w http.ResponseWriter, r *http.Request) {
	var req batchDecisionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	out, err := h.decisions.DecideBatch(r.Context(), req.WorkspaceID, req.CampaignID, req.Recipients)
	if err != nil {
		respondError(w, err)
		return
	}
	accepted := 0
	for _, d := range out {
		if d.Accepted {
			accepted++
		}
	}
	httputil.OK(w, map[string]any{
		"decisions": out,
		"accepted":  accepted,
		"blocked":   len(out) - accepted,
	})
}
