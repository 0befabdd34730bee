package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/send-governor/internal/domain"
	"github.com/ignite/send-governor/internal/pkg/httputil"
	"github.com/ignite/send-governor/internal/service/experiment"
)

type createVariantRequest struct {
	WorkspaceID string `json:"workspace_id"`
	experiment.VariantInput
}

type weightsRequest struct {
	Weights []domain.WeightUpdate `json:"weights"`
}

type winnerRequest struct {
	VariantID string `json:"variant_id"`
}

type variantStatusRequest struct {
	Status domain.VariantStatus `json:"status"`
}

type assignRequest struct {
	CampaignLeadID string `json:"campaign_lead_id"`
}

type endExperimentRequest struct {
	WinnerVariantID string `json:"winner_variant_id"`
}

// ListVariants returns a campaign's variants in creation order.
//
//	GET /api/v1/campaigns/{campaignID}/variants
func (h *Handlers) ListVariants(w http.ResponseWriter, r *http.Request) {
	variants, err := h.experiments.GetVariants(r.Context(), chi.URLParam(r, "campaignID"))
	if err != nil {
		respondError(w, err)
		return
	}
	if variants == nil {
		variants = []domain.Variant{}
	}
	httputil.OK(w, variants)
}

// CreateVariant adds a variant to a campaign.
//
//	POST /api/v1/campaigns/{campaignID}/variants
func (h *Handlers) CreateVariant(w http.ResponseWriter, r *http.Request) {
	var req createVariantRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	v, err := h.experiments.CreateVariant(r.Context(), chi.URLParam(r, "campaignID"), req.WorkspaceID, req.VariantInput)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, v)
}

// UpdateVariantWeights rebalances weights; they must sum to 100.
//
//	PUT /api/v1/campaigns/{campaignID}/variants/weights
func (h *Handlers) UpdateVariantWeights(w http.ResponseWriter, r *http.Request) {
	var req weightsRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	campaignID := chi.URLParam(r, "campaignID")
	if err := h.experiments.UpdateVariantWeights(r.Context(), campaignID, req.Weights); err != nil {
		respondError(w, err)
		return
	}
	h.writeVariants(r.Context(), w, campaignID)
}

// ApplyWinner sends all future traffic to one variant.
//
//	POST /api/v1/campaigns/{campaignID}/variants/apply-winner
func (h *Handlers) ApplyWinner(w http.ResponseWriter, r *http.Request) {
	var req winnerRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	campaignID := chi.URLParam(r, "campaignID")
	if err := h.experiments.ApplyWinner(r.Context(), campaignID, req.VariantID); err != nil {
		respondError(w, err)
		return
	}
	h.writeVariants(r.Context(), w, campaignID)
}

func (h *Handlers) writeVariants(ctx context.Context, w http.ResponseWriter, campaignID string) {
	variants, err := h.experiments.GetVariants(ctx, campaignID)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, variants)
}

// SetVariantStatus pauses, archives or reactivates a variant.
//
//	PUT /api/v1/variants/{variantID}/status
func (h *Handlers) SetVariantStatus(w http.ResponseWriter, r *http.Request) {
	var req variantStatusRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	v, err := h.experiments.SetVariantStatus(r.Context(), chi.URLParam(r, "variantID"), req.Status)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, v)
}

// AssignVariant returns the sticky variant for a campaign lead.
//
//	POST /api/v1/campaigns/{campaignID}/assignments
func (h *Handlers) AssignVariant(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	v, err := h.experiments.AssignVariant(r.Context(), req.CampaignLeadID, chi.URLParam(r, "campaignID"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"variant": v})
}

// CreateExperiment creates a draft experiment.
//
//	POST /api/v1/experiments
func (h *Handlers) CreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req experiment.ExperimentInput
	if !httputil.Decode(w, r, &req) {
		return
	}
	e, err := h.experiments.CreateExperiment(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, e)
}

// GetExperiment returns one experiment.
//
//	GET /api/v1/experiments/{experimentID}
func (h *Handlers) GetExperiment(w http.ResponseWriter, r *http.Request) {
	e, err := h.experiments.GetExperiment(r.Context(), chi.URLParam(r, "experimentID"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, e)
}

// ExperimentResults runs the significance analysis.
//
//	GET /api/v1/experiments/{experimentID}/results
func (h *Handlers) ExperimentResults(w http.ResponseWriter, r *http.Request) {
	res, err := h.experiments.GetExperimentResults(r.Context(), chi.URLParam(r, "experimentID"))
	if err != nil {
		respondError(w, err)
		return
	}
	if res == nil {
		httputil.NotFound(w, experiment.ErrExperimentNotFound.Error())
		return
	}
	httputil.OK(w, res)
}

// experimentAction adapts a lifecycle operation to a handler.
func (h *Handlers) experimentAction(op func(context.Context, string) (*domain.Experiment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := op(r.Context(), chi.URLParam(r, "experimentID"))
		if err != nil {
			respondError(w, err)
			return
		}
		httputil.OK(w, e)
	}
}

// EndExperiment completes an experiment. An empty body lets the analysis
// pick the winner.
//
//	POST /api/v1/experiments/{experimentID}/end
func (h *Handlers) EndExperiment(w http.ResponseWriter, r *http.Request) {
	var req endExperimentRequest
	if r.ContentLength != 0 && !httputil.Decode(w, r, &req) {
		return
	}
	e, err := h.experiments.EndExperiment(r.Context(), chi.URLParam(r, "experimentID"), req.WinnerVariantID)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, e)
}
