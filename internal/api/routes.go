package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/send-governor/internal/pkg/httputil"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	if h.health != nil {
		r.Get("/health", h.health.HandleHealth)
		r.Get("/health/ready", h.health.HandleReadiness)
	} else {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			httputil.OK(w, map[string]string{"status": "healthy"})
		})
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/workspaces/{workspaceID}", func(r chi.Router) {
			r.Route("/suppressions", func(r chi.Router) {
				r.Get("/", h.ListSuppressions)
				r.Post("/", h.AddSuppression)
				r.Get("/stats", h.SuppressionStats)
				r.Post("/check", h.CheckSuppressions)
				r.Get("/{email}", h.GetSuppression)
				r.Delete("/{email}", h.RemoveSuppression)
			})

			r.Get("/quota", h.WorkspaceQuota)
			r.Put("/quota/limit", h.UpdateWorkspaceLimit)

			r.Route("/campaigns/{campaignID}", func(r chi.Router) {
				r.Put("/", h.RegisterCampaign)
				r.Get("/quota", h.CampaignQuota)
				r.Put("/quota/limit", h.UpdateCampaignLimit)
			})
		})

		r.Route("/campaigns/{campaignID}", func(r chi.Router) {
			r.Get("/variants", h.ListVariants)
			r.Post("/variants", h.CreateVariant)
			r.Put("/variants/weights", h.UpdateVariantWeights)
			r.Post("/variants/apply-winner", h.ApplyWinner)
			r.Post("/assignments", h.AssignVariant)
		})
		r.Put("/variants/{variantID}/status", h.SetVariantStatus)

		r.Route("/experiments", func(r chi.Router) {
			r.Post("/", h.CreateExperiment)
			r.Route("/{experimentID}", func(r chi.Router) {
				r.Get("/", h.GetExperiment)
				r.Get("/results", h.ExperimentResults)
				r.Post("/start", h.experimentAction(h.experiments.StartExperiment))
				r.Post("/pause", h.experimentAction(h.experiments.PauseExperiment))
				r.Post("/resume", h.experimentAction(h.experiments.ResumeExperiment))
				r.Post("/cancel", h.experimentAction(h.experiments.CancelExperiment))
				r.Post("/end", h.EndExperiment)
			})
		})

		r.Post("/decisions", h.Decide)
		r.Post("/decisions/batch", h.DecideBatch)
	})

	return r
}
