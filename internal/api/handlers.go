// Package api exposes the governance services over a JSON admin API.
// Handlers only decode, delegate and encode; every rule lives in the
// service packages.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ignite/send-governor/internal/domain"
	"github.com/ignite/send-governor/internal/pkg/httputil"
	"github.com/ignite/send-governor/internal/service/decision"
	"github.com/ignite/send-governor/internal/service/experiment"
	"github.com/ignite/send-governor/internal/service/quota"
	"github.com/ignite/send-governor/internal/service/suppression"
)

// Handlers contains the HTTP handlers for the admin API.
type Handlers struct {
	suppression *suppression.Service
	quota       *quota.Service
	experiments *experiment.Service
	decisions   *decision.Service
	health      *HealthChecker
}

// NewHandlers creates the handler set. health may be nil, in which case
// /health only reports liveness.
func NewHandlers(s *suppression.Service, q *quota.Service, e *experiment.Service, d *decision.Service, health *HealthChecker) *Handlers {
	return &Handlers{suppression: s, quota: q, experiments: e, decisions: d, health: health}
}

// respondError maps a service error onto a status code. Validation,
// not-found and conflict messages are safe to return; anything else is
// logged and replaced by a generic message.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, domain.ErrConflict):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, quota.ErrQuotaUnavailable), errors.Is(err, suppression.ErrLookupFailed):
		httputil.Error(w, http.StatusServiceUnavailable, "unavailable", "Service temporarily unavailable")
	default:
		httputil.InternalError(w, err)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}
