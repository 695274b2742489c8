package audit

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/blip0/control-plane/internal/httpserver"
	"github.com/blip0/control-plane/pkg/tenant"
)

// Handler exposes the tenant-scoped read surface over block-state,
// missed-block, and execution/match statistics, plus the operator-facing
// bulk-retry actions (§4.5).
type Handler struct {
	Service *Service
}

// Routes mounts the tenant-scoped audit endpoints onto r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/networks/{networkID}/block-state", h.getBlockState)
	r.Get("/networks/{networkID}/processing-stats", h.getProcessingStats)
	r.Get("/networks/{networkID}/missed-blocks", h.getUnprocessedMissedBlocks)
	r.Post("/missed-blocks/retry", h.bulkRetryMissedBlocks)
	r.Get("/matches", h.getRecentMatches)
	r.Get("/executions/stats", h.getExecutionStats)
	r.Post("/executions/retry", h.bulkRetryExecutions)
}

func tenantFromRequest(r *http.Request) (uuid.UUID, bool) {
	t := tenant.FromContext(r.Context())
	if t == nil {
		return uuid.UUID{}, false
	}
	return t.ID, true
}

func (h *Handler) getBlockState(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "no tenant in request context")
		return
	}
	networkID, err := uuid.Parse(chi.URLParam(r, "networkID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid network id")
		return
	}

	bs, err := h.Service.GetOrCreateBlockState(r.Context(), tenantID, networkID)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, bs)
}

func (h *Handler) getProcessingStats(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "no tenant in request context")
		return
	}
	networkID, err := uuid.Parse(chi.URLParam(r, "networkID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid network id")
		return
	}
	hours, _ := strconv.Atoi(r.URL.Query().Get("hours"))
	if hours <= 0 {
		hours = 24
	}

	stats, err := h.Service.GetProcessingStats(r.Context(), tenantID, networkID, hours)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, stats)
}

func (h *Handler) getUnprocessedMissedBlocks(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "no tenant in request context")
		return
	}
	networkID, err := uuid.Parse(chi.URLParam(r, "networkID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid network id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	items, err := h.Service.GetUnprocessedMissedBlocks(r.Context(), tenantID, networkID, limit)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, items)
}

type bulkRetryRequest struct {
	IDs        []uuid.UUID `json:"ids" validate:"required,min=1"`
	MaxRetries int         `json:"max_retries,omitempty"`
}

func (h *Handler) bulkRetryMissedBlocks(w http.ResponseWriter, r *http.Request) {
	if _, ok := tenantFromRequest(r); !ok {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "no tenant in request context")
		return
	}

	var req bulkRetryRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	n, err := h.Service.BulkRetryMissedBlocks(r.Context(), req.IDs, req.MaxRetries)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]int{"retried": n})
}

func (h *Handler) getRecentMatches(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "no tenant in request context")
		return
	}

	var monitorID *uuid.UUID
	if raw := r.URL.Query().Get("monitor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid monitor_id")
			return
		}
		monitorID = &id
	}
	hours, _ := strconv.Atoi(r.URL.Query().Get("hours"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	items, err := h.Service.GetRecentMatches(r.Context(), tenantID, monitorID, hours, limit)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, items)
}

func (h *Handler) getExecutionStats(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "no tenant in request context")
		return
	}

	var triggerID *uuid.UUID
	if raw := r.URL.Query().Get("trigger_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid trigger_id")
			return
		}
		triggerID = &id
	}
	hours, _ := strconv.Atoi(r.URL.Query().Get("hours"))

	stats, err := h.Service.GetExecutionStats(r.Context(), tenantID, triggerID, hours)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, stats)
}

func (h *Handler) bulkRetryExecutions(w http.ResponseWriter, r *http.Request) {
	if _, ok := tenantFromRequest(r); !ok {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "no tenant in request context")
		return
	}

	var req bulkRetryRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	n, err := h.Service.BulkRetryExecutions(r.Context(), req.IDs, req.MaxRetries)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]int{"retried": n})
}
