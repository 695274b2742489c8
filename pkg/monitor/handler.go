package monitor

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/blip0/control-plane/internal/httpserver"
	"github.com/blip0/control-plane/pkg/repo"
	"github.com/blip0/control-plane/pkg/tenant"
)

// Handler exposes the tenant-scoped monitor CRUD and lifecycle surface
// (§4.8).
type Handler struct {
	Service *Service
}

// Routes mounts the tenant-scoped monitor endpoints onto r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	r.Post("/{id}/pause", h.pause)
	r.Post("/{id}/resume", h.resume)
	r.Post("/{id}/validate", h.validate)
	r.Post("/{id}/clone", h.clone)
	r.Post("/refresh-cache", h.refreshAll)
}

func tenantFromRequest(r *http.Request) (uuid.UUID, bool) {
	t := tenant.FromContext(r.Context())
	if t == nil {
		return uuid.UUID{}, false
	}
	return t.ID, true
}

// rejectTenantMismatch enforces the tenancy guard's body-tenant check (§6):
// a body-supplied tenant_id that differs from the principal's own tenant is
// rejected outright rather than silently ignored or honored.
func rejectTenantMismatch(w http.ResponseWriter, bodyTenantID *uuid.UUID, principalTenantID uuid.UUID) bool {
	if bodyTenantID != nil && *bodyTenantID != principalTenantID {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "tenant_id does not match the authenticated principal's tenant")
		return true
	}
	return false
}

type addressRequest struct {
	Address       string          `json:"address" validate:"required"`
	ContractSpecs json.RawMessage `json:"contract_specs,omitempty"`
}

type createMonitorRequest struct {
	// TenantID is optional; when present it must match the principal's own
	// tenant (§6: "rejects mismatched tenant_id"). The row is always created
	// under the principal's tenant regardless — this field exists only to be
	// checked, never to redirect the write.
	TenantID          *uuid.UUID       `json:"tenant_id,omitempty"`
	Name              string           `json:"name" validate:"required"`
	Slug              string           `json:"slug" validate:"required,lowercase"`
	Description       string           `json:"description,omitempty"`
	Networks          []string         `json:"networks" validate:"required,min=1"`
	Addresses         []addressRequest `json:"addresses"`
	MatchFunctions    json.RawMessage  `json:"match_functions,omitempty"`
	MatchEvents       json.RawMessage  `json:"match_events,omitempty"`
	MatchTransactions json.RawMessage  `json:"match_transactions,omitempty"`
	TriggerConditions json.RawMessage  `json:"trigger_conditions,omitempty"`
	Triggers          []string         `json:"triggers"`
}

func (req createMonitorRequest) toMonitor() Monitor {
	addresses := make([]Address, len(req.Addresses))
	for i, a := range req.Addresses {
		addresses[i] = Address{Address: a.Address, ContractSpecs: a.ContractSpecs}
	}
	return Monitor{
		Name:              req.Name,
		Slug:              req.Slug,
		Description:       req.Description,
		Networks:          req.Networks,
		Addresses:         addresses,
		MatchFunctions:    req.MatchFunctions,
		MatchEvents:       req.MatchEvents,
		MatchTransactions: req.MatchTransactions,
		TriggerConditions: req.TriggerConditions,
		Triggers:          req.Triggers,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "no tenant in request context")
		return
	}

	var req createMonitorRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if rejectTenantMismatch(w, req.TenantID, tenantID) {
		return
	}

	m, err := h.Service.Create(r.Context(), tenantID, req.toMonitor())
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, m)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "no tenant in request context")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid monitor id")
		return
	}

	if includeTriggers, _ := strconv.ParseBool(r.URL.Query().Get("include_triggers")); includeTriggers {
		view, err := h.Service.GetWithTriggers(r.Context(), tenantID, id)
		if err != nil {
			httpserver.RespondAPIError(w, err)
			return
		}
		httpserver.Respond(w, http.StatusOK, view)
		return
	}

	m, err := h.Service.Get(r.Context(), tenantID, id)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, m)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "no tenant in request context")
		return
	}

	page, err := repo.ParsePage(r.URL.Query().Get("page"), r.URL.Query().Get("size"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	filters, err := repo.ParseFilters(r.URL.Query(), []repo.Field{
		{Param: "slug", Column: "slug", Kind: repo.KindExact},
		{Param: "active", Column: "active", Kind: repo.KindBool},
		{Param: "paused", Column: "paused", Kind: repo.KindBool},
		{Param: "validated", Column: "validated", Kind: repo.KindBool},
	})
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	sortSpec, err := repo.ParseSort(
		r.URL.Query().Get("sort_field"), r.URL.Query().Get("sort_order"),
		map[string]string{"name": "name", "slug": "slug", "created_at": "created_at"},
	)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	items, total, err := h.Service.List(r.Context(), tenantID, filters, sortSpec, page)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, repo.NewPageResult(items, page, total))
}

type updateMonitorRequest struct {
	Name              *string          `json:"name,omitempty"`
	Slug              *string          `json:"slug,omitempty"`
	Description       *string          `json:"description,omitempty"`
	Networks          *[]string        `json:"networks,omitempty"`
	Addresses         []addressRequest `json:"addresses,omitempty"`
	MatchFunctions    json.RawMessage  `json:"match_functions,omitempty"`
	MatchEvents       json.RawMessage  `json:"match_events,omitempty"`
	MatchTransactions json.RawMessage  `json:"match_transactions,omitempty"`
	TriggerConditions json.RawMessage  `json:"trigger_conditions,omitempty"`
	Triggers          *[]string        `json:"triggers,omitempty"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "no tenant in request context")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid monitor id")
		return
	}

	var req updateMonitorRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	patch := Patch{
		Name: req.Name, Slug: req.Slug, Description: req.Description,
		Networks: req.Networks, Triggers: req.Triggers,
		MatchFunctions: req.MatchFunctions, MatchEvents: req.MatchEvents,
		MatchTransactions: req.MatchTransactions, TriggerConditions: req.TriggerConditions,
	}
	if req.Addresses != nil {
		addresses := make([]Address, len(req.Addresses))
		for i, a := range req.Addresses {
			addresses[i] = Address{Address: a.Address, ContractSpecs: a.ContractSpecs}
		}
		patch.Addresses = &addresses
	}

	m, err := h.Service.Update(r.Context(), tenantID, id, patch)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, m)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "no tenant in request context")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid monitor id")
		return
	}

	hard, _ := strconv.ParseBool(r.URL.Query().Get("hard"))
	if err := h.Service.Delete(r.Context(), tenantID, id, hard); err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pause(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "no tenant in request context")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid monitor id")
		return
	}
	m, err := h.Service.Pause(r.Context(), tenantID, id)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, m)
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "no tenant in request context")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid monitor id")
		return
	}
	m, err := h.Service.Resume(r.Context(), tenantID, id)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, m)
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "no tenant in request context")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid monitor id")
		return
	}
	result, err := h.Service.Validate(r.Context(), tenantID, id)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, result)
}

type cloneMonitorRequest struct {
	NewName string `json:"new_name" validate:"required"`
	NewSlug string `json:"new_slug" validate:"required,lowercase"`
}

func (h *Handler) clone(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "no tenant in request context")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid monitor id")
		return
	}

	var req cloneMonitorRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	m, err := h.Service.Clone(r.Context(), tenantID, id, req.NewName, req.NewSlug)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, m)
}

func (h *Handler) refreshAll(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "no tenant in request context")
		return
	}
	n, err := h.Service.RefreshAll(r.Context(), tenantID)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]int{"refreshed": n})
}
