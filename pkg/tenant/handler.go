package tenant

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/blip0/control-plane/internal/httpserver"
	"github.com/blip0/control-plane/pkg/repo"
)

// Handler exposes platform-admin tenant management (create/suspend/resume/
// plan changes). Tenant-scoped services never expose this surface to
// tenants themselves — it is mounted only under /admin.
type Handler struct {
	Store *Store
}

// Routes mounts the admin tenant endpoints onto r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/suspend", h.suspend)
	r.Post("/{id}/resume", h.resume)
	r.Put("/{id}/plan", h.setPlan)
}

type createTenantRequest struct {
	Name string `json:"name" validate:"required"`
	Slug string `json:"slug" validate:"required,lowercase"`
	Plan Plan   `json:"plan" validate:"required,oneof=free starter pro enterprise"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	t, err := h.Store.Create(r.Context(), req.Name, req.Slug, req.Plan, nil)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, t)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid tenant id")
		return
	}

	t, err := h.Store.Get(r.Context(), id)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, t)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, err := repo.ParsePage(r.URL.Query().Get("page"), r.URL.Query().Get("size"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	filters, err := repo.ParseFilters(r.URL.Query(), []repo.Field{
		{Param: "slug", Column: "slug", Kind: repo.KindExact},
		{Param: "plan", Column: "plan", Kind: repo.KindExact},
		{Param: "status", Column: "status", Kind: repo.KindExact},
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

	items, total, err := h.Store.List(r.Context(), filters, sortSpec, page)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, repo.NewPageResult(items, page, total))
}

func (h *Handler) suspend(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, StatusSuspended)
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, StatusActive)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request, status Status) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid tenant id")
		return
	}
	if err := h.Store.SetStatus(r.Context(), id, status); err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setPlanRequest struct {
	Plan Plan `json:"plan" validate:"required,oneof=free starter pro enterprise"`
}

func (h *Handler) setPlan(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid tenant id")
		return
	}

	var req setPlanRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	overCap, err := h.Store.SetPlan(r.Context(), id, req.Plan)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"plan": req.Plan, "over_cap": overCap})
}
