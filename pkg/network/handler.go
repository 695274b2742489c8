package network

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/blip0/control-plane/internal/httpserver"
	"github.com/blip0/control-plane/pkg/repo"
)

// Handler exposes platform-admin network CRUD plus an explicit revalidation
// endpoint (§4.8: "*/admin/networks CRUD plus POST /admin/networks/{id}/validate").
type Handler struct {
	Service *Service
	Store   *Store
}

// Routes mounts the admin network endpoints onto r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	r.Post("/{id}/validate", h.validate)
	r.Post("/validate-all", h.validateAll)
}

type rpcURLRequest struct {
	URL    string          `json:"url" validate:"required,url"`
	Type   RPCEndpointRole `json:"type" validate:"required,oneof=primary backup fallback"`
	Weight int             `json:"weight"`
}

type createNetworkRequest struct {
	Name               string          `json:"name" validate:"required"`
	Slug               string          `json:"slug" validate:"required,lowercase"`
	NetworkType        Type            `json:"network_type" validate:"required,oneof=EVM Stellar"`
	ChainID            *int64          `json:"chain_id"`
	NetworkPassphrase  *string         `json:"network_passphrase"`
	BlockTimeMs        int             `json:"block_time_ms" validate:"required,min=1"`
	RPCURLs            []rpcURLRequest `json:"rpc_urls" validate:"required,min=1,dive"`
	ConfirmationBlocks int             `json:"confirmation_blocks"`
	CronSchedule       string          `json:"cron_schedule"`
	MaxPastBlocks      int             `json:"max_past_blocks"`
	StoreBlocks        bool            `json:"store_blocks"`
	ValidateRPCs       bool            `json:"validate_rpcs"`
}

func (req createNetworkRequest) toNetwork() Network {
	urls := make([]RPCURL, len(req.RPCURLs))
	for i, u := range req.RPCURLs {
		urls[i] = RPCURL{URL: u.URL, Type: u.Type, Weight: u.Weight}
	}
	return Network{
		Name:               req.Name,
		Slug:               req.Slug,
		NetworkType:        req.NetworkType,
		ChainID:            req.ChainID,
		NetworkPassphrase:  req.NetworkPassphrase,
		BlockTimeMs:        req.BlockTimeMs,
		RPCURLs:            urls,
		ConfirmationBlocks: req.ConfirmationBlocks,
		CronSchedule:       req.CronSchedule,
		MaxPastBlocks:      req.MaxPastBlocks,
		StoreBlocks:        req.StoreBlocks,
		Active:             true,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createNetworkRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	n, err := h.Service.Create(r.Context(), req.toNetwork(), req.ValidateRPCs)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, n)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid network id")
		return
	}

	n, err := h.Store.Get(r.Context(), id)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, n)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, err := repo.ParsePage(r.URL.Query().Get("page"), r.URL.Query().Get("size"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	filters, err := repo.ParseFilters(r.URL.Query(), []repo.Field{
		{Param: "slug", Column: "slug", Kind: repo.KindExact},
		{Param: "network_type", Column: "network_type", Kind: repo.KindExact},
		{Param: "active", Column: "active", Kind: repo.KindBool},
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

	items, total, err := h.Store.List(r.Context(), filters, sortSpec, page)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, repo.NewPageResult(items, page, total))
}

type updateNetworkRequest struct {
	Active *bool `json:"active"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid network id")
		return
	}

	var req updateNetworkRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if req.Active == nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "active is required")
		return
	}

	n, err := h.Service.SetActive(r.Context(), id, *req.Active)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, n)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid network id")
		return
	}

	if err := h.Service.Delete(r.Context(), id); err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid network id")
		return
	}

	n, err := h.Service.Validate(r.Context(), id)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, n)
}

// validateAll revalidates every network matching an optional tenant_id query
// parameter, or every network platform-wide when it is absent (§5, §D.3).
func (h *Handler) validateAll(w http.ResponseWriter, r *http.Request) {
	var tenantID *uuid.UUID
	if raw := r.URL.Query().Get("tenant_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid tenant_id")
			return
		}
		tenantID = &id
	}

	networks, err := h.Service.ValidateAll(r.Context(), tenantID)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, networks)
}
