package trigger

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/blip0/control-plane/internal/httpserver"
	"github.com/blip0/control-plane/pkg/repo"
	"github.com/blip0/control-plane/pkg/tenant"
)

// Handler exposes the tenant-scoped trigger CRUD surface, analogous to
// monitor's (§4.8 "Analogous for triggers").
type Handler struct {
	Service *Service
}

// Routes mounts the tenant-scoped trigger endpoints onto r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	r.Post("/{id}/activate", h.activate)
	r.Post("/{id}/deactivate", h.deactivate)
	r.Post("/{id}/validate", h.validate)
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

type credentialRequest struct {
	Source CredentialSource `json:"source" validate:"required"`
	Value  string           `json:"value"`
}

func (req credentialRequest) toCredential() Credential {
	return Credential{Source: req.Source, Value: req.Value}
}

type emailConfigRequest struct {
	Host         string            `json:"host" validate:"required"`
	Port         int               `json:"port" validate:"required"`
	Username     credentialRequest `json:"username"`
	Password     credentialRequest `json:"password"`
	Sender       string            `json:"sender" validate:"required"`
	Recipients   []string          `json:"recipients" validate:"required,min=1"`
	MessageTitle string            `json:"message_title"`
	MessageBody  string            `json:"message_body"`
}

type webhookConfigRequest struct {
	URL          credentialRequest  `json:"url" validate:"required"`
	Method       HTTPMethod         `json:"method" validate:"required"`
	Headers      map[string]string  `json:"headers,omitempty"`
	Secret       *credentialRequest `json:"secret,omitempty"`
	MessageTitle string             `json:"message_title"`
	MessageBody  string             `json:"message_body"`
}

type createTriggerRequest struct {
	// TenantID is optional; when present it must match the principal's own
	// tenant (§6: "rejects mismatched tenant_id"), mirroring monitor's create
	// DTO. The row is always created under the principal's tenant regardless.
	TenantID    *uuid.UUID            `json:"tenant_id,omitempty"`
	Name        string                `json:"name" validate:"required"`
	Slug        string                `json:"slug" validate:"required,lowercase"`
	TriggerType Type                  `json:"trigger_type" validate:"required,oneof=email webhook"`
	Description string                `json:"description,omitempty"`
	Email       *emailConfigRequest   `json:"email,omitempty"`
	Webhook     *webhookConfigRequest `json:"webhook,omitempty"`
}

func (req createTriggerRequest) toTrigger() Trigger {
	t := Trigger{
		Name:        req.Name,
		Slug:        req.Slug,
		TriggerType: req.TriggerType,
		Description: req.Description,
	}
	if req.Email != nil {
		t.Email = &EmailConfig{
			Host: req.Email.Host, Port: req.Email.Port,
			Username: req.Email.Username.toCredential(), Password: req.Email.Password.toCredential(),
			Sender: req.Email.Sender, Recipients: req.Email.Recipients,
			MessageTitle: req.Email.MessageTitle, MessageBody: req.Email.MessageBody,
		}
	}
	if req.Webhook != nil {
		w := &WebhookConfig{
			URL: req.Webhook.URL.toCredential(), Method: req.Webhook.Method, Headers: req.Webhook.Headers,
			MessageTitle: req.Webhook.MessageTitle, MessageBody: req.Webhook.MessageBody,
		}
		if req.Webhook.Secret != nil {
			c := req.Webhook.Secret.toCredential()
			w.Secret = &c
		}
		t.Webhook = w
	}
	return t
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "no tenant in request context")
		return
	}

	var req createTriggerRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if rejectTenantMismatch(w, req.TenantID, tenantID) {
		return
	}

	t, err := h.Service.Create(r.Context(), tenantID, req.toTrigger())
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, t)
}

type updateTriggerRequest struct {
	Name        *string               `json:"name,omitempty"`
	Slug        *string               `json:"slug,omitempty"`
	Description *string               `json:"description,omitempty"`
	Email       *emailConfigRequest   `json:"email,omitempty"`
	Webhook     *webhookConfigRequest `json:"webhook,omitempty"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "no tenant in request context")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid trigger id")
		return
	}

	var req updateTriggerRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	patch := Patch{Name: req.Name, Slug: req.Slug, Description: req.Description}
	if req.Email != nil {
		patch.Email = &EmailConfig{
			Host: req.Email.Host, Port: req.Email.Port,
			Username: req.Email.Username.toCredential(), Password: req.Email.Password.toCredential(),
			Sender: req.Email.Sender, Recipients: req.Email.Recipients,
			MessageTitle: req.Email.MessageTitle, MessageBody: req.Email.MessageBody,
		}
	}
	if req.Webhook != nil {
		w := &WebhookConfig{
			URL: req.Webhook.URL.toCredential(), Method: req.Webhook.Method, Headers: req.Webhook.Headers,
			MessageTitle: req.Webhook.MessageTitle, MessageBody: req.Webhook.MessageBody,
		}
		if req.Webhook.Secret != nil {
			c := req.Webhook.Secret.toCredential()
			w.Secret = &c
		}
		patch.Webhook = w
	}

	t, err := h.Service.Update(r.Context(), tenantID, id, patch)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, t)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "no tenant in request context")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid trigger id")
		return
	}

	t, err := h.Service.Get(r.Context(), tenantID, id)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, t)
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
		{Param: "trigger_type", Column: "trigger_type", Kind: repo.KindExact},
		{Param: "active", Column: "active", Kind: repo.KindBool},
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

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "no tenant in request context")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid trigger id")
		return
	}

	hard, _ := strconv.ParseBool(r.URL.Query().Get("hard"))
	if err := h.Service.Delete(r.Context(), tenantID, id, hard); err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "no tenant in request context")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid trigger id")
		return
	}
	t, err := h.Service.Activate(r.Context(), tenantID, id)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, t)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "no tenant in request context")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid trigger id")
		return
	}
	t, err := h.Service.Deactivate(r.Context(), tenantID, id)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, t)
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(r)
	if !ok {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "no tenant in request context")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid trigger id")
		return
	}
	result, err := h.Service.Validate(r.Context(), tenantID, id)
	if err != nil {
		httpserver.RespondAPIError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, result)
}
