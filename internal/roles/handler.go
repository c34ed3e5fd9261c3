package roles

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/veeduria/veeduria-api/internal/platform/httpx"
	"github.com/veeduria/veeduria-api/internal/shared"
)

// Handler manages role management endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   shared.Guard
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard shared.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermRolesView, shared.PermRolesEdit))
		r.Get("/", h.listRoles)
		r.Get("/search", h.searchRoles)
		r.Get("/stats", h.stats)
		r.Get("/{id}", h.showRole)
		r.Get("/{id}/members", h.members)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(shared.PermRolesEdit))
		r.Post("/", h.createRole)
		r.Put("/{id}", h.updateRole)
		r.Delete("/{id}", h.deleteRole)
		r.Post("/{id}/activate", h.activateRole)
		r.Post("/{id}/deactivate", h.deactivateRole)
		r.Post("/{id}/permissions", h.addPermission)
		r.Delete("/{id}/permissions/{slug}", h.removePermission)
	})
}

type permissionRequest struct {
	Slug string `json:"slug"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.service.List(r.Context(), ListFilters{
		Status:  Status(q.Get("status")),
		SortBy:  q.Get("sort"),
		SortDir: q.Get("dir"),
		Page:    httpx.IntQuery(r, "page"),
		PerPage: httpx.IntQuery(r, "per_page"),
	})
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) searchRoles(w http.ResponseWriter, r *http.Request) {
	found, err := h.service.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.fail(w, "search roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": found})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.fail(w, "role stats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) showRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid role id")
		return
	}
	role, err := h.service.Find(r.Context(), id)
	if err != nil {
		h.fail(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) members(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid role id")
		return
	}
	members, err := h.service.Members(r.Context(), id)
	if err != nil {
		h.fail(w, "role members", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": members})
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.BadRequest(w, "malformed JSON body")
		return
	}
	role, err := h.service.Create(r.Context(), shared.ActorID(r.Context()), in)
	if err != nil {
		h.fail(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid role id")
		return
	}
	var in UpdateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.BadRequest(w, "malformed JSON body")
		return
	}
	role, err := h.service.Update(r.Context(), shared.ActorID(r.Context()), id, in)
	if err != nil {
		h.fail(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid role id")
		return
	}
	if err := h.service.Delete(r.Context(), shared.ActorID(r.Context()), id); err != nil {
		h.fail(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) activateRole(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Activate)
}

func (h *Handler) deactivateRole(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Deactivate)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, actorID, id int64) (Role, error)) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid role id")
		return
	}
	role, err := apply(r.Context(), shared.ActorID(r.Context()), id)
	if err != nil {
		h.fail(w, "role status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) addPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid role id")
		return
	}
	var req permissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "malformed JSON body")
		return
	}
	role, err := h.service.AddPermission(r.Context(), shared.ActorID(r.Context()), id, req.Slug)
	if err != nil {
		h.fail(w, "add permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) removePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid role id")
		return
	}
	role, err := h.service.RemovePermission(r.Context(), shared.ActorID(r.Context()), id, chi.URLParam(r, "slug"))
	if err != nil {
		h.fail(w, "remove permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, shared.ErrInternal) {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
