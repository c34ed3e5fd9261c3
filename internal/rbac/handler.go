package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/veeduria/veeduria-api/internal/platform/httpx"
	"github.com/veeduria/veeduria-api/internal/shared"
)

// maxBatch bounds the number of slugs checked in one validation request.
const maxBatch = 100

// Handler exposes the validation endpoints and the permission catalog.
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

// MountRoutes registers /validation and /permissions routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/validation", func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermValidationRun))
		r.Post("/permissions", h.validatePermissions)
		r.Post("/roles", h.validateRoles)
		r.Get("/users/{id}/permissions", h.effectivePermissions)
		r.Get("/users/{id}/super-admin", h.superAdministrator)
	})
	r.Route("/permissions", func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermPermissionsView, shared.PermRolesEdit))
		r.Get("/", h.listCatalog)
	})
}

type permissionsRequest struct {
	UserID      int64    `json:"user_id"`
	Permissions []string `json:"permissions"`
}

type rolesRequest struct {
	UserID int64    `json:"user_id"`
	Roles  []string `json:"roles"`
}

func (h *Handler) validatePermissions(w http.ResponseWriter, r *http.Request) {
	var req permissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.UserID <= 0 {
		httpx.BadRequest(w, "user_id must be a positive integer")
		return
	}
	if len(req.Permissions) > maxBatch {
		httpx.RespondError(w, shared.Invalid("permissions", "must contain at most "+strconv.Itoa(maxBatch)+" entries"))
		return
	}
	report, err := h.service.ValidatePermissions(r.Context(), req.UserID, req.Permissions)
	if err != nil {
		h.fail(w, "validate permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) validateRoles(w http.ResponseWriter, r *http.Request) {
	var req rolesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.UserID <= 0 {
		httpx.BadRequest(w, "user_id must be a positive integer")
		return
	}
	if len(req.Roles) > maxBatch {
		httpx.RespondError(w, shared.Invalid("roles", "must contain at most "+strconv.Itoa(maxBatch)+" entries"))
		return
	}
	report, err := h.service.ValidateRoles(r.Context(), req.UserID, req.Roles)
	if err != nil {
		h.fail(w, "validate roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid user id")
		return
	}
	perms, err := h.service.ListEffectivePermissions(r.Context(), id)
	if err != nil {
		h.fail(w, "effective permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":     id,
		"permissions": perms,
		"count":       len(perms),
	})
}

func (h *Handler) superAdministrator(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid user id")
		return
	}
	byTag, err := h.service.IsSuperAdministrator(r.Context(), id)
	if err != nil {
		h.fail(w, "super administrator", err)
		return
	}
	byMembership, err := h.service.HasSuperAdministratorMembership(r.Context(), id)
	if err != nil {
		h.fail(w, "super administrator membership", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":                        id,
		"super_administrator":            byTag,
		"super_administrator_membership": byMembership,
	})
}

func (h *Handler) listCatalog(w http.ResponseWriter, r *http.Request) {
	catalog := h.service.Catalog()
	perms := catalog.All()
	if module := r.URL.Query().Get("module"); module != "" {
		perms = catalog.ByModule(module)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": perms})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, shared.ErrInternal) {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
