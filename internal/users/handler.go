package users

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/veeduria/veeduria-api/internal/platform/httpx"
	"github.com/veeduria/veeduria-api/internal/shared"
)

// Handler manages user endpoints.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	guard      shared.Guard
	assignedBy int64
}

// NewHandler builds Handler instance. assignedBy is the actor recorded for
// memberships created during self-registration.
func NewHandler(logger *slog.Logger, service *Service, guard shared.Guard, assignedBy int64) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, assignedBy: assignedBy}
}

// MountRoutes registers authenticated user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermUsersView, shared.PermUsersEdit))
		r.Get("/{id}", h.showUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(shared.PermUsersEdit))
		r.Post("/{id}/roles", h.assignRole)
		r.Delete("/{id}/roles/{roleID}", h.revokeRole)
	})
	r.With(h.guard.RequireAll(shared.PermUsersApprove)).Put("/{id}/status", h.setStatus)
}

// Register serves the public self-registration endpoint.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in RegistrationInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.BadRequest(w, "malformed JSON body")
		return
	}
	user, err := h.service.Register(r.Context(), h.assignedBy, in)
	if err != nil {
		h.fail(w, "register user", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) showUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid user id")
		return
	}
	user, err := h.service.FindUser(r.Context(), id)
	if err != nil {
		h.fail(w, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid user id")
		return
	}
	var in AssignInput
	if err := httpx.DecodeJSON(r, &in); err != nil || in.RoleID <= 0 {
		httpx.BadRequest(w, "role_id must be a positive integer")
		return
	}
	m, err := h.service.AssignRole(r.Context(), shared.ActorID(r.Context()), id, in.RoleID)
	if err != nil {
		h.fail(w, "assign role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid user id")
		return
	}
	var in StatusInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.BadRequest(w, "malformed JSON body")
		return
	}
	user, err := h.service.SetStatus(r.Context(), shared.ActorID(r.Context()), id, in)
	if err != nil {
		h.fail(w, "set user status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r, "id")
	if !ok {
		httpx.BadRequest(w, "invalid user id")
		return
	}
	roleID, ok := httpx.IDParam(r, "roleID")
	if !ok {
		httpx.BadRequest(w, "invalid role id")
		return
	}
	if err := h.service.RevokeRole(r.Context(), shared.ActorID(r.Context()), id, roleID); err != nil {
		h.fail(w, "revoke role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, shared.ErrInternal) {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
