package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/veeduria/veeduria-api/internal/platform/httpx"
	"github.com/veeduria/veeduria-api/internal/shared"
)

const (
	loginAttempts = 5
	loginWindow   = time.Minute
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(loginAttempts, loginWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "too many login attempts")
		}),
	)
	r.With(limiter).Post("/token", h.issueToken)
	r.Get("/me", h.me)
}

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request) {
	var in Credentials
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.BadRequest(w, "malformed JSON body")
		return
	}
	token, err := h.service.Login(r.Context(), in)
	if err != nil {
		if errors.Is(err, shared.ErrInternal) {
			h.logger.Error("issue token", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, token)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"user_id": principal.UserID})
}
