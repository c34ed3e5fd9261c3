package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/veeduria/veeduria-api/internal/platform/httpx"
	"github.com/veeduria/veeduria-api/internal/shared"
)

// DecisionObserver counts guard decisions.
type DecisionObserver interface {
	ObserveAuthzDecision(mode, outcome string)
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service  *Service
	Logger   *slog.Logger
	Observer DecisionObserver
}

var _ shared.Guard = Middleware{}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.require("any", perms, func(r PermissionReport) bool { return r.GrantedCount > 0 })
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.require("all", perms, func(r PermissionReport) bool { return r.AllGranted })
}

func (m Middleware) require(mode string, perms []string, satisfied func(PermissionReport) bool) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principal, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				m.observe(mode, "unauthenticated")
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			report, err := m.Service.Authorize(r.Context(), principal.UserID, normalized)
			switch {
			case errors.Is(err, shared.ErrNotFound):
				// token for a user that no longer exists
				m.observe(mode, "denied")
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "unknown principal")
				return
			case err != nil:
				m.observe(mode, "error")
				if m.Logger != nil {
					m.Logger.Error("rbac require "+mode, slog.Int64("user_id", principal.UserID), slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if satisfied(report) {
				m.observe(mode, "granted")
				next.ServeHTTP(w, r)
				return
			}
			m.observe(mode, "denied")
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing required permission")
		})
	}
}

func (m Middleware) observe(mode, outcome string) {
	if m.Observer != nil {
		m.Observer.ObserveAuthzDecision(mode, outcome)
	}
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = shared.NormalizeSlug(p)
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	sort.Strings(normalized)
	return normalized
}
