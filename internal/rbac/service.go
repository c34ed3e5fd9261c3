package rbac

import (
	"context"
	"sort"
	"strings"

	"github.com/veeduria/veeduria-api/internal/roles"
	"github.com/veeduria/veeduria-api/internal/shared"
	"github.com/veeduria/veeduria-api/internal/users"
)

// Service evaluates permission and role requirements against fresh user and role data.
type Service struct {
	users   UserDirectory
	roles   RoleSource
	catalog *Catalog
}

// NewService constructs the evaluator. A nil catalog falls back to DefaultCatalog.
func NewService(directory UserDirectory, source RoleSource, catalog *Catalog) *Service {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Service{users: directory, roles: source, catalog: catalog}
}

// Catalog returns the permission metadata table.
func (s *Service) Catalog() *Catalog { return s.catalog }

// HasPermission reports whether userID holds slug through an active membership
// to an active role, or is the super-administrator.
func (s *Service) HasPermission(ctx context.Context, userID int64, slug string) (bool, error) {
	g, err := s.load(ctx, userID)
	if err != nil {
		return false, err
	}
	return g.allows(slug), nil
}

// HasRole compares the primary role tag only; memberships are ignored.
func (s *Service) HasRole(ctx context.Context, userID int64, roleSlug string) (bool, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return string(user.PrimaryRole) == shared.NormalizeSlug(roleSlug), nil
}

// ValidatePermissions checks every slug independently, preserving input order.
func (s *Service) ValidatePermissions(ctx context.Context, userID int64, slugs []string) (PermissionReport, error) {
	g, err := s.load(ctx, userID)
	if err != nil {
		return PermissionReport{}, err
	}
	return report(userID, slugs, g), nil
}

func report(userID int64, slugs []string, g grants) PermissionReport {
	out := PermissionReport{UserID: userID, Results: make([]SlugResult, 0, len(slugs))}
	for _, slug := range slugs {
		ok := g.allows(slug)
		out.Results = append(out.Results, SlugResult{Slug: slug, Granted: ok})
		if ok {
			out.GrantedCount++
		} else {
			out.DeniedCount++
		}
	}
	out.AllGranted = out.DeniedCount == 0
	return out
}

// Authorize evaluates slugs like ValidatePermissions for a request principal.
// Accounts that are not approved hold no grants here, neither memberships
// nor the super-administrator bypass.
func (s *Service) Authorize(ctx context.Context, userID int64, slugs []string) (PermissionReport, error) {
	g, err := s.load(ctx, userID)
	if err != nil {
		return PermissionReport{}, err
	}
	if !g.approved {
		g = grants{}
	}
	return report(userID, slugs, g), nil
}

// ValidateRoles checks every primary role tag; AnyGranted is true if one matches.
func (s *Service) ValidateRoles(ctx context.Context, userID int64, roleSlugs []string) (RoleReport, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return RoleReport{}, err
	}
	report := RoleReport{UserID: userID, Results: make([]RoleResult, 0, len(roleSlugs))}
	for _, tag := range roleSlugs {
		ok := string(user.PrimaryRole) == shared.NormalizeSlug(tag)
		report.Results = append(report.Results, RoleResult{Role: tag, Description: RoleTagDescription(tag), Granted: ok})
		if ok {
			report.GrantedCount++
		} else {
			report.DeniedCount++
		}
	}
	report.AnyGranted = report.GrantedCount > 0
	return report, nil
}

// ListEffectivePermissions returns the materialized grants of userID ordered by
// slug. The super-administrator bypass is not expanded here.
func (s *Service) ListEffectivePermissions(ctx context.Context, userID int64) ([]Permission, error) {
	g, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	slugs := make([]string, 0, len(g.slugs))
	for slug := range g.slugs {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	out := make([]Permission, len(slugs))
	for i, slug := range slugs {
		out[i] = s.catalog.Describe(slug)
	}
	return out, nil
}

// IsSuperAdministrator reports whether the primary role tag of userID is the
// super-administrator tag.
func (s *Service) IsSuperAdministrator(ctx context.Context, userID int64) (bool, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.PrimaryRole == shared.SuperAdministratorTag, nil
}

// HasSuperAdministratorMembership reports whether userID holds an active
// membership to an active role named SuperAdministratorRoleName. It does not
// grant any permission by itself.
func (s *Service) HasSuperAdministratorMembership(ctx context.Context, userID int64) (bool, error) {
	_, active, err := s.activeRoles(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, r := range active {
		if strings.EqualFold(strings.TrimSpace(r.Name), SuperAdministratorRoleName) {
			return true, nil
		}
	}
	return false, nil
}

type grants struct {
	approved bool
	super    bool
	slugs    map[string]struct{}
}

func (g grants) allows(slug string) bool {
	if g.super {
		return true
	}
	_, ok := g.slugs[shared.NormalizeSlug(slug)]
	return ok
}

func (s *Service) load(ctx context.Context, userID int64) (grants, error) {
	user, active, err := s.activeRoles(ctx, userID)
	if err != nil {
		return grants{}, err
	}
	g := grants{
		approved: user.Approved(),
		super:    user.PrimaryRole == shared.SuperAdministratorTag,
		slugs:    map[string]struct{}{},
	}
	for _, r := range active {
		for _, slug := range r.Permissions {
			g.slugs[shared.NormalizeSlug(slug)] = struct{}{}
		}
	}
	return g, nil
}

func (s *Service) activeRoles(ctx context.Context, userID int64) (users.User, []roles.Role, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return users.User{}, nil, err
	}
	ids := user.ActiveRoleIDs()
	if len(ids) == 0 {
		return user, nil, nil
	}
	found, err := s.roles.FindMany(ctx, ids)
	if err != nil {
		return users.User{}, nil, shared.Internal("rbac: load roles", err)
	}
	active := make([]roles.Role, 0, len(found))
	for _, r := range found {
		if r.IsActive() {
			active = append(active, r)
		}
	}
	return user, active, nil
}

func (s *Service) findUser(ctx context.Context, userID int64) (users.User, error) {
	user, err := s.users.FindUser(ctx, userID)
	if err != nil {
		return users.User{}, shared.Internal("rbac: find user", err)
	}
	return user, nil
}
