package shared

import (
	"net/http"
	"strings"
)

// Core platform permissions.
const (
	PermUsersView    = "usuarios_ver"
	PermUsersEdit    = "usuarios_editar"
	PermUsersApprove = "usuarios_aprobar"

	PermRolesView = "roles_ver"
	PermRolesEdit = "roles_editar"

	PermPermissionsView = "permisos_ver"
	PermValidationRun   = "validacion_ejecutar"

	PermLogsView   = "logs_ver"
	PermLogsExport = "logs_exportar"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermUsersApprove,
		PermRolesView,
		PermRolesEdit,
		PermPermissionsView,
		PermValidationRun,
		PermLogsView,
		PermLogsExport,
	}
}

// PrimaryRole is the coarse role tag stored on a user record.
type PrimaryRole string

// Primary role tags.
const (
	PrimaryRoleClient               PrimaryRole = "cli"
	PrimaryRoleOperator             PrimaryRole = "ope"
	PrimaryRoleAdministrator        PrimaryRole = "adm"
	PrimaryRoleGeneralAdministrator PrimaryRole = "adg"
)

// SuperAdministratorTag is the primary role tag that bypasses every permission check.
const SuperAdministratorTag = PrimaryRoleGeneralAdministrator

// Valid reports whether r is a known tag.
func (r PrimaryRole) Valid() bool {
	switch r {
	case PrimaryRoleClient, PrimaryRoleOperator, PrimaryRoleAdministrator, PrimaryRoleGeneralAdministrator:
		return true
	}
	return false
}

// MaxSlugLength bounds permission and role slugs.
const MaxSlugLength = 100

// NormalizeSlug trims and lower-cases a permission or role slug.
func NormalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

// Guard installs authorization checks on HTTP routes.
type Guard interface {
	RequireAny(perms ...string) func(http.Handler) http.Handler
	RequireAll(perms ...string) func(http.Handler) http.Handler
}
