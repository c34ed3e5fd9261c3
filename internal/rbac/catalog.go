package rbac

import (
	"sort"
	"strings"

	"github.com/veeduria/veeduria-api/internal/shared"
)

// Required levels, lowest first.
const (
	LevelBasic    = "basico"
	LevelOperator = "operador"
	LevelAdmin    = "administrador"
	LevelGeneral  = "general"
)

// Catalog is the static slug -> metadata table.
type Catalog struct {
	bySlug map[string]Permission
	sorted []Permission
}

// NewCatalog builds a catalog from perms. Later duplicates win.
func NewCatalog(perms []Permission) *Catalog {
	c := &Catalog{bySlug: make(map[string]Permission, len(perms))}
	for _, p := range perms {
		p.Slug = shared.NormalizeSlug(p.Slug)
		if p.Slug == "" {
			continue
		}
		c.bySlug[p.Slug] = p
	}
	c.sorted = make([]Permission, 0, len(c.bySlug))
	for _, p := range c.bySlug {
		c.sorted = append(c.sorted, p)
	}
	sort.Slice(c.sorted, func(i, j int) bool { return c.sorted[i].Slug < c.sorted[j].Slug })
	return c
}

// Lookup returns the metadata of slug.
func (c *Catalog) Lookup(slug string) (Permission, bool) {
	p, ok := c.bySlug[shared.NormalizeSlug(slug)]
	return p, ok
}

// Describe returns the metadata of slug, or a bare entry when it is not catalogued.
func (c *Catalog) Describe(slug string) Permission {
	if p, ok := c.Lookup(slug); ok {
		return p
	}
	return Permission{Slug: shared.NormalizeSlug(slug)}
}

// All returns every catalogued permission ordered by slug.
func (c *Catalog) All() []Permission {
	return append([]Permission(nil), c.sorted...)
}

// ByModule returns the permissions of module ordered by slug.
func (c *Catalog) ByModule(module string) []Permission {
	module = strings.ToLower(strings.TrimSpace(module))
	out := []Permission{}
	for _, p := range c.sorted {
		if p.Module == module {
			out = append(out, p)
		}
	}
	return out
}

var roleTagDescriptions = map[shared.PrimaryRole]string{
	shared.PrimaryRoleClient:               "Cliente",
	shared.PrimaryRoleOperator:             "Operador",
	shared.PrimaryRoleAdministrator:        "Administrador",
	shared.PrimaryRoleGeneralAdministrator: "Administrador General",
}

// RoleTagDescription returns the label of a primary role tag.
func RoleTagDescription(tag string) string {
	return roleTagDescriptions[shared.PrimaryRole(shared.NormalizeSlug(tag))]
}

type catalogEntry struct {
	resource, module, category string
	actions                    []string
}

var actionFunctions = map[string]string{
	"ver":       "consultar",
	"crear":     "registrar",
	"editar":    "modificar",
	"eliminar":  "eliminar",
	"aprobar":   "aprobar",
	"ejecutar":  "ejecutar",
	"exportar":  "exportar",
	"asignar":   "asignar",
	"gestionar": "administrar",
}

var actionLevels = map[string]string{
	"ver":       LevelBasic,
	"crear":     LevelBasic,
	"editar":    LevelOperator,
	"exportar":  LevelOperator,
	"ejecutar":  LevelOperator,
	"eliminar":  LevelAdmin,
	"aprobar":   LevelAdmin,
	"asignar":   LevelAdmin,
	"gestionar": LevelGeneral,
}

var defaultEntries = []catalogEntry{
	{"usuarios", "seguridad", "administracion", []string{"ver", "crear", "editar", "eliminar", "aprobar"}},
	{"roles", "seguridad", "administracion", []string{"ver", "crear", "editar", "eliminar", "asignar"}},
	{"permisos", "seguridad", "administracion", []string{"ver", "gestionar"}},
	{"validacion", "seguridad", "administracion", []string{"ejecutar"}},
	{"logs", "auditoria", "administracion", []string{"ver", "exportar"}},
	{"veedurias", "veedurias", "operacion", []string{"ver", "crear", "editar", "eliminar", "aprobar"}},
	{"tareas", "veedurias", "operacion", []string{"ver", "crear", "editar", "eliminar"}},
	{"donaciones", "donaciones", "operacion", []string{"ver", "crear", "editar", "aprobar"}},
	{"reportes", "reportes", "consulta", []string{"ver", "exportar"}},
}

// DefaultCatalog returns the platform permission table.
func DefaultCatalog() *Catalog {
	var perms []Permission
	for _, e := range defaultEntries {
		for _, action := range e.actions {
			perms = append(perms, Permission{
				Slug:          e.resource + "_" + action,
				Category:      e.category,
				Module:        e.module,
				Function:      actionFunctions[action],
				Resource:      e.resource,
				Action:        action,
				RequiredLevel: actionLevels[action],
			})
		}
	}
	return NewCatalog(perms)
}
