package roles

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veeduria/veeduria-api/internal/platform/db"
	"github.com/veeduria/veeduria-api/internal/shared"
)

// Role mutations lock the role row first; read committed lets the statements
// after that lock see assignments committed while it waited.
const txIsoLevel = pgx.ReadCommitted

const roleColumns = `id, name, description, status, created_at, updated_at`

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// WithTx wraps callback in a read-committed transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxLevel(ctx, r.pool, txIsoLevel, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

// Get fetches a role by ID.
func (r *PGRepository) Get(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.NotFound(auditEntity, id)
		}
		return Role{}, err
	}
	perms, err := loadPermissions(ctx, r.pool, []int64{id})
	if err != nil {
		return Role{}, err
	}
	role.Permissions = orEmpty(perms[id])
	return role, nil
}

// FindMany fetches the existing roles among ids.
func (r *PGRepository) FindMany(ctx context.Context, ids []int64) ([]Role, error) {
	return r.queryRoles(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = ANY($1) ORDER BY id`, ids)
}

// Search matches term against name or description with ILIKE.
func (r *PGRepository) Search(ctx context.Context, term string) ([]Role, error) {
	pattern := "%" + escapeLike(term) + "%"
	return r.queryRoles(ctx, `SELECT `+roleColumns+` FROM roles
		WHERE name ILIKE $1 ESCAPE '\' OR description ILIKE $1 ESCAPE '\'
		ORDER BY name ASC, id ASC`, pattern)
}

// List uses a dynamic ORDER BY; the column comes from the service whitelist.
func (r *PGRepository) List(ctx context.Context, filters ListFilters) ([]Role, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM roles WHERE ($1 = '' OR status = $1)`, string(filters.Status)).Scan(&total); err != nil {
		return nil, 0, err
	}
	if _, ok := sortColumns[filters.SortBy]; !ok {
		return nil, 0, fmt.Errorf("roles: unsupported sort column %q", filters.SortBy)
	}
	dir := "ASC"
	if filters.SortDir == "desc" {
		dir = "DESC"
	}
	page := shared.NewPagination(filters.Page, filters.PerPage, total)
	query := `SELECT ` + roleColumns + ` FROM roles WHERE ($1 = '' OR status = $1)
		ORDER BY ` + filters.SortBy + ` ` + dir + `, id ASC LIMIT $2 OFFSET $3`
	found, err := r.queryRoles(ctx, query, string(filters.Status), page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	return found, total, nil
}

// Stats counts roles by status and active assignments per role.
func (r *PGRepository) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*),
		COUNT(*) FILTER (WHERE status = 'active'),
		COUNT(*) FILTER (WHERE status = 'inactive')
		FROM roles`).Scan(&stats.Total, &stats.Active, &stats.Inactive)
	if err != nil {
		return Stats{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT r.id, r.name, COUNT(ur.user_id) FILTER (WHERE ur.active)
		FROM roles r LEFT JOIN user_roles ur ON ur.role_id = r.id
		GROUP BY r.id, r.name ORDER BY r.name ASC, r.id ASC`)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()
	stats.PerRole = []Assignments{}
	for rows.Next() {
		var a Assignments
		if err := rows.Scan(&a.RoleID, &a.Name, &a.Active); err != nil {
			return Stats{}, err
		}
		stats.PerRole = append(stats.PerRole, a)
	}
	return stats, rows.Err()
}

// Members lists users with an active membership to role id.
func (r *PGRepository) Members(ctx context.Context, id int64) ([]Member, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, shared.NotFound(auditEntity, id)
	}
	rows, err := r.pool.Query(ctx, `SELECT u.id, u.name, u.surname, u.email, ur.assigned_by, ur.assigned_at
		FROM user_roles ur JOIN users u ON u.id = ur.user_id
		WHERE ur.role_id = $1 AND ur.active
		ORDER BY u.surname ASC, u.name ASC, u.id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	members := []Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Name, &m.Surname, &m.Email, &m.AssignedBy, &m.AssignedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *PGRepository) queryRoles(ctx context.Context, query string, args ...any) ([]Role, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	found, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Role, error) {
		return scanRole(row)
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return []Role{}, nil
	}
	ids := make([]int64, len(found))
	for i, role := range found {
		ids[i] = role.ID
	}
	perms, err := loadPermissions(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range found {
		found[i].Permissions = orEmpty(perms[found[i].ID])
	}
	return found, nil
}

type txRepo struct {
	q db.Querier
}

func (t *txRepo) Insert(ctx context.Context, role Role) (Role, error) {
	created, err := scanRole(t.q.QueryRow(ctx, `INSERT INTO roles (name, description, status)
		VALUES ($1, $2, $3) RETURNING `+roleColumns, role.Name, role.Description, string(role.Status)))
	if err != nil {
		return Role{}, err
	}
	created.Permissions = []string{}
	return created, nil
}

func (t *txRepo) LockRole(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(t.q.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.NotFound(auditEntity, id)
		}
		return Role{}, err
	}
	perms, err := loadPermissions(ctx, t.q, []int64{id})
	if err != nil {
		return Role{}, err
	}
	role.Permissions = orEmpty(perms[id])
	return role, nil
}

func (t *txRepo) SaveRole(ctx context.Context, role Role) (Role, error) {
	err := t.q.QueryRow(ctx, `UPDATE roles SET name = $2, description = $3, status = $4, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`, role.ID, role.Name, role.Description, string(role.Status)).Scan(&role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.NotFound(auditEntity, role.ID)
		}
		return Role{}, err
	}
	return role, nil
}

func (t *txRepo) AddPermission(ctx context.Context, id int64, slug string) error {
	_, err := t.q.Exec(ctx, `INSERT INTO role_permissions (role_id, slug) VALUES ($1, $2) ON CONFLICT DO NOTHING`, id, slug)
	return err
}

func (t *txRepo) RemovePermission(ctx context.Context, id int64, slug string) error {
	_, err := t.q.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND slug = $2`, id, slug)
	return err
}

func (t *txRepo) CountActiveAssignments(ctx context.Context, id int64) (int, error) {
	var count int
	err := t.q.QueryRow(ctx, `SELECT COUNT(*) FROM user_roles WHERE role_id = $1 AND active`, id).Scan(&count)
	return count, err
}

func (t *txRepo) Delete(ctx context.Context, id int64) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(auditEntity, id)
	}
	return nil
}

func scanRole(row pgx.Row) (Role, error) {
	var (
		role   Role
		status string
	)
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &status, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return Role{}, err
	}
	role.Status = Status(status)
	return role, nil
}

func loadPermissions(ctx context.Context, q db.Querier, ids []int64) (map[int64][]string, error) {
	rows, err := q.Query(ctx, `SELECT role_id, slug FROM role_permissions WHERE role_id = ANY($1) ORDER BY role_id, slug`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	perms := make(map[int64][]string, len(ids))
	for rows.Next() {
		var (
			id   int64
			slug string
		)
		if err := rows.Scan(&id, &slug); err != nil {
			return nil, err
		}
		perms[id] = append(perms[id], slug)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, set := range perms {
		sort.Strings(set)
	}
	return perms, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func escapeLike(term string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
}
