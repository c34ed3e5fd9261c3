package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veeduria/veeduria-api/internal/platform/db"
	"github.com/veeduria/veeduria-api/internal/shared"
)

const txIsoLevel = pgx.ReadCommitted

const userColumns = `id, name, surname, email, document_number, document_type, primary_role, status, password_hash, created_at, updated_at`

// unique constraint name -> request field
var uniqueFields = map[string]string{
	"uq_users_email":           "email",
	"uq_users_document_number": "document_number",
}

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// WithTx wraps callback in a read-committed transaction; callers lock the rows they depend on.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxLevel(ctx, r.pool, txIsoLevel, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

// Get returns user id with its memberships.
func (r *PGRepository) Get(ctx context.Context, id int64) (User, error) {
	user, err := getUser(ctx, r.pool, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return User{}, err
	}
	user.Memberships, err = loadMemberships(ctx, r.pool, id)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

type txRepo struct {
	q db.Querier
}

func (t *txRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	return exists, err
}

func (t *txRepo) DocumentExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE document_number = $1)`, number).Scan(&exists)
	return exists, err
}

// Insert maps a lost uniqueness race back to the offending field.
func (t *txRepo) Insert(ctx context.Context, user User) (User, error) {
	created, err := scanUser(t.q.QueryRow(ctx, `INSERT INTO users
		(name, surname, email, document_number, document_type, primary_role, status, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+userColumns,
		user.Name, user.Surname, user.Email, user.DocumentNumber, string(user.DocumentType),
		string(user.PrimaryRole), string(user.Status), user.PasswordHash))
	if err != nil {
		if constraint, ok := db.ConstraintViolated(err); ok {
			if field, known := uniqueFields[constraint]; known {
				return User{}, shared.Invalid(field, "is already registered")
			}
		}
		return User{}, err
	}
	created.Memberships = []Membership{}
	return created, nil
}

func (t *txRepo) LockUser(ctx context.Context, id int64) (User, error) {
	return getUser(ctx, t.q, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
}

func (t *txRepo) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := t.q.Exec(ctx, `UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(auditEntity, id)
	}
	return nil
}

func (t *txRepo) ShareRole(ctx context.Context, roleID int64) error {
	var id int64
	err := t.q.QueryRow(ctx, `SELECT id FROM roles WHERE id = $1 FOR SHARE`, roleID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.NotFound("role", roleID)
	}
	return err
}

func (t *txRepo) RequestMembership(ctx context.Context, userID, roleID, requestedBy int64) (Membership, error) {
	var m Membership
	err := t.q.QueryRow(ctx, `INSERT INTO user_roles (user_id, role_id, assigned_by, assigned_at, active)
		VALUES ($1, $2, $3, NOW(), FALSE)
		ON CONFLICT (user_id, role_id) DO UPDATE SET assigned_by = user_roles.assigned_by
		RETURNING role_id, assigned_by, assigned_at, active`, userID, roleID, requestedBy).
		Scan(&m.RoleID, &m.AssignedBy, &m.AssignedAt, &m.Active)
	return m, err
}

func (t *txRepo) UpsertMembership(ctx context.Context, userID, roleID, assignedBy int64) (Membership, error) {
	var m Membership
	err := t.q.QueryRow(ctx, `INSERT INTO user_roles (user_id, role_id, assigned_by, assigned_at, active)
		VALUES ($1, $2, $3, NOW(), TRUE)
		ON CONFLICT (user_id, role_id) DO UPDATE
		SET assigned_by = EXCLUDED.assigned_by, assigned_at = EXCLUDED.assigned_at, active = TRUE
		RETURNING role_id, assigned_by, assigned_at, active`, userID, roleID, assignedBy).
		Scan(&m.RoleID, &m.AssignedBy, &m.AssignedAt, &m.Active)
	return m, err
}

func (t *txRepo) DeactivateMembership(ctx context.Context, userID, roleID int64) (bool, error) {
	tag, err := t.q.Exec(ctx, `UPDATE user_roles SET active = FALSE
		WHERE user_id = $1 AND role_id = $2 AND active`, userID, roleID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func getUser(ctx context.Context, q db.Querier, query string, id int64) (User, error) {
	user, err := scanUser(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.NotFound(auditEntity, id)
		}
		return User{}, err
	}
	return user, nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		u                           User
		docType, primary, statusStr string
	)
	err := row.Scan(&u.ID, &u.Name, &u.Surname, &u.Email, &u.DocumentNumber, &docType, &primary,
		&statusStr, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	u.DocumentType = DocumentType(docType)
	u.PrimaryRole = shared.PrimaryRole(primary)
	u.Status = Status(statusStr)
	return u, nil
}

func loadMemberships(ctx context.Context, q db.Querier, userID int64) ([]Membership, error) {
	rows, err := q.Query(ctx, `SELECT role_id, assigned_by, assigned_at, active
		FROM user_roles WHERE user_id = $1 ORDER BY role_id`, userID)
	if err != nil {
		return nil, err
	}
	memberships, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Membership])
	if err != nil {
		return nil, err
	}
	if memberships == nil {
		memberships = []Membership{}
	}
	return memberships, nil
}
