package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veeduria/veeduria-api/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (Account, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const findByEmail = `SELECT id, email, password_hash, status FROM users WHERE email = $1`

// FindByEmail fetches the account registered under email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (Account, error) {
	var a Account
	err := r.pool.QueryRow(ctx, findByEmail, email).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.NotFound("account", email)
	}
	if err != nil {
		return Account{}, err
	}
	return a, nil
}

var _ Repository = (*PGRepository)(nil)
