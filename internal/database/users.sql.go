package database

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kusina-pos/api/internal/model"
)

const userColumns = `id, email, full_name, hashed_password, role, active, created_at`

const getUser = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

func (q *Queries) GetUser(ctx context.Context, id uuid.UUID) (model.User, error) {
	u, err := scanUser(q.db.QueryRow(ctx, getUser, id))
	return u, notFound(err)
}

const getUserByEmail = `SELECT ` + userColumns + ` FROM users WHERE email = $1`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	u, err := scanUser(q.db.QueryRow(ctx, getUserByEmail, strings.ToLower(strings.TrimSpace(email))))
	return u, notFound(err)
}

const createUser = `INSERT INTO users (` + userColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (email) DO UPDATE SET
	full_name = EXCLUDED.full_name, hashed_password = EXCLUDED.hashed_password,
	role = EXCLUDED.role, active = EXCLUDED.active
RETURNING ` + userColumns

// CreateUser inserts u, or updates the existing user with the same email.
func (q *Queries) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	return scanUser(q.db.QueryRow(ctx, createUser,
		u.ID,
		strings.ToLower(strings.TrimSpace(u.Email)),
		u.FullName,
		u.HashedPassword,
		u.Role,
		u.Active,
		u.CreatedAt,
	))
}

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.HashedPassword, &u.Role, &u.Active, &u.CreatedAt)
	return u, err
}
