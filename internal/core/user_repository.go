package core

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

type UserStorer interface {
	FindByUID(ctx context.Context, uid string) (*User, error)
	Create(ctx context.Context, user *User) error
	Find(ctx context.Context, id string) (*User, error)
	AuthAdminUser(ctx context.Context, email string, password string) (*User, error)
}

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

const userColumns = `id, uid, email, name, is_admin, created_at`

func (r *UserRepository) Find(ctx context.Context, id string) (*User, error) {
	user := &User{}

	err := r.db.GetContext(ctx, user, `SELECT `+userColumns+` FROM users WHERE id = $1 LIMIT 1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	return user, nil
}

func (r *UserRepository) FindByUID(ctx context.Context, uid string) (*User, error) {
	user := &User{}

	err := r.db.GetContext(ctx, user, `SELECT `+userColumns+` FROM users WHERE uid = $1 LIMIT 1`, uid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	return user, nil
}

// Create inserts the user or, when the uid is taken, loads the stored row.
func (r *UserRepository) Create(ctx context.Context, user *User) error {
	return r.db.GetContext(ctx, user, `INSERT INTO users (id, uid, email, name, is_admin, created_at)
		VALUES ($1, $2, $3, $4, false, $5)
		ON CONFLICT (uid) DO UPDATE SET uid = EXCLUDED.uid
		RETURNING `+userColumns,
		user.ID, user.UID, user.Email, user.Name, user.CreatedAt,
	)
}

// AuthAdminUser returns nil without error when the credentials don't match
func (r *UserRepository) AuthAdminUser(ctx context.Context, email string, password string) (*User, error) {
	u := &User{}
	err := r.db.GetContext(ctx, u, `SELECT `+userColumns+` FROM users
		WHERE password = crypt($1, password) AND lower(email) = lower($2) AND is_admin LIMIT 1`,
		password,
		email,
	)
	if err != nil {
		if err != sql.ErrNoRows {
			return nil, err
		}
		return nil, nil
	}

	return u, nil
}
