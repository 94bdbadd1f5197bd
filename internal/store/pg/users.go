package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"tiergate.dev/internal/auth"
)

var _ auth.UserStore = (*UserStore)(nil)

// UserStore implements auth.UserStore on the users table.
type UserStore struct {
	db *sqlx.DB
}

func (s *Store) Users() *UserStore { return &UserStore{db: s.db} }

const userColumns = `id, email, password_hash, role, status, token_version, created_at, updated_at`

func (s *UserStore) Create(ctx context.Context, u *auth.User) error {
	if u == nil || u.ID == "" || u.Email == "" {
		return auth.ErrInvalidInput
	}
	row := s.db.QueryRowxContext(ctx, `
		insert into users (id, email, password_hash, role, status, token_version)
		values ($1, $2, $3, $4, $5, $6)
		returning created_at, updated_at
	`, u.ID, strings.ToLower(u.Email), u.PasswordHash, u.Role, u.Status, u.TokenVersion)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		if isCode(err, pgErrUniqueViolation) {
			return auth.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *UserStore) Find(ctx context.Context, id string) (*auth.User, error) {
	var u auth.User
	err := s.db.GetContext(ctx, &u, `select `+userColumns+` from users where id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	var u auth.User
	err := s.db.GetContext(ctx, &u, `select `+userColumns+` from users where email = $1`,
		strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *UserStore) TokenVersion(ctx context.Context, id string) (int64, error) {
	var v int64
	err := s.db.GetContext(ctx, &v, `select token_version from users where id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, auth.ErrNotFound
	}
	return v, err
}

func (s *UserStore) UpdatePassword(ctx context.Context, id, passwordHash string) (int64, error) {
	var v int64
	err := s.db.GetContext(ctx, &v, `
		update users
		set password_hash = $2, token_version = token_version + 1, updated_at = now()
		where id = $1
		returning token_version
	`, id, passwordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, auth.ErrNotFound
	}
	return v, err
}

func (s *UserStore) SetStatus(ctx context.Context, id string, status auth.Status, bumpVersion bool) (*auth.User, error) {
	var u auth.User
	err := s.db.GetContext(ctx, &u, `
		update users
		set status = $2,
			token_version = token_version + case when $3::boolean then 1 else 0 end,
			updated_at = now()
		where id = $1
		returning `+userColumns, id, status, bumpVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
