package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/OctaHive/octabot/internal/domain"
	"github.com/OctaHive/octabot/internal/errs"
)

const userColumns = `id, username, role, email, password, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.Role, &u.Email, &u.Password, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("%w: scan user: %v", errs.ErrStore, err)
	}
	return &u, nil
}

// CreateUser inserts a new user. Password must already be bcrypt-hashed by
// the caller (internal/auth); the store never hashes on its own.
func (s *Store) CreateUser(ctx context.Context, u domain.User) (*domain.User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, username, role, email, password, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING `+userColumns,
		u.ID, u.Username, u.Role, u.Email, u.Password,
	)
	created, err := scanUser(row)
	if err != nil {
		var pgErr interface{ SQLState() string }
		if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
			return nil, fmt.Errorf("%w: username or email taken", errs.ErrConflict)
		}
		return nil, err
	}
	return created, nil
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	return scanUser(row)
}

// GetUserByUsername resolves a user for login, case-insensitively.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username)=lower($1)`, username)
	return scanUser(row)
}

// ListUsers returns every user, most recently created first.
func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list users: %v", errs.ErrStore, err)
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// UpdateUser updates a user's mutable profile fields (role, email and,
// when passwordHash is non-empty, their password). Username is immutable
// after creation.
func (s *Store) UpdateUser(ctx context.Context, id uuid.UUID, role domain.Role, email *string, passwordHash string) (*domain.User, error) {
	var row pgx.Row
	if passwordHash != "" {
		row = s.pool.QueryRow(ctx, `
			UPDATE users SET role=$2, email=$3, password=$4, updated_at=now()
			WHERE id=$1
			RETURNING `+userColumns, id, role, email, passwordHash)
	} else {
		row = s.pool.QueryRow(ctx, `
			UPDATE users SET role=$2, email=$3, updated_at=now()
			WHERE id=$1
			RETURNING `+userColumns, id, role, email)
	}
	return scanUser(row)
}

// DeleteUser removes a user by id.
func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("%w: delete user: %v", errs.ErrStore, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
