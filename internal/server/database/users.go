package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const userColumns = `id, login_id, password_hash, name, mail, external,
	admin_flag, disabled_flag, created_at`

// GetUserByLogin retrieves a user by login ID.
func (r *Repository) GetUserByLogin(ctx context.Context, loginID string) (*User, error) {
	u := &User{}
	err := r.db.Pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE login_id = $1", loginID,
	).Scan(
		&u.ID,
		&u.LoginID,
		&u.PasswordHash,
		&u.Name,
		&u.Mail,
		&u.External,
		&u.Admin,
		&u.Disabled,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// ListUsers returns all users ordered by ID.
func (r *Repository) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := r.db.Pool.Query(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u := &User{}
		if err := rows.Scan(
			&u.ID,
			&u.LoginID,
			&u.PasswordHash,
			&u.Name,
			&u.Mail,
			&u.External,
			&u.Admin,
			&u.Disabled,
			&u.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SaveUser upserts a user keyed by login ID. The password hash is only
// rewritten when the new value is non-nil, so external logins re-provisioning
// a row never clear a locally set password.
func (r *Repository) SaveUser(ctx context.Context, u *User) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO users (login_id, password_hash, name, mail, external, admin_flag, disabled_flag, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (login_id) DO UPDATE SET
			name          = EXCLUDED.name,
			mail          = EXCLUDED.mail,
			admin_flag    = EXCLUDED.admin_flag,
			disabled_flag = EXCLUDED.disabled_flag,
			password_hash = COALESCE(EXCLUDED.password_hash, users.password_hash)
	`,
		u.LoginID,
		u.PasswordHash,
		u.Name,
		u.Mail,
		u.External,
		u.Admin,
		u.Disabled,
		u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// DeleteUser removes a user record by ID.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
