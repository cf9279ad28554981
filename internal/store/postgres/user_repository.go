// Copyright 2026 The Lectern Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lectern/lectern/internal/identity"
	"github.com/lectern/lectern/internal/rbac"
)

const uniqueViolation = "23505"

const userColumns = `id, email, display_name, role, roles, extra_permissions,
	permissions, effective_permissions, created_at, updated_at`

// UserRepository implements identity.UserRepository
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *identity.User) error {
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO users (
			id, email, display_name, role, roles, extra_permissions,
			permissions, effective_permissions, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		user.ID, user.Email, user.DisplayName, string(user.Role),
		toStrings(user.Roles), toStrings(user.ExtraPermissions),
		toStrings(user.Permissions), toStrings(user.EffectivePermissions),
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return identity.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*identity.User, error) {
	row := r.db.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpdatePrivileges locks the user row for the duration of fn so concurrent
// privilege changes to the same user serialize.
func (r *UserRepository) UpdatePrivileges(ctx context.Context, id string, fn func(*identity.User) error) (*identity.User, error) {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}

	if err := fn(user); err != nil {
		return nil, err
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = time.Now()
	}

	_, err = tx.Exec(ctx, `
		UPDATE users SET
			role = $2,
			roles = $3,
			extra_permissions = $4,
			permissions = $5,
			effective_permissions = $6,
			updated_at = $7
		WHERE id = $1
	`,
		user.ID, string(user.Role), toStrings(user.Roles),
		toStrings(user.ExtraPermissions), toStrings(user.Permissions),
		toStrings(user.EffectivePermissions), user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update user privileges: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit privilege update: %w", err)
	}
	return user, nil
}

// List retrieves users matching the filter ordered by creation time
func (r *UserRepository) List(ctx context.Context, filter identity.UserFilter) ([]*identity.User, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE ($1 = '' OR role = $1 OR $1 = ANY(roles))
		  AND ($2 = '' OR $2 = ANY(effective_permissions))
		ORDER BY created_at, id
		LIMIT NULLIF($3::bigint, 0) OFFSET $4
	`, string(filter.Role), string(filter.Permission), filter.Limit, max(filter.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*identity.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

func scanUser(row pgx.Row) (*identity.User, error) {
	var (
		user                             identity.User
		role                             string
		roles, extras, legacy, effective []string
	)
	err := row.Scan(
		&user.ID, &user.Email, &user.DisplayName, &role, &roles, &extras,
		&legacy, &effective, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Role = rbac.Role(role)
	user.Roles = fromStrings[rbac.Role](roles)
	user.ExtraPermissions = fromStrings[rbac.Permission](extras)
	user.Permissions = fromStrings[rbac.Permission](legacy)
	user.EffectivePermissions = fromStrings[rbac.Permission](effective)
	return &user, nil
}

// toStrings never returns nil so array columns stay NOT NULL.
func toStrings[T ~string](in []T) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		out = append(out, string(v))
	}
	return out
}

func fromStrings[T ~string](in []string) []T {
	if len(in) == 0 {
		return nil
	}
	out := make([]T, 0, len(in))
	for _, v := range in {
		if v != "" {
			out = append(out, T(v))
		}
	}
	return out
}
