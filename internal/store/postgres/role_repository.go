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
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lectern/lectern/internal/id"
	"github.com/lectern/lectern/internal/rbac"
)

// RoleRepository mirrors role definitions into the roles table
type RoleRepository struct {
	db *DB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// Seed upserts every definition by name in a single transaction.
func (r *RoleRepository) Seed(ctx context.Context, defs []rbac.Definition) error {
	now := time.Now()
	batch := &pgx.Batch{}
	for _, d := range defs {
		batch.Queue(`
			INSERT INTO roles (id, name, level, description, permissions, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			ON CONFLICT (name) DO UPDATE SET
				level = EXCLUDED.level,
				description = EXCLUDED.description,
				permissions = EXCLUDED.permissions,
				updated_at = EXCLUDED.updated_at
		`, id.NewUUIDv7(), string(d.Name), d.Level, d.Description, toStrings(d.Permissions), now)
	}

	err := pgx.BeginFunc(ctx, r.db.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("failed to seed roles: %w", err)
	}
	return nil
}

// List returns the stored definitions ordered by hierarchy level.
func (r *RoleRepository) List(ctx context.Context) ([]rbac.Definition, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT name, level, description, permissions
		FROM roles
		ORDER BY level
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	defs := []rbac.Definition{}
	for rows.Next() {
		var (
			name  string
			d     rbac.Definition
			perms []string
		)
		if err := rows.Scan(&name, &d.Level, &d.Description, &perms); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		d.Name = rbac.Role(name)
		d.Permissions = fromStrings[rbac.Permission](perms)
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate roles: %w", err)
	}
	return defs, nil
}
