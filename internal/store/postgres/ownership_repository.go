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

	"github.com/jackc/pgx/v5"
	"github.com/lectern/lectern/internal/authz"
)

// ownerQueries maps resource types to the query returning their owner.
// Table names never come from callers.
var ownerQueries = map[string]string{
	"course":     `SELECT owner_id FROM courses WHERE id = $1`,
	"blog":       `SELECT owner_id FROM blogs WHERE id = $1`,
	"internship": `SELECT owner_id FROM internships WHERE id = $1`,
	"quiz":       `SELECT owner_id FROM quizzes WHERE id = $1`,
}

// OwnershipRepository implements authz.OwnerLookup over the content tables
type OwnershipRepository struct {
	db *DB
}

// NewOwnershipRepository creates a new ownership repository
func NewOwnershipRepository(db *DB) *OwnershipRepository {
	return &OwnershipRepository{db: db}
}

// OwnerOf returns the owner of the resource. Unknown resource types and
// missing rows both yield authz.ErrResourceNotFound.
func (r *OwnershipRepository) OwnerOf(ctx context.Context, resourceType, resourceID string) (string, error) {
	query, ok := ownerQueries[resourceType]
	if !ok {
		return "", authz.ErrResourceNotFound
	}

	var owner string
	if err := r.db.pool.QueryRow(ctx, query, resourceID).Scan(&owner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", authz.ErrResourceNotFound
		}
		return "", fmt.Errorf("failed to look up %s owner: %w", resourceType, err)
	}
	return owner, nil
}
