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

// Package memory provides process-local implementations of the store
// interfaces for tests and single-node development runs.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/lectern/lectern/internal/authz"
	"github.com/lectern/lectern/internal/identity"
	"github.com/lectern/lectern/internal/rbac"
)

// UserRepository implements identity.UserRepository in memory. Each
// UpdatePrivileges call holds the repository lock for the whole
// read-modify-write.
type UserRepository struct {
	mu    sync.Mutex
	users map[string]*identity.User
	order []string
}

// NewUserRepository creates an empty repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]*identity.User)}
}

// Create persists a new user
func (r *UserRepository) Create(_ context.Context, user *identity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; ok {
		return identity.ErrUserAlreadyExists
	}
	for _, u := range r.users {
		if u.Email == user.Email {
			return identity.ErrUserAlreadyExists
		}
	}
	r.users[user.ID] = cloneUser(user)
	r.order = append(r.order, user.ID)
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(_ context.Context, id string) (*identity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return cloneUser(u), nil
}

// UpdatePrivileges applies fn to a copy of the stored user and saves the
// result if fn succeeds.
func (r *UserRepository) UpdatePrivileges(_ context.Context, id string, fn func(*identity.User) error) (*identity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	u := cloneUser(stored)
	if err := fn(u); err != nil {
		return nil, err
	}

	stored.Role = u.Role
	stored.Roles = slices.Clone(u.Roles)
	stored.ExtraPermissions = slices.Clone(u.ExtraPermissions)
	stored.Permissions = slices.Clone(u.Permissions)
	stored.EffectivePermissions = slices.Clone(u.EffectivePermissions)
	stored.UpdatedAt = u.UpdatedAt
	return cloneUser(stored), nil
}

// List retrieves users matching the filter in insertion order
func (r *UserRepository) List(_ context.Context, filter identity.UserFilter) ([]*identity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*identity.User
	for _, id := range r.order {
		u := r.users[id]
		if filter.Role != "" && !u.HasRole(filter.Role) {
			continue
		}
		if filter.Permission != "" && !slices.Contains(u.EffectivePermissions, filter.Permission) {
			continue
		}
		matched = append(matched, u)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*identity.User{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	out := make([]*identity.User, len(matched))
	for i, u := range matched {
		out[i] = cloneUser(u)
	}
	return out, nil
}

func cloneUser(u *identity.User) *identity.User {
	c := *u
	c.Roles = slices.Clone(u.Roles)
	c.ExtraPermissions = slices.Clone(u.ExtraPermissions)
	c.Permissions = slices.Clone(u.Permissions)
	c.EffectivePermissions = slices.Clone(u.EffectivePermissions)
	return &c
}

// OwnershipRepository records resource owners in memory.
type OwnershipRepository struct {
	mu     sync.RWMutex
	owners map[string]string
}

// NewOwnershipRepository creates an empty ownership index.
func NewOwnershipRepository() *OwnershipRepository {
	return &OwnershipRepository{owners: make(map[string]string)}
}

// SetOwner records ownerID as the owner of the resource.
func (r *OwnershipRepository) SetOwner(resourceType, resourceID, ownerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[resourceType+"/"+resourceID] = ownerID
}

// OwnerOf returns the owner of the resource, or ErrResourceNotFound.
func (r *OwnershipRepository) OwnerOf(_ context.Context, resourceType, resourceID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[resourceType+"/"+resourceID]
	if !ok {
		return "", authz.ErrResourceNotFound
	}
	return owner, nil
}

// RoleRepository keeps role definitions in memory.
type RoleRepository struct {
	mu    sync.RWMutex
	roles map[rbac.Role]rbac.Definition
}

// NewRoleRepository creates an empty role mirror.
func NewRoleRepository() *RoleRepository {
	return &RoleRepository{roles: make(map[rbac.Role]rbac.Definition)}
}

// Seed upserts every definition by name.
func (r *RoleRepository) Seed(_ context.Context, defs []rbac.Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range defs {
		d.Permissions = slices.Clone(d.Permissions)
		r.roles[d.Name] = d
	}
	return nil
}

// List returns the stored definitions ordered by hierarchy level.
func (r *RoleRepository) List(_ context.Context) ([]rbac.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]rbac.Definition, 0, len(r.roles))
	for _, d := range r.roles {
		d.Permissions = slices.Clone(d.Permissions)
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}
