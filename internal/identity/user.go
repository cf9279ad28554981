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

package identity

import (
	"context"
	"errors"
	"time"

	"github.com/lectern/lectern/internal/rbac"
)

// Domain errors
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrInvalidEmail      = errors.New("invalid email address")
)

// User is a principal subject to authorization checks.
//
// A user is either in single-role mode (Role set, Roles empty) or in
// multi-role mode (Roles non-empty, Role mirrors the most senior entry).
// EffectivePermissions is the materialized union of the role sets,
// ExtraPermissions and legacy Permissions, recomputed before every save.
type User struct {
	ID          string
	Email       string
	DisplayName string

	Role  rbac.Role
	Roles []rbac.Role

	// ExtraPermissions are grants beyond any role.
	ExtraPermissions []rbac.Permission
	// Permissions holds manually assigned permissions carried by legacy records.
	Permissions          []rbac.Permission
	EffectivePermissions []rbac.Permission

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AssignedRoles returns every role the user holds. Single-role users yield a
// one-element slice.
func (u *User) AssignedRoles() []rbac.Role {
	if len(u.Roles) > 0 {
		return append([]rbac.Role(nil), u.Roles...)
	}
	if u.Role == "" {
		return nil
	}
	return []rbac.Role{u.Role}
}

// HighestRole returns the most senior role the user holds.
func (u *User) HighestRole() rbac.Role {
	return rbac.HighestRole(u.AssignedRoles())
}

// HasRole reports whether the user holds role.
func (u *User) HasRole(role rbac.Role) bool {
	for _, r := range u.AssignedRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// IsMultiRole reports whether the record uses the roles list.
func (u *User) IsMultiRole() bool {
	return len(u.Roles) > 0
}

// UserFilter narrows List results. Zero values mean "no constraint".
type UserFilter struct {
	Role       rbac.Role
	Permission rbac.Permission
	Limit      int
	Offset     int
}

// UserRepository defines the interface for principal persistence
type UserRepository interface {
	// Create persists a new user
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id string) (*User, error)

	// UpdatePrivileges loads the user, applies fn and stores the resulting
	// role, roles, extra, legacy and effective permission fields. The whole
	// read-modify-write is atomic with respect to other updates of the same
	// user. If fn returns an error nothing is written.
	UpdatePrivileges(ctx context.Context, id string, fn func(user *User) error) (*User, error)

	// List retrieves users matching the filter, ordered by creation time
	List(ctx context.Context, filter UserFilter) ([]*User, error)
}
