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

// Package authz resolves effective permissions and evaluates the
// authorization gates applied to every protected operation.
package authz

import (
	"github.com/lectern/lectern/internal/identity"
	"github.com/lectern/lectern/internal/rbac"
)

// Resolver computes effective permissions from a role table. It holds no
// per-principal state.
type Resolver struct {
	table *rbac.Table
}

// NewResolver creates a resolver over table. A nil table means rbac.DefaultTable.
func NewResolver(table *rbac.Table) *Resolver {
	if table == nil {
		table = rbac.DefaultTable()
	}
	return &Resolver{table: table}
}

// Table returns the role table the resolver reads.
func (r *Resolver) Table() *rbac.Table {
	return r.table
}

// Resolve returns the union of the sets of every assigned role, the extra
// grants and any legacy manual permissions. A super-admin always resolves to
// the full catalog.
func (r *Resolver) Resolve(u *identity.User) rbac.PermissionSet {
	if u == nil {
		return rbac.PermissionSet{}
	}
	if u.HasRole(rbac.RoleSuperAdmin) {
		return rbac.NewPermissionSet(rbac.AllPermissions()...)
	}

	set := r.table.PermissionsForRoles(u.AssignedRoles())
	set.Add(u.ExtraPermissions...)
	set.Add(u.Permissions...)
	return set
}

// RoleGranted returns the union of the sets of the user's assigned roles only.
func (r *Resolver) RoleGranted(u *identity.User) rbac.PermissionSet {
	if u == nil {
		return rbac.PermissionSet{}
	}
	return r.table.PermissionsForRoles(u.AssignedRoles())
}

// RecomputeEffectivePermissions refreshes u.EffectivePermissions. Call it
// after any change to roles, extra or legacy permissions and before saving.
func (r *Resolver) RecomputeEffectivePermissions(u *identity.User) {
	u.EffectivePermissions = r.Resolve(u).Sorted()
}

// Has reports whether u holds p.
func (r *Resolver) Has(u *identity.User, p rbac.Permission) bool {
	return r.Resolve(u).Has(p)
}

// HasAny reports whether u holds at least one of perms. It is false for an
// empty list.
func (r *Resolver) HasAny(u *identity.User, perms ...rbac.Permission) bool {
	if len(perms) == 0 {
		return false
	}
	set := r.Resolve(u)
	for _, p := range perms {
		if set.Has(p) {
			return true
		}
	}
	return false
}

// HasAll reports whether u holds every one of perms. It is true for an
// empty list.
func (r *Resolver) HasAll(u *identity.User, perms ...rbac.Permission) bool {
	return len(r.Missing(u, perms...)) == 0
}

// Missing returns the entries of perms that u does not hold, in input order.
func (r *Resolver) Missing(u *identity.User, perms ...rbac.Permission) []rbac.Permission {
	set := r.Resolve(u)
	var missing []rbac.Permission
	for _, p := range perms {
		if !set.Has(p) {
			missing = append(missing, p)
		}
	}
	return missing
}
