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

package rbac

import (
	"errors"
	"fmt"
)

// Configuration errors
var (
	ErrUnknownRole       = errors.New("unknown role")
	ErrUnknownPermission = errors.New("unknown permission")
)

// Definition describes one role as exposed to callers and persisted in the roles table.
type Definition struct {
	Name        Role         `json:"name"`
	Level       int          `json:"level"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`
}

// Table maps roles to their permission sets. A Table is immutable once built.
type Table struct {
	perms map[Role]PermissionSet
}

var defaultTable = func() *Table {
	t, err := NewTable(nil)
	if err != nil {
		panic(fmt.Sprintf("rbac: invalid default role table: %v", err))
	}
	return t
}()

// DefaultTable returns the process-wide table built from the declared role mappings.
func DefaultTable() *Table {
	return defaultTable
}

// NewTable builds a table from the declared mappings, replacing the set of any
// role present in overrides. Overrides for RoleSuperAdmin are ignored: it always
// holds the full catalog.
func NewTable(overrides map[Role][]Permission) (*Table, error) {
	t := &Table{perms: make(map[Role]PermissionSet, len(hierarchy))}
	for role, perms := range defaultPermissions {
		t.perms[role] = NewPermissionSet(perms...)
	}

	for role, perms := range overrides {
		if !role.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
		}
		if role == RoleSuperAdmin {
			continue
		}
		for _, p := range perms {
			if !p.Valid() {
				return nil, fmt.Errorf("%w: %q for role %q", ErrUnknownPermission, p, role)
			}
		}
		t.perms[role] = NewPermissionSet(perms...)
	}

	t.perms[RoleSuperAdmin] = NewPermissionSet(AllPermissions()...)
	return t, nil
}

// PermissionsFor returns the declared set for a role. Unknown roles get an empty set.
func (t *Table) PermissionsFor(role Role) PermissionSet {
	set, ok := t.perms[role]
	if !ok {
		return PermissionSet{}
	}
	return set.Clone()
}

// PermissionsForRoles returns the union of the declared sets of every role.
func (t *Table) PermissionsForRoles(roles []Role) PermissionSet {
	out := PermissionSet{}
	for _, r := range roles {
		if set, ok := t.perms[r]; ok {
			out.Add(set.Sorted()...)
		}
	}
	return out
}

// Definitions returns every role in hierarchy order.
func (t *Table) Definitions() []Definition {
	defs := make([]Definition, 0, len(hierarchy))
	for i, r := range hierarchy {
		defs = append(defs, Definition{
			Name:        r,
			Level:       i,
			Description: roleDescriptions[r],
			Permissions: t.perms[r].Sorted(),
		})
	}
	return defs
}

// OverridesFromDefinitions converts persisted definitions into the overrides
// form accepted by NewTable.
func OverridesFromDefinitions(defs []Definition) map[Role][]Permission {
	out := make(map[Role][]Permission, len(defs))
	for _, d := range defs {
		out[d.Name] = append([]Permission(nil), d.Permissions...)
	}
	return out
}
