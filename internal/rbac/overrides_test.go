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

package rbac_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lectern/lectern/internal/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates that a role file produces overrides accepted by the table builder.
// Scope: Unit Test
// Security: Role definitions are operator-editable without a deployment
// Expected: Listed roles are replaced, unlisted roles keep their defaults and super-admin keeps the full catalog.
// Test Case ID: RBAC-06
func TestParseOverrides(t *testing.T) {
	const doc = `
version: v1
roles:
  student:
    - course:view
    - course:enroll
    - analytics:view
  super-admin:
    - course:view
`
	overrides, err := rbac.ParseOverrides(strings.NewReader(doc))
	require.NoError(t, err)

	table, err := rbac.NewTable(overrides)
	require.NoError(t, err)

	assert.True(t, table.PermissionsFor(rbac.RoleStudent).Equal(rbac.NewPermissionSet(
		rbac.PermCourseView, rbac.PermCourseEnroll, rbac.PermAnalyticsView,
	)))
	assert.True(t, table.PermissionsFor(rbac.RoleInstructor).Equal(rbac.DefaultTable().PermissionsFor(rbac.RoleInstructor)))
	assert.Len(t, table.PermissionsFor(rbac.RoleSuperAdmin), len(rbac.AllPermissions()))
}

// TestPurpose: Validates that malformed role files are rejected before any table is built.
// Scope: Unit Test
// Security: Configuration errors fail startup instead of granting unexpected privileges
// Expected: Unknown roles, permissions, fields and versions all return errors; an empty file yields no overrides.
// Test Case ID: RBAC-07
func TestParseOverrides_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"unknown role", "roles:\n  wizard: [course:view]\n", rbac.ErrUnknownRole},
		{"unknown permission", "roles:\n  student: [course:teleport]\n", rbac.ErrUnknownPermission},
		{"unknown field", "rolez:\n  student: [course:view]\n", nil},
		{"bad version", "version: v9\nroles: {}\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rbac.ParseOverrides(strings.NewReader(tt.doc))
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}

	overrides, err := rbac.ParseOverrides(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, overrides)
}

func TestLoadOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roles:\n  author: [blog:view, blog:create]\n"), 0o600))

	overrides, err := rbac.LoadOverridesFile(path)
	require.NoError(t, err)
	assert.Equal(t, []rbac.Permission{rbac.PermBlogView, rbac.PermBlogCreate}, overrides[rbac.RoleAuthor])

	_, err = rbac.LoadOverridesFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
