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

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/lectern/lectern/internal/audit"
	"github.com/lectern/lectern/internal/config"
	"github.com/lectern/lectern/internal/rbac"
	"github.com/lectern/lectern/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates role table selection and seeding at startup.
// Scope: Unit Test
// Security: Role definitions must not be silently replaced
// Expected: Defaults are seeded into an empty mirror; with overrides enabled a customised mirror is kept and used.
// Test Case ID: CMD-01
func TestLoadRoleTable(t *testing.T) {
	ctx := context.Background()

	t.Run("seeds defaults", func(t *testing.T) {
		roles := memory.NewRoleRepository()
		cfg := &config.Config{RBAC: config.RBACConfig{SeedOnStart: true}}

		table, err := loadRoleTable(ctx, cfg, roles, audit.NopLogger{})
		require.NoError(t, err)
		assert.Same(t, rbac.DefaultTable(), table)

		stored, err := roles.List(ctx)
		require.NoError(t, err)
		assert.Len(t, stored, len(rbac.AllRoles()))
	})

	t.Run("keeps persisted overrides", func(t *testing.T) {
		roles := memory.NewRoleRepository()
		defs := rbac.DefaultTable().Definitions()
		for i := range defs {
			if defs[i].Name == rbac.RoleStudent {
				defs[i].Permissions = append(defs[i].Permissions, rbac.PermAnalyticsView)
			}
		}
		require.NoError(t, roles.Seed(ctx, defs))
		cfg := &config.Config{RBAC: config.RBACConfig{SeedOnStart: true, RoleOverrides: true}}

		table, err := loadRoleTable(ctx, cfg, roles, audit.NopLogger{})
		require.NoError(t, err)
		assert.True(t, table.PermissionsFor(rbac.RoleStudent).Has(rbac.PermAnalyticsView))
		assert.False(t, rbac.DefaultTable().PermissionsFor(rbac.RoleStudent).Has(rbac.PermAnalyticsView))
	})

	t.Run("role file wins and is mirrored", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "roles.yaml")
		require.NoError(t, os.WriteFile(path, []byte("version: v1\nroles:\n  student: [course:view, analytics:view]\n"), 0o600))

		roles := memory.NewRoleRepository()
		cfg := &config.Config{RBAC: config.RBACConfig{SeedOnStart: true, RoleOverrides: true, RoleFile: path}}

		table, err := loadRoleTable(ctx, cfg, roles, audit.NopLogger{})
		require.NoError(t, err)
		assert.True(t, table.PermissionsFor(rbac.RoleStudent).Equal(rbac.NewPermissionSet(rbac.PermCourseView, rbac.PermAnalyticsView)))

		stored, err := roles.List(ctx)
		require.NoError(t, err)
		for _, d := range stored {
			if d.Name == rbac.RoleStudent {
				assert.ElementsMatch(t, []rbac.Permission{rbac.PermCourseView, rbac.PermAnalyticsView}, d.Permissions)
			}
		}
	})

	t.Run("invalid role file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "roles.yaml")
		require.NoError(t, os.WriteFile(path, []byte("roles:\n  student: [course:fly]\n"), 0o600))
		cfg := &config.Config{RBAC: config.RBACConfig{RoleFile: path}}

		_, err := loadRoleTable(ctx, cfg, memory.NewRoleRepository(), audit.NopLogger{})
		assert.ErrorIs(t, err, rbac.ErrUnknownPermission)
	})
}

// TestPurpose: Validates audit sink selection from configuration.
// Scope: Unit Test
// Security: Audit events reach every configured sink
// Expected: Without a Redis address only slog is used; with one, events are also appended to the stream.
// Test Case ID: CMD-02
func TestOpenAuditLogger(t *testing.T) {
	ctx := context.Background()

	t.Run("slog only", func(t *testing.T) {
		l, closeFn, err := openAuditLogger(ctx, &config.Config{})
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &audit.SlogLogger{}, l)
	})

	t.Run("with stream", func(t *testing.T) {
		mini := miniredis.RunT(t)
		cfg := &config.Config{Audit: config.AuditConfig{RedisAddr: mini.Addr(), Stream: "audit:cmd"}}

		l, closeFn, err := openAuditLogger(ctx, cfg)
		require.NoError(t, err)
		defer closeFn()
		require.IsType(t, audit.MultiLogger{}, l)

		l.Log(ctx, audit.Event{Type: audit.TypeRolesSeeded, ActorID: audit.ActorSystem, Resource: audit.ResourceRole})
		assert.True(t, mini.Exists("audit:cmd"))
	})

	t.Run("unreachable redis", func(t *testing.T) {
		mini := miniredis.RunT(t)
		addr := mini.Addr()
		mini.Close()

		_, _, err := openAuditLogger(ctx, &config.Config{Audit: config.AuditConfig{RedisAddr: addr, Stream: "audit:cmd"}})
		assert.Error(t, err)
	})
}
