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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", secret)
	t.Setenv("DB_PASSWORD", "pw")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "lectern", cfg.Database.Database)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.RBAC.SeedOnStart)
	assert.False(t, cfg.RBAC.RoleOverrides)
	assert.Equal(t, 8, cfg.RBAC.BulkConcurrency)
	assert.Equal(t, 10.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 60, cfg.RateLimit.MutationsPerMinute)
	assert.Empty(t, cfg.Audit.RedisAddr)
	assert.Equal(t, "lectern:audit", cfg.Audit.Stream)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lectern.env")
	content := "AUDIT_REDIS_ADDR=localhost:6379\nAUDIT_STREAM=audit:dev\nRATELIMIT_MUTATIONS_PER_MINUTE=5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("ENV_FILE", path)
	t.Setenv("AUTH_JWT_SECRET", secret)
	t.Setenv("DB_DRIVER", DriverMemory)
	// Already set, so the file must not override it.
	t.Setenv("AUDIT_STREAM", "audit:explicit")
	t.Cleanup(func() {
		os.Unsetenv("AUDIT_REDIS_ADDR")
		os.Unsetenv("RATELIMIT_MUTATIONS_PER_MINUTE")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", cfg.Audit.RedisAddr)
	assert.Equal(t, "audit:explicit", cfg.Audit.Stream)
	assert.Equal(t, 5, cfg.RateLimit.MutationsPerMinute)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	t.Setenv("AUTH_JWT_SECRET", secret)
	t.Setenv("DB_DRIVER", DriverMemory)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent.env")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", secret)
	t.Setenv("DB_DRIVER", DriverMemory)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("AUTH_TOKEN_TTL", "15m")
	t.Setenv("RBAC_ROLE_OVERRIDES", "true")
	t.Setenv("RBAC_BULK_CONCURRENCY", "2")
	t.Setenv("OTEL_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 15*time.Minute, cfg.Auth.TokenTTL)
	assert.True(t, cfg.RBAC.RoleOverrides)
	assert.Equal(t, 2, cfg.RBAC.BulkConcurrency)
	assert.True(t, cfg.OTel.Enabled)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing secret", map[string]string{"DB_PASSWORD": "pw"}, "AUTH_JWT_SECRET"},
		{"missing db password", map[string]string{"AUTH_JWT_SECRET": secret}, "DB_PASSWORD"},
		{"unknown driver", map[string]string{"AUTH_JWT_SECRET": secret, "DB_DRIVER": "sqlite"}, "DB_DRIVER"},
		{"bad concurrency", map[string]string{"AUTH_JWT_SECRET": secret, "DB_DRIVER": DriverMemory, "RBAC_BULK_CONCURRENCY": "0"}, "RBAC_BULK_CONCURRENCY"},
		{"negative mutation limit", map[string]string{"AUTH_JWT_SECRET": secret, "DB_DRIVER": DriverMemory, "RATELIMIT_MUTATIONS_PER_MINUTE": "-1"}, "RATELIMIT_MUTATIONS_PER_MINUTE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AUTH_JWT_SECRET", "")
			t.Setenv("DB_PASSWORD", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
