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
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lectern/lectern/internal/audit"
	"github.com/lectern/lectern/internal/authz"
	"github.com/lectern/lectern/internal/config"
	"github.com/lectern/lectern/internal/identity"
	"github.com/lectern/lectern/internal/observability/logger"
	"github.com/lectern/lectern/internal/rbac"
	"github.com/lectern/lectern/internal/store/memory"
	"github.com/lectern/lectern/internal/store/postgres"
)

// roleStore persists the role mirror.
type roleStore interface {
	Seed(ctx context.Context, defs []rbac.Definition) error
	List(ctx context.Context) ([]rbac.Definition, error)
}

type stores struct {
	db     *postgres.DB
	users  identity.UserRepository
	roles  roleStore
	owners authz.OwnerLookup
}

func (s *stores) close() {
	if s.db != nil {
		s.db.Close()
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Database.Driver == config.DriverMemory {
		slog.Warn("using in-memory storage; data is lost on exit", logger.Component("store"))
		return &stores{
			users:  memory.NewUserRepository(),
			roles:  memory.NewRoleRepository(),
			owners: memory.NewOwnershipRepository(),
		}, nil
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("connected to database", logger.Component("store"))
	return &stores{
		db:     db,
		users:  postgres.NewUserRepository(db),
		roles:  postgres.NewRoleRepository(db),
		owners: postgres.NewOwnershipRepository(db),
	}, nil
}

func openDB(ctx context.Context, cfg *config.Config) (*postgres.DB, error) {
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// openAuditLogger always writes audit events to slog and, when a Redis
// address is configured, also appends them to the audit stream.
func openAuditLogger(ctx context.Context, cfg *config.Config) (audit.Logger, func(), error) {
	slogAudit := audit.NewSlogLogger(nil)
	if cfg.Audit.RedisAddr == "" {
		return slogAudit, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Audit.RedisAddr,
		Password: cfg.Audit.RedisPassword,
		DB:       cfg.Audit.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to audit redis: %w", err)
	}

	slog.Info("publishing audit events to redis stream", logger.Component("audit"), slog.String("stream", cfg.Audit.Stream))
	stream := audit.NewStreamLogger(client, cfg.Audit.Stream, cfg.Audit.StreamMaxLen)
	closeFn := func() {
		if err := client.Close(); err != nil {
			slog.Warn("failed to close audit redis client", logger.Error(err))
		}
	}
	return audit.NewMultiLogger(slogAudit, stream), closeFn, nil
}

// loadRoleTable seeds the role mirror when configured and builds the table
// used for resolution. A role file wins over everything and is mirrored as
// is. Otherwise, with overrides enabled, an existing mirror is never
// overwritten by the compiled-in defaults.
func loadRoleTable(ctx context.Context, cfg *config.Config, roles roleStore, auditLogger audit.Logger) (*rbac.Table, error) {
	if cfg.RBAC.RoleFile != "" {
		overrides, err := rbac.LoadOverridesFile(cfg.RBAC.RoleFile)
		if err != nil {
			return nil, err
		}
		table, err := rbac.NewTable(overrides)
		if err != nil {
			return nil, fmt.Errorf("invalid role file %s: %w", cfg.RBAC.RoleFile, err)
		}
		if cfg.RBAC.SeedOnStart {
			if err := seedRoles(ctx, roles, table.Definitions(), auditLogger); err != nil {
				return nil, err
			}
		}
		slog.Info("using role file", logger.Component("rbac"), slog.String("path", cfg.RBAC.RoleFile))
		return table, nil
	}

	existing, err := roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load role definitions: %w", err)
	}

	if cfg.RBAC.SeedOnStart && (!cfg.RBAC.RoleOverrides || len(existing) == 0) {
		defs := rbac.DefaultTable().Definitions()
		if err := seedRoles(ctx, roles, defs, auditLogger); err != nil {
			return nil, err
		}
		existing = defs
	}

	if !cfg.RBAC.RoleOverrides || len(existing) == 0 {
		return rbac.DefaultTable(), nil
	}

	table, err := rbac.NewTable(rbac.OverridesFromDefinitions(existing))
	if err != nil {
		return nil, fmt.Errorf("invalid persisted role definitions: %w", err)
	}
	slog.Info("using persisted role definitions", logger.Component("rbac"), slog.Int("roles", len(existing)))
	return table, nil
}

func seedRoles(ctx context.Context, roles roleStore, defs []rbac.Definition, auditLogger audit.Logger) error {
	if err := roles.Seed(ctx, defs); err != nil {
		return fmt.Errorf("failed to seed roles: %w", err)
	}
	auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRolesSeeded,
		ActorID:  audit.ActorSystem,
		Resource: audit.ResourceRole,
		Metadata: map[string]any{audit.AttrCount: len(defs)},
	})
	return nil
}
