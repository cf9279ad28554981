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
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/lectern/lectern/internal/authn"
	"github.com/lectern/lectern/internal/config"
	"github.com/lectern/lectern/internal/rbac"
)

func runMigrate(ctx context.Context, cfg *config.Config, args []string) error {
	if cfg.Database.Driver != config.DriverPostgres {
		return fmt.Errorf("migrate requires DB_DRIVER=%s", config.DriverPostgres)
	}
	direction := "up"
	if len(args) > 0 {
		direction = args[0]
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	switch direction {
	case "up":
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	case "down":
		if err := db.Rollback(ctx); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown migrate direction %q (want up, down or version)", direction)
	}

	version, dirty, ok, err := db.MigrationVersion()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Schema version: none")
		return nil
	}
	fmt.Printf("Schema version: %d (dirty=%t)\n", version, dirty)
	return nil
}

func runSeedRoles(ctx context.Context, cfg *config.Config) error {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	auditLogger, closeAudit, err := openAuditLogger(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeAudit()

	defs := rbac.DefaultTable().Definitions()
	if err := seedRoles(ctx, st.roles, defs, auditLogger); err != nil {
		return err
	}
	fmt.Printf("Seeded %d roles.\n", len(defs))
	return nil
}

func runIssueToken(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	userID := fs.String("user", "", "ID of the user the token is issued for")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		fs.Usage()
		return errors.New("-user is required")
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	user, err := st.users.GetByID(ctx, *userID)
	if err != nil {
		return fmt.Errorf("failed to load user %q: %w", *userID, err)
	}

	tokens, err := authn.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	token, err := tokens.Issue(user)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, token)
	return nil
}
