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
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lectern/lectern/internal/admin"
	"github.com/lectern/lectern/internal/authn"
	"github.com/lectern/lectern/internal/authz"
	"github.com/lectern/lectern/internal/config"
	"github.com/lectern/lectern/internal/identity"
	"github.com/lectern/lectern/internal/observability/logger"
	"github.com/lectern/lectern/internal/observability/metrics"
	"github.com/lectern/lectern/internal/observability/tracing"
	transportHTTP "github.com/lectern/lectern/internal/transport/http"
)

const usage = `usage: lectern [command]

commands:
  serve        run the HTTP API (default)
  migrate      apply, roll back or report the schema (up|down|version)
  seed-roles   upsert the role definitions into the roles table
  issue-token  print a bearer token for an existing user (-user <id>)
`

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: cfg.OTel.ServiceName,
		OTelEnabled: cfg.OTel.Enabled,
	})

	command, args := "serve", os.Args[1:]
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		err = runServe(ctx, cfg)
	case "migrate":
		err = runMigrate(ctx, cfg, args)
	case "seed-roles":
		err = runSeedRoles(ctx, cfg)
	case "issue-token":
		err = runIssueToken(ctx, cfg, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		os.Exit(2)
	}

	if err != nil {
		slog.Error("command failed", logger.Operation(command), logger.Error(err))
		os.Exit(1)
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting lectern access service")

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.OTel.ServiceVersion,
		SamplingRate:   cfg.OTel.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer shutdown("tracer", tracer.Shutdown)

	// Initialize meter
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.OTel.ServiceVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize meter: %w", err)
	}
	defer shutdown("meter", meter.Shutdown)

	instruments, err := metrics.NewInstruments(meter)
	if err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	// Initialize storage
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

	table, err := loadRoleTable(ctx, cfg, st.roles, auditLogger)
	if err != nil {
		return err
	}

	// Initialize services
	resolver := authz.NewResolver(table)
	guard := authz.NewGuard(resolver, authz.WithDecisionCounter(instruments.AuthzDecisions))
	identityService := identity.NewService(st.users, resolver, auditLogger)
	adminService := admin.NewService(st.users, resolver, auditLogger,
		admin.WithTracer(tracer.GetTracer()),
		admin.WithMutationCounter(instruments.RBACMutations),
		admin.WithBulkConcurrency(cfg.RBAC.BulkConcurrency),
	)
	tokens, err := authn.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	// Run Bootstrap (ENV driven)
	if err := identity.NewBootstrapService(identityService, st.users, auditLogger).Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	defer rateLimiter.Stop()

	handler := transportHTTP.NewHandler(identityService, adminService, guard, st.owners, tokens, auditLogger)
	router := transportHTTP.NewRouter(handler, rateLimiter, transportHTTP.RouterConfig{
		RequestTimeout:     cfg.Server.RequestTimeout,
		Development:        cfg.Server.Development,
		MutationsPerMinute: cfg.RateLimit.MutationsPerMinute,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"), slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func shutdown(name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		slog.Error("failed to shut down "+name, logger.Error(err))
	}
}
