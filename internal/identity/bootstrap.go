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
	"fmt"
	"log/slog"
	"os"

	"github.com/lectern/lectern/internal/audit"
	"github.com/lectern/lectern/internal/rbac"
)

const (
	EnvBootstrapAdminEmail = "LECTERN_BOOTSTRAP_ADMIN_EMAIL"
	EnvBootstrapAdminName  = "LECTERN_BOOTSTRAP_ADMIN_NAME"
)

// BootstrapService manages the initial initialization of the system
type BootstrapService struct {
	identityService *Service
	repo            UserRepository
	auditLogger     audit.Logger
	getenv          func(string) string
}

// NewBootstrapService creates a new bootstrap service
func NewBootstrapService(identityService *Service, repo UserRepository, auditLogger audit.Logger) *BootstrapService {
	return &BootstrapService{
		identityService: identityService,
		repo:            repo,
		auditLogger:     auditLogger,
		getenv:          os.Getenv,
	}
}

// Bootstrap provisions the first super-admin when LECTERN_BOOTSTRAP_ADMIN_EMAIL
// is set and no super-admin exists yet. It is a no-op otherwise.
func (s *BootstrapService) Bootstrap(ctx context.Context) error {
	email := s.getenv(EnvBootstrapAdminEmail)
	if email == "" {
		return nil
	}

	existing, err := s.repo.List(ctx, UserFilter{Role: rbac.RoleSuperAdmin, Limit: 1})
	if err != nil {
		return fmt.Errorf("failed to check for existing super-admin: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	name := s.getenv(EnvBootstrapAdminName)
	if name == "" {
		name = "Administrator"
	}

	user, err := s.identityService.ProvisionUser(ctx, email, name, rbac.RoleSuperAdmin)
	if err != nil {
		return fmt.Errorf("failed to provision bootstrap super-admin: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeAdminBootstrap,
		ActorID:  audit.ActorSystemBootstrap,
		Resource: audit.ResourceUser,
		Metadata: map[string]any{
			audit.AttrTargetID: user.ID,
			audit.AttrEmail:    email,
		},
	})

	slog.InfoContext(ctx, "bootstrapped initial super-admin", slog.String("user_id", user.ID))
	return nil
}
