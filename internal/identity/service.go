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
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/lectern/lectern/internal/audit"
	"github.com/lectern/lectern/internal/id"
	"github.com/lectern/lectern/internal/rbac"
)

// PermissionResolver computes the effective permission set of a user.
type PermissionResolver interface {
	Resolve(user *User) rbac.PermissionSet
}

// Service provides identity-related business logic
type Service struct {
	repo        UserRepository
	resolver    PermissionResolver
	auditLogger audit.Logger
	now         func() time.Time
}

// NewService creates a new identity service
func NewService(repo UserRepository, resolver PermissionResolver, auditLogger audit.Logger) *Service {
	return &Service{
		repo:        repo,
		resolver:    resolver,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// ProvisionUser creates a principal holding the given roles. With no roles
// the user starts at rbac.RoleUser; with more than one the record is stored
// in multi-role mode.
func (s *Service) ProvisionUser(ctx context.Context, email, displayName string, roles ...rbac.Role) (*User, error) {
	email = strings.TrimSpace(email)
	if !isValidEmail(email) {
		return nil, ErrInvalidEmail
	}

	roles = dedupeRoles(roles)
	for _, r := range roles {
		if !r.Valid() {
			return nil, fmt.Errorf("%w: %q", rbac.ErrUnknownRole, r)
		}
	}
	if len(roles) == 0 {
		roles = []rbac.Role{rbac.RoleUser}
	}

	now := s.now()
	user := &User{
		ID:          id.NewUUIDv7(),
		Email:       email,
		DisplayName: strings.TrimSpace(displayName),
		Role:        rbac.HighestRole(roles),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if len(roles) > 1 {
		user.Roles = roles
	}
	user.EffectivePermissions = s.resolver.Resolve(user).Sorted()

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUserAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserCreated,
		ActorID:  audit.ActorSystem,
		Resource: audit.ResourceUser,
		Metadata: map[string]any{
			audit.AttrTargetID: user.ID,
			audit.AttrRoles:    rolesToStrings(user.AssignedRoles()),
		},
	})

	return user, nil
}

// GetUser retrieves a user by ID
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func isValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func dedupeRoles(roles []rbac.Role) []rbac.Role {
	seen := make(map[rbac.Role]struct{}, len(roles))
	out := make([]rbac.Role, 0, len(roles))
	for _, r := range roles {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func rolesToStrings(roles []rbac.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
