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

package admin

import (
	"context"
	"fmt"

	"github.com/lectern/lectern/internal/authz"
	"github.com/lectern/lectern/internal/identity"
	"github.com/lectern/lectern/internal/rbac"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// GetUsersWithRoles lists principals matching filter that the actor may
// manage. The actor always sees themself. Requires user:view or
// user:manage_roles.
func (s *Service) GetUsersWithRoles(ctx context.Context, actor *identity.User, filter identity.UserFilter) (_ []*identity.User, err error) {
	ctx, span := s.tracer.Start(ctx, "admin.GetUsersWithRoles")
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	if actor == nil {
		return nil, authz.Unauthenticated()
	}
	required := []rbac.Permission{rbac.PermUserView, rbac.PermUserManageRoles}
	if !s.resolver.HasAny(actor, required...) {
		return nil, authz.InsufficientPermission(required, required)
	}
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, authz.NewValidationError("role", fmt.Sprintf("unknown role %q", filter.Role))
	}
	if filter.Permission != "" && !filter.Permission.Valid() {
		return nil, authz.NewValidationError("permission", fmt.Sprintf("unknown permission %q", filter.Permission))
	}
	if filter.Offset < 0 {
		return nil, authz.NewValidationError("offset", "must not be negative")
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = DefaultListLimit
	case filter.Limit > MaxListLimit:
		filter.Limit = MaxListLimit
	}

	users, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	actorRole := actor.HighestRole()
	visible := make([]*identity.User, 0, len(users))
	for _, u := range users {
		if u.ID == actor.ID || rbac.IsSenior(actorRole, u.HighestRole()) {
			visible = append(visible, u)
		}
	}
	return visible, nil
}

// PermissionAnalysis decomposes a principal's effective permissions.
type PermissionAnalysis struct {
	UserID               string            `json:"user_id"`
	Role                 rbac.Role         `json:"role"`
	Roles                []rbac.Role       `json:"roles"`
	ExtraPermissions     []rbac.Permission `json:"extra_permissions"`
	EffectivePermissions []rbac.Permission `json:"effective_permissions"`
	FromRoles            []rbac.Permission `json:"from_roles"`
	FromExtras           []rbac.Permission `json:"from_extras"`
	RoleCount            int               `json:"role_permission_count"`
	ExtraCount           int               `json:"extra_permission_count"`
	TotalCount           int               `json:"total_permission_count"`
}

// GetPermissionAnalysis reports which of the target's effective permissions
// come from its roles and which from grants beyond them. The actor must be
// the target or hold user:view. Read-only.
func (s *Service) GetPermissionAnalysis(ctx context.Context, actor *identity.User, targetID string) (_ *PermissionAnalysis, err error) {
	ctx, span := s.start(ctx, "admin.GetPermissionAnalysis", actor, targetID)
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	if actor == nil {
		return nil, authz.Unauthenticated()
	}
	if actor.ID != targetID && !s.resolver.Has(actor, rbac.PermUserView) {
		return nil, authz.InsufficientPermission(
			[]rbac.Permission{rbac.PermUserView},
			[]rbac.Permission{rbac.PermUserView},
		)
	}

	target := actor
	if actor.ID != targetID {
		target, err = s.users.GetByID(ctx, targetID)
		if err != nil {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
	}

	return s.Analyze(target), nil
}

// Analyze builds the permission decomposition of u.
func (s *Service) Analyze(u *identity.User) *PermissionAnalysis {
	effective := s.resolver.Resolve(u)
	roleGranted := s.resolver.RoleGranted(u)

	fromRoles := rbac.PermissionSet{}
	for p := range effective {
		if roleGranted.Has(p) {
			fromRoles.Add(p)
		}
	}
	fromExtras := effective.Difference(roleGranted)

	extras := u.ExtraPermissions
	if extras == nil {
		extras = []rbac.Permission{}
	}
	return &PermissionAnalysis{
		UserID:               u.ID,
		Role:                 u.HighestRole(),
		Roles:                u.AssignedRoles(),
		ExtraPermissions:     extras,
		EffectivePermissions: effective.Sorted(),
		FromRoles:            fromRoles.Sorted(),
		FromExtras:           fromExtras.Sorted(),
		RoleCount:            len(fromRoles),
		ExtraCount:           len(fromExtras),
		TotalCount:           len(effective),
	}
}
