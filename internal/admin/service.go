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

// Package admin implements the privilege administration operations. Every
// mutation re-validates the actor's seniority against the freshly loaded
// target inside the store's atomic update, recomputes effective permissions
// and only then persists.
package admin

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/lectern/lectern/internal/audit"
	"github.com/lectern/lectern/internal/authz"
	"github.com/lectern/lectern/internal/identity"
	"github.com/lectern/lectern/internal/observability/tracing"
	"github.com/lectern/lectern/internal/rbac"
)

const (
	tracerName             = "github.com/lectern/lectern/internal/admin"
	defaultBulkConcurrency = 8
	msgNotSenior           = "actor is not senior to the target"
)

// administratorRoles may grant or revoke extra permissions and bulk assign.
var administratorRoles = []rbac.Role{rbac.RoleAdmin, rbac.RoleSuperAdmin}

// Service performs privilege mutations and privilege queries on principals.
type Service struct {
	users           identity.UserRepository
	resolver        *authz.Resolver
	auditLogger     audit.Logger
	tracer          trace.Tracer
	mutations       metric.Int64Counter
	bulkConcurrency int
	now             func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithTracer sets the tracer used for per-operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithMutationCounter records every mutation outcome on counter.
func WithMutationCounter(c metric.Int64Counter) Option {
	return func(s *Service) { s.mutations = c }
}

// WithBulkConcurrency bounds the number of targets BulkAssignRole updates at once.
func WithBulkConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.bulkConcurrency = n
		}
	}
}

// NewService creates a new administration service
func NewService(users identity.UserRepository, resolver *authz.Resolver, auditLogger audit.Logger, opts ...Option) *Service {
	s := &Service{
		users:           users,
		resolver:        resolver,
		auditLogger:     auditLogger,
		tracer:          otel.Tracer(tracerName),
		bulkConcurrency: defaultBulkConcurrency,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AssignRole replaces the target's role(s) with newRole. The actor must be
// strictly senior to both newRole and the target's current most senior role.
// Extra permissions are kept; legacy manual permissions are dropped.
func (s *Service) AssignRole(ctx context.Context, actor *identity.User, targetID string, newRole rbac.Role) (_ *identity.User, err error) {
	ctx, span := s.start(ctx, "admin.AssignRole", actor, targetID, tracing.AttrRole.String(string(newRole)))
	defer func() { s.finish(ctx, span, "assign_role", actor, targetID, err) }()

	if err := s.checkAssignable(actor, newRole); err != nil {
		return nil, err
	}

	var oldRole rbac.Role
	user, err := s.update(ctx, actor, targetID, func(u *identity.User) error {
		if !rbac.IsSenior(actor.HighestRole(), u.HighestRole()) {
			return authz.InsufficientSeniority(msgNotSenior)
		}
		oldRole = u.HighestRole()
		u.Role = newRole
		u.Roles = nil
		u.Permissions = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleAssigned,
		ActorID:  actor.ID,
		Resource: audit.ResourceUser,
		Metadata: map[string]any{
			audit.AttrTargetID: targetID,
			audit.AttrOldRole:  string(oldRole),
			audit.AttrNewRole:  string(newRole),
		},
	})
	return user, nil
}

// GrantRole adds role to the target, switching it to multi-role mode. The
// actor must be senior to role and to the target's most senior role.
// Granting a role the target already holds is a no-op.
func (s *Service) GrantRole(ctx context.Context, actor *identity.User, targetID string, role rbac.Role) (_ *identity.User, err error) {
	ctx, span := s.start(ctx, "admin.GrantRole", actor, targetID, tracing.AttrRole.String(string(role)))
	defer func() { s.finish(ctx, span, "grant_role", actor, targetID, err) }()

	if err := s.checkAssignable(actor, role); err != nil {
		return nil, err
	}

	user, err := s.update(ctx, actor, targetID, func(u *identity.User) error {
		if !rbac.IsSenior(actor.HighestRole(), u.HighestRole()) {
			return authz.InsufficientSeniority(msgNotSenior)
		}
		roles := u.AssignedRoles()
		if !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
		u.Roles = roles
		u.Role = rbac.HighestRole(roles)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleGranted,
		ActorID:  actor.ID,
		Resource: audit.ResourceUser,
		Metadata: map[string]any{
			audit.AttrTargetID: targetID,
			audit.AttrRole:     string(role),
		},
	})
	return user, nil
}

// RevokeRole removes role from the target. The last remaining role cannot be
// revoked; use AssignRole to change it.
func (s *Service) RevokeRole(ctx context.Context, actor *identity.User, targetID string, role rbac.Role) (_ *identity.User, err error) {
	ctx, span := s.start(ctx, "admin.RevokeRole", actor, targetID, tracing.AttrRole.String(string(role)))
	defer func() { s.finish(ctx, span, "revoke_role", actor, targetID, err) }()

	if err := s.checkAssignable(actor, role); err != nil {
		return nil, err
	}

	user, err := s.update(ctx, actor, targetID, func(u *identity.User) error {
		if !rbac.IsSenior(actor.HighestRole(), u.HighestRole()) {
			return authz.InsufficientSeniority(msgNotSenior)
		}
		roles := u.AssignedRoles()
		idx := slices.Index(roles, role)
		if idx < 0 {
			return authz.NewValidationError("role", fmt.Sprintf("role %q is not assigned", role))
		}
		if len(roles) == 1 {
			return authz.NewValidationError("role", "cannot revoke the only assigned role")
		}
		roles = slices.Delete(roles, idx, idx+1)
		u.Roles = roles
		u.Role = rbac.HighestRole(roles)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleRevoked,
		ActorID:  actor.ID,
		Resource: audit.ResourceUser,
		Metadata: map[string]any{
			audit.AttrTargetID: targetID,
			audit.AttrRole:     string(role),
		},
	})
	return user, nil
}

// AddExtraPermissions merges perms into the target's extra grants. The actor
// must be an admin or super-admin and senior to the target.
func (s *Service) AddExtraPermissions(ctx context.Context, actor *identity.User, targetID string, perms []rbac.Permission) (_ *identity.User, err error) {
	ctx, span := s.start(ctx, "admin.AddExtraPermissions", actor, targetID)
	defer func() { s.finish(ctx, span, "add_extra_permissions", actor, targetID, err) }()

	if err := requireAdministrator(actor); err != nil {
		return nil, err
	}
	if err := validatePermissions(perms); err != nil {
		return nil, err
	}

	user, err := s.update(ctx, actor, targetID, func(u *identity.User) error {
		if !rbac.IsSenior(actor.HighestRole(), u.HighestRole()) {
			return authz.InsufficientSeniority(msgNotSenior)
		}
		extras := rbac.NewPermissionSet(u.ExtraPermissions...)
		extras.Add(perms...)
		u.ExtraPermissions = extras.Sorted()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePermissionsGranted,
		ActorID:  actor.ID,
		Resource: audit.ResourceUser,
		Metadata: map[string]any{
			audit.AttrTargetID:    targetID,
			audit.AttrPermissions: permissionStrings(perms),
		},
	})
	return user, nil
}

// RemoveExtraPermissions strips perms from the target's extra grants and
// legacy manual permissions. Permissions granted by the target's roles stay
// in the effective set.
func (s *Service) RemoveExtraPermissions(ctx context.Context, actor *identity.User, targetID string, perms []rbac.Permission) (_ *identity.User, err error) {
	ctx, span := s.start(ctx, "admin.RemoveExtraPermissions", actor, targetID)
	defer func() { s.finish(ctx, span, "remove_extra_permissions", actor, targetID, err) }()

	if err := requireAdministrator(actor); err != nil {
		return nil, err
	}
	if err := validatePermissions(perms); err != nil {
		return nil, err
	}

	user, err := s.update(ctx, actor, targetID, func(u *identity.User) error {
		if !rbac.IsSenior(actor.HighestRole(), u.HighestRole()) {
			return authz.InsufficientSeniority(msgNotSenior)
		}
		roleGranted := s.resolver.RoleGranted(u)

		extras := rbac.NewPermissionSet(u.ExtraPermissions...)
		extras.Remove(perms...)
		u.ExtraPermissions = extras.Sorted()

		legacy := rbac.NewPermissionSet(u.Permissions...)
		for _, p := range perms {
			if !roleGranted.Has(p) {
				legacy.Remove(p)
			}
		}
		u.Permissions = legacy.Sorted()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePermissionsRevoked,
		ActorID:  actor.ID,
		Resource: audit.ResourceUser,
		Metadata: map[string]any{
			audit.AttrTargetID:    targetID,
			audit.AttrPermissions: permissionStrings(perms),
		},
	})
	return user, nil
}

// ResetToRoleDefaults clears every grant beyond the target's roles so that
// its effective permissions equal the role defaults.
func (s *Service) ResetToRoleDefaults(ctx context.Context, actor *identity.User, targetID string) (_ *identity.User, err error) {
	ctx, span := s.start(ctx, "admin.ResetToRoleDefaults", actor, targetID)
	defer func() { s.finish(ctx, span, "reset_to_role_defaults", actor, targetID, err) }()

	if actor == nil {
		return nil, authz.Unauthenticated()
	}

	user, err := s.update(ctx, actor, targetID, func(u *identity.User) error {
		if !rbac.IsSenior(actor.HighestRole(), u.HighestRole()) {
			return authz.InsufficientSeniority(msgNotSenior)
		}
		u.ExtraPermissions = nil
		u.Permissions = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePermissionsReset,
		ActorID:  actor.ID,
		Resource: audit.ResourceUser,
		Metadata: map[string]any{audit.AttrTargetID: targetID},
	})
	return user, nil
}

// TransitionResult is the outcome of a dry-run role transition check.
type TransitionResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidateRoleTransition reports whether an actor holding actorRole could
// move a principal from currentRole to newRole. It does not touch storage.
func ValidateRoleTransition(currentRole, newRole, actorRole rbac.Role) TransitionResult {
	switch {
	case !currentRole.Valid():
		return TransitionResult{Error: fmt.Sprintf("unknown current role %q", currentRole)}
	case !newRole.Valid():
		return TransitionResult{Error: fmt.Sprintf("unknown new role %q", newRole)}
	case !actorRole.Valid():
		return TransitionResult{Error: fmt.Sprintf("unknown actor role %q", actorRole)}
	case !rbac.IsSenior(actorRole, currentRole):
		return TransitionResult{Error: fmt.Sprintf("role %q cannot manage a principal with role %q", actorRole, currentRole)}
	case !rbac.IsSenior(actorRole, newRole):
		return TransitionResult{Error: fmt.Sprintf("role %q cannot assign role %q", actorRole, newRole)}
	}
	return TransitionResult{Valid: true}
}

// update runs fn inside the store's atomic update, recomputes effective
// permissions and stamps the record.
func (s *Service) update(ctx context.Context, actor *identity.User, targetID string, fn func(*identity.User) error) (*identity.User, error) {
	if targetID == "" {
		return nil, authz.NewValidationError("user_id", "is required")
	}

	user, err := s.users.UpdatePrivileges(ctx, targetID, func(u *identity.User) error {
		if err := fn(u); err != nil {
			return err
		}
		s.resolver.RecomputeEffectivePermissions(u)
		u.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return nil, s.hideMissing(actor)
		}
		var d *authz.Denial
		var v *authz.ValidationError
		if errors.As(err, &d) || errors.As(err, &v) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update user privileges: %w", err)
	}
	return user, nil
}

// hideMissing maps a missing target to the error the actor may see. Callers
// without user:view get the same denial as for an existing senior target.
func (s *Service) hideMissing(actor *identity.User) error {
	if actor.HasRole(rbac.RoleSuperAdmin) || s.resolver.Has(actor, rbac.PermUserView) {
		return identity.ErrUserNotFound
	}
	return authz.InsufficientSeniority(msgNotSenior)
}

func (s *Service) checkAssignable(actor *identity.User, role rbac.Role) error {
	if actor == nil {
		return authz.Unauthenticated()
	}
	if !role.Valid() {
		return authz.NewValidationError("role", fmt.Sprintf("unknown role %q", role))
	}
	if !rbac.IsSenior(actor.HighestRole(), role) {
		return authz.InsufficientSeniority(fmt.Sprintf("role %q cannot assign role %q", actor.HighestRole(), role))
	}
	return nil
}

func requireAdministrator(actor *identity.User) error {
	if actor == nil {
		return authz.Unauthenticated()
	}
	for _, r := range administratorRoles {
		if actor.HasRole(r) {
			return nil
		}
	}
	return authz.InsufficientRole(administratorRoles...)
}

func validatePermissions(perms []rbac.Permission) error {
	if len(perms) == 0 {
		return authz.NewValidationError("permissions", "must not be empty")
	}
	for _, p := range perms {
		if !p.Valid() {
			return authz.NewValidationError("permissions", fmt.Sprintf("unknown permission %q", p))
		}
	}
	return nil
}

func (s *Service) start(ctx context.Context, name string, actor *identity.User, targetID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if actor != nil {
		attrs = append(attrs,
			tracing.AttrActorID.String(actor.ID),
			tracing.AttrActorRole.String(string(actor.HighestRole())),
		)
	}
	if targetID != "" {
		attrs = append(attrs, tracing.AttrTargetID.String(targetID))
	}
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// finish ends the span, records the mutation metric and audits denials.
func (s *Service) finish(ctx context.Context, span trace.Span, op string, actor *identity.User, targetID string, err error) {
	outcome, reason := "success", ""
	if err != nil {
		outcome = "error"
		if d, ok := authz.AsDenial(err); ok {
			outcome, reason = "denied", string(d.Reason)
			actorID := ""
			if actor != nil {
				actorID = actor.ID
			}
			s.auditLogger.Log(ctx, audit.Event{
				Type:     audit.TypeAccessDenied,
				ActorID:  actorID,
				Resource: audit.ResourceUser,
				Metadata: map[string]any{
					audit.AttrTargetID:  targetID,
					audit.AttrReason:    reason,
					audit.AttrOperation: op,
				},
			})
		}
	}
	tracing.End(span, err, reason)

	if s.mutations != nil {
		s.mutations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("outcome", outcome),
		))
	}
}

func permissionStrings(perms []rbac.Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}
