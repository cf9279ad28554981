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

package authz

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/lectern/lectern/internal/identity"
	"github.com/lectern/lectern/internal/rbac"
)

// Gate names used as the "gate" metric attribute.
const (
	GateRole       = "role"
	GateAll        = "permission_all"
	GateAny        = "permission_any"
	GateResource   = "resource_management"
	GateOwnership  = "ownership"
	GateSeniority  = "seniority"
	outcomeAllow   = "allow"
	outcomeDeny    = "deny"
	outcomeFailure = "error"
)

// Guard evaluates authorization gates against a loaded principal. Every gate
// returns nil to allow or a *Denial to reject. A nil principal is always
// rejected as unauthenticated.
type Guard struct {
	resolver  *Resolver
	decisions metric.Int64Counter
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithDecisionCounter records every gate outcome on counter.
func WithDecisionCounter(counter metric.Int64Counter) GuardOption {
	return func(g *Guard) { g.decisions = counter }
}

// NewGuard creates a guard backed by resolver.
func NewGuard(resolver *Resolver, opts ...GuardOption) *Guard {
	g := &Guard{resolver: resolver}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Resolver returns the resolver backing the guard.
func (g *Guard) Resolver() *Resolver {
	return g.resolver
}

// RequireRole allows a principal holding any of roles. A super-admin passes
// regardless of the list.
func (g *Guard) RequireRole(ctx context.Context, principal *identity.User, roles ...rbac.Role) error {
	return g.record(ctx, GateRole, g.requireRole(principal, roles))
}

func (g *Guard) requireRole(principal *identity.User, roles []rbac.Role) error {
	if principal == nil {
		return Unauthenticated()
	}
	if principal.HasRole(rbac.RoleSuperAdmin) {
		return nil
	}
	for _, r := range roles {
		if principal.HasRole(r) {
			return nil
		}
	}
	return InsufficientRole(roles...)
}

// RequireAll allows a principal holding every one of perms.
func (g *Guard) RequireAll(ctx context.Context, principal *identity.User, perms ...rbac.Permission) error {
	return g.record(ctx, GateAll, g.requireAll(principal, perms))
}

func (g *Guard) requireAll(principal *identity.User, perms []rbac.Permission) error {
	if principal == nil {
		return Unauthenticated()
	}
	if principal.HasRole(rbac.RoleSuperAdmin) {
		return nil
	}
	if missing := g.resolver.Missing(principal, perms...); len(missing) > 0 {
		return InsufficientPermission(perms, missing)
	}
	return nil
}

// RequireAny allows a principal holding at least one of perms. An empty list
// rejects everyone but a super-admin.
func (g *Guard) RequireAny(ctx context.Context, principal *identity.User, perms ...rbac.Permission) error {
	return g.record(ctx, GateAny, g.requireAny(principal, perms))
}

func (g *Guard) requireAny(principal *identity.User, perms []rbac.Permission) error {
	if principal == nil {
		return Unauthenticated()
	}
	if principal.HasRole(rbac.RoleSuperAdmin) {
		return nil
	}
	if !g.resolver.HasAny(principal, perms...) {
		return InsufficientPermission(perms, slices.Clone(perms))
	}
	return nil
}

// RequireResourceManagement applies the any-of gate to exactly
// {resource}:manage_own and {resource}:manage_all.
func (g *Guard) RequireResourceManagement(ctx context.Context, principal *identity.User, resource string) error {
	perms := []rbac.Permission{rbac.ManageOwn(resource), rbac.ManageAll(resource)}
	return g.record(ctx, GateResource, g.requireAny(principal, perms))
}

// RequireOwnershipOrManageAll allows a principal holding {resource}:manage_all,
// otherwise one whose ID equals ownerID.
func (g *Guard) RequireOwnershipOrManageAll(ctx context.Context, principal *identity.User, resource, ownerID string) error {
	return g.record(ctx, GateOwnership, g.requireOwnership(principal, resource, ownerID))
}

func (g *Guard) requireOwnership(principal *identity.User, resource, ownerID string) error {
	if principal == nil {
		return Unauthenticated()
	}
	manageAll := rbac.ManageAll(resource)
	if g.resolver.Has(principal, manageAll) {
		return nil
	}
	if ownerID != "" && ownerID == principal.ID {
		return nil
	}
	return &Denial{
		Reason:              ReasonInsufficientPermission,
		Message:             fmt.Sprintf("not the owner of this %s", resource),
		RequiredPermissions: []rbac.Permission{manageAll},
		MissingPermissions:  []rbac.Permission{manageAll},
	}
}

// CheckOwnership applies the ownership gate to a stored resource. The lookup
// is skipped when the principal holds {resource}:manage_all. A resource that
// does not exist is rejected the same way as one owned by someone else.
func (g *Guard) CheckOwnership(ctx context.Context, principal *identity.User, lookup OwnerLookup, resource, resourceID string) error {
	if principal == nil {
		return g.record(ctx, GateOwnership, Unauthenticated())
	}
	if g.resolver.Has(principal, rbac.ManageAll(resource)) {
		return g.record(ctx, GateOwnership, nil)
	}

	ownerID, err := lookup.OwnerOf(ctx, resource, resourceID)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return g.record(ctx, GateOwnership, g.requireOwnership(principal, resource, ""))
		}
		return g.record(ctx, GateOwnership, fmt.Errorf("failed to look up %s owner: %w", resource, err))
	}
	return g.RequireOwnershipOrManageAll(ctx, principal, resource, ownerID)
}

// RequireSeniorTo allows an actor whose most senior role ranks strictly
// above targetRole. There is no super-admin bypass: a super-admin is not
// senior to another super-admin.
func (g *Guard) RequireSeniorTo(ctx context.Context, actor *identity.User, targetRole rbac.Role) error {
	return g.record(ctx, GateSeniority, requireSenior(actor, targetRole))
}

func requireSenior(actor *identity.User, targetRole rbac.Role) error {
	if actor == nil {
		return Unauthenticated()
	}
	if !rbac.IsSenior(actor.HighestRole(), targetRole) {
		return InsufficientSeniority(fmt.Sprintf("role %q cannot manage role %q", actor.HighestRole(), targetRole))
	}
	return nil
}

func (g *Guard) record(ctx context.Context, gate string, err error) error {
	if g.decisions == nil {
		return err
	}
	outcome := outcomeAllow
	if err != nil {
		outcome = outcomeDeny
		if _, ok := AsDenial(err); !ok {
			outcome = outcomeFailure
		}
	}
	g.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("gate", gate),
		attribute.String("outcome", outcome),
	))
	return err
}
