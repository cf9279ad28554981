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

package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lectern/lectern/internal/authz"
	"github.com/lectern/lectern/internal/rbac"
)

// DecisionResponse reports the outcome of an authorization check. Denials
// are data here, not errors.
type DecisionResponse struct {
	Allowed             bool              `json:"allowed"`
	Reason              string            `json:"reason,omitempty"`
	RequiredRoles       []rbac.Role       `json:"required_roles,omitempty"`
	RequiredPermissions []rbac.Permission `json:"required_permissions,omitempty"`
	MissingPermissions  []rbac.Permission `json:"missing_permissions,omitempty"`
}

// decide converts a gate result into a decision. Errors that are not
// denials are returned unchanged.
func decide(err error) (DecisionResponse, error) {
	if err == nil {
		return DecisionResponse{Allowed: true}, nil
	}
	d, ok := authz.AsDenial(err)
	if !ok {
		return DecisionResponse{}, err
	}
	return DecisionResponse{
		Reason:              string(d.Reason),
		RequiredRoles:       d.RequiredRoles,
		RequiredPermissions: d.RequiredPermissions,
		MissingPermissions:  d.MissingPermissions,
	}, nil
}

// ListRoles returns the role hierarchy with each role's permissions
// @Summary List Roles
// @Tags Catalog
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]any
// @Router /roles [get]
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"roles": h.guard.Resolver().Table().Definitions(),
	})
}

// ListPermissions returns the permission catalog grouped by resource
// @Summary List Permissions
// @Tags Catalog
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]any
// @Router /permissions [get]
func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"categories": rbac.Categories(),
	})
}

// GetMyPermissions returns the caller's permission analysis
// @Summary My Permissions
// @Tags Catalog
// @Produce json
// @Security BearerAuth
// @Success 200 {object} admin.PermissionAnalysis
// @Router /me/permissions [get]
func (h *Handler) GetMyPermissions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.adminService.Analyze(GetPrincipal(r.Context())))
}

// AuthzCheckRequest lists requirements to evaluate against the caller. Only
// the fields present are checked; an empty "any" list never passes.
type AuthzCheckRequest struct {
	Roles []rbac.Role       `json:"roles" validate:"omitempty,dive,rbac_role"`
	All   []rbac.Permission `json:"all" validate:"omitempty,dive,rbac_permission"`
	Any   []rbac.Permission `json:"any" validate:"omitempty,dive,rbac_permission"`
}

// CheckAuthorization evaluates role and permission requirements for the caller
// @Summary Check Authorization
// @Tags Decisions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body AuthzCheckRequest true "Requirements"
// @Success 200 {object} DecisionResponse
// @Router /authz/check [post]
func (h *Handler) CheckAuthorization(w http.ResponseWriter, r *http.Request) {
	var req AuthzCheckRequest
	if err := h.decodeRequest(w, r, &req); err != nil {
		respondFailure(w, r, err)
		return
	}

	ctx := r.Context()
	principal := GetPrincipal(ctx)
	var err error
	if req.Roles != nil {
		err = h.guard.RequireRole(ctx, principal, req.Roles...)
	}
	if err == nil && req.All != nil {
		err = h.guard.RequireAll(ctx, principal, req.All...)
	}
	if err == nil && req.Any != nil {
		err = h.guard.RequireAny(ctx, principal, req.Any...)
	}

	decision, err := decide(err)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, decision)
}

// CheckResourceAccess reports whether the caller may manage a resource
// @Summary Check Resource Access
// @Tags Decisions
// @Produce json
// @Security BearerAuth
// @Param resourceType path string true "course, blog, internship or quiz"
// @Param resourceID path string true "Resource ID"
// @Success 200 {object} DecisionResponse
// @Failure 404 {object} errorResponse
// @Router /resources/{resourceType}/{resourceID}/access [get]
func (h *Handler) CheckResourceAccess(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resourceType")
	if !rbac.ManageAll(resource).Valid() {
		respondError(w, http.StatusNotFound, "unknown resource type")
		return
	}

	err := h.guard.CheckOwnership(r.Context(), GetPrincipal(r.Context()), h.owners, resource, chi.URLParam(r, "resourceID"))
	decision, err := decide(err)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, decision)
}
