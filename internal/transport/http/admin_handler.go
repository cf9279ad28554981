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
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lectern/lectern/internal/admin"
	"github.com/lectern/lectern/internal/authz"
	"github.com/lectern/lectern/internal/identity"
	"github.com/lectern/lectern/internal/rbac"
)

// UserResponse is the public view of a principal.
type UserResponse struct {
	ID                   string            `json:"id"`
	Email                string            `json:"email"`
	DisplayName          string            `json:"display_name"`
	Role                 rbac.Role         `json:"role"`
	Roles                []rbac.Role       `json:"roles,omitempty"`
	ExtraPermissions     []rbac.Permission `json:"extra_permissions"`
	EffectivePermissions []rbac.Permission `json:"effective_permissions"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

func toUserResponse(u *identity.User) UserResponse {
	return UserResponse{
		ID:                   u.ID,
		Email:                u.Email,
		DisplayName:          u.DisplayName,
		Role:                 u.Role,
		Roles:                u.Roles,
		ExtraPermissions:     nonNil(u.ExtraPermissions),
		EffectivePermissions: nonNil(u.EffectivePermissions),
		CreatedAt:            u.CreatedAt,
		UpdatedAt:            u.UpdatedAt,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// ProvisionUserRequest represents user provisioning data
type ProvisionUserRequest struct {
	Email       string      `json:"email" validate:"required,email,max=254" example:"learner@example.com"`
	DisplayName string      `json:"display_name" validate:"max=200" example:"Ada Lovelace"`
	Roles       []rbac.Role `json:"roles" validate:"omitempty,max=8,dive,rbac_role" example:"student"`
}

// ProvisionUser creates a principal. The caller must be senior to every
// role requested.
// @Summary Provision User
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ProvisionUserRequest true "User Data"
// @Success 201 {object} UserResponse
// @Failure 400 {object} errorResponse
// @Failure 403 {object} errorResponse
// @Router /admin/users [post]
func (h *Handler) ProvisionUser(w http.ResponseWriter, r *http.Request) {
	var req ProvisionUserRequest
	if err := h.decodeRequest(w, r, &req); err != nil {
		respondFailure(w, r, err)
		return
	}

	actor := GetPrincipal(r.Context())
	roles := req.Roles
	if len(roles) == 0 {
		roles = []rbac.Role{rbac.RoleUser}
	}
	for _, role := range roles {
		if err := h.guard.RequireSeniorTo(r.Context(), actor, role); err != nil {
			respondFailure(w, r, err)
			return
		}
	}

	user, err := h.identityService.ProvisionUser(r.Context(), req.Email, req.DisplayName, roles...)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toUserResponse(user))
}

// ListUsers returns principals the caller may manage
// @Summary List Users
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param role query string false "Role filter"
// @Param permission query string false "Effective permission filter"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} map[string]any
// @Router /admin/users [get]
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := identity.UserFilter{
		Role:       rbac.Role(q.Get("role")),
		Permission: rbac.Permission(q.Get("permission")),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		respondFailure(w, r, err)
		return
	}
	if filter.Offset, err = intParam(q.Get("offset"), "offset"); err != nil {
		respondFailure(w, r, err)
		return
	}

	users, err := h.adminService.GetUsersWithRoles(r.Context(), GetPrincipal(r.Context()), filter)
	if err != nil {
		respondFailure(w, r, err)
		return
	}

	out := make([]UserResponse, len(users))
	for i, u := range users {
		out[i] = toUserResponse(u)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"users": out,
		"count": len(out),
	})
}

func intParam(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, authz.NewValidationError(field, "must be an integer")
	}
	return n, nil
}

// GetPermissionAnalysis reports where a principal's permissions come from
// @Summary Permission Analysis
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param userID path string true "User ID"
// @Success 200 {object} admin.PermissionAnalysis
// @Router /admin/users/{userID}/permissions [get]
func (h *Handler) GetPermissionAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := h.adminService.GetPermissionAnalysis(r.Context(), GetPrincipal(r.Context()), chi.URLParam(r, "userID"))
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, analysis)
}

// RoleRequest names a single role.
type RoleRequest struct {
	Role rbac.Role `json:"role" validate:"required,rbac_role" example:"instructor"`
}

// AssignRole replaces a principal's roles with one role
// @Summary Assign Role
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param userID path string true "User ID"
// @Param request body RoleRequest true "Role"
// @Success 200 {object} UserResponse
// @Router /admin/users/{userID}/role [put]
func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := h.decodeRequest(w, r, &req); err != nil {
		respondFailure(w, r, err)
		return
	}
	h.respondUser(w, r)(h.adminService.AssignRole(r.Context(), GetPrincipal(r.Context()), chi.URLParam(r, "userID"), req.Role))
}

// GrantRole adds a role to a principal
// @Summary Grant Role
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param userID path string true "User ID"
// @Param request body RoleRequest true "Role"
// @Success 200 {object} UserResponse
// @Router /admin/users/{userID}/roles [post]
func (h *Handler) GrantRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := h.decodeRequest(w, r, &req); err != nil {
		respondFailure(w, r, err)
		return
	}
	h.respondUser(w, r)(h.adminService.GrantRole(r.Context(), GetPrincipal(r.Context()), chi.URLParam(r, "userID"), req.Role))
}

// RevokeRole removes one role from a principal
// @Summary Revoke Role
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param userID path string true "User ID"
// @Param role path string true "Role"
// @Success 200 {object} UserResponse
// @Router /admin/users/{userID}/roles/{role} [delete]
func (h *Handler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	role := rbac.Role(chi.URLParam(r, "role"))
	h.respondUser(w, r)(h.adminService.RevokeRole(r.Context(), GetPrincipal(r.Context()), chi.URLParam(r, "userID"), role))
}

// PermissionsRequest lists permissions to grant or revoke.
type PermissionsRequest struct {
	Permissions []rbac.Permission `json:"permissions" validate:"required,min=1,max=64,dive,rbac_permission" example:"analytics:view"`
}

// AddExtraPermissions grants permissions beyond the principal's roles
// @Summary Grant Permissions
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param userID path string true "User ID"
// @Param request body PermissionsRequest true "Permissions"
// @Success 200 {object} UserResponse
// @Router /admin/users/{userID}/permissions [post]
func (h *Handler) AddExtraPermissions(w http.ResponseWriter, r *http.Request) {
	var req PermissionsRequest
	if err := h.decodeRequest(w, r, &req); err != nil {
		respondFailure(w, r, err)
		return
	}
	h.respondUser(w, r)(h.adminService.AddExtraPermissions(r.Context(), GetPrincipal(r.Context()), chi.URLParam(r, "userID"), req.Permissions))
}

// RemoveExtraPermissions revokes previously granted permissions
// @Summary Revoke Permissions
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param userID path string true "User ID"
// @Param request body PermissionsRequest true "Permissions"
// @Success 200 {object} UserResponse
// @Router /admin/users/{userID}/permissions/revoke [post]
func (h *Handler) RemoveExtraPermissions(w http.ResponseWriter, r *http.Request) {
	var req PermissionsRequest
	if err := h.decodeRequest(w, r, &req); err != nil {
		respondFailure(w, r, err)
		return
	}
	h.respondUser(w, r)(h.adminService.RemoveExtraPermissions(r.Context(), GetPrincipal(r.Context()), chi.URLParam(r, "userID"), req.Permissions))
}

// ResetPermissions drops every grant beyond the principal's roles
// @Summary Reset Permissions
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param userID path string true "User ID"
// @Success 200 {object} UserResponse
// @Router /admin/users/{userID}/permissions/reset [post]
func (h *Handler) ResetPermissions(w http.ResponseWriter, r *http.Request) {
	h.respondUser(w, r)(h.adminService.ResetToRoleDefaults(r.Context(), GetPrincipal(r.Context()), chi.URLParam(r, "userID")))
}

func (h *Handler) respondUser(w http.ResponseWriter, r *http.Request) func(*identity.User, error) {
	return func(u *identity.User, err error) {
		if err != nil {
			respondFailure(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, toUserResponse(u))
	}
}

// BulkAssignRoleRequest assigns one role to many principals.
type BulkAssignRoleRequest struct {
	UserIDs []string  `json:"user_ids" validate:"required,min=1,max=1000,dive,required"`
	Role    rbac.Role `json:"role" validate:"required,rbac_role" example:"student"`
}

// BulkAssignRole assigns a role to each listed principal independently
// @Summary Bulk Assign Role
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BulkAssignRoleRequest true "Targets"
// @Success 200 {object} admin.BulkResult
// @Router /admin/roles/bulk-assign [post]
func (h *Handler) BulkAssignRole(w http.ResponseWriter, r *http.Request) {
	var req BulkAssignRoleRequest
	if err := h.decodeRequest(w, r, &req); err != nil {
		respondFailure(w, r, err)
		return
	}

	result, err := h.adminService.BulkAssignRole(r.Context(), GetPrincipal(r.Context()), req.UserIDs, req.Role)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// RoleTransitionRequest describes a role change to dry-run.
type RoleTransitionRequest struct {
	CurrentRole rbac.Role `json:"current_role" validate:"required"`
	NewRole     rbac.Role `json:"new_role" validate:"required"`
}

// ValidateRoleTransition reports whether the caller could perform a role change
// @Summary Validate Role Transition
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RoleTransitionRequest true "Transition"
// @Success 200 {object} admin.TransitionResult
// @Router /admin/roles/validate-transition [post]
func (h *Handler) ValidateRoleTransition(w http.ResponseWriter, r *http.Request) {
	var req RoleTransitionRequest
	if err := h.decodeRequest(w, r, &req); err != nil {
		respondFailure(w, r, err)
		return
	}
	actor := GetPrincipal(r.Context())
	respondJSON(w, http.StatusOK, admin.ValidateRoleTransition(req.CurrentRole, req.NewRole, actor.HighestRole()))
}
