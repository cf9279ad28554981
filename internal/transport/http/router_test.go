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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lectern/lectern/internal/admin"
	"github.com/lectern/lectern/internal/audit"
	"github.com/lectern/lectern/internal/authn"
	"github.com/lectern/lectern/internal/authz"
	"github.com/lectern/lectern/internal/identity"
	"github.com/lectern/lectern/internal/rbac"
	"github.com/lectern/lectern/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router   http.Handler
	users    *memory.UserRepository
	owners   *memory.OwnershipRepository
	resolver *authz.Resolver
	tokens   *authn.TokenService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, RouterConfig{Development: true})
}

func newTestServerWith(t *testing.T, cfg RouterConfig) *testServer {
	t.Helper()

	users := memory.NewUserRepository()
	owners := memory.NewOwnershipRepository()
	resolver := authz.NewResolver(nil)
	auditLogger := audit.NopLogger{}

	tokens, err := authn.NewTokenService(strings.Repeat("s", 32), "lectern-test", time.Hour)
	require.NoError(t, err)

	rl := NewRateLimiter(1000, 1000)
	t.Cleanup(rl.Stop)

	h := NewHandler(
		identity.NewService(users, resolver, auditLogger),
		admin.NewService(users, resolver, auditLogger),
		authz.NewGuard(resolver),
		owners,
		tokens,
		auditLogger,
	)
	return &testServer{
		router:   NewRouter(h, rl, cfg),
		users:    users,
		owners:   owners,
		resolver: resolver,
		tokens:   tokens,
	}
}

func (s *testServer) seed(t *testing.T, id string, role rbac.Role, extras ...rbac.Permission) *identity.User {
	t.Helper()
	u := &identity.User{
		ID:               id,
		Email:            id + "@example.com",
		Role:             role,
		ExtraPermissions: extras,
	}
	s.resolver.RecomputeEffectivePermissions(u)
	require.NoError(t, s.users.Create(context.Background(), u))
	return u
}

func (s *testServer) token(t *testing.T, u *identity.User) string {
	t.Helper()
	tok, err := s.tokens.Issue(u)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// TestPurpose: Validates that requests without a resolvable principal are rejected as unauthenticated.
// Scope: Unit Test
// Security: Fail-closed authentication (CWE-287)
// Expected: Missing, malformed and orphaned tokens all yield 401 with reason "unauthenticated".
// Test Case ID: HTTP-01
func TestAuthMiddleware_Unauthenticated(t *testing.T) {
	s := newTestServer(t)
	ghost := &identity.User{ID: "ghost", Role: rbac.RoleAdmin}

	cases := map[string]string{
		"missing token":   "",
		"malformed token": "not-a-jwt",
		"unknown subject": s.token(t, ghost),
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			w := s.do(t, http.MethodGet, "/api/v1/me/permissions", tok, nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			resp := decodeBody[errorResponse](t, w)
			assert.Equal(t, string(authz.ReasonUnauthenticated), resp.Reason)
		})
	}
}

// TestPurpose: Validates that a principal lacking privileges receives a 403 carrying the missing permissions.
// Scope: Unit Test
// Security: Least privilege enforcement (CWE-285)
// Expected: A student listing users gets 403 insufficient_permission naming user:view and user:manage_roles.
// Test Case ID: HTTP-02
func TestRouter_ForbiddenCarriesReason(t *testing.T) {
	s := newTestServer(t)
	student := s.seed(t, "student-1", rbac.RoleStudent)

	w := s.do(t, http.MethodGet, "/api/v1/admin/users", s.token(t, student), nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	resp := decodeBody[errorResponse](t, w)
	assert.Equal(t, string(authz.ReasonInsufficientPermission), resp.Reason)
	assert.ElementsMatch(t, []rbac.Permission{rbac.PermUserView, rbac.PermUserManageRoles}, resp.MissingPermissions)
}

// TestPurpose: Validates that role changes take effect on the next request without reissuing tokens.
// Scope: Unit Test
// Security: No stale privilege window after demotion (CWE-613)
// Expected: After an admin assigns instructor to a student, the student's unchanged token reports instructor permissions.
// Test Case ID: HTTP-03
func TestRouter_AssignRoleTakesEffectImmediately(t *testing.T) {
	s := newTestServer(t)
	adminUser := s.seed(t, "admin-1", rbac.RoleAdmin)
	student := s.seed(t, "student-1", rbac.RoleStudent)
	studentToken := s.token(t, student)

	w := s.do(t, http.MethodPut, "/api/v1/admin/users/student-1/role", s.token(t, adminUser), RoleRequest{Role: rbac.RoleInstructor})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decodeBody[UserResponse](t, w)
	assert.Equal(t, rbac.RoleInstructor, updated.Role)
	assert.Contains(t, updated.EffectivePermissions, rbac.PermCourseCreate)

	w = s.do(t, http.MethodGet, "/api/v1/me/permissions", studentToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	analysis := decodeBody[admin.PermissionAnalysis](t, w)
	assert.Equal(t, rbac.RoleInstructor, analysis.Role)
	assert.Contains(t, analysis.EffectivePermissions, rbac.PermCourseCreate)
	assert.NotContains(t, analysis.EffectivePermissions, rbac.PermQuizTake)
}

// TestPurpose: Validates that a caller without user:view cannot tell a missing principal from a protected one.
// Scope: Unit Test
// Security: Principal enumeration resistance (CWE-203)
// Expected: Assigning a role to a nonexistent ID and to a senior principal produce identical 403 responses.
// Test Case ID: HTTP-04
func TestRouter_HidesTargetExistence(t *testing.T) {
	s := newTestServer(t)
	editor := s.seed(t, "editor-1", rbac.RoleEditor)
	s.seed(t, "admin-1", rbac.RoleAdmin)
	tok := s.token(t, editor)
	body := RoleRequest{Role: rbac.RoleStudent}

	protected := s.do(t, http.MethodPut, "/api/v1/admin/users/admin-1/role", tok, body)
	missing := s.do(t, http.MethodPut, "/api/v1/admin/users/nobody/role", tok, body)

	assert.Equal(t, http.StatusForbidden, protected.Code)
	assert.Equal(t, protected.Code, missing.Code)
	assert.JSONEq(t, protected.Body.String(), missing.Body.String())
}

// TestPurpose: Validates that a caller with user:view receives 404 for a missing principal.
// Scope: Unit Test
// Security: N/A
// Expected: An admin assigning a role to a nonexistent ID gets 404.
// Test Case ID: HTTP-05
func TestRouter_NotFoundForVisibleCaller(t *testing.T) {
	s := newTestServer(t)
	adminUser := s.seed(t, "admin-1", rbac.RoleAdmin)

	w := s.do(t, http.MethodPut, "/api/v1/admin/users/nobody/role", s.token(t, adminUser), RoleRequest{Role: rbac.RoleStudent})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestPurpose: Validates request validation on administration endpoints.
// Scope: Unit Test
// Security: Input validation boundary
// Expected: Unknown roles, unknown permissions, empty lists and malformed bodies yield 400 naming the field.
// Test Case ID: HTTP-06
func TestRouter_Validation(t *testing.T) {
	s := newTestServer(t)
	adminUser := s.seed(t, "admin-1", rbac.RoleAdmin)
	s.seed(t, "student-1", rbac.RoleStudent)
	tok := s.token(t, adminUser)

	tests := []struct {
		name  string
		path  string
		body  any
		field string
	}{
		{"unknown role", "/api/v1/admin/users/student-1/roles", map[string]string{"role": "wizard"}, "role"},
		{"unknown permission", "/api/v1/admin/users/student-1/permissions", map[string][]string{"permissions": {"course:teleport"}}, "permissions[0]"},
		{"empty permissions", "/api/v1/admin/users/student-1/permissions", map[string][]string{"permissions": {}}, "permissions"},
		{"malformed body", "/api/v1/admin/users/student-1/permissions", "{", "body"},
		{"unknown field", "/api/v1/admin/users/student-1/roles", map[string]string{"rank": "admin"}, "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, tt.path, tok, tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, tt.field, decodeBody[errorResponse](t, w).Field)
		})
	}
}

// TestPurpose: Validates that extra permission grants are limited to administrators at the boundary.
// Scope: Unit Test
// Security: Privilege escalation prevention (CWE-269)
// Expected: An editor gets 403 insufficient_role; an admin's grant is reflected in the response.
// Test Case ID: HTTP-07
func TestRouter_ExtraPermissions(t *testing.T) {
	s := newTestServer(t)
	editor := s.seed(t, "editor-1", rbac.RoleEditor)
	adminUser := s.seed(t, "admin-1", rbac.RoleAdmin)
	s.seed(t, "author-1", rbac.RoleAuthor)
	body := PermissionsRequest{Permissions: []rbac.Permission{rbac.PermAnalyticsView}}

	w := s.do(t, http.MethodPost, "/api/v1/admin/users/author-1/permissions", s.token(t, editor), body)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, string(authz.ReasonInsufficientRole), decodeBody[errorResponse](t, w).Reason)

	w = s.do(t, http.MethodPost, "/api/v1/admin/users/author-1/permissions", s.token(t, adminUser), body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, decodeBody[UserResponse](t, w).EffectivePermissions, rbac.PermAnalyticsView)

	w = s.do(t, http.MethodPost, "/api/v1/admin/users/author-1/permissions/reset", s.token(t, adminUser), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, decodeBody[UserResponse](t, w).EffectivePermissions, rbac.PermAnalyticsView)
}

// TestPurpose: Validates the decision endpoint, including the vacuous any-of and all-of cases.
// Scope: Unit Test
// Security: Fail-closed evaluation of empty requirement lists
// Expected: Empty any-of denies, empty all-of allows, and missing permissions are reported.
// Test Case ID: HTTP-08
func TestRouter_CheckAuthorization(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, s.seed(t, "student-1", rbac.RoleStudent))

	tests := []struct {
		name    string
		body    string
		allowed bool
		missing []rbac.Permission
	}{
		{"empty any", `{"any": []}`, false, nil},
		{"empty all", `{"all": []}`, true, nil},
		{"held", `{"all": ["course:enroll", "quiz:take"]}`, true, nil},
		{"partly held", `{"all": ["course:enroll", "course:create"]}`, false, []rbac.Permission{rbac.PermCourseCreate}},
		{"role", `{"roles": ["admin"]}`, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/v1/authz/check", tok, tt.body)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			resp := decodeBody[DecisionResponse](t, w)
			assert.Equal(t, tt.allowed, resp.Allowed)
			if tt.missing != nil {
				assert.Equal(t, tt.missing, resp.MissingPermissions)
			}
		})
	}
}

// TestPurpose: Validates ownership-or-manage-all decisions over stored resources.
// Scope: Unit Test
// Security: Horizontal privilege escalation prevention (CWE-639)
// Expected: Owners and manage_all holders are allowed; other managers are denied whether or not the resource exists.
// Test Case ID: HTTP-09
func TestRouter_CheckResourceAccess(t *testing.T) {
	s := newTestServer(t)
	owner := s.seed(t, "instructor-1", rbac.RoleInstructor)
	other := s.seed(t, "instructor-2", rbac.RoleInstructor)
	adminUser := s.seed(t, "admin-1", rbac.RoleAdmin)
	s.owners.SetOwner("course", "c-1", owner.ID)

	check := func(u *identity.User, path string) DecisionResponse {
		w := s.do(t, http.MethodGet, path, s.token(t, u), nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		return decodeBody[DecisionResponse](t, w)
	}

	assert.True(t, check(owner, "/api/v1/resources/course/c-1/access").Allowed)
	assert.True(t, check(adminUser, "/api/v1/resources/course/c-1/access").Allowed)
	assert.True(t, check(adminUser, "/api/v1/resources/course/c-404/access").Allowed)

	denied := check(other, "/api/v1/resources/course/c-1/access")
	missing := check(other, "/api/v1/resources/course/c-404/access")
	assert.False(t, denied.Allowed)
	assert.Equal(t, denied, missing)

	w := s.do(t, http.MethodGet, "/api/v1/resources/spaceship/x/access", s.token(t, adminUser), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestPurpose: Validates user provisioning respects the caller's seniority.
// Scope: Unit Test
// Security: Privilege escalation prevention (CWE-269)
// Expected: An admin may create an instructor but not another admin; duplicate emails conflict.
// Test Case ID: HTTP-10
func TestRouter_ProvisionUser(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, s.seed(t, "admin-1", rbac.RoleAdmin))

	w := s.do(t, http.MethodPost, "/api/v1/admin/users", tok, ProvisionUserRequest{
		Email: "new@example.com", DisplayName: "New", Roles: []rbac.Role{rbac.RoleInstructor},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeBody[UserResponse](t, w)
	assert.Equal(t, rbac.RoleInstructor, created.Role)
	assert.NotEmpty(t, created.ID)

	w = s.do(t, http.MethodPost, "/api/v1/admin/users", tok, ProvisionUserRequest{Email: "new@example.com"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/admin/users", tok, ProvisionUserRequest{
		Email: "peer@example.com", Roles: []rbac.Role{rbac.RoleAdmin},
	})
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, string(authz.ReasonInsufficientSeniority), decodeBody[errorResponse](t, w).Reason)
}

// TestPurpose: Validates bulk assignment isolates per-target failures.
// Scope: Unit Test
// Security: N/A
// Expected: Juniors are updated, a senior target and a missing target are reported as failures in input order.
// Test Case ID: HTTP-11
func TestRouter_BulkAssignRole(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, s.seed(t, "admin-1", rbac.RoleAdmin))
	s.seed(t, "u-1", rbac.RoleUser)
	s.seed(t, "u-2", rbac.RoleUser)
	s.seed(t, "super-1", rbac.RoleSuperAdmin)

	w := s.do(t, http.MethodPost, "/api/v1/admin/roles/bulk-assign", tok, BulkAssignRoleRequest{
		UserIDs: []string{"u-1", "super-1", "u-2", "missing"},
		Role:    rbac.RoleStudent,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	result := decodeBody[admin.BulkResult](t, w)
	assert.Equal(t, []string{"u-1", "u-2"}, result.Succeeded)
	require.Len(t, result.Failed, 2)
	assert.Equal(t, "super-1", result.Failed[0].UserID)
	assert.Equal(t, "missing", result.Failed[1].UserID)
}

// TestPurpose: Validates the catalog endpoints and listing visibility.
// Scope: Unit Test
// Security: Listing must not expose senior principals (CWE-200)
// Expected: Roles come back in hierarchy order; a moderator's listing contains itself and juniors only.
// Test Case ID: HTTP-12
func TestRouter_CatalogAndListing(t *testing.T) {
	s := newTestServer(t)
	moderator := s.seed(t, "mod-1", rbac.RoleModerator)
	s.seed(t, "student-1", rbac.RoleStudent)
	s.seed(t, "admin-1", rbac.RoleAdmin)
	tok := s.token(t, moderator)

	w := s.do(t, http.MethodGet, "/api/v1/roles", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	roles := decodeBody[map[string][]rbac.Definition](t, w)["roles"]
	require.NotEmpty(t, roles)
	assert.Equal(t, rbac.RoleUser, roles[0].Name)

	w = s.do(t, http.MethodGet, "/api/v1/permissions", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decodeBody[map[string][]rbac.Category](t, w)["categories"])

	w = s.do(t, http.MethodGet, "/api/v1/admin/users?limit=x", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/admin/users", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listing struct {
		Users []UserResponse `json:"users"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	ids := make([]string, len(listing.Users))
	for i, u := range listing.Users {
		ids[i] = u.ID
	}
	assert.ElementsMatch(t, []string{"mod-1", "student-1"}, ids)
}

// TestPurpose: Validates the health endpoint and hardening headers.
// Scope: Unit Test
// Security: Clickjacking and MIME sniffing protection
// Expected: /health answers 200 with X-Frame-Options and X-Content-Type-Options set.
// Test Case ID: HTTP-13
func TestRouter_HealthAndSecurityHeaders(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

// TestPurpose: Validates that privilege mutations are throttled per actor while reads are not.
// Scope: API Integration Test
// Security: Abuse of administrator credentials (CWE-770)
// Expected: The second role change within the minute gets 429; permission analysis is still served.
// Test Case ID: HTTP-14
func TestRouter_MutationThrottle(t *testing.T) {
	s := newTestServerWith(t, RouterConfig{Development: true, MutationsPerMinute: 1})
	adminUser := s.seed(t, "admin-1", rbac.RoleAdmin)
	s.seed(t, "student-1", rbac.RoleStudent)
	tok := s.token(t, adminUser)

	w := s.do(t, http.MethodPut, "/api/v1/admin/users/student-1/role", tok, RoleRequest{Role: rbac.RoleInstructor})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPut, "/api/v1/admin/users/student-1/role", tok, RoleRequest{Role: rbac.RoleAuthor})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/admin/users/student-1/permissions", tok, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
