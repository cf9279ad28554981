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
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/lectern/lectern/internal/authz"
	"github.com/lectern/lectern/internal/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates that the resource gates stop the chain before the handler runs.
// Scope: Unit Test
// Security: Gates never partially apply (CWE-285)
// Expected: Principals without manage permissions or ownership get 403 and the handler is not invoked.
// Test Case ID: MW-01
func TestMiddleware_ResourceGates(t *testing.T) {
	s := newTestServer(t)
	student := s.seed(t, "student-1", rbac.RoleStudent)
	author := s.seed(t, "author-1", rbac.RoleAuthor)
	editor := s.seed(t, "editor-1", rbac.RoleEditor)
	s.owners.SetOwner("blog", "b-1", author.ID)

	h := NewHandler(nil, nil, authz.NewGuard(s.resolver), s.owners, s.tokens, nil)

	var reached int
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			id := req.Header.Get("X-Test-User")
			u, err := s.users.GetByID(req.Context(), id)
			require.NoError(t, err)
			next.ServeHTTP(w, req.WithContext(WithPrincipal(req.Context(), u)))
		})
	})
	ok := func(w http.ResponseWriter, _ *http.Request) {
		reached++
		w.WriteHeader(http.StatusNoContent)
	}
	r.With(h.RequireResourceManagement("blog")).Post("/blogs", ok)
	r.With(h.RequireOwnership("blog", "blogID")).Put("/blogs/{blogID}", ok)

	call := func(method, path, userID string) int {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("X-Test-User", userID)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusForbidden, call(http.MethodPost, "/blogs", student.ID))
	assert.Equal(t, http.StatusNoContent, call(http.MethodPost, "/blogs", author.ID))
	assert.Equal(t, http.StatusNoContent, call(http.MethodPut, "/blogs/b-1", author.ID))
	assert.Equal(t, http.StatusNoContent, call(http.MethodPut, "/blogs/b-1", editor.ID), "blog:manage_all bypasses ownership")
	assert.Equal(t, http.StatusForbidden, call(http.MethodPut, "/blogs/b-1", student.ID))
	assert.Equal(t, 3, reached)
}

// TestPurpose: Validates bearer header parsing.
// Scope: Unit Test
// Security: Credential extraction
// Expected: Only a non-empty token after a case-insensitive "Bearer" scheme is accepted.
// Test Case ID: MW-02
func TestBearerToken(t *testing.T) {
	tests := map[string]struct {
		header string
		token  string
		ok     bool
	}{
		"valid":        {"Bearer abc", "abc", true},
		"lower scheme": {"bearer abc", "abc", true},
		"basic":        {"Basic abc", "", false},
		"no token":     {"Bearer ", "", false},
		"empty":        {"", "", false},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", tt.header)
			token, ok := bearerToken(req)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.token, token)
		})
	}
}
