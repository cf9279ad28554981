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
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lectern/lectern/internal/audit"
	"github.com/lectern/lectern/internal/authz"
	"github.com/lectern/lectern/internal/observability/logger"
	"github.com/lectern/lectern/internal/observability/tracing"
	"github.com/lectern/lectern/internal/rbac"
)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// AuditContextMiddleware records the caller's address and user agent for
// audit events emitted while serving the request.
func AuditContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := audit.WithRequestInfo(r.Context(), getIPAddress(r), r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthMiddleware resolves the bearer token to a principal loaded fresh from
// the store. Privileges embedded in the token are ignored so that role
// changes take effect on the next request. Any failure, including a store
// error, is rendered as unauthenticated.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			respondFailure(w, r, authz.Unauthenticated())
			return
		}

		claims, err := h.tokens.Verify(raw)
		if err != nil {
			slog.DebugContext(r.Context(), "rejected bearer token", logger.Error(err))
			respondFailure(w, r, authz.Unauthenticated())
			return
		}

		user, err := h.identityService.GetUser(r.Context(), claims.Subject)
		if err != nil {
			slog.WarnContext(r.Context(), "failed to load principal",
				logger.UserID(claims.Subject),
				logger.Error(err),
			)
			respondFailure(w, r, authz.Unauthenticated())
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), user)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// gate adapts a guard check into middleware. A rejected check stops the
// chain before the handler runs and is recorded as an audit event.
func (h *Handler) gate(check func(r *http.Request) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := check(r); err != nil {
				if d, ok := authz.AsDenial(err); ok {
					operation := r.Method + " " + routePattern(r)
					tracing.RecordDenial(r.Context(), operation, string(d.Reason))
					h.auditLogger.Log(r.Context(), audit.Event{
						Type:     audit.TypeAccessDenied,
						ActorID:  GetUserID(r.Context()),
						Resource: audit.ResourceAuthz,
						Metadata: map[string]any{
							audit.AttrOperation: operation,
							audit.AttrReason:    string(d.Reason),
						},
					})
				}
				respondFailure(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// RequireRole admits principals holding any of roles.
func (h *Handler) RequireRole(roles ...rbac.Role) func(http.Handler) http.Handler {
	return h.gate(func(r *http.Request) error {
		return h.guard.RequireRole(r.Context(), GetPrincipal(r.Context()), roles...)
	})
}

// RequirePermissions admits principals holding every one of perms.
func (h *Handler) RequirePermissions(perms ...rbac.Permission) func(http.Handler) http.Handler {
	return h.gate(func(r *http.Request) error {
		return h.guard.RequireAll(r.Context(), GetPrincipal(r.Context()), perms...)
	})
}

// RequireAnyPermission admits principals holding at least one of perms.
func (h *Handler) RequireAnyPermission(perms ...rbac.Permission) func(http.Handler) http.Handler {
	return h.gate(func(r *http.Request) error {
		return h.guard.RequireAny(r.Context(), GetPrincipal(r.Context()), perms...)
	})
}

// RequireResourceManagement admits principals that may manage their own or
// all instances of resource.
func (h *Handler) RequireResourceManagement(resource string) func(http.Handler) http.Handler {
	return h.gate(func(r *http.Request) error {
		return h.guard.RequireResourceManagement(r.Context(), GetPrincipal(r.Context()), resource)
	})
}

// RequireOwnership admits the owner of the resource named by the idParam URL
// parameter, or any principal holding resource:manage_all.
func (h *Handler) RequireOwnership(resource, idParam string) func(http.Handler) http.Handler {
	return h.gate(func(r *http.Request) error {
		return h.guard.CheckOwnership(r.Context(), GetPrincipal(r.Context()), h.owners, resource, chi.URLParam(r, idParam))
	})
}
