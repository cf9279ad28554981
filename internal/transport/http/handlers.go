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

// @title Lectern Access API
// @version 1.0
// @description Role and permission administration for the Lectern learning platform.
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/lectern/lectern/internal/admin"
	"github.com/lectern/lectern/internal/audit"
	"github.com/lectern/lectern/internal/authn"
	"github.com/lectern/lectern/internal/authz"
	"github.com/lectern/lectern/internal/identity"
	"github.com/lectern/lectern/internal/observability/logger"
	"github.com/lectern/lectern/internal/rbac"
	"github.com/unrolled/secure"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// TokenVerifier validates bearer credentials.
type TokenVerifier interface {
	Verify(raw string) (*authn.Claims, error)
}

// Handler holds HTTP handlers and dependencies
type Handler struct {
	identityService *identity.Service
	adminService    *admin.Service
	guard           *authz.Guard
	owners          authz.OwnerLookup
	tokens          TokenVerifier
	auditLogger     audit.Logger
	validate        *validator.Validate
}

// NewHandler creates a new HTTP handler
func NewHandler(
	identityService *identity.Service,
	adminService *admin.Service,
	guard *authz.Guard,
	owners authz.OwnerLookup,
	tokens TokenVerifier,
	auditLogger audit.Logger,
) *Handler {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Handler{
		identityService: identityService,
		adminService:    adminService,
		guard:           guard,
		owners:          owners,
		tokens:          tokens,
		auditLogger:     auditLogger,
		validate:        newValidator(),
	}
}

// RouterConfig holds transport settings that are not handler dependencies.
type RouterConfig struct {
	RequestTimeout time.Duration
	Development    bool
	// MutationsPerMinute is passed to MutationRateLimit.
	MutationsPerMinute int
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter, cfg RouterConfig) *chi.Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(AuditContextMiddleware)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders(cfg.Development))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		// Catalog and self-service
		r.Get("/roles", h.ListRoles)
		r.Get("/permissions", h.ListPermissions)
		r.Get("/me/permissions", h.GetMyPermissions)

		// Decisions
		r.Post("/authz/check", h.CheckAuthorization)
		r.Get("/resources/{resourceType}/{resourceID}/access", h.CheckResourceAccess)

		r.Route("/admin", func(r chi.Router) {
			r.With(h.RequireAnyPermission(rbac.PermUserView, rbac.PermUserManageRoles)).
				Get("/users", h.ListUsers)
			r.Get("/users/{userID}/permissions", h.GetPermissionAnalysis)
			r.Post("/roles/validate-transition", h.ValidateRoleTransition)

			// Mutations. The admin service enforces seniority on every one;
			// the gates here reject obviously unprivileged callers early.
			r.Group(func(r chi.Router) {
				r.Use(MutationRateLimit(cfg.MutationsPerMinute))

				r.With(h.RequirePermissions(rbac.PermUserManage)).
					Post("/users", h.ProvisionUser)
				r.Put("/users/{userID}/role", h.AssignRole)
				r.Post("/users/{userID}/roles", h.GrantRole)
				r.Delete("/users/{userID}/roles/{role}", h.RevokeRole)
				r.Post("/users/{userID}/permissions/reset", h.ResetPermissions)

				r.Group(func(r chi.Router) {
					r.Use(h.RequireRole(rbac.RoleAdmin))
					r.Post("/users/{userID}/permissions", h.AddExtraPermissions)
					r.Post("/users/{userID}/permissions/revoke", h.RemoveExtraPermissions)
					r.Post("/roles/bulk-assign", h.BulkAssignRole)
				})
			})
		})
	})

	return r
}

// SecurityHeaders sets the standard hardening headers on every response.
func SecurityHeaders(development bool) func(http.Handler) http.Handler {
	sm := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		STSSeconds:            31536000,
		IsDevelopment:         development,
	})
	return sm.Handler
}

// HealthCheck returns the health status
// @Summary Health Check
// @Description Checks if the service is up and running
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "lectern",
	})
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error               string            `json:"error"`
	Reason              string            `json:"reason,omitempty"`
	Field               string            `json:"field,omitempty"`
	RequiredRoles       []rbac.Role       `json:"required_roles,omitempty"`
	RequiredPermissions []rbac.Permission `json:"required_permissions,omitempty"`
	MissingPermissions  []rbac.Permission `json:"missing_permissions,omitempty"`
}

// respondFailure renders err. Denials carry their reason payload; anything
// unrecognised is logged and reported as an internal error.
func respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	if d, ok := authz.AsDenial(err); ok {
		status := http.StatusForbidden
		if d.Reason == authz.ReasonUnauthenticated {
			status = http.StatusUnauthorized
		}
		respondJSON(w, status, errorResponse{
			Error:               d.Error(),
			Reason:              string(d.Reason),
			RequiredRoles:       d.RequiredRoles,
			RequiredPermissions: d.RequiredPermissions,
			MissingPermissions:  d.MissingPermissions,
		})
		return
	}

	var ve *authz.ValidationError
	switch {
	case errors.As(err, &ve):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Error(), Reason: "validation", Field: ve.Field})
	case errors.Is(err, identity.ErrUserNotFound):
		respondError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, authz.ErrResourceNotFound):
		respondError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, identity.ErrUserAlreadyExists):
		respondError(w, http.StatusConflict, "user already exists")
	case errors.Is(err, identity.ErrInvalidEmail):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Reason: "validation", Field: "email"})
	case errors.Is(err, rbac.ErrUnknownRole), errors.Is(err, rbac.ErrUnknownPermission):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Reason: "validation"})
	default:
		slog.ErrorContext(r.Context(), "request failed",
			logger.RequestID(middleware.GetReqID(r.Context())),
			logger.Path(r.URL.Path),
			logger.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

func getIPAddress(r *http.Request) string {
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return getClientIP(r)
}
