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

package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/lectern/lectern/internal/id"
)

// Event types
const (
	TypeUserCreated        = "user_created"
	TypeRoleAssigned       = "role_assigned"
	TypeRoleGranted        = "role_granted"
	TypeRoleRevoked        = "role_revoked"
	TypeBulkRoleAssigned   = "bulk_role_assigned"
	TypePermissionsGranted = "permissions_granted"
	TypePermissionsRevoked = "permissions_revoked"
	TypePermissionsReset   = "permissions_reset"
	TypeAccessDenied       = "access_denied"
	TypeAdminBootstrap     = "super_admin_bootstrap"
	TypeRolesSeeded        = "roles_seeded"
)

// Well-known actors
const (
	ActorSystem          = "system"
	ActorSystemBootstrap = "system:bootstrap"
)

// Resources
const (
	ResourceUser  = "user"
	ResourceRole  = "role"
	ResourceAuthz = "authz"
)

// Metadata keys
const (
	AttrTargetID    = "target_id"
	AttrRole        = "role"
	AttrOldRole     = "old_role"
	AttrNewRole     = "new_role"
	AttrRoles       = "roles"
	AttrPermissions = "permissions"
	AttrReason      = "reason"
	AttrEmail       = "email"
	AttrSucceeded   = "succeeded"
	AttrFailed      = "failed"
	AttrCount       = "count"
	AttrOperation   = "operation"
)

// Event represents an auditable action
type Event struct {
	ID        string
	Type      string
	ActorID   string
	Resource  string
	Metadata  map[string]any
	Timestamp time.Time
	IPAddress string
	UserAgent string
}

type requestInfoKey struct{}

type requestInfo struct {
	ipAddress string
	userAgent string
}

// WithRequestInfo attaches the caller's address and user agent to ctx. Events
// logged with ctx inherit them unless set explicitly.
func WithRequestInfo(ctx context.Context, ipAddress, userAgent string) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, requestInfo{ipAddress: ipAddress, userAgent: userAgent})
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event)
}

// SlogLogger implements Logger using slog
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a new audit logger writing through logger. A nil
// logger means slog.Default at the time of each call.
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{logger: logger}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) {
	event = complete(ctx, event)

	attrs := []slog.Attr{
		slog.String("event_id", event.ID),
		slog.String("audit_type", event.Type),
		slog.String("actor_id", event.ActorID),
		slog.String("resource", event.Resource),
		slog.Time("timestamp", event.Timestamp),
		slog.String("component", "audit"),
	}

	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}

	if metadata := redact(event.Metadata); len(metadata) > 0 {
		group := make([]any, 0, len(metadata))
		for k, v := range metadata {
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}

	logger := l.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "AUDIT_EVENT", attrs...)
}

// complete fills the event ID, timestamp and request info left empty by the caller.
func complete(ctx context.Context, event Event) Event {
	if event.ID == "" {
		event.ID = id.NewUUIDv7()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if info, ok := ctx.Value(requestInfoKey{}).(requestInfo); ok {
		if event.IPAddress == "" {
			event.IPAddress = info.ipAddress
		}
		if event.UserAgent == "" {
			event.UserAgent = info.userAgent
		}
	}
	return event
}

// redact returns a copy of metadata with secret-looking values masked.
func redact(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if isSecret(k) {
			v = "[REDACTED]"
		}
		out[k] = v
	}
	return out
}

// MultiLogger fans each event out to every wrapped logger.
type MultiLogger []Logger

// NewMultiLogger skips nil loggers.
func NewMultiLogger(loggers ...Logger) MultiLogger {
	out := make(MultiLogger, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			out = append(out, l)
		}
	}
	return out
}

// Log implements Logger. The event is completed once so every sink sees the
// same ID and timestamp.
func (m MultiLogger) Log(ctx context.Context, event Event) {
	event = complete(ctx, event)
	for _, l := range m {
		l.Log(ctx, event)
	}
}

// NopLogger discards every event.
type NopLogger struct{}

// Log implements Logger.
func (NopLogger) Log(context.Context, Event) {}

var secretMarkers = []string{"password", "secret", "token", "key", "hash", "credential", "authorization"}

// isSecret checks if a key likely contains a secret
func isSecret(key string) bool {
	k := strings.ToLower(key)
	for _, s := range secretMarkers {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
