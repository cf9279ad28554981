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
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSecret(t *testing.T) {
	tests := []struct {
		key      string
		isSecret bool
	}{
		{"password", true},
		{"PASSWORD", true},
		{"access_token", true},
		{"jwt_secret", true},
		{"api_key", true},
		{"password_hash", true},
		{"credential", true},
		{"target_id", false},
		{"role", false},
		{"permissions", false},
		{"email", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.isSecret, isSecret(tt.key))
		})
	}
}

// TestPurpose: Validates that audit events are emitted as structured records with secrets redacted.
// Scope: Unit Test
// Security: Sensitive metadata must never reach the audit sink in clear text
// Expected: The record carries the event type and actor, and secret-looking keys are redacted.
// Test Case ID: AUD-01
func TestSlogLogger_Log(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	l.Log(context.Background(), Event{
		Type:     TypeRoleAssigned,
		ActorID:  "actor-1",
		Resource: ResourceUser,
		Metadata: map[string]any{
			AttrTargetID: "target-1",
			AttrNewRole:  "editor",
			"token":      "abc",
		},
	})

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "AUDIT_EVENT", rec["msg"])
	assert.Equal(t, TypeRoleAssigned, rec["audit_type"])
	assert.Equal(t, "actor-1", rec["actor_id"])
	assert.Equal(t, "audit", rec["component"])

	meta, ok := rec["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "target-1", meta[AttrTargetID])
	assert.Equal(t, "editor", meta[AttrNewRole])
	assert.Equal(t, "[REDACTED]", meta["token"])
}

// TestPurpose: Validates that request details attached to the context reach audit records.
// Scope: Unit Test
// Security: Audit attribution of privileged actions
// Expected: The record carries an event ID plus the IP address and user agent from the context.
// Test Case ID: AUD-02
func TestSlogLogger_RequestInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx := WithRequestInfo(context.Background(), "203.0.113.7", "curl/8.0")
	l.Log(ctx, Event{Type: TypePermissionsReset, ActorID: "actor-1", Resource: ResourceUser})

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.NotEmpty(t, rec["event_id"])
	assert.Equal(t, "203.0.113.7", rec["ip_address"])
	assert.Equal(t, "curl/8.0", rec["user_agent"])
}
