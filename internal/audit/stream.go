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
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stream entry fields
const (
	FieldID        = "id"
	FieldType      = "type"
	FieldActorID   = "actor_id"
	FieldResource  = "resource"
	FieldTimestamp = "timestamp"
	FieldIPAddress = "ip_address"
	FieldUserAgent = "user_agent"
	FieldMetadata  = "metadata"
)

// StreamLogger appends audit events to a Redis stream, one entry per event.
// Publishing is best effort: a failed append is reported through slog and
// never fails the operation being audited.
type StreamLogger struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewStreamLogger writes to stream, trimming it to roughly maxLen entries.
// A maxLen of zero disables trimming.
func NewStreamLogger(client redis.Cmdable, stream string, maxLen int64) *StreamLogger {
	return &StreamLogger{client: client, stream: stream, maxLen: maxLen}
}

// Log implements Logger.
func (l *StreamLogger) Log(ctx context.Context, event Event) {
	event = complete(ctx, event)

	values := map[string]any{
		FieldID:        event.ID,
		FieldType:      event.Type,
		FieldActorID:   event.ActorID,
		FieldResource:  event.Resource,
		FieldTimestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if event.IPAddress != "" {
		values[FieldIPAddress] = event.IPAddress
	}
	if event.UserAgent != "" {
		values[FieldUserAgent] = event.UserAgent
	}
	if metadata := redact(event.Metadata); len(metadata) > 0 {
		payload, err := json.Marshal(metadata)
		if err != nil {
			slog.WarnContext(ctx, "failed to encode audit metadata",
				slog.String("event_id", event.ID), slog.String("error", err.Error()))
		} else {
			values[FieldMetadata] = string(payload)
		}
	}

	args := &redis.XAddArgs{Stream: l.stream, Values: values}
	if l.maxLen > 0 {
		args.MaxLen = l.maxLen
		args.Approx = true
	}
	// The request context may already be done once the response is written.
	if err := l.client.XAdd(context.WithoutCancel(ctx), args).Err(); err != nil {
		slog.WarnContext(ctx, "failed to publish audit event",
			slog.String("event_id", event.ID),
			slog.String("stream", l.stream),
			slog.String("error", err.Error()),
		)
	}
}
