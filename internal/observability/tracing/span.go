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

package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys
const (
	AttrActorID      = attribute.Key("lectern.actor.id")
	AttrActorRole    = attribute.Key("lectern.actor.role")
	AttrTargetID     = attribute.Key("lectern.target.id")
	AttrRole         = attribute.Key("lectern.role")
	AttrCount        = attribute.Key("lectern.count")
	AttrGate         = attribute.Key("lectern.authz.gate")
	AttrDenialReason = attribute.Key("lectern.authz.reason")
)

// EventDenied is added to the active span when a gate rejects a request.
const EventDenied = "authz.denied"

// End marks span as failed when err is non-nil and ends it. A non-empty
// reason means err is an authorization denial; it is recorded as an
// attribute instead of a span error since denials are expected outcomes.
func End(span trace.Span, err error, reason string) {
	defer span.End()
	if err == nil {
		return
	}
	if reason != "" {
		span.SetAttributes(AttrDenialReason.String(reason))
		span.SetStatus(codes.Error, "denied")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordDenial adds a denial event to the span active in ctx.
func RecordDenial(ctx context.Context, gate, reason string) {
	trace.SpanFromContext(ctx).AddEvent(EventDenied, trace.WithAttributes(
		AttrGate.String(gate),
		AttrDenialReason.String(reason),
	))
}
