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

package admin

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/lectern/lectern/internal/audit"
	"github.com/lectern/lectern/internal/authz"
	"github.com/lectern/lectern/internal/identity"
	"github.com/lectern/lectern/internal/observability/tracing"
	"github.com/lectern/lectern/internal/rbac"
)

// Failure reasons reported per bulk item besides the denial reasons.
const (
	ReasonNotFound   = "not_found"
	ReasonValidation = "validation_error"
	ReasonInternal   = "internal_error"
)

// BulkFailure describes one target that could not be updated.
type BulkFailure struct {
	UserID  string `json:"user_id"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// BulkResult lists per-target outcomes in input order.
type BulkResult struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

// BulkAssignRole applies AssignRole to every target independently. A failing
// target never aborts or rolls back the others. Duplicate IDs are processed once.
func (s *Service) BulkAssignRole(ctx context.Context, actor *identity.User, targetIDs []string, newRole rbac.Role) (_ *BulkResult, err error) {
	ctx, span := s.start(ctx, "admin.BulkAssignRole", actor, "",
		tracing.AttrRole.String(string(newRole)),
		tracing.AttrCount.Int(len(targetIDs)),
	)
	defer func() { s.finish(ctx, span, "bulk_assign_role", actor, "", err) }()

	if err := requireAdministrator(actor); err != nil {
		return nil, err
	}
	ids := dedupe(targetIDs)
	if len(ids) == 0 {
		return nil, authz.NewValidationError("user_ids", "must not be empty")
	}
	if err := s.checkAssignable(actor, newRole); err != nil {
		return nil, err
	}

	errs := make([]error, len(ids))
	var g errgroup.Group
	g.SetLimit(s.bulkConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			_, errs[i] = s.AssignRole(ctx, actor, id, newRole)
			return nil
		})
	}
	_ = g.Wait()

	result := &BulkResult{Succeeded: []string{}, Failed: []BulkFailure{}}
	for i, id := range ids {
		if errs[i] == nil {
			result.Succeeded = append(result.Succeeded, id)
			continue
		}
		result.Failed = append(result.Failed, BulkFailure{
			UserID:  id,
			Reason:  failureReason(errs[i]),
			Message: errs[i].Error(),
		})
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeBulkRoleAssigned,
		ActorID:  actor.ID,
		Resource: audit.ResourceUser,
		Metadata: map[string]any{
			audit.AttrNewRole:   string(newRole),
			audit.AttrSucceeded: len(result.Succeeded),
			audit.AttrFailed:    len(result.Failed),
		},
	})
	return result, nil
}

func failureReason(err error) string {
	if d, ok := authz.AsDenial(err); ok {
		return string(d.Reason)
	}
	switch {
	case errors.Is(err, identity.ErrUserNotFound):
		return ReasonNotFound
	case errors.Is(err, authz.ErrValidation):
		return ReasonValidation
	}
	return ReasonInternal
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
