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

package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lectern/lectern/internal/rbac"
)

// Authorization errors. A *Denial matches ErrAccessDenied for every reason
// except unauthenticated, and the sentinel of its own reason.
var (
	ErrUnauthenticated        = errors.New("authentication required")
	ErrAccessDenied           = errors.New("access denied")
	ErrInsufficientRole       = errors.New("insufficient role")
	ErrInsufficientPermission = errors.New("insufficient permission")
	ErrInsufficientSeniority  = errors.New("insufficient seniority")
	ErrValidation             = errors.New("validation failed")
	ErrResourceNotFound       = errors.New("resource not found")
)

// Reason classifies a denial.
type Reason string

const (
	ReasonUnauthenticated        Reason = "unauthenticated"
	ReasonInsufficientRole       Reason = "insufficient_role"
	ReasonInsufficientPermission Reason = "insufficient_permission"
	ReasonInsufficientSeniority  Reason = "insufficient_seniority"
)

// Denial is the structured rejection produced by every gate.
type Denial struct {
	Reason              Reason
	Message             string
	RequiredRoles       []rbac.Role
	RequiredPermissions []rbac.Permission
	MissingPermissions  []rbac.Permission
}

func (d *Denial) Error() string {
	var b strings.Builder
	b.WriteString(string(d.Reason))
	if d.Message != "" {
		b.WriteString(": ")
		b.WriteString(d.Message)
	}
	if len(d.MissingPermissions) > 0 {
		fmt.Fprintf(&b, " (missing %s)", joinPermissions(d.MissingPermissions))
	}
	return b.String()
}

// Is reports whether target is one of the sentinels this denial matches.
func (d *Denial) Is(target error) bool {
	switch target {
	case ErrAccessDenied:
		return d.Reason != ReasonUnauthenticated
	case ErrUnauthenticated:
		return d.Reason == ReasonUnauthenticated
	case ErrInsufficientRole:
		return d.Reason == ReasonInsufficientRole
	case ErrInsufficientPermission:
		return d.Reason == ReasonInsufficientPermission
	case ErrInsufficientSeniority:
		return d.Reason == ReasonInsufficientSeniority
	}
	return false
}

// AsDenial extracts a *Denial from err.
func AsDenial(err error) (*Denial, bool) {
	var d *Denial
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}

// Unauthenticated returns the denial for a request without a principal.
func Unauthenticated() *Denial {
	return &Denial{Reason: ReasonUnauthenticated, Message: "authentication required"}
}

// InsufficientRole returns a role denial naming the accepted roles.
func InsufficientRole(required ...rbac.Role) *Denial {
	return &Denial{
		Reason:        ReasonInsufficientRole,
		Message:       "role not permitted",
		RequiredRoles: required,
	}
}

// InsufficientPermission returns a permission denial.
func InsufficientPermission(required, missing []rbac.Permission) *Denial {
	return &Denial{
		Reason:              ReasonInsufficientPermission,
		Message:             "missing required permissions",
		RequiredPermissions: required,
		MissingPermissions:  missing,
	}
}

// InsufficientSeniority returns a seniority denial.
func InsufficientSeniority(msg string) *Denial {
	if msg == "" {
		msg = "actor is not senior to the target"
	}
	return &Denial{Reason: ReasonInsufficientSeniority, Message: msg}
}

// ValidationError reports a malformed request argument.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

// OwnerLookup resolves the owner of a resource. Implementations return
// ErrResourceNotFound when the resource does not exist.
type OwnerLookup interface {
	OwnerOf(ctx context.Context, resourceType, resourceID string) (string, error)
}

func joinPermissions(perms []rbac.Permission) string {
	parts := make([]string, len(perms))
	for i, p := range perms {
		parts[i] = string(p)
	}
	return strings.Join(parts, ", ")
}
