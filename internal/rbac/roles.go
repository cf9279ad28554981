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

package rbac

import "strings"

// Role is a named privilege tier.
type Role string

// -----------------------------------------------------------------------------
// Role Name Constants
// These are the canonical names stored on user records and in the roles table.
// -----------------------------------------------------------------------------

const (
	RoleUser       Role = "user"
	RoleStudent    Role = "student"
	RoleAuthor     Role = "author"
	RoleInstructor Role = "instructor"
	RoleEditor     Role = "editor"
	RoleModerator  Role = "moderator"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super-admin"
)

// hierarchy lists roles from least to most senior. Position is used only for
// seniority comparisons; it never implies permission inheritance.
var hierarchy = []Role{
	RoleUser,
	RoleStudent,
	RoleAuthor,
	RoleInstructor,
	RoleEditor,
	RoleModerator,
	RoleAdmin,
	RoleSuperAdmin,
}

var hierarchyIndex = func() map[Role]int {
	m := make(map[Role]int, len(hierarchy))
	for i, r := range hierarchy {
		m[r] = i
	}
	return m
}()

// AllRoles returns the canonical roles in hierarchy order.
func AllRoles() []Role {
	return append([]Role(nil), hierarchy...)
}

// Valid reports whether r is a canonical role.
func (r Role) Valid() bool {
	_, ok := hierarchyIndex[r]
	return ok
}

func (r Role) String() string { return string(r) }

// ParseRole converts a stored or wire value into a canonical role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.TrimSpace(s))
	return r, r.Valid()
}

// HierarchyIndex returns the role's position in the seniority order.
// Unknown roles rank below every canonical role.
func HierarchyIndex(r Role) int {
	if i, ok := hierarchyIndex[r]; ok {
		return i
	}
	return -1
}

// IsSenior reports whether a ranks strictly above b.
func IsSenior(a, b Role) bool {
	return HierarchyIndex(a) > HierarchyIndex(b)
}

// HighestRole returns the most senior of the given roles, or "" when none are given.
func HighestRole(roles []Role) Role {
	var best Role
	bestIdx := -2
	for _, r := range roles {
		if idx := HierarchyIndex(r); idx > bestIdx {
			best, bestIdx = r, idx
		}
	}
	return best
}

// -----------------------------------------------------------------------------
// Role Permission Mappings
// Each role declares its own set. Senior roles do not inherit junior sets.
// RoleSuperAdmin is not listed: it always holds the full catalog.
// -----------------------------------------------------------------------------

// UserPermissions defines permissions for the user role.
var UserPermissions = []Permission{
	PermCourseView,
	PermBlogView,
	PermInternshipView,
	PermCommentCreate,
}

// StudentPermissions defines permissions for the student role.
var StudentPermissions = []Permission{
	PermCourseView,
	PermCourseEnroll,
	PermQuizTake,
	PermBlogView,
	PermCommentCreate,
	PermInternshipView,
	PermInternshipApply,
}

// AuthorPermissions defines permissions for the author role.
var AuthorPermissions = []Permission{
	PermCourseView,
	PermBlogView,
	PermBlogCreate,
	PermBlogManageOwn,
	PermCommentCreate,
	PermInternshipView,
}

// InstructorPermissions defines permissions for the instructor role.
var InstructorPermissions = []Permission{
	PermCourseView,
	PermCourseCreate,
	PermCoursePublish,
	PermCourseManageOwn,
	PermQuizCreate,
	PermQuizGrade,
	PermQuizManageOwn,
	PermBlogView,
	PermBlogCreate,
	PermBlogManageOwn,
	PermCommentCreate,
	PermInternshipView,
}

// EditorPermissions defines permissions for the editor role.
var EditorPermissions = []Permission{
	PermCourseView,
	PermBlogView,
	PermBlogCreate,
	PermBlogPublish,
	PermBlogManageOwn,
	PermBlogManageAll,
	PermCommentCreate,
	PermCommentModerate,
	PermInternshipView,
}

// ModeratorPermissions defines permissions for the moderator role.
var ModeratorPermissions = []Permission{
	PermCourseView,
	PermBlogView,
	PermBlogManageAll,
	PermCommentCreate,
	PermCommentModerate,
	PermInternshipView,
	PermUserView,
}

// AdminPermissions defines permissions for the admin role.
var AdminPermissions = []Permission{
	PermCourseView,
	PermCourseCreate,
	PermCoursePublish,
	PermCourseManageOwn,
	PermCourseManageAll,
	PermCourseViewAnalytics,
	PermQuizCreate,
	PermQuizGrade,
	PermQuizManageOwn,
	PermQuizManageAll,
	PermBlogView,
	PermBlogCreate,
	PermBlogPublish,
	PermBlogManageOwn,
	PermBlogManageAll,
	PermCommentCreate,
	PermCommentModerate,
	PermInternshipView,
	PermInternshipCreate,
	PermInternshipManageOwn,
	PermInternshipManageAll,
	PermInternshipReviewApplic,
	PermUserView,
	PermUserManage,
	PermUserManageRoles,
	PermUserManagePermissions,
	PermRoleView,
	PermAnalyticsView,
}

var defaultPermissions = map[Role][]Permission{
	RoleUser:       UserPermissions,
	RoleStudent:    StudentPermissions,
	RoleAuthor:     AuthorPermissions,
	RoleInstructor: InstructorPermissions,
	RoleEditor:     EditorPermissions,
	RoleModerator:  ModeratorPermissions,
	RoleAdmin:      AdminPermissions,
}

var roleDescriptions = map[Role]string{
	RoleUser:       "Registered account with read access to public content",
	RoleStudent:    "Learner who enrolls in courses and applies to internships",
	RoleAuthor:     "Writes and maintains their own blog posts",
	RoleInstructor: "Builds, publishes and grades their own courses",
	RoleEditor:     "Curates and publishes blog content across authors",
	RoleModerator:  "Moderates community content and reviews accounts",
	RoleAdmin:      "Operates the platform and manages junior accounts",
	RoleSuperAdmin: "Unrestricted platform owner",
}
