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

import (
	"sort"
	"strings"
)

// Permission is a capability token of the form "resource:action".
// The set of valid tokens is closed: only the constants below exist.
type Permission string

// -----------------------------------------------------------------------------
// Permission Catalog
// Grouped by resource for documentation. The resolver treats them as a flat set.
// -----------------------------------------------------------------------------

// Course permissions
const (
	PermCourseView          Permission = "course:view"
	PermCourseCreate        Permission = "course:create"
	PermCourseEnroll        Permission = "course:enroll"
	PermCoursePublish       Permission = "course:publish"
	PermCourseManageOwn     Permission = "course:manage_own"
	PermCourseManageAll     Permission = "course:manage_all"
	PermCourseViewAnalytics Permission = "course:view_analytics"
)

// Quiz permissions
const (
	PermQuizTake      Permission = "quiz:take"
	PermQuizCreate    Permission = "quiz:create"
	PermQuizGrade     Permission = "quiz:grade"
	PermQuizManageOwn Permission = "quiz:manage_own"
	PermQuizManageAll Permission = "quiz:manage_all"
)

// Blog permissions
const (
	PermBlogView      Permission = "blog:view"
	PermBlogCreate    Permission = "blog:create"
	PermBlogPublish   Permission = "blog:publish"
	PermBlogManageOwn Permission = "blog:manage_own"
	PermBlogManageAll Permission = "blog:manage_all"
)

// Comment permissions
const (
	PermCommentCreate   Permission = "comment:create"
	PermCommentModerate Permission = "comment:moderate"
)

// Internship permissions
const (
	PermInternshipView         Permission = "internship:view"
	PermInternshipApply        Permission = "internship:apply"
	PermInternshipCreate       Permission = "internship:create"
	PermInternshipManageOwn    Permission = "internship:manage_own"
	PermInternshipManageAll    Permission = "internship:manage_all"
	PermInternshipReviewApplic Permission = "internship:review_applications"
)

// User and role management permissions
const (
	PermUserView              Permission = "user:view"
	PermUserManage            Permission = "user:manage"
	PermUserDelete            Permission = "user:delete"
	PermUserManageRoles       Permission = "user:manage_roles"
	PermUserManagePermissions Permission = "user:manage_permissions"
	PermRoleView              Permission = "role:view"
	PermRoleManage            Permission = "role:manage"
)

// Platform permissions
const (
	PermAnalyticsView  Permission = "analytics:view"
	PermSystemSettings Permission = "system:settings"
	PermSystemLogs     Permission = "system:view_logs"
)

// Category groups catalog permissions under one resource name.
type Category struct {
	Resource    string       `json:"resource"`
	Permissions []Permission `json:"permissions"`
}

var categories = []Category{
	{Resource: "course", Permissions: []Permission{
		PermCourseView, PermCourseCreate, PermCourseEnroll, PermCoursePublish,
		PermCourseManageOwn, PermCourseManageAll, PermCourseViewAnalytics,
	}},
	{Resource: "quiz", Permissions: []Permission{
		PermQuizTake, PermQuizCreate, PermQuizGrade, PermQuizManageOwn, PermQuizManageAll,
	}},
	{Resource: "blog", Permissions: []Permission{
		PermBlogView, PermBlogCreate, PermBlogPublish, PermBlogManageOwn, PermBlogManageAll,
	}},
	{Resource: "comment", Permissions: []Permission{
		PermCommentCreate, PermCommentModerate,
	}},
	{Resource: "internship", Permissions: []Permission{
		PermInternshipView, PermInternshipApply, PermInternshipCreate,
		PermInternshipManageOwn, PermInternshipManageAll, PermInternshipReviewApplic,
	}},
	{Resource: "user", Permissions: []Permission{
		PermUserView, PermUserManage, PermUserDelete, PermUserManageRoles, PermUserManagePermissions,
	}},
	{Resource: "role", Permissions: []Permission{
		PermRoleView, PermRoleManage,
	}},
	{Resource: "platform", Permissions: []Permission{
		PermAnalyticsView, PermSystemSettings, PermSystemLogs,
	}},
}

var catalog = func() map[Permission]struct{} {
	m := make(map[Permission]struct{})
	for _, c := range categories {
		for _, p := range c.Permissions {
			m[p] = struct{}{}
		}
	}
	return m
}()

// Valid reports whether p is a catalog permission.
func (p Permission) Valid() bool {
	_, ok := catalog[p]
	return ok
}

// Resource returns the part before the colon.
func (p Permission) Resource() string {
	resource, _, _ := strings.Cut(string(p), ":")
	return resource
}

// Action returns the part after the colon.
func (p Permission) Action() string {
	_, action, _ := strings.Cut(string(p), ":")
	return action
}

func (p Permission) String() string { return string(p) }

// ParsePermission converts a stored or wire value into a catalog permission.
func ParsePermission(s string) (Permission, bool) {
	p := Permission(strings.TrimSpace(s))
	return p, p.Valid()
}

// AllPermissions returns every catalog permission, sorted.
func AllPermissions() []Permission {
	all := make([]Permission, 0, len(catalog))
	for p := range catalog {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	return all
}

// Categories returns the catalog grouped by resource.
func Categories() []Category {
	out := make([]Category, len(categories))
	for i, c := range categories {
		out[i] = Category{Resource: c.Resource, Permissions: append([]Permission(nil), c.Permissions...)}
	}
	return out
}

// ManageOwn and ManageAll synthesize the ownership permission pair for a resource type.
func ManageOwn(resource string) Permission { return Permission(resource + ":manage_own") }

func ManageAll(resource string) Permission { return Permission(resource + ":manage_all") }
