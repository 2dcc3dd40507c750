// Package rbac provides role-based access control for the authentication service.
//
// # Overview
//
// Every user carries at most one role. A role has a fixed name and a set of permissions:
//
//	superuser  - all
//	admin      - create, read, update, delete
//	moderator  - read, update
//	user       - read (assigned at registration)
//
// # Access Predicates
//
// The predicates are pure functions over an already resolved user. They never touch a
// store and fail closed with auth.ErrForbidden:
//
//	err := rbac.RequireRoleAndAnyPermission(user,
//		[]auth.RoleName{auth.RoleAdmin, auth.RoleModerator},
//		[]auth.PermissionName{auth.PermissionRead},
//	)
//	err := rbac.RequireModerator(user)
//	err := rbac.RequireSuperuser(user)
//
// A superuser passes every predicate. A user with no role passes none.
//
// # HTTP Middleware
//
//	access := rbac.NewAccessMiddleware()
//	router.Handle("/roles", access.RequireModerator()(listRoles))
//
// The middleware reads the user placed in the request context by the API layer.
//
// # Storage
//
// Store reads roles and their permissions from Postgres and seeds the catalogue
// idempotently. CachedStore keeps resolved roles in an expiring LRU so /me and role checks
// do not hit the database on every request.
package rbac
