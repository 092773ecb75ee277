// Package middleware provides HTTP middleware for request identity and
// access guards.
//
// # Middleware Components
//
// RequestID: request tagging
//
//	router.Use(middleware.RequestID(log))
//	// Honors X-Request-ID or generates a UUID; stores a logger entry
//
// Identity: gateway identity
//
//	router.Use(middleware.Identity(log))
//	// Reads X-User-ID and X-Company-ID, 401 when either is missing
//
// RequirePermission: permission guard
//
//	admin.Use(middleware.RequirePermission(permEngine, "users", "manage"))
//
// RequireBranchAccess: territory guard
//
//	branch.Use(middleware.RequireBranchAccess(territoryEngine, "branchID", log))
//
// Authentication happens upstream; this package trusts the identity headers.
//
// # Related Packages
//
//   - pkg/permissions: Permission checking
//   - pkg/territory: Branch access
package middleware
