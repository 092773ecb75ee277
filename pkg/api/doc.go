// Package api provides the HTTP access API for permission and territory
// resolution.
//
// # Overview
//
// The API answers "may this user do X" and "which branches may this user
// see" for the caller identified by the upstream gateway, and exposes the
// admin mutations that change grants and assignments.
//
// # Architecture
//
// The API is built on gorilla/mux, wrapped in otelhttp for tracing:
//
//   - Caller reads: permission set, access checks, territory, branch access
//   - Admin mutations: grants, user/area/branch assignments, cache flushes
//   - Operations: /healthz, /readyz, /metrics
//
// # Endpoints
//
//	GET    /v1/me/permissions
//	POST   /v1/access/check                       {resource, action, context}
//	GET    /v1/me/territory
//	GET    /v1/branches/{branchID}/access         403 outside the territory
//	POST   /v1/territory/filter                   {branch_ids}
//
// Admin endpoints require users:manage or territory:manage:
//
//	POST   /v1/users/{userID}/permissions         {permission_code, company_id, scope}
//	DELETE /v1/users/{userID}/permissions
//	PUT    /v1/users/{userID}/branches/{branchID}
//	DELETE /v1/users/{userID}/branches/{branchID}
//	PUT    /v1/users/{userID}/areas/{areaID}
//	DELETE /v1/users/{userID}/areas/{areaID}
//	PUT    /v1/areas/{areaID}/branches/{branchID}?isPrimary=true
//	DELETE /v1/areas/{areaID}/branches/{branchID}
//	PUT    /v1/areas/{areaID}/primary/{branchID}
//	POST   /v1/cache/invalidate                   {user_id} or empty for all
//
// # Usage
//
//	server := api.NewServer(api.Dependencies{
//		Permissions: permEngine,
//		Territory:   territoryEngine,
//		Branches:    branchStore,
//		Assignments: assignmentService,
//		Logger:      log,
//	})
//	http.ListenAndServe(":8080", server)
//
// # Error Handling
//
// Responses use the httputil envelope. storage.ErrNotFound (re-exported as
// assignments.ErrNotFound) maps to 404,
// ErrInvalidScope and ErrInvalidArgument to 400, anything else to a 500 that
// does not echo the cause.
//
// # Related Packages
//
//   - pkg/middleware: Identity and access guards
//   - pkg/httputil: Response envelope
//   - pkg/observability: Health, metrics, tracing
package api
