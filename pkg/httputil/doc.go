// Package httputil provides HTTP utilities for the API's response envelope
// and request parsing.
//
// # Response Envelope
//
// Every response is wrapped:
//
//	{"success": true, "data": {...}}
//	{"success": false, "error": {"code": "FORBIDDEN", "message": "..."}}
//
// Helpers:
//
//	httputil.WriteSuccess(w, decision)
//	httputil.WriteForbidden(w, "permission denied")
//	httputil.WriteNotFound(w, "branch not found")
//	httputil.WriteInternalError(w) // never echoes the cause
//
// # Request Parsing
//
//	var req CheckRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
//	branchID, ok := httputil.ParsePathStringOrError(w, r, "branchID")
//	isPrimary, err := httputil.ParseQueryBool(r, "isPrimary", false)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RecoveryMiddleware(log),
//		httputil.LoggingMiddleware(log),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// # Related Packages
//
//   - pkg/middleware: request ids, identity, permission and territory guards
package httputil
