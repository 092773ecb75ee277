// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so the
// producers and consumers of each value stay discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/caseboard/pkg/contextkeys"
//	ctx = contextkeys.WithIdentity(ctx, userID, companyID)
//	userID, companyID := contextkeys.GetIdentity(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// UserIDKey contains the acting user's id
	// Set by: middleware.Identity (pkg/middleware/identity.go)
	// Required by: every access-checked endpoint
	// Type: string
	UserIDKey Key = "user_id"

	// CompanyIDKey contains the tenant the request operates in
	// Set by: middleware.Identity
	// Required by: permission and territory checks
	// Type: string
	CompanyIDKey Key = "company_id"

	// RequestIDKey contains request ID string (UUID)
	// Set by: middleware.RequestID
	// Used by: logger, error responses
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains *logrus.Entry scoped to the request
	// Set by: middleware.RequestID
	// Used by: handlers that log with request context
	// Type: *logrus.Entry
	LoggerKey Key = "logger"
)

// WithIdentity adds the acting user and company to the context
func WithIdentity(ctx context.Context, userID, companyID string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, CompanyIDKey, companyID)
}

// GetIdentity retrieves the acting user and company from context
func GetIdentity(ctx context.Context) (userID, companyID string) {
	return GetUserID(ctx), GetCompanyID(ctx)
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

// GetCompanyID retrieves company ID from context
func GetCompanyID(ctx context.Context) string {
	if companyID, ok := ctx.Value(CompanyIDKey).(string); ok {
		return companyID
	}
	return ""
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}
