package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/platinummonkey/caseboard/pkg/contextkeys"
	"github.com/platinummonkey/caseboard/pkg/httputil"
	"github.com/platinummonkey/caseboard/pkg/observability"
	"github.com/sirupsen/logrus"
)

// Header names set by the upstream gateway after authentication
const (
	HeaderRequestID = "X-Request-ID"
	HeaderUserID    = "X-User-ID"
	HeaderCompanyID = "X-Company-ID"
)

// RequestID tags the request with the caller's X-Request-ID, or a fresh
// UUID, and stores a request-scoped logger entry in the context.
func RequestID(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, requestID)

			ctx := contextkeys.WithRequestID(r.Context(), requestID)
			ctx = contextkeys.WithLogger(ctx, observability.FromContext(ctx, log))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Identity reads the acting user and company from the gateway headers.
// Requests missing either are rejected with 401.
func Identity(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
			companyID := strings.TrimSpace(r.Header.Get(HeaderCompanyID))
			if userID == "" || companyID == "" {
				httputil.WriteUnauthorized(w, "missing identity headers")
				return
			}

			ctx := contextkeys.WithIdentity(r.Context(), userID, companyID)
			entry := observability.FromContext(r.Context(), log).WithFields(logrus.Fields{
				"user_id":    userID,
				"company_id": companyID,
			})
			ctx = contextkeys.WithLogger(ctx, entry)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
