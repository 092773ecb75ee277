package middleware

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/caseboard/pkg/contextkeys"
	"github.com/platinummonkey/caseboard/pkg/httputil"
	"github.com/platinummonkey/caseboard/pkg/observability"
	"github.com/platinummonkey/caseboard/pkg/permissions"
	"github.com/sirupsen/logrus"
)

// PermissionChecker is the slice of the permission engine the guards need
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID, companyID, resource, action string, ac *permissions.AccessContext) bool
}

// BranchAccessChecker is the slice of the territory engine the guards need
type BranchAccessChecker interface {
	CanAccessBranch(ctx context.Context, userID, companyID, branchID string) (bool, error)
}

// RequirePermission rejects requests whose identity lacks resource:action in
// the request's company. It must run after Identity.
func RequirePermission(checker PermissionChecker, resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, companyID := contextkeys.GetIdentity(r.Context())
			if userID == "" {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			if !checker.HasPermission(r.Context(), userID, companyID, resource, action, nil) {
				httputil.WriteForbidden(w, "missing permission "+resource+":"+action)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireBranchAccess rejects requests for a branch outside the caller's
// territory. The branch id comes from the route variable param.
func RequireBranchAccess(checker BranchAccessChecker, param string, log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, companyID := contextkeys.GetIdentity(r.Context())
			if userID == "" {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			branchID := mux.Vars(r)[param]
			if branchID == "" {
				httputil.WriteBadRequest(w, "missing path parameter: "+param)
				return
			}

			ok, err := checker.CanAccessBranch(r.Context(), userID, companyID, branchID)
			if err != nil {
				observability.FromContext(r.Context(), log).WithError(err).
					WithField("branch_id", branchID).
					Error("Branch access check failed")
				httputil.WriteInternalError(w)
				return
			}
			if !ok {
				httputil.WriteForbidden(w, "branch "+branchID+" is outside your territory")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
