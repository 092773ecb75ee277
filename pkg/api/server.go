package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/caseboard/pkg/httputil"
	"github.com/platinummonkey/caseboard/pkg/middleware"
	"github.com/platinummonkey/caseboard/pkg/observability"
	"github.com/platinummonkey/caseboard/pkg/permissions"
	"github.com/platinummonkey/caseboard/pkg/territory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxBodyBytes caps request bodies; the largest is a territory filter batch
const maxBodyBytes = 1 << 20

// PermissionResolver is the permission engine surface the API serves
type PermissionResolver interface {
	GetCachedPermissions(ctx context.Context, userID, companyID string) ([]permissions.CachedPermission, error)
	Evaluate(ctx context.Context, userID, companyID, resource, action string, ac *permissions.AccessContext) permissions.Decision
	HasPermission(ctx context.Context, userID, companyID, resource, action string, ac *permissions.AccessContext) bool
}

// TerritoryResolver is the territory engine surface the API serves
type TerritoryResolver interface {
	GetUserBranchFilter(ctx context.Context, userID, companyID string) (territory.Filter, error)
	CanAccessBranch(ctx context.Context, userID, companyID, branchID string) (bool, error)
	FilterClientsByTerritory(ctx context.Context, userID, companyID string, candidates []string) ([]string, error)
}

// BranchDirectory resolves branch ids to display records
type BranchDirectory interface {
	GetBranches(ctx context.Context, ids []string) ([]territory.Branch, error)
}

// AssignmentService applies grant and territory mutations
type AssignmentService interface {
	GrantPermission(ctx context.Context, grant permissions.Grant) error
	RevokePermission(ctx context.Context, grant permissions.Grant) error
	AssignUserToBranch(ctx context.Context, userID, branchID string) error
	UnassignUserFromBranch(ctx context.Context, userID, branchID string) error
	AssignUserToArea(ctx context.Context, userID, areaID string) error
	UnassignUserFromArea(ctx context.Context, userID, areaID string) error
	AssignBranchToArea(ctx context.Context, areaID, branchID string, isPrimary bool) error
	SetPrimaryBranch(ctx context.Context, areaID, branchID string) error
	RemoveBranchFromArea(ctx context.Context, areaID, branchID string) error
	InvalidateCaches(ctx context.Context, userID string)
}

// Dependencies wires the server. Branches, Health, Metrics and Registry are
// optional.
type Dependencies struct {
	Permissions PermissionResolver
	Territory   TerritoryResolver
	Branches    BranchDirectory
	Assignments AssignmentService
	Health      *observability.HealthChecker
	Metrics     *observability.Metrics
	Registry    *prometheus.Registry
	Logger      *logrus.Logger
}

// Server is the access API
type Server struct {
	deps    Dependencies
	router  *mux.Router
	handler http.Handler
	log     *logrus.Logger
}

// NewServer creates a new API server with every route registered
func NewServer(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	s := &Server{
		deps:   deps,
		router: mux.NewRouter(),
		log:    deps.Logger,
	}

	s.setupRoutes()

	s.handler = otelhttp.NewHandler(
		httputil.Chain(
			httputil.RecoveryMiddleware(s.log),
			middleware.RequestID(s.log),
			httputil.LoggingMiddleware(s.log),
			httputil.MaxBytesMiddleware(maxBodyBytes),
		)(s.router),
		"caseboard",
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, "route not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorCode(w, http.StatusMethodNotAllowed, httputil.CodeBadRequest, "method not allowed")
	})

	if s.deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.deps.Metrics))
	}
	if s.deps.Health != nil {
		observability.RegisterHealthRoutes(s.router, s.deps.Health)
	}
	if s.deps.Registry != nil {
		observability.RegisterMetricsEndpoint(s.router, s.deps.Registry)
	}

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(middleware.Identity(s.log))

	// Caller-facing reads
	v1.HandleFunc("/me/permissions", s.getMyPermissions).Methods("GET")
	v1.HandleFunc("/me/territory", s.getMyTerritory).Methods("GET")
	v1.HandleFunc("/access/check", s.checkAccess).Methods("POST")
	v1.HandleFunc("/territory/filter", s.filterTerritory).Methods("POST")
	v1.Handle("/branches/{branchID}/access",
		middleware.RequireBranchAccess(s.deps.Territory, "branchID", s.log)(http.HandlerFunc(s.getBranchAccess)),
	).Methods("GET")

	// Admin mutations
	manageUsers := middleware.RequirePermission(s.deps.Permissions, "users", "manage")
	manageTerritory := middleware.RequirePermission(s.deps.Permissions, "territory", "manage")

	v1.Handle("/users/{userID}/permissions", manageUsers(http.HandlerFunc(s.grantPermission))).Methods("POST")
	v1.Handle("/users/{userID}/permissions", manageUsers(http.HandlerFunc(s.revokePermission))).Methods("DELETE")
	v1.Handle("/users/{userID}/branches/{branchID}", manageTerritory(http.HandlerFunc(s.assignUserToBranch))).Methods("PUT")
	v1.Handle("/users/{userID}/branches/{branchID}", manageTerritory(http.HandlerFunc(s.unassignUserFromBranch))).Methods("DELETE")
	v1.Handle("/users/{userID}/areas/{areaID}", manageTerritory(http.HandlerFunc(s.assignUserToArea))).Methods("PUT")
	v1.Handle("/users/{userID}/areas/{areaID}", manageTerritory(http.HandlerFunc(s.unassignUserFromArea))).Methods("DELETE")
	v1.Handle("/areas/{areaID}/branches/{branchID}", manageTerritory(http.HandlerFunc(s.assignBranchToArea))).Methods("PUT")
	v1.Handle("/areas/{areaID}/branches/{branchID}", manageTerritory(http.HandlerFunc(s.removeBranchFromArea))).Methods("DELETE")
	v1.Handle("/areas/{areaID}/primary/{branchID}", manageTerritory(http.HandlerFunc(s.setPrimaryBranch))).Methods("PUT")
	v1.Handle("/cache/invalidate", manageUsers(http.HandlerFunc(s.invalidateCaches))).Methods("POST")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router returns the underlying router
func (s *Server) Router() *mux.Router {
	return s.router
}
