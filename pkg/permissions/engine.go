package permissions

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/caseboard/pkg/cache"
	"github.com/platinummonkey/caseboard/pkg/observability"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a user's permission set stays cached
const DefaultTTL = 300 * time.Second

// Store loads a user's grants from the relational store. An empty companyID
// loads grants across every company.
type Store interface {
	GetUserPermissions(ctx context.Context, userID, companyID string) ([]CachedPermission, error)
}

// Config controls engine policy
type Config struct {
	// TTL for cached permission sets. Zero means DefaultTTL.
	TTL time.Duration

	// StrictScopeContext requires the record's branch or area to be inside
	// the context lists for branch and area scopes, and denies those scopes
	// when no context is given.
	StrictScopeContext bool
}

// Engine resolves permission decisions through the cache to the store
type Engine struct {
	store   Store
	cache   cache.Cache
	cfg     Config
	log     *logrus.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
	loads   singleflight.Group
}

// NewEngine creates a permission engine. A nil cache behaves as a
// cache.NullCache, a nil logger as logrus.New().
func NewEngine(store Store, c cache.Cache, cfg Config, log *logrus.Logger, metrics *observability.Metrics) *Engine {
	if c == nil {
		c = cache.NewNullCache()
	}
	if log == nil {
		log = logrus.New()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Engine{
		store:   store,
		cache:   c,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		tracer:  otel.Tracer("github.com/platinummonkey/caseboard/pkg/permissions"),
	}
}

// GetCachedPermissions returns the user's permission set, filtered to
// companyID when it is non-empty.
//
// A cache read error falls back to the store for (userID, companyID) without
// repopulating the cache. A store error is returned to the caller.
func (e *Engine) GetCachedPermissions(ctx context.Context, userID, companyID string) ([]CachedPermission, error) {
	ctx, span := e.tracer.Start(ctx, "permissions.GetCachedPermissions",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("company.id", companyID),
		))
	defer span.End()

	key := PermissionsKey(userID)

	var cached []CachedPermission
	found, err := e.cache.Get(ctx, key, &cached)
	if err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"key":     key,
		}).Warn("Permission cache read failed, loading from store")
		span.AddEvent("cache_fallback")

		perms, loadErr := e.load(ctx, userID, companyID)
		if loadErr != nil {
			span.RecordError(loadErr)
			span.SetStatus(codes.Error, "store load failed")
			return nil, loadErr
		}
		return perms, nil
	}

	if found {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return filterByCompany(cached, companyID), nil
	}

	span.SetAttributes(attribute.Bool("cache.hit", false))

	// The cache always holds the user's full cross-company set so later
	// reads for any company can be served from it. The shared load is
	// detached from the caller that started it; each caller only waits on
	// its own context.
	loadCtx := context.WithoutCancel(ctx)
	results := e.loads.DoChan(key, func() (interface{}, error) {
		perms, err := e.load(loadCtx, userID, "")
		if err != nil {
			return nil, err
		}
		if err := e.cache.Set(loadCtx, key, perms, e.cfg.TTL); err != nil {
			e.log.WithError(err).WithFields(logrus.Fields{
				"user_id": userID,
				"key":     key,
			}).Warn("Failed to cache permission set")
		}
		return perms, nil
	})

	select {
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		span.SetStatus(codes.Error, "caller canceled")
		return nil, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, "store load failed")
			return nil, res.Err
		}
		return filterByCompany(res.Val.([]CachedPermission), companyID), nil
	}
}

// GetAllUserPermissions returns the user's permissions across all companies
func (e *Engine) GetAllUserPermissions(ctx context.Context, userID string) ([]CachedPermission, error) {
	return e.GetCachedPermissions(ctx, userID, "")
}

// HasPermission reports whether the user may perform action on resource.
// Errors deny.
func (e *Engine) HasPermission(ctx context.Context, userID, companyID, resource, action string, ac *AccessContext) bool {
	return e.Evaluate(ctx, userID, companyID, resource, action, ac).Allowed
}

// Evaluate resolves the broadest matching grant and applies the scope rules
// to the access context.
func (e *Engine) Evaluate(ctx context.Context, userID, companyID, resource, action string, ac *AccessContext) Decision {
	ctx, span := e.tracer.Start(ctx, "permissions.Evaluate",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("company.id", companyID),
			attribute.String("permission.resource", resource),
			attribute.String("permission.action", action),
		))
	defer span.End()

	decision := e.evaluate(ctx, userID, companyID, resource, action, ac)

	span.SetAttributes(
		attribute.Bool("decision.allowed", decision.Allowed),
		attribute.String("decision.scope", decision.Scope.String()),
	)
	e.metrics.RecordDecision(resource, action, decision.Allowed)

	return decision
}

func (e *Engine) evaluate(ctx context.Context, userID, companyID, resource, action string, ac *AccessContext) Decision {
	perms, err := e.GetCachedPermissions(ctx, userID, companyID)
	if err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"user_id":    userID,
			"company_id": companyID,
			"resource":   resource,
			"action":     action,
		}).Error("Permission lookup failed, denying")
		return Decision{Reason: "permission lookup failed"}
	}

	scope := HighestScope(perms, resource, action, companyID)
	if scope == ScopeNone {
		return Decision{Reason: "no matching grant"}
	}

	allowed, reason := e.applyScope(scope, userID, ac)
	return Decision{Allowed: allowed, Scope: scope, Reason: reason}
}

func (e *Engine) applyScope(scope Scope, userID string, ac *AccessContext) (bool, string) {
	switch scope {
	case ScopeAll:
		return true, "granted at all scope"

	case ScopeArea:
		if ac == nil {
			return e.withoutContext(scope)
		}
		if len(ac.AreaIDs) == 0 {
			return false, "area scope without area context"
		}
		if e.cfg.StrictScopeContext && !contains(ac.AreaIDs, ac.ResourceAreaID) {
			return false, "record area outside user areas"
		}
		return true, "granted at area scope"

	case ScopeBranch:
		if ac == nil {
			return e.withoutContext(scope)
		}
		if len(ac.BranchIDs) == 0 {
			return false, "branch scope without branch context"
		}
		if e.cfg.StrictScopeContext && !contains(ac.BranchIDs, ac.ResourceBranchID) {
			return false, "record branch outside user branches"
		}
		return true, "granted at branch scope"

	case ScopeSelf:
		if ac != nil && ac.ResourceOwnerID != "" && ac.ResourceOwnerID == userID {
			return true, "granted on own record"
		}
		return false, "self scope requires ownership"
	}

	return false, "unknown scope"
}

func (e *Engine) withoutContext(scope Scope) (bool, string) {
	if e.cfg.StrictScopeContext {
		return false, scope.String() + " scope requires context"
	}
	return true, "granted at " + scope.String() + " scope without context"
}

// HasAnyPermissionForResource reports whether the user holds any grant on
// resource in companyID. Errors deny.
func (e *Engine) HasAnyPermissionForResource(ctx context.Context, userID, companyID, resource string) bool {
	perms, err := e.GetCachedPermissions(ctx, userID, companyID)
	if err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"user_id":    userID,
			"company_id": companyID,
			"resource":   resource,
		}).Error("Permission lookup failed, denying")
		return false
	}

	for _, p := range perms {
		if p.Permission.Resource == resource && p.inCompany(companyID) {
			return true
		}
	}
	return false
}

// InvalidateUserPermissions drops the user's cached set. Cache errors are
// logged and swallowed.
func (e *Engine) InvalidateUserPermissions(ctx context.Context, userID string) {
	key := PermissionsKey(userID)
	e.loads.Forget(key)
	if err := e.cache.Del(ctx, key); err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"key":     key,
		}).Warn("Failed to invalidate user permissions")
		return
	}
	e.metrics.RecordInvalidation("permissions", "user")
}

// InvalidateAllUserPermissions drops every cached permission set
func (e *Engine) InvalidateAllUserPermissions(ctx context.Context) {
	if err := e.cache.DelPattern(ctx, AllPermissionsPattern); err != nil {
		e.log.WithError(err).WithField("pattern", AllPermissionsPattern).
			Warn("Failed to invalidate all user permissions")
		return
	}
	e.metrics.RecordInvalidation("permissions", "all")
}

func (e *Engine) load(ctx context.Context, userID, companyID string) ([]CachedPermission, error) {
	start := time.Now()
	perms, err := e.store.GetUserPermissions(ctx, userID, companyID)
	e.metrics.ObserveStoreOperation("user_permissions", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions for user %s: %w", userID, err)
	}
	if perms == nil {
		perms = []CachedPermission{}
	}
	return perms, nil
}

// HighestScope returns the broadest scope among entries matching
// (resource, action, companyID), or ScopeNone.
func HighestScope(perms []CachedPermission, resource, action, companyID string) Scope {
	best := ScopeNone
	for _, p := range perms {
		if p.Matches(resource, action, companyID) && p.Scope.Broader(best) {
			best = p.Scope
		}
	}
	return best
}

func filterByCompany(perms []CachedPermission, companyID string) []CachedPermission {
	out := make([]CachedPermission, 0, len(perms))
	for _, p := range perms {
		if p.inCompany(companyID) {
			out = append(out, p)
		}
	}
	return out
}

func contains(ids []string, id string) bool {
	if id == "" {
		return false
	}
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
