package territory

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/caseboard/pkg/cache"
	"github.com/platinummonkey/caseboard/pkg/observability"
	"github.com/platinummonkey/caseboard/pkg/permissions"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// DefaultTTL is how long a user's branch set stays cached
const DefaultTTL = 300 * time.Second

// BroadResource and BroadAction name the permission that lifts every
// branch restriction.
const (
	BroadResource = "clients"
	BroadAction   = "read"
)

// BranchStore looks up branch assignments keyed by user
type BranchStore interface {
	// DirectBranchIDs returns branches assigned to the user directly
	DirectBranchIDs(ctx context.Context, userID string) ([]string, error)

	// AreaBranchIDs returns branches reachable through the user's areas
	AreaBranchIDs(ctx context.Context, userID string) ([]string, error)
}

// Checker is the part of the permission engine the territory engine uses
type Checker interface {
	HasPermission(ctx context.Context, userID, companyID, resource, action string, ac *permissions.AccessContext) bool
}

// Engine derives a user's territory from branch and area assignments
type Engine struct {
	store   BranchStore
	checker Checker
	cache   cache.Cache
	ttl     time.Duration
	log     *logrus.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// NewEngine creates a territory engine. A nil cache behaves as a
// cache.NullCache; ttl <= 0 means DefaultTTL.
func NewEngine(store BranchStore, checker Checker, c cache.Cache, ttl time.Duration, log *logrus.Logger, metrics *observability.Metrics) *Engine {
	if c == nil {
		c = cache.NewNullCache()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		store:   store,
		checker: checker,
		cache:   c,
		ttl:     ttl,
		log:     log,
		metrics: metrics,
		tracer:  otel.Tracer("github.com/platinummonkey/caseboard/pkg/territory"),
	}
}

// GetUserBranchIDs returns the user's effective branch ids: direct
// assignments first, then area-derived ones, each id once. Cache and store
// errors are returned.
//
// Assignments are not company scoped, so companyID only labels the span.
func (e *Engine) GetUserBranchIDs(ctx context.Context, userID, companyID string) ([]string, error) {
	ctx, span := e.tracer.Start(ctx, "territory.GetUserBranchIDs",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("company.id", companyID),
		))
	defer span.End()

	key := BranchesKey(userID)

	var cached []string
	found, err := e.cache.Get(ctx, key, &cached)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cache read failed")
		return nil, err
	}
	if found {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		if cached == nil {
			cached = []string{}
		}
		return cached, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	var direct, viaArea []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		ids, err := e.store.DirectBranchIDs(gctx, userID)
		e.metrics.ObserveStoreOperation("direct_branches", start, err)
		if err != nil {
			return fmt.Errorf("failed to load direct branches for user %s: %w", userID, err)
		}
		direct = ids
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		ids, err := e.store.AreaBranchIDs(gctx, userID)
		e.metrics.ObserveStoreOperation("area_branches", start, err)
		if err != nil {
			return fmt.Errorf("failed to load area branches for user %s: %w", userID, err)
		}
		viaArea = ids
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store load failed")
		return nil, err
	}

	ids := dedupe(direct, viaArea)
	if err := e.cache.Set(ctx, key, ids, e.ttl); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cache write failed")
		return nil, err
	}

	return ids, nil
}

// GetUserBranchFilter classifies the user's access. Holding clients:read
// lifts every restriction; otherwise the user is limited to their branches.
func (e *Engine) GetUserBranchFilter(ctx context.Context, userID, companyID string) (Filter, error) {
	if e.checker.HasPermission(ctx, userID, companyID, BroadResource, BroadAction, nil) {
		e.metrics.RecordTerritoryFilter(string(ScopeAll))
		return Filter{Scope: ScopeAll, BranchIDs: []string{}}, nil
	}

	ids, err := e.GetUserBranchIDs(ctx, userID, companyID)
	if err != nil {
		return Filter{}, err
	}

	if len(ids) == 0 {
		e.metrics.RecordTerritoryFilter(string(ScopeNone))
		return Filter{Scope: ScopeNone, BranchIDs: []string{}}, nil
	}

	e.metrics.RecordTerritoryFilter(string(ScopeTerritory))
	return Filter{Scope: ScopeTerritory, BranchIDs: ids}, nil
}

// CanAccessBranch reports whether branchID is inside the user's territory
func (e *Engine) CanAccessBranch(ctx context.Context, userID, companyID, branchID string) (bool, error) {
	filter, err := e.GetUserBranchFilter(ctx, userID, companyID)
	if err != nil {
		return false, err
	}
	return filter.Contains(branchID), nil
}

// FilterClientsByTerritory keeps the candidate branch ids the user may see
func (e *Engine) FilterClientsByTerritory(ctx context.Context, userID, companyID string, candidates []string) ([]string, error) {
	filter, err := e.GetUserBranchFilter(ctx, userID, companyID)
	if err != nil {
		return nil, err
	}
	return filter.Apply(candidates), nil
}

// InvalidateUserBranchCache drops the user's cached branch set. Cache errors
// are logged and swallowed.
func (e *Engine) InvalidateUserBranchCache(ctx context.Context, userID string) {
	key := BranchesKey(userID)
	if err := e.cache.Del(ctx, key); err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"key":     key,
		}).Warn("Failed to invalidate user branch cache")
		return
	}
	e.metrics.RecordInvalidation("branches", "user")
}

// InvalidateAllUserBranchCache drops every cached branch set
func (e *Engine) InvalidateAllUserBranchCache(ctx context.Context) {
	if err := e.cache.DelPattern(ctx, AllPattern); err != nil {
		e.log.WithError(err).WithField("pattern", AllPattern).
			Warn("Failed to invalidate all user branch caches")
		return
	}
	e.metrics.RecordInvalidation("branches", "all")
}

func dedupe(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, list := range lists {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
