package permissions

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/platinummonkey/caseboard/pkg/cache"
	"github.com/platinummonkey/caseboard/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu     sync.Mutex
	grants map[string][]CachedPermission
	err    error
	calls  int32
	last   string
}

func (s *fakeStore) GetUserPermissions(ctx context.Context, userID, companyID string) ([]CachedPermission, error) {
	atomic.AddInt32(&s.calls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = companyID
	if s.err != nil {
		return nil, s.err
	}
	var out []CachedPermission
	for _, p := range s.grants[userID] {
		if companyID == "" || p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) Calls() int {
	return int(atomic.LoadInt32(&s.calls))
}

// failingCache returns an error from every operation
type failingCache struct{}

func (failingCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	return false, &cache.Error{Op: "get", Key: key, Err: errors.New("connection reset")}
}

func (failingCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return &cache.Error{Op: "set", Key: key, Err: errors.New("connection reset")}
}

func (failingCache) Del(ctx context.Context, key string) error {
	return &cache.Error{Op: "del", Key: key, Err: errors.New("connection reset")}
}

func (failingCache) DelPattern(ctx context.Context, pattern string) error {
	return &cache.Error{Op: "delpattern", Key: pattern, Err: errors.New("connection reset")}
}

func (failingCache) IsAvailable() bool { return true }

func grant(resource, action string, scope Scope, companyID string) CachedPermission {
	return CachedPermission{
		Permission: Permission{Code: resource + ":" + action, Resource: resource, Action: action},
		Scope:      scope,
		CompanyID:  companyID,
	}
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestEngine(store Store, c cache.Cache, cfg Config) *Engine {
	return NewEngine(store, c, cfg, quietLogger(), nil)
}

func TestScopeOrder(t *testing.T) {
	assert.True(t, ScopeAll.Broader(ScopeArea))
	assert.True(t, ScopeArea.Broader(ScopeBranch))
	assert.True(t, ScopeBranch.Broader(ScopeSelf))
	assert.True(t, ScopeSelf.Broader(ScopeNone))
	assert.False(t, ScopeSelf.Broader(ScopeSelf))
	assert.False(t, Scope(9).Broader(ScopeSelf))
	assert.Equal(t, 0, Scope(9).Rank())
}

func TestParseScope(t *testing.T) {
	for _, name := range []string{"self", "branch", "area", "all"} {
		s, err := ParseScope(name)
		require.NoError(t, err)
		assert.Equal(t, name, s.String())
	}

	s, err := ParseScope(" ALL ")
	require.NoError(t, err)
	assert.Equal(t, ScopeAll, s)

	_, err = ParseScope("global")
	assert.Error(t, err)
}

func TestGetCachedPermissions_CacheHitSkipsStore(t *testing.T) {
	store := &fakeStore{grants: map[string][]CachedPermission{
		"u1": {grant("clients", "read", ScopeBranch, "c1")},
	}}
	engine := newTestEngine(store, cache.NewMemoryCache(100), Config{})
	ctx := context.Background()

	first, err := engine.GetCachedPermissions(ctx, "u1", "c1")
	require.NoError(t, err)
	second, err := engine.GetCachedPermissions(ctx, "u1", "c1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.Calls())
}

func TestGetCachedPermissions_CachesFullSetAndFiltersByCompany(t *testing.T) {
	store := &fakeStore{grants: map[string][]CachedPermission{
		"u1": {
			grant("clients", "read", ScopeAll, "c1"),
			grant("clients", "write", ScopeSelf, "c2"),
		},
	}}
	mem := cache.NewMemoryCache(100)
	engine := newTestEngine(store, mem, Config{})
	ctx := context.Background()

	perms, err := engine.GetCachedPermissions(ctx, "u1", "c1")
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, "c1", perms[0].CompanyID)

	var cached []CachedPermission
	found, err := mem.Get(ctx, PermissionsKey("u1"), &cached)
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, cached, 2, "cache holds every company's grants")

	perms, err = engine.GetCachedPermissions(ctx, "u1", "c2")
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, ScopeSelf, perms[0].Scope)
	assert.Equal(t, 1, store.Calls())
}

func TestGetAllUserPermissions(t *testing.T) {
	store := &fakeStore{grants: map[string][]CachedPermission{
		"u1": {
			grant("clients", "read", ScopeAll, "c1"),
			grant("clients", "read", ScopeSelf, "c2"),
		},
	}}
	engine := newTestEngine(store, cache.NewMemoryCache(100), Config{})

	perms, err := engine.GetAllUserPermissions(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, perms, 2)
}

func TestInvalidateUserPermissions_ForcesReload(t *testing.T) {
	store := &fakeStore{grants: map[string][]CachedPermission{
		"u1": {grant("clients", "read", ScopeSelf, "c1")},
	}}
	engine := newTestEngine(store, cache.NewMemoryCache(100), Config{})
	ctx := context.Background()

	_, err := engine.GetCachedPermissions(ctx, "u1", "c1")
	require.NoError(t, err)

	store.mu.Lock()
	store.grants["u1"] = []CachedPermission{grant("clients", "read", ScopeAll, "c1")}
	store.mu.Unlock()

	engine.InvalidateUserPermissions(ctx, "u1")

	perms, err := engine.GetCachedPermissions(ctx, "u1", "c1")
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, ScopeAll, perms[0].Scope)
	assert.Equal(t, 2, store.Calls())
}

func TestInvalidateAllUserPermissions(t *testing.T) {
	store := &fakeStore{grants: map[string][]CachedPermission{
		"u1": {grant("clients", "read", ScopeSelf, "c1")},
		"u2": {grant("clients", "read", ScopeSelf, "c1")},
	}}
	mem := cache.NewMemoryCache(100)
	engine := newTestEngine(store, mem, Config{})
	ctx := context.Background()

	_, _ = engine.GetCachedPermissions(ctx, "u1", "c1")
	_, _ = engine.GetCachedPermissions(ctx, "u2", "c1")
	require.NoError(t, mem.Set(ctx, "user:u1:branches", []string{"b1"}, time.Minute))

	engine.InvalidateAllUserPermissions(ctx)

	_, _ = engine.GetCachedPermissions(ctx, "u1", "c1")
	_, _ = engine.GetCachedPermissions(ctx, "u2", "c1")
	assert.Equal(t, 4, store.Calls())

	var branches []string
	found, err := mem.Get(ctx, "user:u1:branches", &branches)
	require.NoError(t, err)
	assert.True(t, found, "branch namespace is untouched")
}

func TestInvalidation_SwallowsCacheErrors(t *testing.T) {
	engine := newTestEngine(&fakeStore{}, failingCache{}, Config{})

	assert.NotPanics(t, func() {
		engine.InvalidateUserPermissions(context.Background(), "u1")
		engine.InvalidateAllUserPermissions(context.Background())
	})
}

func TestGetCachedPermissions_CacheErrorFallsBackToStore(t *testing.T) {
	store := &fakeStore{grants: map[string][]CachedPermission{
		"u1": {
			grant("clients", "read", ScopeAll, "c1"),
			grant("clients", "read", ScopeAll, "c2"),
		},
	}}
	engine := newTestEngine(store, failingCache{}, Config{})

	perms, err := engine.GetCachedPermissions(context.Background(), "u1", "c1")
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, "c1", store.last, "fallback loads for the requested company")
}

func TestGetCachedPermissions_CacheAndStoreFail(t *testing.T) {
	storeErr := errors.New("database is down")
	engine := newTestEngine(&fakeStore{err: storeErr}, failingCache{}, Config{})
	ctx := context.Background()

	_, err := engine.GetCachedPermissions(ctx, "u1", "c1")
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)

	assert.False(t, engine.HasPermission(ctx, "u1", "c1", "clients", "read", nil))
	assert.False(t, engine.HasAnyPermissionForResource(ctx, "u1", "c1", "clients"))
}

func TestGetCachedPermissions_StoreErrorOnMiss(t *testing.T) {
	storeErr := errors.New("timeout")
	mem := cache.NewMemoryCache(100)
	engine := newTestEngine(&fakeStore{err: storeErr}, mem, Config{})

	_, err := engine.GetCachedPermissions(context.Background(), "u1", "c1")
	assert.ErrorIs(t, err, storeErr)
	assert.Equal(t, 0, mem.Len(), "failures are not cached")
}

func TestGetCachedPermissions_NullCacheAlwaysLoads(t *testing.T) {
	store := &fakeStore{grants: map[string][]CachedPermission{
		"u1": {grant("clients", "read", ScopeAll, "c1")},
	}}
	engine := newTestEngine(store, nil, Config{})
	ctx := context.Background()

	_, err := engine.GetCachedPermissions(ctx, "u1", "c1")
	require.NoError(t, err)
	_, err = engine.GetCachedPermissions(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, store.Calls())
}

func TestHasPermission_DecisionTable(t *testing.T) {
	tests := []struct {
		name  string
		scope Scope
		ctx   *AccessContext
		want  bool
	}{
		{"all without context", ScopeAll, nil, true},
		{"all with empty context", ScopeAll, &AccessContext{}, true},
		{"area with areas", ScopeArea, &AccessContext{AreaIDs: []string{"a1"}}, true},
		{"area without context", ScopeArea, nil, true},
		{"area with empty area list", ScopeArea, &AccessContext{BranchIDs: []string{"b1"}}, false},
		{"branch with branches", ScopeBranch, &AccessContext{BranchIDs: []string{"b1"}}, true},
		{"branch without context", ScopeBranch, nil, true},
		{"branch with empty branch list", ScopeBranch, &AccessContext{AreaIDs: []string{"a1"}}, false},
		{"self as owner", ScopeSelf, &AccessContext{ResourceOwnerID: "u1"}, true},
		{"self other owner", ScopeSelf, &AccessContext{ResourceOwnerID: "u2"}, false},
		{"self owner absent", ScopeSelf, &AccessContext{}, false},
		{"self without context", ScopeSelf, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{grants: map[string][]CachedPermission{
				"u1": {grant("clients", "write", tt.scope, "c1")},
			}}
			engine := newTestEngine(store, cache.NewMemoryCache(100), Config{})

			got := engine.HasPermission(context.Background(), "u1", "c1", "clients", "write", tt.ctx)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHasPermission_NoMatch(t *testing.T) {
	store := &fakeStore{grants: map[string][]CachedPermission{
		"u1": {
			grant("clients", "read", ScopeAll, "c1"),
			grant("clients", "write", ScopeAll, "c2"),
		},
	}}
	engine := newTestEngine(store, cache.NewMemoryCache(100), Config{})
	ctx := context.Background()

	assert.False(t, engine.HasPermission(ctx, "u1", "c1", "clients", "write", nil), "other company")
	assert.False(t, engine.HasPermission(ctx, "u1", "c1", "cases", "read", nil), "other resource")
	assert.False(t, engine.HasPermission(ctx, "u9", "c1", "clients", "read", nil), "no grants")
}

func TestHasPermission_BroadestScopeWins(t *testing.T) {
	store := &fakeStore{grants: map[string][]CachedPermission{
		"u1": {
			grant("clients", "read", ScopeSelf, "c1"),
			grant("clients", "read", ScopeAll, "c1"),
			grant("clients", "read", ScopeBranch, "c1"),
		},
	}}
	engine := newTestEngine(store, cache.NewMemoryCache(100), Config{})

	decision := engine.Evaluate(context.Background(), "u1", "c1", "clients", "read", &AccessContext{ResourceOwnerID: "someone-else"})
	assert.True(t, decision.Allowed)
	assert.Equal(t, ScopeAll, decision.Scope)
}

func TestHasPermission_ConcreteExamples(t *testing.T) {
	store := &fakeStore{grants: map[string][]CachedPermission{
		"writer":  {grant("clients", "write", ScopeBranch, "c1")},
		"deleter": {grant("clients", "delete", ScopeSelf, "c1")},
	}}
	engine := newTestEngine(store, cache.NewMemoryCache(100), Config{})
	ctx := context.Background()

	assert.True(t, engine.HasPermission(ctx, "writer", "c1", "clients", "write", &AccessContext{BranchIDs: []string{"b1"}}))
	assert.True(t, engine.HasPermission(ctx, "writer", "c1", "clients", "write", nil))
	assert.False(t, engine.HasPermission(ctx, "deleter", "c1", "clients", "delete", nil))
}

func TestHasPermission_StrictScopeContext(t *testing.T) {
	store := &fakeStore{grants: map[string][]CachedPermission{
		"u1": {
			grant("clients", "write", ScopeBranch, "c1"),
			grant("reports", "read", ScopeArea, "c1"),
		},
	}}
	engine := newTestEngine(store, cache.NewMemoryCache(100), Config{StrictScopeContext: true})
	ctx := context.Background()

	assert.False(t, engine.HasPermission(ctx, "u1", "c1", "clients", "write", nil))
	assert.False(t, engine.HasPermission(ctx, "u1", "c1", "clients", "write",
		&AccessContext{BranchIDs: []string{"b1"}}), "record branch unknown")
	assert.False(t, engine.HasPermission(ctx, "u1", "c1", "clients", "write",
		&AccessContext{BranchIDs: []string{"b1"}, ResourceBranchID: "b2"}))
	assert.True(t, engine.HasPermission(ctx, "u1", "c1", "clients", "write",
		&AccessContext{BranchIDs: []string{"b1", "b2"}, ResourceBranchID: "b2"}))

	assert.False(t, engine.HasPermission(ctx, "u1", "c1", "reports", "read",
		&AccessContext{AreaIDs: []string{"a1"}, ResourceAreaID: "a2"}))
	assert.True(t, engine.HasPermission(ctx, "u1", "c1", "reports", "read",
		&AccessContext{AreaIDs: []string{"a1"}, ResourceAreaID: "a1"}))
}

func TestHasAnyPermissionForResource(t *testing.T) {
	store := &fakeStore{grants: map[string][]CachedPermission{
		"u1": {
			grant("clients", "delete", ScopeSelf, "c1"),
			grant("reports", "read", ScopeAll, "c2"),
		},
	}}
	engine := newTestEngine(store, cache.NewMemoryCache(100), Config{})
	ctx := context.Background()

	assert.True(t, engine.HasAnyPermissionForResource(ctx, "u1", "c1", "clients"))
	assert.False(t, engine.HasAnyPermissionForResource(ctx, "u1", "c1", "reports"))
	assert.True(t, engine.HasAnyPermissionForResource(ctx, "u1", "c2", "reports"))
}

func TestEngine_RecordsDecisionMetrics(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	store := &fakeStore{grants: map[string][]CachedPermission{
		"u1": {grant("clients", "read", ScopeAll, "c1")},
	}}
	engine := NewEngine(store, cache.NewMemoryCache(100), Config{}, quietLogger(), metrics)
	ctx := context.Background()

	engine.HasPermission(ctx, "u1", "c1", "clients", "read", nil)
	engine.HasPermission(ctx, "u1", "c1", "clients", "delete", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PermissionDecisionsTotal.WithLabelValues("clients", "read", "allow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PermissionDecisionsTotal.WithLabelValues("clients", "delete", "deny")))
}

func TestGetCachedPermissions_ConcurrentMisses(t *testing.T) {
	store := &fakeStore{grants: map[string][]CachedPermission{
		"u1": {grant("clients", "read", ScopeAll, "c1")},
	}}
	engine := newTestEngine(store, cache.NewMemoryCache(100), Config{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			perms, err := engine.GetCachedPermissions(context.Background(), "u1", "c1")
			assert.NoError(t, err)
			assert.Len(t, perms, 1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, store.Calls(), 20)
	assert.GreaterOrEqual(t, store.Calls(), 1)
}

// blockingStore holds every load until release is closed, or the load's
// context is done.
type blockingStore struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	perms   []CachedPermission
}

func (s *blockingStore) GetUserPermissions(ctx context.Context, userID, companyID string) ([]CachedPermission, error) {
	s.once.Do(func() { close(s.entered) })
	select {
	case <-s.release:
		return s.perms, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestGetCachedPermissions_CanceledCallerDoesNotFailSharedLoad(t *testing.T) {
	store := &blockingStore{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		perms:   []CachedPermission{grant("clients", "read", ScopeAll, "c1")},
	}
	engine := newTestEngine(store, cache.NewMemoryCache(100), Config{})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := engine.GetCachedPermissions(ctxA, "u1", "c1")
		errA <- err
	}()

	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("store load never started")
	}

	allowedB := make(chan bool, 1)
	go func() {
		allowedB <- engine.HasPermission(context.Background(), "u1", "c1", "clients", "read", nil)
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("canceled caller kept waiting on the shared load")
	}

	close(store.release)
	select {
	case allowed := <-allowedB:
		assert.True(t, allowed)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never returned")
	}

	var cached []CachedPermission
	found, err := engine.cache.Get(context.Background(), PermissionsKey("u1"), &cached)
	require.NoError(t, err)
	assert.True(t, found)
}
