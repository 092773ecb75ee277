package assignments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/platinummonkey/caseboard/pkg/permissions"
	"github.com/platinummonkey/caseboard/pkg/storage"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	err   error
	calls []string
}

func (s *fakeStore) record(call string) error {
	s.calls = append(s.calls, call)
	return s.err
}

func (s *fakeStore) GrantPermission(ctx context.Context, grant permissions.Grant) error {
	return s.record("grant:" + grant.PermissionCode)
}

func (s *fakeStore) RevokePermission(ctx context.Context, grant permissions.Grant) error {
	return s.record("revoke:" + grant.PermissionCode)
}

func (s *fakeStore) AssignUserToBranch(ctx context.Context, userID, branchID string) error {
	return s.record("assign-branch:" + userID + ":" + branchID)
}

func (s *fakeStore) UnassignUserFromBranch(ctx context.Context, userID, branchID string) error {
	return s.record("unassign-branch:" + userID + ":" + branchID)
}

func (s *fakeStore) AssignUserToArea(ctx context.Context, userID, areaID string) error {
	return s.record("assign-area:" + userID + ":" + areaID)
}

func (s *fakeStore) UnassignUserFromArea(ctx context.Context, userID, areaID string) error {
	return s.record("unassign-area:" + userID + ":" + areaID)
}

func (s *fakeStore) AssignBranchToArea(ctx context.Context, areaID, branchID string, isPrimary bool) error {
	return s.record("area-branch:" + areaID + ":" + branchID)
}

func (s *fakeStore) SetPrimaryBranch(ctx context.Context, areaID, branchID string) error {
	return s.record("primary:" + areaID + ":" + branchID)
}

func (s *fakeStore) RemoveBranchFromArea(ctx context.Context, areaID, branchID string) error {
	return s.record("remove-area-branch:" + areaID + ":" + branchID)
}

type fakeInvalidator struct {
	users []string
	all   int
}

func (f *fakeInvalidator) InvalidateUserPermissions(ctx context.Context, userID string) {
	f.users = append(f.users, userID)
}

func (f *fakeInvalidator) InvalidateAllUserPermissions(ctx context.Context) { f.all++ }

func (f *fakeInvalidator) InvalidateUserBranchCache(ctx context.Context, userID string) {
	f.users = append(f.users, userID)
}

func (f *fakeInvalidator) InvalidateAllUserBranchCache(ctx context.Context) { f.all++ }

func newTestService(store *fakeStore) (*Service, *fakeInvalidator, *fakeInvalidator) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	perms := &fakeInvalidator{}
	territory := &fakeInvalidator{}
	return NewService(store, store, perms, territory, log), perms, territory
}

func validGrant() permissions.Grant {
	return permissions.Grant{
		UserID:         "u1",
		PermissionCode: "clients:read",
		CompanyID:      "c1",
		Scope:          permissions.ScopeBranch,
	}
}

func TestGrantAndRevoke_InvalidateUserPermissions(t *testing.T) {
	store := &fakeStore{}
	svc, perms, territory := newTestService(store)
	ctx := context.Background()

	require.NoError(t, svc.GrantPermission(ctx, validGrant()))
	require.NoError(t, svc.RevokePermission(ctx, validGrant()))

	assert.Equal(t, []string{"grant:clients:read", "revoke:clients:read"}, store.calls)
	assert.Equal(t, []string{"u1", "u1"}, perms.users)
	assert.Empty(t, territory.users)
}

func TestGrantPermission_Validation(t *testing.T) {
	store := &fakeStore{}
	svc, perms, _ := newTestService(store)
	ctx := context.Background()

	bad := validGrant()
	bad.Scope = permissions.ScopeNone
	assert.ErrorIs(t, svc.GrantPermission(ctx, bad), ErrInvalidScope)

	bad = validGrant()
	bad.CompanyID = ""
	assert.ErrorIs(t, svc.GrantPermission(ctx, bad), ErrInvalidArgument)

	assert.Empty(t, store.calls)
	assert.Empty(t, perms.users)
}

func TestGrantPermission_StoreErrorSkipsInvalidation(t *testing.T) {
	store := &fakeStore{err: ErrNotFound}
	svc, perms, _ := newTestService(store)

	err := svc.GrantPermission(context.Background(), validGrant())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, perms.users)
}

func TestUserTerritoryAssignments_InvalidateUserBranches(t *testing.T) {
	store := &fakeStore{}
	svc, perms, territory := newTestService(store)
	ctx := context.Background()

	require.NoError(t, svc.AssignUserToBranch(ctx, "u1", "b1"))
	require.NoError(t, svc.UnassignUserFromBranch(ctx, "u2", "b1"))
	require.NoError(t, svc.AssignUserToArea(ctx, "u3", "a1"))
	require.NoError(t, svc.UnassignUserFromArea(ctx, "u4", "a1"))

	assert.Equal(t, []string{"u1", "u2", "u3", "u4"}, territory.users)
	assert.Equal(t, 0, territory.all)
	assert.Empty(t, perms.users)
}

func TestAreaBranchAssignments_InvalidateAllBranches(t *testing.T) {
	store := &fakeStore{}
	svc, _, territory := newTestService(store)
	ctx := context.Background()

	require.NoError(t, svc.AssignBranchToArea(ctx, "a1", "b1", true))
	require.NoError(t, svc.RemoveBranchFromArea(ctx, "a1", "b2"))
	assert.Equal(t, 2, territory.all)

	require.NoError(t, svc.SetPrimaryBranch(ctx, "a1", "b1"))
	assert.Equal(t, 2, territory.all, "primary flag does not change membership")
}

func TestTerritoryAssignments_Errors(t *testing.T) {
	store := &fakeStore{err: ErrNotFound}
	svc, _, territory := newTestService(store)
	ctx := context.Background()

	assert.ErrorIs(t, svc.SetPrimaryBranch(ctx, "a1", "missing"), ErrNotFound)
	assert.ErrorIs(t, svc.RemoveBranchFromArea(ctx, "a1", "missing"), ErrNotFound)
	assert.ErrorIs(t, svc.UnassignUserFromBranch(ctx, "u1", "missing"), ErrNotFound)
	assert.ErrorIs(t, svc.AssignUserToArea(ctx, "", "a1"), ErrInvalidArgument)

	assert.Empty(t, territory.users)
	assert.Equal(t, 0, territory.all)
}

func TestInvalidateCaches(t *testing.T) {
	svc, perms, territory := newTestService(&fakeStore{})
	ctx := context.Background()

	svc.InvalidateCaches(ctx, "u1")
	assert.Equal(t, []string{"u1"}, perms.users)
	assert.Equal(t, []string{"u1"}, territory.users)

	svc.InvalidateCaches(ctx, "")
	assert.Equal(t, 1, perms.all)
	assert.Equal(t, 1, territory.all)
}

func TestErrorsWrapSentinels(t *testing.T) {
	store := &fakeStore{err: errors.New("deadlock detected")}
	svc, _, _ := newTestService(store)

	err := svc.AssignBranchToArea(context.Background(), "a1", "b1", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock detected")
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestStoreNotFoundMatchesServiceSentinel(t *testing.T) {
	store := &fakeStore{err: fmt.Errorf("area branch b9: %w", storage.ErrNotFound)}
	svc, _, territory := newTestService(store)

	err := svc.SetPrimaryBranch(context.Background(), "a1", "b9")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 0, territory.all)
}
