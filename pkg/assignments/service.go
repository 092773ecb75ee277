package assignments

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/caseboard/pkg/permissions"
	"github.com/platinummonkey/caseboard/pkg/storage"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotFound is returned when a referenced permission, branch, area or
	// assignment does not exist. Stores return the same value.
	ErrNotFound = storage.ErrNotFound

	// ErrInvalidScope is returned for a grant whose scope is not one of
	// self, branch, area or all.
	ErrInvalidScope = errors.New("invalid scope")

	// ErrInvalidArgument is returned when a required id is empty
	ErrInvalidArgument = errors.New("invalid argument")
)

// PermissionStore persists user permission grants
type PermissionStore interface {
	GrantPermission(ctx context.Context, grant permissions.Grant) error
	RevokePermission(ctx context.Context, grant permissions.Grant) error
}

// TerritoryStore persists user, area and branch assignments
type TerritoryStore interface {
	AssignUserToBranch(ctx context.Context, userID, branchID string) error
	UnassignUserFromBranch(ctx context.Context, userID, branchID string) error
	AssignUserToArea(ctx context.Context, userID, areaID string) error
	UnassignUserFromArea(ctx context.Context, userID, areaID string) error
	AssignBranchToArea(ctx context.Context, areaID, branchID string, isPrimary bool) error
	SetPrimaryBranch(ctx context.Context, areaID, branchID string) error
	RemoveBranchFromArea(ctx context.Context, areaID, branchID string) error
}

// PermissionInvalidator drops cached permission sets
type PermissionInvalidator interface {
	InvalidateUserPermissions(ctx context.Context, userID string)
	InvalidateAllUserPermissions(ctx context.Context)
}

// TerritoryInvalidator drops cached branch sets
type TerritoryInvalidator interface {
	InvalidateUserBranchCache(ctx context.Context, userID string)
	InvalidateAllUserBranchCache(ctx context.Context)
}

// Service applies grant and territory mutations and invalidates the
// affected caches once the store write has succeeded.
type Service struct {
	permStore      PermissionStore
	territoryStore TerritoryStore
	permCache      PermissionInvalidator
	territoryCache TerritoryInvalidator
	log            *logrus.Logger
}

// NewService creates an assignment service
func NewService(permStore PermissionStore, territoryStore TerritoryStore, permCache PermissionInvalidator, territoryCache TerritoryInvalidator, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.New()
	}
	return &Service{
		permStore:      permStore,
		territoryStore: territoryStore,
		permCache:      permCache,
		territoryCache: territoryCache,
		log:            log,
	}
}

// GrantPermission gives the user a permission at a scope within a company
func (s *Service) GrantPermission(ctx context.Context, grant permissions.Grant) error {
	if err := validateGrant(grant); err != nil {
		return err
	}
	if err := s.permStore.GrantPermission(ctx, grant); err != nil {
		return fmt.Errorf("failed to grant %s to user %s: %w", grant.PermissionCode, grant.UserID, err)
	}

	s.permCache.InvalidateUserPermissions(ctx, grant.UserID)
	s.log.WithFields(logrus.Fields{
		"user_id":    grant.UserID,
		"company_id": grant.CompanyID,
		"permission": grant.PermissionCode,
		"scope":      grant.Scope.String(),
	}).Info("Permission granted")
	return nil
}

// RevokePermission removes a previously granted permission
func (s *Service) RevokePermission(ctx context.Context, grant permissions.Grant) error {
	if err := validateGrant(grant); err != nil {
		return err
	}
	if err := s.permStore.RevokePermission(ctx, grant); err != nil {
		return fmt.Errorf("failed to revoke %s from user %s: %w", grant.PermissionCode, grant.UserID, err)
	}

	s.permCache.InvalidateUserPermissions(ctx, grant.UserID)
	s.log.WithFields(logrus.Fields{
		"user_id":    grant.UserID,
		"company_id": grant.CompanyID,
		"permission": grant.PermissionCode,
		"scope":      grant.Scope.String(),
	}).Info("Permission revoked")
	return nil
}

// AssignUserToBranch gives the user direct access to a branch
func (s *Service) AssignUserToBranch(ctx context.Context, userID, branchID string) error {
	if err := required(userID, branchID); err != nil {
		return err
	}
	if err := s.territoryStore.AssignUserToBranch(ctx, userID, branchID); err != nil {
		return fmt.Errorf("failed to assign user %s to branch %s: %w", userID, branchID, err)
	}
	s.territoryCache.InvalidateUserBranchCache(ctx, userID)
	return nil
}

// UnassignUserFromBranch removes a direct branch assignment
func (s *Service) UnassignUserFromBranch(ctx context.Context, userID, branchID string) error {
	if err := required(userID, branchID); err != nil {
		return err
	}
	if err := s.territoryStore.UnassignUserFromBranch(ctx, userID, branchID); err != nil {
		return fmt.Errorf("failed to unassign user %s from branch %s: %w", userID, branchID, err)
	}
	s.territoryCache.InvalidateUserBranchCache(ctx, userID)
	return nil
}

// AssignUserToArea gives the user access to every branch of an area
func (s *Service) AssignUserToArea(ctx context.Context, userID, areaID string) error {
	if err := required(userID, areaID); err != nil {
		return err
	}
	if err := s.territoryStore.AssignUserToArea(ctx, userID, areaID); err != nil {
		return fmt.Errorf("failed to assign user %s to area %s: %w", userID, areaID, err)
	}
	s.territoryCache.InvalidateUserBranchCache(ctx, userID)
	return nil
}

// UnassignUserFromArea removes an area assignment
func (s *Service) UnassignUserFromArea(ctx context.Context, userID, areaID string) error {
	if err := required(userID, areaID); err != nil {
		return err
	}
	if err := s.territoryStore.UnassignUserFromArea(ctx, userID, areaID); err != nil {
		return fmt.Errorf("failed to unassign user %s from area %s: %w", userID, areaID, err)
	}
	s.territoryCache.InvalidateUserBranchCache(ctx, userID)
	return nil
}

// AssignBranchToArea adds a branch to an area. A primary assignment demotes
// the area's previous primary branch.
//
// Any user assigned to the area may gain or lose branches, so every cached
// branch set is dropped.
func (s *Service) AssignBranchToArea(ctx context.Context, areaID, branchID string, isPrimary bool) error {
	if err := required(areaID, branchID); err != nil {
		return err
	}
	if err := s.territoryStore.AssignBranchToArea(ctx, areaID, branchID, isPrimary); err != nil {
		return fmt.Errorf("failed to assign branch %s to area %s: %w", branchID, areaID, err)
	}
	s.territoryCache.InvalidateAllUserBranchCache(ctx)
	return nil
}

// SetPrimaryBranch marks an existing area branch as the area's only primary
func (s *Service) SetPrimaryBranch(ctx context.Context, areaID, branchID string) error {
	if err := required(areaID, branchID); err != nil {
		return err
	}
	if err := s.territoryStore.SetPrimaryBranch(ctx, areaID, branchID); err != nil {
		return fmt.Errorf("failed to set primary branch %s for area %s: %w", branchID, areaID, err)
	}
	return nil
}

// RemoveBranchFromArea detaches a branch from an area
func (s *Service) RemoveBranchFromArea(ctx context.Context, areaID, branchID string) error {
	if err := required(areaID, branchID); err != nil {
		return err
	}
	if err := s.territoryStore.RemoveBranchFromArea(ctx, areaID, branchID); err != nil {
		return fmt.Errorf("failed to remove branch %s from area %s: %w", branchID, areaID, err)
	}
	s.territoryCache.InvalidateAllUserBranchCache(ctx)
	return nil
}

// InvalidateCaches drops the cached permission and branch sets of userID, or
// of every user when userID is empty.
func (s *Service) InvalidateCaches(ctx context.Context, userID string) {
	if userID == "" {
		s.permCache.InvalidateAllUserPermissions(ctx)
		s.territoryCache.InvalidateAllUserBranchCache(ctx)
		s.log.Info("Invalidated all cached permission and branch sets")
		return
	}

	s.permCache.InvalidateUserPermissions(ctx, userID)
	s.territoryCache.InvalidateUserBranchCache(ctx, userID)
	s.log.WithField("user_id", userID).Info("Invalidated cached permission and branch sets")
}

func validateGrant(grant permissions.Grant) error {
	if err := required(grant.UserID, grant.CompanyID, grant.PermissionCode); err != nil {
		return err
	}
	if !grant.Scope.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidScope, int(grant.Scope))
	}
	return nil
}

func required(ids ...string) error {
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("%w: missing id", ErrInvalidArgument)
		}
	}
	return nil
}
