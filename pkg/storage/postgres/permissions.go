package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/caseboard/pkg/permissions"
	"github.com/platinummonkey/caseboard/pkg/storage"
)

// PermissionStore reads and writes permission reference data and grants
type PermissionStore struct {
	conns *ConnectionManager
}

// NewPermissionStore creates a permission store
func NewPermissionStore(conns *ConnectionManager) *PermissionStore {
	return &PermissionStore{conns: conns}
}

// GetUserPermissions loads the user's grants, restricted to companyID when
// it is non-empty. It reads the primary: the result refills the cache right
// after an invalidation, so a lagging replica would pin the old grants for
// a whole TTL.
func (s *PermissionStore) GetUserPermissions(ctx context.Context, userID, companyID string) ([]permissions.CachedPermission, error) {
	query := `
		SELECT p.id, p.code, p.resource, p.action, COALESCE(p.description, ''), up.scope, up.company_id
		FROM user_permissions up
		JOIN permissions p ON p.id = up.permission_id
		WHERE up.user_id = $1 AND ($2::text = '' OR up.company_id = $2)
		ORDER BY up.company_id, p.code, up.scope
	`

	rows, err := s.conns.Primary().QueryContext(ctx, query, userID, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user permissions: %w", err)
	}
	defer rows.Close()

	perms := []permissions.CachedPermission{}
	for rows.Next() {
		var (
			p         permissions.CachedPermission
			scopeName string
		)
		if err := rows.Scan(
			&p.Permission.ID,
			&p.Permission.Code,
			&p.Permission.Resource,
			&p.Permission.Action,
			&p.Permission.Description,
			&scopeName,
			&p.CompanyID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user permission: %w", err)
		}

		p.Scope, err = permissions.ParseScope(scopeName)
		if err != nil {
			return nil, fmt.Errorf("permission %s for user %s: %w", p.Permission.Code, userID, err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read user permissions: %w", err)
	}

	return perms, nil
}

// UpsertPermissions inserts or updates the catalog by code in one
// transaction and returns the number of rows written.
func (s *PermissionStore) UpsertPermissions(ctx context.Context, perms []permissions.Permission) (int, error) {
	tx, err := s.conns.Primary().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO permissions (code, resource, action, description)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		ON CONFLICT (code) DO UPDATE
		SET resource = EXCLUDED.resource,
		    action = EXCLUDED.action,
		    description = EXCLUDED.description,
		    updated_at = NOW()
	`

	for _, p := range perms {
		if _, err := tx.ExecContext(ctx, query, p.Code, p.Resource, p.Action, p.Description); err != nil {
			return 0, fmt.Errorf("failed to upsert permission %s: %w", p.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit permissions: %w", err)
	}
	return len(perms), nil
}

// GrantPermission records a grant. Granting an unknown permission code
// returns storage.ErrNotFound; repeating a grant is a no-op.
func (s *PermissionStore) GrantPermission(ctx context.Context, grant permissions.Grant) error {
	db := s.conns.Primary()

	var permissionID string
	err := db.QueryRowContext(ctx, `SELECT id FROM permissions WHERE code = $1`, grant.PermissionCode).Scan(&permissionID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("permission %s: %w", grant.PermissionCode, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to look up permission: %w", err)
	}

	query := `
		INSERT INTO user_permissions (user_id, permission_id, company_id, scope)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`
	if _, err := db.ExecContext(ctx, query, grant.UserID, permissionID, grant.CompanyID, grant.Scope.String()); err != nil {
		return fmt.Errorf("failed to grant permission: %w", err)
	}
	return nil
}

// RevokePermission deletes a grant, returning storage.ErrNotFound when
// the user did not hold it.
func (s *PermissionStore) RevokePermission(ctx context.Context, grant permissions.Grant) error {
	query := `
		DELETE FROM user_permissions up
		USING permissions p
		WHERE p.id = up.permission_id
		  AND p.code = $1
		  AND up.user_id = $2
		  AND up.company_id = $3
		  AND up.scope = $4
	`
	result, err := s.conns.Primary().ExecContext(ctx, query, grant.PermissionCode, grant.UserID, grant.CompanyID, grant.Scope.String())
	if err != nil {
		return fmt.Errorf("failed to revoke permission: %w", err)
	}
	return requireAffected(result, "grant "+grant.PermissionCode)
}

func requireAffected(result sql.Result, what string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return nil
}
