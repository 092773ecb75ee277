package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/platinummonkey/caseboard/pkg/storage"
)

// foreignKeyViolation is the Postgres SQLSTATE for a missing referenced row
const foreignKeyViolation = "23503"

// AssignmentStore writes user, area and branch assignments
type AssignmentStore struct {
	conns *ConnectionManager
}

// NewAssignmentStore creates an assignment store
func NewAssignmentStore(conns *ConnectionManager) *AssignmentStore {
	return &AssignmentStore{conns: conns}
}

// AssignUserToBranch links a user to a live branch. Repeating it is a no-op.
func (s *AssignmentStore) AssignUserToBranch(ctx context.Context, userID, branchID string) error {
	db := s.conns.Primary()
	if err := requireLive(ctx, db, "branches", branchID); err != nil {
		return err
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO user_branches (user_id, branch_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID, branchID)
	if err != nil {
		return mapWriteError(err, "branch "+branchID)
	}
	return nil
}

// UnassignUserFromBranch removes a direct branch assignment
func (s *AssignmentStore) UnassignUserFromBranch(ctx context.Context, userID, branchID string) error {
	result, err := s.conns.Primary().ExecContext(ctx,
		`DELETE FROM user_branches WHERE user_id = $1 AND branch_id = $2`, userID, branchID)
	if err != nil {
		return fmt.Errorf("failed to delete user branch: %w", err)
	}
	return requireAffected(result, "user branch "+branchID)
}

// AssignUserToArea links a user to a live area. Repeating it is a no-op.
func (s *AssignmentStore) AssignUserToArea(ctx context.Context, userID, areaID string) error {
	db := s.conns.Primary()
	if err := requireLive(ctx, db, "areas", areaID); err != nil {
		return err
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO user_areas (user_id, area_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID, areaID)
	if err != nil {
		return mapWriteError(err, "area "+areaID)
	}
	return nil
}

// UnassignUserFromArea removes an area assignment
func (s *AssignmentStore) UnassignUserFromArea(ctx context.Context, userID, areaID string) error {
	result, err := s.conns.Primary().ExecContext(ctx,
		`DELETE FROM user_areas WHERE user_id = $1 AND area_id = $2`, userID, areaID)
	if err != nil {
		return fmt.Errorf("failed to delete user area: %w", err)
	}
	return requireAffected(result, "user area "+areaID)
}

// AssignBranchToArea upserts the area/branch link. With isPrimary the
// area's other links are demoted first, in the same transaction, so an area
// never has two primaries.
func (s *AssignmentStore) AssignBranchToArea(ctx context.Context, areaID, branchID string, isPrimary bool) error {
	tx, err := s.conns.Primary().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := requireLive(ctx, tx, "areas", areaID); err != nil {
		return err
	}
	if err := requireLive(ctx, tx, "branches", branchID); err != nil {
		return err
	}

	if isPrimary {
		if _, err := tx.ExecContext(ctx, `
			UPDATE area_branches SET is_primary = FALSE
			WHERE area_id = $1 AND branch_id <> $2 AND is_primary
		`, areaID, branchID); err != nil {
			return fmt.Errorf("failed to clear primary branch: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO area_branches (area_id, branch_id, is_primary)
		VALUES ($1, $2, $3)
		ON CONFLICT (area_id, branch_id) DO UPDATE SET is_primary = EXCLUDED.is_primary
	`, areaID, branchID, isPrimary); err != nil {
		return mapWriteError(err, "area branch "+branchID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit area branch: %w", err)
	}
	return nil
}

// SetPrimaryBranch makes an existing area/branch link the area's only
// primary.
func (s *AssignmentStore) SetPrimaryBranch(ctx context.Context, areaID, branchID string) error {
	tx, err := s.conns.Primary().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT TRUE FROM area_branches
		WHERE area_id = $1 AND branch_id = $2
		FOR UPDATE
	`, areaID, branchID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("area branch %s: %w", branchID, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock area branch: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE area_branches SET is_primary = (branch_id = $2)
		WHERE area_id = $1
	`, areaID, branchID); err != nil {
		return fmt.Errorf("failed to set primary branch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit primary branch: %w", err)
	}
	return nil
}

// RemoveBranchFromArea deletes an area/branch link
func (s *AssignmentStore) RemoveBranchFromArea(ctx context.Context, areaID, branchID string) error {
	result, err := s.conns.Primary().ExecContext(ctx,
		`DELETE FROM area_branches WHERE area_id = $1 AND branch_id = $2`, areaID, branchID)
	if err != nil {
		return fmt.Errorf("failed to delete area branch: %w", err)
	}
	return requireAffected(result, "area branch "+branchID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// requireLive checks id names an active, non-deleted row of table
func requireLive(ctx context.Context, q queryRower, table, id string) error {
	var found bool
	query := `SELECT TRUE FROM ` + table + ` WHERE id = $1 AND is_active AND deleted_at IS NULL`
	err := q.QueryRowContext(ctx, query, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", table, id, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", table, err)
	}
	return nil
}

// mapWriteError turns a foreign key violation from a concurrent delete into
// ErrNotFound.
func mapWriteError(err error, what string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == foreignKeyViolation {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return fmt.Errorf("failed to write %s: %w", what, err)
}
