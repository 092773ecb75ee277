package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/platinummonkey/caseboard/pkg/territory"
)

// BranchStore answers the territory lookups. Only active, non-deleted
// branches and areas count.
type BranchStore struct {
	conns *ConnectionManager
}

// NewBranchStore creates a branch store
func NewBranchStore(conns *ConnectionManager) *BranchStore {
	return &BranchStore{conns: conns}
}

// DirectBranchIDs returns branches assigned to the user directly
func (s *BranchStore) DirectBranchIDs(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT b.id
		FROM user_branches ub
		JOIN branches b ON b.id = ub.branch_id
		WHERE ub.user_id = $1
		  AND b.is_active AND b.deleted_at IS NULL
		ORDER BY b.sort_order, b.name
	`
	return s.queryIDs(ctx, query, userID)
}

// AreaBranchIDs returns branches reachable through the user's areas. A
// branch shared by two areas appears once per area.
func (s *BranchStore) AreaBranchIDs(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT b.id
		FROM user_areas ua
		JOIN areas a ON a.id = ua.area_id
		JOIN area_branches ab ON ab.area_id = a.id
		JOIN branches b ON b.id = ab.branch_id
		WHERE ua.user_id = $1
		  AND a.is_active AND a.deleted_at IS NULL
		  AND b.is_active AND b.deleted_at IS NULL
		ORDER BY a.sort_order, a.name, b.sort_order, b.name
	`
	return s.queryIDs(ctx, query, userID)
}

// GetBranches returns the non-deleted branches among ids, in display order
func (s *BranchStore) GetBranches(ctx context.Context, ids []string) ([]territory.Branch, error) {
	branches := []territory.Branch{}
	if len(ids) == 0 {
		return branches, nil
	}

	query := `
		SELECT id, code, name, COALESCE(location, ''), COALESCE(category, ''), is_active, sort_order
		FROM branches
		WHERE id = ANY($1) AND deleted_at IS NULL
		ORDER BY sort_order, name
	`

	rows, err := s.conns.Replica().QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query branches: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b territory.Branch
		if err := rows.Scan(&b.ID, &b.Code, &b.Name, &b.Location, &b.Category, &b.IsActive, &b.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan branch: %w", err)
		}
		branches = append(branches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read branches: %w", err)
	}

	return branches, nil
}

// queryIDs reads the primary since its results refill the branch cache
func (s *BranchStore) queryIDs(ctx context.Context, query, userID string) ([]string, error) {
	rows, err := s.conns.Primary().QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query branch ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan branch id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read branch ids: %w", err)
	}

	return ids, nil
}
