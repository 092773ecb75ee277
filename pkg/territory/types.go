package territory

// AccessScope classifies how far a user's client visibility reaches
type AccessScope string

const (
	ScopeAll       AccessScope = "all"       // no branch restriction
	ScopeTerritory AccessScope = "territory" // restricted to BranchIDs
	ScopeNone      AccessScope = "none"      // no visibility
)

// Filter is the derived branch restriction for a user. It is never stored.
type Filter struct {
	Scope     AccessScope `json:"scope"`
	BranchIDs []string    `json:"branch_ids"`
}

// Contains reports whether branchID passes the filter
func (f Filter) Contains(branchID string) bool {
	switch f.Scope {
	case ScopeAll:
		return true
	case ScopeTerritory:
		for _, id := range f.BranchIDs {
			if id == branchID {
				return true
			}
		}
	}
	return false
}

// Apply keeps the candidates that pass the filter, in input order
func (f Filter) Apply(candidates []string) []string {
	switch f.Scope {
	case ScopeAll:
		return candidates
	case ScopeTerritory:
		allowed := make(map[string]struct{}, len(f.BranchIDs))
		for _, id := range f.BranchIDs {
			allowed[id] = struct{}{}
		}
		out := make([]string, 0, len(candidates))
		for _, id := range candidates {
			if _, ok := allowed[id]; ok {
				out = append(out, id)
			}
		}
		return out
	default:
		return []string{}
	}
}

// AllPattern matches every user's cached branch set
const AllPattern = "user:*:branches"

// BranchesKey is the cache key holding a user's effective branch ids
func BranchesKey(userID string) string {
	return "user:" + userID + ":branches"
}

// Branch is an organizational unit clients are attached to
type Branch struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Location  string `json:"location,omitempty"`
	Category  string `json:"category,omitempty"`
	IsActive  bool   `json:"is_active"`
	SortOrder int    `json:"sort_order"`
}
