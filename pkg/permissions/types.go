package permissions

import (
	"fmt"
	"strings"
)

// Scope is the breadth of a permission grant. Values are ordered so that a
// larger rank always means broader access.
type Scope int

const (
	ScopeNone   Scope = 0 // no matching grant
	ScopeSelf   Scope = 1 // records the user owns
	ScopeBranch Scope = 2 // records in the user's branches
	ScopeArea   Scope = 3 // records in the user's areas
	ScopeAll    Scope = 4 // every record in the company
)

var scopeNames = map[Scope]string{
	ScopeSelf:   "self",
	ScopeBranch: "branch",
	ScopeArea:   "area",
	ScopeAll:    "all",
}

// Rank returns the position of s in the scope order
func (s Scope) Rank() int {
	if _, ok := scopeNames[s]; !ok {
		return 0
	}
	return int(s)
}

// Broader reports whether s grants strictly more than other
func (s Scope) Broader(other Scope) bool {
	return s.Rank() > other.Rank()
}

// Valid reports whether s is one of the four grantable scopes
func (s Scope) Valid() bool {
	return s.Rank() > 0
}

func (s Scope) String() string {
	if name, ok := scopeNames[s]; ok {
		return name
	}
	return "none"
}

// ParseScope converts the stored lower-case name into a Scope
func ParseScope(name string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "self":
		return ScopeSelf, nil
	case "branch":
		return ScopeBranch, nil
	case "area":
		return ScopeArea, nil
	case "all":
		return ScopeAll, nil
	default:
		return ScopeNone, fmt.Errorf("unknown scope %q", name)
	}
}

// MarshalText encodes the scope by name so cached sets stay readable by
// other tooling that shares the key namespace.
func (s Scope) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a scope name
func (s *Scope) UnmarshalText(text []byte) error {
	if string(text) == "none" {
		*s = ScopeNone
		return nil
	}
	parsed, err := ParseScope(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Permission identifies a capability on a resource
type Permission struct {
	ID          string `json:"id" yaml:"id,omitempty"`
	Code        string `json:"code" yaml:"code"`
	Resource    string `json:"resource" yaml:"resource"`
	Action      string `json:"action" yaml:"action"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// CachedPermission is one entry of a user's materialized permission set
type CachedPermission struct {
	Permission Permission `json:"permission"`
	Scope      Scope      `json:"scope"`
	CompanyID  string     `json:"company_id"`
}

// Matches reports whether the entry covers resource/action in companyID.
// An empty companyID matches every company.
func (p CachedPermission) Matches(resource, action, companyID string) bool {
	return p.Permission.Resource == resource &&
		p.Permission.Action == action &&
		p.inCompany(companyID)
}

func (p CachedPermission) inCompany(companyID string) bool {
	return companyID == "" || p.CompanyID == companyID
}

// Grant is a user's holding of a permission within a company
type Grant struct {
	UserID         string `json:"user_id"`
	PermissionCode string `json:"permission_code"`
	CompanyID      string `json:"company_id"`
	Scope          Scope  `json:"scope"`
}

// AccessContext describes the record being acted on. A nil *AccessContext
// means the caller has no record context.
type AccessContext struct {
	BranchIDs       []string `json:"branch_ids,omitempty"`
	AreaIDs         []string `json:"area_ids,omitempty"`
	ResourceOwnerID string   `json:"resource_owner_id,omitempty"`

	// Only consulted with StrictScopeContext enabled
	ResourceBranchID string `json:"resource_branch_id,omitempty"`
	ResourceAreaID   string `json:"resource_area_id,omitempty"`
}

// Decision is the outcome of a permission evaluation
type Decision struct {
	Allowed bool   `json:"allowed"`
	Scope   Scope  `json:"scope"`
	Reason  string `json:"reason"`
}
