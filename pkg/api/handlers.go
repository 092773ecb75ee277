package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/caseboard/pkg/assignments"
	"github.com/platinummonkey/caseboard/pkg/contextkeys"
	"github.com/platinummonkey/caseboard/pkg/httputil"
	"github.com/platinummonkey/caseboard/pkg/observability"
	"github.com/platinummonkey/caseboard/pkg/permissions"
	"github.com/platinummonkey/caseboard/pkg/territory"
)

// PermissionsResponse lists the caller's permission set in their company
type PermissionsResponse struct {
	UserID      string                         `json:"user_id"`
	CompanyID   string                         `json:"company_id"`
	Permissions []permissions.CachedPermission `json:"permissions"`
}

// CheckRequest asks for a decision on resource:action
type CheckRequest struct {
	Resource string                     `json:"resource"`
	Action   string                     `json:"action"`
	Context  *permissions.AccessContext `json:"context,omitempty"`
}

// TerritoryResponse is the caller's territory filter, with branch details
// when a directory is configured and the scope is territory.
type TerritoryResponse struct {
	territory.Filter
	Branches []territory.Branch `json:"branches,omitempty"`
}

// FilterRequest carries candidate branch ids to filter
type FilterRequest struct {
	BranchIDs []string `json:"branch_ids"`
}

// FilterResponse carries the branch ids that passed the filter
type FilterResponse struct {
	BranchIDs []string `json:"branch_ids"`
}

// BranchAccessResponse confirms access to one branch
type BranchAccessResponse struct {
	BranchID string `json:"branch_id"`
	Allowed  bool   `json:"allowed"`
}

// GrantRequest names a permission to grant or revoke. CompanyID defaults to
// the caller's company.
type GrantRequest struct {
	PermissionCode string            `json:"permission_code"`
	CompanyID      string            `json:"company_id,omitempty"`
	Scope          permissions.Scope `json:"scope"`
}

// InvalidateRequest targets one user, or every user when UserID is empty
type InvalidateRequest struct {
	UserID string `json:"user_id,omitempty"`
}

func (s *Server) getMyPermissions(w http.ResponseWriter, r *http.Request) {
	userID, companyID := contextkeys.GetIdentity(r.Context())

	perms, err := s.deps.Permissions.GetCachedPermissions(r.Context(), userID, companyID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, PermissionsResponse{
		UserID:      userID,
		CompanyID:   companyID,
		Permissions: perms,
	})
}

func (s *Server) checkAccess(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Resource, "resource") ||
		!httputil.RequireNonEmpty(w, req.Action, "action") {
		return
	}

	userID, companyID := contextkeys.GetIdentity(r.Context())
	decision := s.deps.Permissions.Evaluate(r.Context(), userID, companyID, req.Resource, req.Action, req.Context)
	httputil.WriteSuccess(w, decision)
}

func (s *Server) getMyTerritory(w http.ResponseWriter, r *http.Request) {
	userID, companyID := contextkeys.GetIdentity(r.Context())

	filter, err := s.deps.Territory.GetUserBranchFilter(r.Context(), userID, companyID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := TerritoryResponse{Filter: filter}
	if s.deps.Branches != nil && filter.Scope == territory.ScopeTerritory {
		branches, err := s.deps.Branches.GetBranches(r.Context(), filter.BranchIDs)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		resp.Branches = branches
	}

	httputil.WriteSuccess(w, resp)
}

func (s *Server) filterTerritory(w http.ResponseWriter, r *http.Request) {
	var req FilterRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	userID, companyID := contextkeys.GetIdentity(r.Context())
	ids, err := s.deps.Territory.FilterClientsByTerritory(r.Context(), userID, companyID, req.BranchIDs)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}

	httputil.WriteSuccess(w, FilterResponse{BranchIDs: ids})
}

// getBranchAccess runs behind RequireBranchAccess, so reaching it means
// the branch is in the caller's territory.
func (s *Server) getBranchAccess(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, BranchAccessResponse{
		BranchID: mux.Vars(r)["branchID"],
		Allowed:  true,
	})
}

func (s *Server) grantPermission(w http.ResponseWriter, r *http.Request) {
	grant, ok := s.parseGrant(w, r)
	if !ok {
		return
	}
	if err := s.deps.Assignments.GrantPermission(r.Context(), grant); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, grant)
}

func (s *Server) revokePermission(w http.ResponseWriter, r *http.Request) {
	grant, ok := s.parseGrant(w, r)
	if !ok {
		return
	}
	if err := s.deps.Assignments.RevokePermission(r.Context(), grant); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) parseGrant(w http.ResponseWriter, r *http.Request) (permissions.Grant, bool) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "userID")
	if !ok {
		return permissions.Grant{}, false
	}

	var req GrantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return permissions.Grant{}, false
	}
	if req.CompanyID == "" {
		req.CompanyID = contextkeys.GetCompanyID(r.Context())
	}

	return permissions.Grant{
		UserID:         userID,
		PermissionCode: strings.TrimSpace(req.PermissionCode),
		CompanyID:      req.CompanyID,
		Scope:          req.Scope,
	}, true
}

func (s *Server) assignUserToBranch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.writeMutation(w, r, s.deps.Assignments.AssignUserToBranch(r.Context(), vars["userID"], vars["branchID"]))
}

func (s *Server) unassignUserFromBranch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.writeMutation(w, r, s.deps.Assignments.UnassignUserFromBranch(r.Context(), vars["userID"], vars["branchID"]))
}

func (s *Server) assignUserToArea(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.writeMutation(w, r, s.deps.Assignments.AssignUserToArea(r.Context(), vars["userID"], vars["areaID"]))
}

func (s *Server) unassignUserFromArea(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.writeMutation(w, r, s.deps.Assignments.UnassignUserFromArea(r.Context(), vars["userID"], vars["areaID"]))
}

func (s *Server) assignBranchToArea(w http.ResponseWriter, r *http.Request) {
	isPrimary, err := httputil.ParseQueryBool(r, "isPrimary", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	vars := mux.Vars(r)
	s.writeMutation(w, r, s.deps.Assignments.AssignBranchToArea(r.Context(), vars["areaID"], vars["branchID"], isPrimary))
}

func (s *Server) removeBranchFromArea(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.writeMutation(w, r, s.deps.Assignments.RemoveBranchFromArea(r.Context(), vars["areaID"], vars["branchID"]))
}

func (s *Server) setPrimaryBranch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.writeMutation(w, r, s.deps.Assignments.SetPrimaryBranch(r.Context(), vars["areaID"], vars["branchID"]))
}

func (s *Server) invalidateCaches(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if !httputil.ParseOptionalJSONOrError(w, r, &req) {
		return
	}

	s.deps.Assignments.InvalidateCaches(r.Context(), req.UserID)
	httputil.WriteNoContent(w)
}

func (s *Server) writeMutation(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// writeServiceError maps domain errors to the envelope. Anything unmapped is
// logged and reported as a bare 500.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, assignments.ErrNotFound):
		httputil.WriteNotFound(w, err.Error())
	case errors.Is(err, assignments.ErrInvalidScope), errors.Is(err, assignments.ErrInvalidArgument):
		httputil.WriteBadRequest(w, err.Error())
	default:
		observability.FromContext(r.Context(), s.log).WithError(err).
			WithField("path", r.URL.Path).
			Error("Request failed")
		httputil.WriteInternalError(w)
	}
}
