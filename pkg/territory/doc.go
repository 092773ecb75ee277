// Package territory computes which branches a user may see.
//
// A user's territory is the union of branches assigned to them directly and
// branches reachable through their areas, deduplicated with direct branches
// first. The set is cached under user:{id}:branches.
//
// GetUserBranchFilter classifies access into three scopes:
//
//	all       the user holds clients:read, no branch restriction
//	territory the user is limited to Filter.BranchIDs
//	none      the user sees nothing
//
// Unlike permission checks, territory lookups return cache and store errors
// to the caller, which decides how to respond.
package territory
