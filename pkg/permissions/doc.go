// Package permissions decides whether a user may perform an action on a
// resource within a company.
//
// Grants carry a Scope (self < branch < area < all). When a user holds several
// grants for the same resource and action, the broadest one decides:
//
//	engine := permissions.NewEngine(store, redisCache, permissions.Config{}, logger, metrics)
//	ok := engine.HasPermission(ctx, userID, companyID, "clients", "write",
//		&permissions.AccessContext{BranchIDs: []string{"b1"}})
//
// The engine reads through the cache under user:{id}:permissions. Permission
// checks fail closed: any lookup error yields a denial. Callers that mutate
// grants must call InvalidateUserPermissions afterwards.
//
// Branch and area grants do not check that the record is inside the user's
// territory unless Config.StrictScopeContext is set. Row-level filtering
// belongs to pkg/territory.
package permissions
