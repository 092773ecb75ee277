// Package assignments owns the mutations that change what a user may do or
// see: permission grants and branch/area assignments.
//
// Every mutation writes to the store first and then invalidates the caches it
// affects. User grants drop user:{id}:permissions, user territory changes drop
// user:{id}:branches, and area membership changes drop every user's branch
// set. A crash between the two steps leaves stale entries until their TTL
// expires.
package assignments
