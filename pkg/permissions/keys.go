package permissions

// AllPermissionsPattern matches every user's cached permission set
const AllPermissionsPattern = "user:*:permissions"

// PermissionsKey is the cache key holding a user's permission set
func PermissionsKey(userID string) string {
	return "user:" + userID + ":permissions"
}
