package authz

// Role names as stored on organization memberships.
const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
	RoleOwner  = "owner"
)

var hierarchy = map[string]int{
	RoleViewer: 1,
	RoleEditor: 2,
	RoleAdmin:  3,
	RoleOwner:  4,
}

// Level returns the privilege level of role. Unknown roles are 0.
func Level(role string) int {
	return hierarchy[role]
}

// Meets reports whether a member holding user may act as required.
func Meets(user, required string) bool {
	return Level(user) >= Level(required)
}

// Valid reports whether role is one of the assignable roles.
func Valid(role string) bool {
	return Level(role) > 0
}
