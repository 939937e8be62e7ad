package domain

// Role constants define the allowed user roles. The first account
// registered on an installation becomes the admin.
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// ValidRoles returns the set of valid user roles.
func ValidRoles() []string {
	return []string{RoleAdmin, RoleUser}
}

// IsValidRole checks whether the given role string is a valid user role.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// RoleForNewUser returns the role of the next registered account given how
// many accounts already exist.
func RoleForNewUser(existing int) string {
	if existing == 0 {
		return RoleAdmin
	}
	return RoleUser
}
