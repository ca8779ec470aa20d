package rbac

type Role string

const (
	RoleStaff Role = "staff"
	RoleAdmin Role = "admin"
)

// Normalize maps unknown or empty role strings to staff, the least
// privileged role.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleStaff, RoleAdmin:
		return Role(role)
	default:
		return RoleStaff
	}
}

// CanEditItem reports whether the actor may save field edits for an item.
// Admins edit anything; staff edit only items they are PIC of.
func CanEditItem(role Role, actorEmail, picEmail string) bool {
	if role == RoleAdmin {
		return true
	}
	return actorEmail != "" && actorEmail == picEmail
}

// CanAssignPIC reports whether the actor may set the person-in-charge to
// someone other than themselves.
func CanAssignPIC(role Role) bool {
	return role == RoleAdmin
}
