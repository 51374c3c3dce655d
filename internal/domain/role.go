package domain

import "fmt"

// Role is the privilege level attached to a user account.
type Role string

const (
	RoleNone       Role = ""
	RoleAdmin      Role = "Admin"
	RoleSuperAdmin Role = "SuperAdmin"
)

// InvitableRoles lists the roles an invite token may grant.
var InvitableRoles = []Role{RoleAdmin, RoleSuperAdmin}

// IsValid reports whether r is one of the invitable roles.
func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// ParseRole converts a wire value into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return RoleNone, fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
