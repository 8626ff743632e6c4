package enums

import "fmt"

// ClientRole identifies who is acting: a customer, a service partner or an operator.
type ClientRole string

const (
	RoleUser    ClientRole = "user"
	RolePartner ClientRole = "partner"
	RoleAdmin   ClientRole = "admin"
)

var validClientRoles = []ClientRole{
	RoleUser,
	RolePartner,
	RoleAdmin,
}

// String implements fmt.Stringer.
func (r ClientRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ClientRole.
func (r ClientRole) IsValid() bool {
	for _, candidate := range validClientRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseClientRole converts raw input into a ClientRole.
func ParseClientRole(value string) (ClientRole, error) {
	for _, candidate := range validClientRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid client role %q", value)
}
