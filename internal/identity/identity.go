package identity

import "strings"

// Role is an ordered rank in the fixed role hierarchy. Higher ranks imply a
// superset of the default grants of every lower rank.
type Role string

const (
	RoleGuest      Role = "guest"
	RoleReader     Role = "reader"
	RoleAuthor     Role = "author"
	RoleEditor     Role = "editor"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

var roleRanks = map[Role]int{
	RoleGuest:      0,
	RoleReader:     1,
	RoleAuthor:     2,
	RoleEditor:     3,
	RoleAdmin:      4,
	RoleSuperAdmin: 5,
}

// Roles lists every known role in ascending rank order.
func Roles() []Role {
	return []Role{RoleGuest, RoleReader, RoleAuthor, RoleEditor, RoleAdmin, RoleSuperAdmin}
}

// ParseRole normalizes a raw role string. Unknown values are returned
// normalized but unranked; they resolve to an empty grant set downstream.
func ParseRole(raw string) Role {
	return Role(strings.TrimSpace(strings.ToLower(raw)))
}

// Rank returns the position of the role in the hierarchy, or -1 when the
// role is unknown.
func (r Role) Rank() int {
	rank, ok := roleRanks[r]
	if !ok {
		return -1
	}
	return rank
}

// Known reports whether the role is part of the hierarchy.
func (r Role) Known() bool {
	_, ok := roleRanks[r]
	return ok
}

// AtLeast reports whether r ranks at or above other. Unknown roles never
// satisfy the comparison.
func (r Role) AtLeast(other Role) bool {
	if !r.Known() || !other.Known() {
		return false
	}
	return r.Rank() >= other.Rank()
}

const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// Identity is an immutable snapshot of the authenticated user. It is
// replaced wholesale on refresh of user data, never mutated field by field.
type Identity struct {
	ID         string            `json:"id"`
	Email      string            `json:"email"`
	Username   string            `json:"username"`
	Role       Role              `json:"role"`
	Status     string            `json:"status"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Suspended reports whether the account is disabled. Suspended identities
// fail every permission check unconditionally.
func (i Identity) Suspended() bool {
	return strings.EqualFold(strings.TrimSpace(i.Status), StatusSuspended)
}
