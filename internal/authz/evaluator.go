package authz

import (
	"errors"

	"github.com/arkcms/authengine/internal/identity"
)

// Resource identifies the object a permission check is scoped to. A nil
// resource means a global (non-resource) check.
type Resource struct {
	Type    string
	ID      string
	OwnerID string
}

// Denial reasons reported by Check. They exist for consistent UI messaging
// only; the boolean from HasPermission is the authoritative answer.
const (
	ReasonUnauthenticated  = "unauthenticated"
	ReasonSuspended        = "suspended"
	ReasonRoleInsufficient = "role_insufficient"
	ReasonNotOwner         = "not_owner"
)

// Decision is the diagnostic result of Check.
type Decision struct {
	Allowed      bool
	Reason       string
	RequiredRole identity.Role
}

// Evaluator answers permission questions against one immutable grant table.
type Evaluator struct {
	table *Table
}

// New builds an evaluator over the given table.
func New(table *Table) (*Evaluator, error) {
	if table == nil {
		return nil, errors.New("authz: grant table is required")
	}
	return &Evaluator{table: table}, nil
}

// HasPermission decides whether the identity may perform the action named
// by perm, optionally scoped to a resource. A nil identity is evaluated as
// a guest. Suspended identities are denied unconditionally. Unknown roles
// resolve to an empty grant set.
func (e *Evaluator) HasPermission(id *identity.Identity, perm Permission, res *Resource) bool {
	role := identity.RoleGuest
	if id != nil {
		if id.Suspended() {
			return false
		}
		role = id.Role
	}
	if !e.table.RoleHasPermission(role, perm) {
		return false
	}
	if res == nil {
		return true
	}
	switch {
	case perm.OwnScoped():
		if id != nil && id.ID != "" && res.OwnerID != "" && res.OwnerID == id.ID {
			return true
		}
		// A resource without an owner fails ownership for everyone; only
		// the moderator override can still pass.
		return role.AtLeast(e.table.ModeratorRole())
	case perm.AnyScoped():
		return role.AtLeast(e.table.ModeratorRole())
	default:
		return true
	}
}

// HasAnyPermission is a short-circuiting OR over perms.
func (e *Evaluator) HasAnyPermission(id *identity.Identity, perms []Permission, res *Resource) bool {
	for _, perm := range perms {
		if e.HasPermission(id, perm, res) {
			return true
		}
	}
	return false
}

// HasAllPermissions is a short-circuiting AND over perms. An empty list is
// vacuously satisfied.
func (e *Evaluator) HasAllPermissions(id *identity.Identity, perms []Permission, res *Resource) bool {
	for _, perm := range perms {
		if !e.HasPermission(id, perm, res) {
			return false
		}
	}
	return true
}

// HasAnyRole reports whether the identity's role is one of roles. A nil
// identity carries the guest role.
func HasAnyRole(id *identity.Identity, roles ...identity.Role) bool {
	role := identity.RoleGuest
	if id != nil {
		role = id.Role
	}
	for _, candidate := range roles {
		if role == candidate {
			return true
		}
	}
	return false
}

// RoleOutranks reports whether the actor's role ranks at or above the
// target's, gating role-assignment and moderation actions. Unknown roles
// fail the comparison.
func RoleOutranks(actor, target identity.Role) bool {
	return actor.AtLeast(target)
}

// Check is the diagnostic variant of HasPermission. It computes the lowest
// role whose grant set contains the permission and a denial reason. The
// result must never be used to grant access.
func (e *Evaluator) Check(id *identity.Identity, perm Permission, res *Resource) Decision {
	if e.HasPermission(id, perm, res) {
		return Decision{Allowed: true}
	}

	d := Decision{}
	if minRole, ok := e.table.MinimumRole(perm); ok {
		d.RequiredRole = minRole
	}
	switch {
	case id == nil:
		d.Reason = ReasonUnauthenticated
	case id.Suspended():
		d.Reason = ReasonSuspended
	case !e.table.RoleHasPermission(id.Role, perm):
		d.Reason = ReasonRoleInsufficient
	default:
		// The grant itself passed, so the resource scoping failed.
		d.Reason = ReasonNotOwner
		d.RequiredRole = e.table.ModeratorRole()
	}
	return d
}
