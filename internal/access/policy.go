package access

import (
	"strings"

	"ecowatch.org/internal/domain"
)

// Operation is the kind of access being requested.
type Operation string

const (
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
)

func (o Operation) write() bool { return o == OpCreate || o == OpUpdate }

// Entity names the resource families guarded by the policy.
type Entity string

const (
	EntityUser   Entity = "user"
	EntityZone   Entity = "zone"
	EntitySensor Entity = "sensor"
	EntityAction Entity = "action"
)

// Actor is the authenticated caller supplied by the API boundary.
type Actor struct {
	UserID string
	Role   domain.Role
}

// Valid reports whether the actor carries a known role and a user id.
func (a Actor) Valid() bool {
	return strings.TrimSpace(a.UserID) != "" && a.Role.Valid()
}

// Target describes the resource an operation is aimed at. OwnerID is the
// assignee for actions; CreatorID is the creating user.
type Target struct {
	Entity    Entity
	OwnerID   string
	CreatorID string
}

// Decision is the outcome of a policy evaluation.
type Decision bool

const (
	Deny  Decision = false
	Allow Decision = true
)

// Authorize evaluates the role policy for actor performing op on target.
//
//   - admin: everything.
//   - government: read everything; write zones and actions.
//   - factory: read everything; write actions it created or is assigned to.
//   - public: read only.
func Authorize(actor Actor, op Operation, target Target) Decision {
	if !actor.Valid() {
		return Deny
	}
	if op == OpRead {
		return Allow
	}
	if !op.write() {
		return Deny
	}
	switch actor.Role {
	case domain.RoleAdmin:
		return Allow
	case domain.RoleGovernment:
		return Decision(target.Entity == EntityZone || target.Entity == EntityAction)
	case domain.RoleFactory:
		if target.Entity != EntityAction {
			return Deny
		}
		return Decision(actor.UserID == target.OwnerID || actor.UserID == target.CreatorID)
	}
	return Deny
}

// CanEverWrite reports whether role could be allowed to write entity for
// some target. Callers use it to deny before looking a resource up.
func CanEverWrite(role domain.Role, entity Entity) bool {
	switch role {
	case domain.RoleAdmin:
		return true
	case domain.RoleGovernment:
		return entity == EntityZone || entity == EntityAction
	case domain.RoleFactory:
		return entity == EntityAction
	}
	return false
}

// Conditional reports whether role's write access to entity depends on
// ownership of the individual row.
func Conditional(role domain.Role, entity Entity) bool {
	return role == domain.RoleFactory && entity == EntityAction
}
