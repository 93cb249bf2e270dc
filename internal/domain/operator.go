package domain

import "time"

// Role enumerates the actors that drive the queue.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleReception Role = "reception"
	RoleModule    Role = "module"
	RoleDisplay   Role = "display"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleReception, RoleModule, RoleDisplay:
		return true
	}
	return false
}

// Operator is a login bound to one role. Module operators are also bound to
// the single module they run.
type Operator struct {
	ID           string
	Username     string
	DisplayName  string
	PasswordHash string
	Role         Role
	ModuleID     *int
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanOperate reports whether the operator may drive module id.
func (o *Operator) CanOperate(moduleID int) bool {
	if o == nil || !o.Active {
		return false
	}
	switch o.Role {
	case RoleAdmin:
		return true
	case RoleModule:
		return o.ModuleID != nil && *o.ModuleID == moduleID
	}
	return false
}
