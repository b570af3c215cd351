// Package rbac implements the authorization core: the pure permission
// evaluator, the shared route-to-resource mapping and the session-scoped
// permission cache. Everything request-facing (the route guard middleware,
// the access endpoint) delegates its decisions to this package so the server
// and the admin UI can never disagree on what a role may do.
package rbac

import "fmt"

// SuperuserRole is the reserved role name that passes every check
// unconditionally, regardless of stored permission rows.
const SuperuserRole = "admin"

// Action is one of the four CRUD capabilities a permission row can grant.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ParseAction validates a raw action string from a query parameter or payload.
func ParseAction(s string) (Action, bool) {
	switch Action(s) {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete:
		return Action(s), true
	}
	return "", false
}

// ActionForMethod maps an HTTP method to the CRUD action it implies.
func ActionForMethod(method string) Action {
	switch method {
	case "POST":
		return ActionCreate
	case "PUT", "PATCH":
		return ActionUpdate
	case "DELETE":
		return ActionDelete
	default: // GET, HEAD, OPTIONS
		return ActionRead
	}
}

// Flags holds the four independent CRUD booleans for one resource.
type Flags struct {
	Create bool `json:"create"`
	Read   bool `json:"read"`
	Update bool `json:"update"`
	Delete bool `json:"delete"`
}

// Allows returns the single flag matching the action. Each flag is checked
// independently: read never implies create, update or delete.
func (f Flags) Allows(a Action) bool {
	switch a {
	case ActionCreate:
		return f.Create
	case ActionRead:
		return f.Read
	case ActionUpdate:
		return f.Update
	case ActionDelete:
		return f.Delete
	}
	return false
}

// AllowAll is the flag set granted implicitly to the superuser role.
var AllowAll = Flags{Create: true, Read: true, Update: true, Delete: true}

// PermissionMap is the derived lookup from resource code to CRUD flags for
// one role. A missing entry is equivalent to all four flags false.
type PermissionMap map[string]Flags

// Decision is the outcome of an authorization check. Reason is a
// human-readable explanation for UI and audit purposes only; security
// decisions must rely on Allowed alone.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(format string, args ...interface{}) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// Evaluate decides whether a role may perform an action on a resource.
//
// Rule order:
//  1. The superuser role passes unconditionally, before any map lookup.
//  2. A resource absent from the map is denied (default-deny).
//  3. Otherwise the single flag for the requested action decides.
//
// A denial is a normal result, never an error. Errors are reserved for
// upstream failures (session resolution, permission store reads) and are
// handled before this function is reached.
func Evaluate(roleName, resourceCode string, action Action, perms PermissionMap) Decision {
	if roleName == SuperuserRole {
		return allow()
	}
	if roleName == "" {
		return deny("no role assigned")
	}
	flags, ok := perms[resourceCode]
	if !ok {
		return deny("role %q has no permissions on %q", roleName, resourceCode)
	}
	if !flags.Allows(action) {
		return deny("role %q may not %s %q", roleName, action, resourceCode)
	}
	return allow()
}
