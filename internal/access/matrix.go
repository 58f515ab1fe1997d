// Package access implements the role/permission matrix that gates every
// mutating operation. Lookups are pure: no I/O, deny by default.
package access

import "strings"

// Role is the coarse authorization tier assigned to an account.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleUser      Role = "user"
)

// Category names a resource family the matrix knows about.
type Category string

const (
	CategoryContent  Category = "content"
	CategoryComments Category = "comments"
	CategoryAccounts Category = "accounts"
	CategorySystem   Category = "system"
)

// Action names an operation on a resource category.
type Action string

const (
	ActionCreate    Action = "create"
	ActionRead      Action = "read"
	ActionEdit      Action = "edit"
	ActionEditAny   Action = "editAny"
	ActionDelete    Action = "delete"
	ActionDeleteAny Action = "deleteAny"
	ActionReview    Action = "review"
	ActionManage    Action = "manage"
	ActionAssign    Action = "assign"
	ActionBan       Action = "ban"
	ActionSettings  Action = "settings"
)

// Overrides is a per-account grant/denial map layered over role defaults,
// keyed "category.action".
type Overrides map[string]bool

// Key builds the override key for a (category, action) pair.
func Key(category Category, action Action) string {
	return string(category) + "." + string(action)
}

// ownActions is the subset every authenticated role may perform on its own
// resources.
var ownActions = map[Action]struct{}{
	ActionCreate: {},
	ActionRead:   {},
	ActionEdit:   {},
	ActionDelete: {},
}

// matrix holds non-admin role defaults beyond the own-resource subset.
// Built once; override merge happens at lookup time.
var matrix = map[Role]map[string]bool{
	RoleModerator: {
		Key(CategoryContent, ActionReview):     true,
		Key(CategoryComments, ActionDeleteAny): true,
	},
}

// ParseRole normalizes a stored role value. Unknown roles map to the empty
// Role, which the matrix denies everything.
func ParseRole(raw string) Role {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleModerator:
		return RoleModerator
	case RoleUser:
		return RoleUser
	default:
		return ""
	}
}

// Allowed resolves (role, category, action) against role defaults with the
// account's overrides merged on top. Admin is authorized unconditionally.
// Unknown roles, categories, and actions are denied.
func Allowed(role Role, category Category, action Action, overrides Overrides) bool {
	if role == RoleAdmin {
		return true
	}
	if v, ok := overrides[Key(category, action)]; ok {
		return v
	}
	if !knownCategory(category) || !knownAction(action) {
		return false
	}
	switch role {
	case RoleModerator, RoleUser:
	default:
		return false
	}
	if category == CategorySystem {
		return false
	}
	if _, ok := ownActions[action]; ok {
		return true
	}
	return matrix[role][Key(category, action)]
}

func knownCategory(c Category) bool {
	switch c {
	case CategoryContent, CategoryComments, CategoryAccounts, CategorySystem:
		return true
	}
	return false
}

func knownAction(a Action) bool {
	switch a {
	case ActionCreate, ActionRead, ActionEdit, ActionEditAny, ActionDelete,
		ActionDeleteAny, ActionReview, ActionManage, ActionAssign, ActionBan,
		ActionSettings:
		return true
	}
	return false
}
