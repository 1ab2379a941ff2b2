package rbac

import "strings"

type Role string
type Action string

const (
	RoleNone     Role = ""
	RoleReviewer Role = "reviewer"
	RoleEditor   Role = "editor"
)

const (
	ActionRead   Action = "read"
	ActionReview Action = "review"
	ActionEdit   Action = "edit"
)

// legacyReviewer is how older secrets files name the reviewer role.
const legacyReviewer = "proofreader"

func Can(role Role, action Action) bool {
	switch role {
	case RoleEditor:
		return action == ActionRead || action == ActionEdit
	case RoleReviewer:
		return action == ActionRead || action == ActionReview
	default:
		return false
	}
}

// Normalize maps a configured role name to a Role. Unrecognized names become
// RoleNone, which is allowed nothing.
func Normalize(role string) Role {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case string(RoleReviewer), legacyReviewer:
		return RoleReviewer
	case string(RoleEditor):
		return RoleEditor
	default:
		return RoleNone
	}
}

// Known reports whether role normalizes to a real role.
func Known(role string) bool {
	return Normalize(role) != RoleNone
}
