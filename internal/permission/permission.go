// Package permission resolves a user's role and capabilities against a
// document record. The resolver is re-consulted on every edit operation,
// not just at join, since roles may change mid-session.
package permission

import "collabtext/internal/document"

// Role is the resolved access level for a user on a document.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleEditor     Role = "editor"
	RoleCommenter  Role = "commenter"
	RoleViewer     Role = "viewer"
	RoleNone       Role = "none"
)

// Capabilities derives the boolean permissions implied by a Role.
type Capabilities struct {
	CanRead    bool
	CanEdit    bool
	CanShare   bool
	CanDelete  bool
	CanRestore bool
}

// Required is the access level GetDocumentWithAccess checks for.
type Required string

const (
	RequireRead  Required = "read"
	RequireEdit  Required = "edit"
	RequireOwner Required = "owner"
)

// Resolve returns the role userID holds on rec.
func Resolve(rec *document.Record, userID string) Role {
	if rec.Owner == userID {
		return RoleOwner
	}
	if share, ok := rec.Shares[userID]; ok {
		switch share {
		case document.RoleEditor:
			return RoleEditor
		case document.RoleCommenter:
			return RoleCommenter
		case document.RoleViewer:
			return RoleViewer
		}
	}
	return RoleNone
}

// CapabilitiesFor derives the capability set for a role.
func CapabilitiesFor(role Role) Capabilities {
	canRead := role == RoleOwner || role == RoleEditor || role == RoleCommenter || role == RoleViewer
	canEdit := role == RoleOwner || role == RoleEditor
	canOwnerOnly := role == RoleOwner

	return Capabilities{
		CanRead:    canRead,
		CanEdit:    canEdit,
		CanShare:   canOwnerOnly,
		CanDelete:  canOwnerOnly,
		CanRestore: canOwnerOnly,
	}
}

// Satisfies reports whether role meets the required access level.
func Satisfies(role Role, required Required) bool {
	caps := CapabilitiesFor(role)
	switch required {
	case RequireRead:
		return caps.CanRead
	case RequireEdit:
		return caps.CanEdit
	case RequireOwner:
		return role == RoleOwner
	default:
		return false
	}
}
