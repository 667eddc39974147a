package permission

import (
	"context"

	"collabtext/internal/apperr"
	"collabtext/internal/document"
	"collabtext/internal/store"
)

// GetDocumentWithAccess loads the document and checks userID's role
// against required. It returns apperr.NotFound if the document is absent
// and apperr.Forbidden if the role is insufficient.
func GetDocumentWithAccess(ctx context.Context, docs store.DocumentStore, documentID, userID string, required Required) (*document.Record, Role, error) {
	rec, err := docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, RoleNone, err
	}

	role := Resolve(rec, userID)
	if !Satisfies(role, required) {
		return nil, role, apperr.New(apperr.Forbidden, "insufficient role for requested access")
	}

	return rec, role, nil
}
