// Package auth defines the Verifier collaborator interface the session
// layer calls at handshake, plus a default JWT implementation so the
// server runs standalone.
package auth

import "context"

// Identity is the resolved principal behind a verified credential.
type Identity struct {
	UserID   string
	Username string
	Email    string
}

// Verifier resolves an opaque bearer credential to an Identity.
type Verifier interface {
	VerifyCredential(ctx context.Context, token string) (Identity, error)
}
