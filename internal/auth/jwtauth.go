package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"collabtext/internal/apperr"
)

// claims is the HS256 payload minted by JWTVerifier.Issue and consumed by
// VerifyCredential.
type claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// JWTVerifier is the default Verifier: HS256 tokens signed with a shared
// secret, expiring after a configured duration.
type JWTVerifier struct {
	secret    []byte
	expiresIn time.Duration
}

// NewJWTVerifier builds a verifier around secret with the given token
// lifetime.
func NewJWTVerifier(secret string, expiresIn time.Duration) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), expiresIn: expiresIn}
}

// Issue mints a token for identity, for local development and tests
// that need a token to hand to the session layer. There is no HTTP
// login/register surface here; a real deployment brings its own issuer.
func (v *JWTVerifier) Issue(identity Identity) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID:   identity.UserID,
		Username: identity.Username,
		Email:    identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.expiresIn)),
		},
	})
	return tok.SignedString(v.secret)
}

func (v *JWTVerifier) VerifyCredential(_ context.Context, token string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, apperr.Wrap(apperr.Auth, "invalid or expired credential", err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || c.UserID == "" {
		return Identity{}, apperr.New(apperr.Auth, "credential missing subject")
	}

	return Identity{UserID: c.UserID, Username: c.Username, Email: c.Email}, nil
}

var _ Verifier = (*JWTVerifier)(nil)
