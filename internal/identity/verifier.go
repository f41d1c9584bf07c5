package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Verification failures surfaced to callers.
var (
	ErrTokenMissing = errors.New("identity: missing bearer token")
	ErrTokenInvalid = errors.New("identity: invalid token")
)

// Verifier validates bearer tokens against the identity provider's signing
// secret and extracts the identity assertion.
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewVerifier constructs a Verifier. An empty issuer disables the iss check.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, leeway: 30 * time.Second}
}

// Verify parses and validates a raw token, returning the identity assertion.
func (v *Verifier) Verify(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, ErrTokenMissing
	}

	keyfunc := func(t *jwtv5.Token) (any, error) {
		return v.secret, nil
	}
	opts := []jwtv5.ParserOption{
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithLeeway(v.leeway),
		jwtv5.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwtv5.WithIssuer(v.issuer))
	}

	tok, err := jwtv5.Parse(raw, keyfunc, opts...)
	if err != nil || !tok.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return Identity{}, ErrTokenInvalid
	}

	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	if sub == "" || email == "" {
		return Identity{}, fmt.Errorf("%w: subject and email claims required", ErrTokenInvalid)
	}

	ident := Identity{Subject: sub, Email: email}
	if expf, ok := claims["exp"].(float64); ok {
		ident.ExpiresAt = time.Unix(int64(expf), 0)
	}
	return ident, nil
}
