package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, method jwtv5.SigningMethod, claims jwtv5.MapClaims) string {
	t.Helper()
	raw, err := jwtv5.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func validClaims() jwtv5.MapClaims {
	return jwtv5.MapClaims{
		"sub":   "user-123",
		"email": "alice@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
}

func TestVerify(t *testing.T) {
	v := NewVerifier(testSecret, "")

	ident, err := v.Verify(signToken(t, testSecret, jwtv5.SigningMethodHS256, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "user-123", ident.Subject)
	assert.Equal(t, "alice@example.com", ident.Email)
	assert.WithinDuration(t, time.Now().Add(time.Hour), ident.ExpiresAt, 5*time.Second)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	v := NewVerifier(testSecret, "")

	_, err := v.Verify(signToken(t, "other-secret", jwtv5.SigningMethodHS256, validClaims()))
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRejectsWrongMethod(t *testing.T) {
	v := NewVerifier(testSecret, "")

	_, err := v.Verify(signToken(t, testSecret, jwtv5.SigningMethodHS512, validClaims()))
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRejectsExpired(t *testing.T) {
	v := NewVerifier(testSecret, "")

	claims := validClaims()
	claims["exp"] = time.Now().Add(-time.Hour).Unix()
	_, err := v.Verify(signToken(t, testSecret, jwtv5.SigningMethodHS256, claims))
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRequiresExpiry(t *testing.T) {
	v := NewVerifier(testSecret, "")

	claims := validClaims()
	delete(claims, "exp")
	_, err := v.Verify(signToken(t, testSecret, jwtv5.SigningMethodHS256, claims))
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRequiresSubjectAndEmail(t *testing.T) {
	v := NewVerifier(testSecret, "")

	claims := validClaims()
	delete(claims, "email")
	_, err := v.Verify(signToken(t, testSecret, jwtv5.SigningMethodHS256, claims))
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyIssuerCheck(t *testing.T) {
	v := NewVerifier(testSecret, "sheetgate-idp")

	claims := validClaims()
	claims["iss"] = "sheetgate-idp"
	_, err := v.Verify(signToken(t, testSecret, jwtv5.SigningMethodHS256, claims))
	assert.NoError(t, err)

	claims["iss"] = "someone-else"
	_, err = v.Verify(signToken(t, testSecret, jwtv5.SigningMethodHS256, claims))
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyEmptyToken(t *testing.T) {
	v := NewVerifier(testSecret, "")

	_, err := v.Verify("  ")
	assert.ErrorIs(t, err, ErrTokenMissing)
}

func TestMiddlewareRequire(t *testing.T) {
	v := NewVerifier(testSecret, "")
	mw := Middleware{Verifier: v}

	var got Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, ok := FromContext(r.Context())
		require.True(t, ok)
		got = ident
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/roles", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwtv5.SigningMethodHS256, validClaims()))
	rec := httptest.NewRecorder()
	mw.Require(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-123", got.Subject)
}

func TestMiddlewareMissingHeader(t *testing.T) {
	mw := Middleware{Verifier: NewVerifier(testSecret, "")}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a token")
	})

	req := httptest.NewRequest(http.MethodGet, "/roles", nil)
	rec := httptest.NewRecorder()
	mw.Require(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
}

func TestMiddlewareBadToken(t *testing.T) {
	mw := Middleware{Verifier: NewVerifier(testSecret, "")}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run with a bad token")
	})

	req := httptest.NewRequest(http.MethodGet, "/roles", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	mw.Require(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
