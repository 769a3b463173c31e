// Package tokentest mints signed access tokens for tests.
package tokentest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var signingKey = []byte("test-signing-key")

// Options describe the claims of a minted token.
type Options struct {
	UserID   string
	Name     string
	Email    string
	TenantID string
	IsAdmin  bool
	Expiry   time.Time
	NoExpiry bool
}

// Mint returns an HS256 compact token. The signature is real but clients never
// verify it.
func Mint(t testing.TB, opts Options) string {
	t.Helper()

	claims := jwt.MapClaims{}
	if opts.UserID != "" {
		claims["userId"] = opts.UserID
	}
	if opts.Name != "" {
		claims["name"] = opts.Name
	}
	if opts.Email != "" {
		claims["email"] = opts.Email
	}
	if opts.TenantID != "" {
		claims["tid"] = opts.TenantID
	}
	if opts.IsAdmin {
		claims["isAdmin"] = true
	}
	if !opts.NoExpiry {
		exp := opts.Expiry
		if exp.IsZero() {
			exp = time.Now().Add(time.Hour)
		}
		claims["exp"] = exp.Unix()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	require.NoError(t, err)
	return signed
}

// ForTenant mints a valid one-hour token for user u1 scoped to tenantID.
func ForTenant(t testing.TB, tenantID string) string {
	t.Helper()
	return Mint(t, Options{UserID: "u1", Name: "Ada", Email: "ada@example.com", TenantID: tenantID})
}
