package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veeduria/veeduria-api/internal/shared"
)

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens(testSecret, "veeduria")
	raw, err := tokens.Issue(42, time.Hour)
	require.NoError(t, err)

	principal, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(42), principal.UserID)

	_, err = tokens.Issue(0, time.Hour)
	assert.Error(t, err)
}

func TestTokensRejectInvalid(t *testing.T) {
	tokens := NewTokens(testSecret, "veeduria")

	expired, err := tokens.Issue(1, -time.Minute)
	require.NoError(t, err)
	_, err = tokens.Verify(expired)
	assert.Error(t, err)

	other, err := NewTokens(testSecret, "someone-else").Issue(1, time.Hour)
	require.NoError(t, err)
	_, err = tokens.Verify(other)
	assert.Error(t, err, "issuer mismatch")

	forged, err := NewTokens("ffffffffffffffffffffffffffffffff", "veeduria").Issue(1, time.Hour)
	require.NoError(t, err)
	_, err = tokens.Verify(forged)
	assert.Error(t, err, "signature mismatch")

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "veeduria",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = tokens.Verify(noSubject)
	assert.Error(t, err)
}

func TestAuthenticateMiddleware(t *testing.T) {
	tokens := NewTokens(testSecret, "veeduria")
	var seen shared.Principal
	var authenticated bool
	h := tokens.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, authenticated = shared.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(header string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, serve(""))
	assert.False(t, authenticated)

	raw, err := tokens.Issue(7, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, serve("Bearer "+raw))
	assert.True(t, authenticated)
	assert.Equal(t, int64(7), seen.UserID)

	assert.Equal(t, http.StatusUnauthorized, serve("Basic dXNlcjpwYXNz"))
	assert.Equal(t, http.StatusUnauthorized, serve("Bearer not-a-token"))
}
