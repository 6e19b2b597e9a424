package auth

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequire(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authn := NewAuthenticator("test-secret")

	var seen Principal
	protected := authn.Require(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		require.True(t, ok)
		seen = p
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("passes verified principal", func(t *testing.T) {
		token := signToken(t, "test-secret", 42, "customer", time.Hour)

		req := httptest.NewRequest(http.MethodGet, "/cart", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, Principal{UserID: 42, Role: "customer"}, seen)
	})

	tests := []struct {
		name    string
		header  string
		message string
	}{
		{"missing header", "", "missing bearer token"},
		{"wrong scheme", "Basic dXNlcjpwYXNz", "missing bearer token"},
		{"garbage token", "Bearer not-a-jwt", "invalid token"},
		{"foreign signature", "Bearer " + signToken(t, "other-secret", 7, "customer", time.Hour), "invalid token"},
		{"expired", "Bearer " + signToken(t, "test-secret", 7, "customer", -time.Minute), "invalid token"},
		{"no user id", "Bearer " + signToken(t, "test-secret", 0, "customer", time.Hour), "invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/cart", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.message, body["error"])
		})
	}
}

func signToken(t *testing.T, secret string, userID int64, role string, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}
