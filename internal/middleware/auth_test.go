package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "jwt-test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims *Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func operatorClaims(stores ...string) *Claims {
	return &Claims{
		UserID:   "op-1",
		Role:     "operator",
		StoreIDs: stores,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestRequireAuth_ValidToken(t *testing.T) {
	var got *Claims
	h := RequireAuth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = GetClaims(r.Context())
		userID, ok := GetUserID(r.Context())
		assert.True(t, ok)
		assert.Equal(t, "op-1", userID)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, []byte(testSecret), operatorClaims("s1", "s2")))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, []string{"s1", "s2"}, got.StoreIDs)
}

func TestRequireAuth_Rejects(t *testing.T) {
	expired := operatorClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	anonymous := operatorClaims()
	anonymous.UserID = ""

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{name: "missing header", header: "", code: "auth_required"},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", code: "auth_invalid_scheme"},
		{name: "garbage token", header: "Bearer not.a.jwt", code: "auth_invalid"},
		{name: "wrong secret", header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), operatorClaims()), code: "auth_invalid"},
		{name: "expired", header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), expired), code: "auth_invalid"},
		{name: "no user", header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), anonymous), code: "auth_invalid"},
		{name: "alg none", header: "Bearer " + signToken(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, operatorClaims()), code: "auth_invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RequireAuth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler must not run")
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), tt.code)
		})
	}
}
