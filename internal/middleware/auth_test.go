package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/frame_layer/pkg/logger"
)

var testSecret = []byte(strings.Repeat("k", 32))

func newTestAuth(secret []byte, skip ...string) *AuthMiddleware {
	return NewAuthMiddleware(secret, logger.NewDiscard("test"), skip)
}

func serveAuth(m *AuthMiddleware, path, authHeader string) (*httptest.ResponseRecorder, string) {
	var operator string
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		operator = Operator(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, operator
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	token, err := IssueToken(testSecret, "ops", time.Hour)
	require.NoError(t, err)

	rec, operator := serveAuth(newTestAuth(testSecret), "/frame/notify", "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops", operator)
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	expired, err := IssueToken(testSecret, "ops", -time.Minute)
	require.NoError(t, err)
	otherSecret, err := IssueToken([]byte(strings.Repeat("x", 32)), "ops", time.Hour)
	require.NoError(t, err)

	noRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "ops", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(testSecret)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Role:             RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "ops"},
	}).SignedString(testSecret)
	require.NoError(t, err)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		Role:             RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "ops", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"garbage token", "Bearer not-a-jwt"},
		{"expired", "Bearer " + expired},
		{"other secret", "Bearer " + otherSecret},
		{"missing role", "Bearer " + noRole},
		{"missing expiry", "Bearer " + noExpiry},
		{"alg none", "Bearer " + unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, operator := serveAuth(newTestAuth(testSecret), "/frame/notify", tt.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Empty(t, operator)
		})
	}
}

func TestAuthMiddleware_NoSecretRejectsAll(t *testing.T) {
	token, err := IssueToken(testSecret, "ops", time.Hour)
	require.NoError(t, err)

	rec, _ := serveAuth(newTestAuth(nil), "/frame/sessions", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	_, err = IssueToken(nil, "ops", time.Hour)
	assert.ErrorIs(t, err, ErrAuthDisabled)
}

func TestAuthMiddleware_SkipPaths(t *testing.T) {
	rec, _ := serveAuth(newTestAuth(testSecret, "/health"), "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
