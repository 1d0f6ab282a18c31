package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	svcerrors "github.com/R3E-Network/frame_layer/internal/errors"
	"github.com/R3E-Network/frame_layer/internal/httputil"
	"github.com/R3E-Network/frame_layer/pkg/logger"
)

const (
	// RoleOperator is the role carried by operator tokens.
	RoleOperator = "operator"
	// SessionTokenHeader carries the per-session secret handed to a bridge.
	SessionTokenHeader = "X-Session-Token"
)

type authContextKey string

const operatorKey authContextKey = "operator"

// ErrAuthDisabled is returned when no signing secret is configured.
var ErrAuthDisabled = errors.New("operator authentication is not configured")

// Claims are the JWT claims of an operator token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthMiddleware authenticates operator requests with HS256 bearer tokens.
type AuthMiddleware struct {
	secret    []byte
	logger    *logger.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware creates the middleware. An empty secret rejects every
// request outside skipPaths.
func NewAuthMiddleware(secret []byte, log *logger.Logger, skipPaths []string) *AuthMiddleware {
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}
	return &AuthMiddleware{
		secret:    secret,
		logger:    log,
		skipPaths: skip,
	}
}

// Handler returns the middleware handler.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.Authenticate(r)
		if err != nil {
			m.respondError(w, r, err)
			return
		}

		m.logger.WithContext(r.Context()).WithField("operator", claims.Subject).Debug("Authentication successful")
		next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), claims.Subject)))
	})
}

// Authenticate validates the request's bearer token.
func (m *AuthMiddleware) Authenticate(r *http.Request) (*Claims, error) {
	if len(m.secret) == 0 {
		return nil, svcerrors.Wrap(svcerrors.CodeUnauthorized, http.StatusUnauthorized, "operator authentication is not configured", ErrAuthDisabled)
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, svcerrors.Unauthorized("Missing Authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, svcerrors.Unauthorized("Invalid Authorization header format")
	}
	return m.validateToken(parts[1])
}

func (m *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, svcerrors.Wrap(svcerrors.CodeUnauthorized, http.StatusUnauthorized, "invalid token", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, svcerrors.Unauthorized("invalid token")
	}
	if claims.Role != RoleOperator || claims.Subject == "" {
		return nil, svcerrors.Unauthorized("token does not grant operator access")
	}
	return claims, nil
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	m.logger.LogSecurityEvent(r.Context(), "authentication_failed", map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"error":  err.Error(),
	})
	httputil.WriteError(w, err)
}

// IssueToken signs an operator token for subject valid for ttl.
func IssueToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", ErrAuthDisabled
	}
	now := time.Now()
	claims := &Claims{
		Role: RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// WithOperator stores the authenticated operator in ctx.
func WithOperator(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, operatorKey, subject)
}

// Operator returns the authenticated operator, or "".
func Operator(ctx context.Context) string {
	if v, ok := ctx.Value(operatorKey).(string); ok {
		return v
	}
	return ""
}
