package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is a type for context keys
type contextKey string

const (
	// OperatorKey is the context key for the authenticated operator name
	OperatorKey contextKey = "operator"
)

// Middleware provides authentication middleware for HTTP handlers
type Middleware struct {
	authService *Service
}

// NewMiddleware creates a new auth middleware
func NewMiddleware(authService *Service) *Middleware {
	return &Middleware{authService: authService}
}

// RequireAuth is middleware that requires a valid JWT token
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
			return
		}

		operator, err := m.authService.ValidateAccessToken(token)
		if err != nil {
			http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), OperatorKey, operator)
		next(w, r.WithContext(ctx))
	}
}

// GetOperator extracts the operator name from the request context
func GetOperator(ctx context.Context) string {
	operator, _ := ctx.Value(OperatorKey).(string)
	return operator
}

// extractToken extracts the JWT token from the Authorization header
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}

	return ""
}
