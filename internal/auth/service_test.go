package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/printhost/marlineeprom/internal/config"
	"github.com/printhost/marlineeprom/internal/testutil"
)

func setupTestAuthService(t *testing.T) *Service {
	t.Helper()

	cfg := config.AuthConfig{
		AdminUser:      "admin",
		AdminPassword:  "correct-horse",
		JWTSecret:      "test-secret-key-minimum-32-chars-long",
		JWTIssuer:      "marlineeprom-test",
		JWTAudience:    "marlineeprom-operator",
		AccessTokenTTL: 15 * time.Minute,
	}

	service, err := NewService(cfg, testutil.NullLogger())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return service
}

func TestAuthError(t *testing.T) {
	err := &AuthError{Code: "invalid_credentials", Message: "invalid username or password"}
	if err.Error() != "invalid username or password" {
		t.Errorf("AuthError.Error() = %s, want %s", err.Error(), "invalid username or password")
	}
}

func TestLogin_Success(t *testing.T) {
	service := setupTestAuthService(t)

	tokens, err := service.Login("admin", "correct-horse")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if tokens.AccessToken == "" {
		t.Error("Expected a non-empty access token")
	}
	if tokens.TokenType != "Bearer" {
		t.Errorf("TokenType = %s, want Bearer", tokens.TokenType)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	service := setupTestAuthService(t)

	_, err := service.Login("admin", "wrong")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected AuthError, got %v", err)
	}
	if authErr.Code != "invalid_credentials" {
		t.Errorf("Code = %s, want invalid_credentials", authErr.Code)
	}
}

func TestLogin_WrongUser(t *testing.T) {
	service := setupTestAuthService(t)

	if _, err := service.Login("root", "correct-horse"); err == nil {
		t.Error("Expected error for unknown user, got nil")
	}
}

func TestLogin_EmptyInput(t *testing.T) {
	service := setupTestAuthService(t)

	if _, err := service.Login("", ""); err == nil {
		t.Error("Expected error for empty credentials, got nil")
	}
}

func TestValidateAccessToken_RoundTrip(t *testing.T) {
	service := setupTestAuthService(t)

	tokens, err := service.Login("admin", "correct-horse")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	subject, err := service.ValidateAccessToken(tokens.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if subject != "admin" {
		t.Errorf("subject = %s, want admin", subject)
	}
}

func TestValidateAccessToken_Invalid(t *testing.T) {
	service := setupTestAuthService(t)

	if _, err := service.ValidateAccessToken("invalid-token"); err == nil {
		t.Error("Expected error for invalid token, got nil")
	}
}

func TestValidateAccessToken_WrongIssuer(t *testing.T) {
	service := setupTestAuthService(t)

	other := setupTestAuthService(t)
	other.config.JWTIssuer = "someone-else"
	tokens, err := other.Login("admin", "correct-horse")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if _, err := service.ValidateAccessToken(tokens.AccessToken); err == nil {
		t.Error("Expected error for token from a different issuer, got nil")
	}
}

func TestValidateAccessToken_Empty(t *testing.T) {
	service := setupTestAuthService(t)

	if _, err := service.ValidateAccessToken(""); err == nil {
		t.Error("Expected error for empty token, got nil")
	}
}
