package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/printhost/marlineeprom/internal/config"
	"github.com/printhost/marlineeprom/internal/logging"
)

// Service handles single-operator authentication. The admin password comes
// from configuration and is hashed once at construction.
type Service struct {
	config       config.AuthConfig
	passwordHash []byte
	logger       *logging.Logger
}

// NewService creates a new auth service
func NewService(cfg config.AuthConfig, logger *logging.Logger) (*Service, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}

	return &Service{
		config:       cfg,
		passwordHash: hash,
		logger:       logger,
	}, nil
}

// Tokens is the response to a successful login
type Tokens struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int    `json:"expiresIn"`
}

// Login authenticates the operator with username/password
func (s *Service) Login(username, password string) (*Tokens, error) {
	if username == "" || password == "" {
		return nil, &AuthError{Code: "invalid_input", Message: "username and password are required"}
	}

	if username != s.config.AdminUser {
		return nil, &AuthError{Code: "invalid_credentials", Message: "invalid username or password"}
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return nil, &AuthError{Code: "invalid_credentials", Message: "invalid username or password"}
	}

	tokens, err := s.generateTokens(username)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	s.logger.Info("Operator logged in", logging.WithField("user", username))

	return tokens, nil
}

// ValidateAccessToken validates a JWT access token and returns the subject
func (s *Service) ValidateAccessToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	})

	if err != nil {
		return "", &AuthError{Code: "invalid_token", Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", &AuthError{Code: "invalid_token", Message: "invalid token claims"}
	}

	if iss, _ := claims["iss"].(string); iss != s.config.JWTIssuer {
		return "", &AuthError{Code: "invalid_token", Message: "invalid token issuer"}
	}
	if aud, _ := claims["aud"].(string); aud != s.config.JWTAudience {
		return "", &AuthError{Code: "invalid_token", Message: "invalid token audience"}
	}

	subject, ok := claims["sub"].(string)
	if !ok || subject == "" {
		return "", &AuthError{Code: "invalid_token", Message: "invalid token subject"}
	}

	return subject, nil
}

func (s *Service) generateTokens(username string) (*Tokens, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"sub": username,
		"iss": s.config.JWTIssuer,
		"aud": s.config.JWTAudience,
		"iat": now.Unix(),
		"exp": now.Add(s.config.AccessTokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	return &Tokens{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.config.AccessTokenTTL.Seconds()),
	}, nil
}

// AuthError represents an authentication error
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *AuthError) Error() string {
	return e.Message
}
