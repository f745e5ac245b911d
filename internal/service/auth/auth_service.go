package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"blogpulse/internal/domain"
	"blogpulse/internal/service"
	"blogpulse/pkg/errors"
	"blogpulse/pkg/logger"
)

// SessionClaims is the payload of a session token issued by the auth system
type SessionClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Service verifies HMAC-signed session tokens
type Service struct {
	secret []byte
	leeway time.Duration
	logger *logger.Logger
}

// NewService creates a new auth service
func NewService(secret string, logger *logger.Logger) service.AuthService {
	return &Service{
		secret: []byte(secret),
		leeway: 30 * time.Second,
		logger: logger.Component("auth"),
	}
}

// VerifySession validates the token signature and expiry and returns the
// session it carries
func (s *Service) VerifySession(ctx context.Context, tokenString string) (*domain.Session, error) {
	if len(s.secret) == 0 {
		s.logger.Error("Session secret not configured")
		return nil, errors.NewAuthenticationError("Session validation not configured")
	}
	if !isJWTToken(tokenString) {
		return nil, errors.NewAuthenticationError("Unrecognized token format")
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithLeeway(s.leeway), jwt.WithExpirationRequired())

	if err != nil {
		s.logger.WithError(err).Debug("Session token rejected")
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.NewAuthenticationError("Token has expired")
		}
		return nil, errors.NewAuthenticationError("Invalid session token")
	}
	if !token.Valid {
		return nil, errors.NewAuthenticationError("Invalid session token")
	}

	if claims.Subject == "" {
		s.logger.Error("No user identifier found in session token")
		return nil, errors.NewAuthenticationError("Invalid session token: no user identifier")
	}

	return &domain.Session{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}

// IssueSession signs a session for userID. Used by tests and local tooling.
func (s *Service) IssueSession(userID, email, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// isJWTToken checks for three non-empty dot separated segments
func isJWTToken(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}
