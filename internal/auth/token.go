package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/segyhp/loan-tracker/internal/domain"
)

const issuer = "loan-tracker"

var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload; Subject holds the user id
type Claims struct {
	Email          string      `json:"email"`
	Role           domain.Role `json:"role"`
	ImpersonatedBy string      `json:"impersonated_by,omitempty"`
	jwt.RegisteredClaims
}

// Actor converts verified claims into the caller identity used by services
func (c *Claims) Actor() (domain.Actor, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}

	actor := domain.Actor{UserID: id, Email: c.Email, Role: c.Role}
	if c.ImpersonatedBy != "" {
		by, err := uuid.Parse(c.ImpersonatedBy)
		if err != nil {
			return domain.Actor{}, fmt.Errorf("%w: bad impersonated_by", ErrInvalidToken)
		}
		actor.ImpersonatedBy = &by
	}
	return actor, nil
}

// TokenManager issues and verifies HS256 tokens
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for user with the default TTL
func (m *TokenManager) Issue(user *domain.User) (string, time.Time, error) {
	return m.IssueWithTTL(user, m.ttl, nil)
}

// IssueWithTTL signs a token for user; impersonatedBy marks an admin acting as user
func (m *TokenManager) IssueWithTTL(user *domain.User, ttl time.Duration, impersonatedBy *uuid.UUID) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(ttl)

	claims := &Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if impersonatedBy != nil {
		claims.ImpersonatedBy = impersonatedBy.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies the signature and expiry of a token
func (m *TokenManager) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
