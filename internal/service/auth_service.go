package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-tracker/internal/auth"
	"github.com/segyhp/loan-tracker/internal/domain"
	"github.com/segyhp/loan-tracker/internal/repository"
	customError "github.com/segyhp/loan-tracker/pkg/errors"
)

type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenManager
	log    logrus.FieldLogger
}

func NewAuthService(users repository.UserRepository, tokens *auth.TokenManager, log logrus.FieldLogger) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		log:    log.WithField("component", "auth_service"),
	}
}

// Register creates a USER account and signs it in
func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return nil, customError.WrapEmailTaken(email)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapDatabaseError(err)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &domain.User{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, customError.WrapEmailTaken(email)
		}
		return nil, customError.WrapDatabaseError(err)
	}

	s.log.WithField("user_id", user.ID).Info("User registered")
	return s.issue(user)
}

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapInvalidCredentials()
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		return nil, customError.WrapInvalidCredentials()
	}
	if !user.IsActive {
		return nil, customError.WrapUserInactive()
	}

	return s.issue(user)
}

// Authenticate resolves a bearer token to the current caller. Role and
// active flag come from the stored user, not the token. Impersonation
// tokens always act as USER.
func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.Actor, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return domain.Actor{}, err
	}
	actor, err := claims.Actor()
	if err != nil {
		return domain.Actor{}, err
	}

	user, err := s.users.GetByID(ctx, actor.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Actor{}, auth.ErrInvalidToken
	}
	if err != nil {
		return domain.Actor{}, customError.WrapDatabaseError(err)
	}
	if !user.IsActive {
		return domain.Actor{}, customError.WrapUserInactive()
	}

	actor.Role = user.Role
	if actor.ImpersonatedBy != nil {
		actor.Role = domain.RoleUser
	}
	actor.Email = user.Email
	return actor, nil
}

func (s *AuthService) Me(ctx context.Context, actor domain.Actor) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, actor.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapUserNotFound(actor.UserID.String())
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return user, nil
}

func (s *AuthService) issue(user *domain.User) (*domain.AuthResponse, error) {
	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &domain.AuthResponse{Token: token, ExpiresAt: expiresAt, User: user}, nil
}
