package domain

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User represents an account that owns loans
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Actor is the authenticated caller of a service operation
type Actor struct {
	UserID         uuid.UUID
	Email          string
	Role           Role
	ImpersonatedBy *uuid.UUID
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// RequestMeta carries who performed an administrative action and from where
type RequestMeta struct {
	ActorID    uuid.UUID
	ActorEmail string
	IP         string
	UserAgent  string
}

// Page is a limit/offset window over a listing
type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Normalize clamps the page to sane bounds
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// DTOs for requests and responses

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

type UpdateUserRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	Role     *Role   `json:"role" validate:"omitempty,oneof=USER ADMIN"`
	IsActive *bool   `json:"is_active"`
}

type ImpersonationResponse struct {
	Token          string    `json:"token"`
	ExpiresAt      time.Time `json:"expires_at"`
	User           *User     `json:"user"`
	ImpersonatedBy uuid.UUID `json:"impersonated_by"`
}

type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
