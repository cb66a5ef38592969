package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/segyhp/loan-tracker/internal/domain"
)

const userColumns = `id, name, email, password_hash, role, is_active, created_at, updated_at`

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	)

	return translateError(err)
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, translateError(err)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, translateError(err)
	}
	return &user, nil
}

func (r *userRepository) List(ctx context.Context, page domain.Page) ([]*domain.User, int, error) {
	page = page.Normalize()

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`); err != nil {
		return nil, 0, err
	}

	users := []*domain.User{}
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at ASC LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &users, query, page.Limit, page.Offset); err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET name = $2, role = $3, is_active = $4, updated_at = $5
		WHERE id = $1
	`

	user.UpdatedAt = time.Now()
	res, err := r.db.ExecContext(ctx, query, user.ID, user.Name, user.Role, user.IsActive, user.UpdatedAt)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *userRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
