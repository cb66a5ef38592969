package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/loan-tracker/internal/domain"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	// Create inserts a user; a taken email returns ErrDuplicate
	Create(ctx context.Context, user *domain.User) error

	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetByEmail looks a user up by lowercased email
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// List returns one page of users and the total count
	List(ctx context.Context, page domain.Page) ([]*domain.User, int, error)

	Update(ctx context.Context, user *domain.User) error

	// Delete removes the user; loans, history and notifications cascade
	Delete(ctx context.Context, id uuid.UUID) error
}

// LoanRepository defines the interface for loan data operations
type LoanRepository interface {
	// Create creates a new loan
	Create(ctx context.Context, loan *domain.Loan) error

	// GetByID retrieves a loan by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error)

	// List returns one page of loans matching the filter and the total count
	List(ctx context.Context, filter domain.LoanFilter) ([]*domain.Loan, int, error)

	// ListAll returns every loan matching the filter, ignoring paging (exports)
	ListAll(ctx context.Context, filter domain.LoanFilter) ([]*domain.Loan, error)

	// ListActive returns every loan whose status is not COMPLETED
	ListActive(ctx context.Context) ([]*domain.Loan, error)

	// Update updates a loan
	Update(ctx context.Context, loan *domain.Loan) error

	// UpdateWithHistory updates a loan and appends a history entry atomically
	UpdateWithHistory(ctx context.Context, loan *domain.Loan, history *domain.LoanHistory) error

	// Delete removes a loan; its history and notifications cascade
	Delete(ctx context.Context, id uuid.UUID) error

	// ListHistory returns a loan's history, newest first
	ListHistory(ctx context.Context, loanID uuid.UUID) ([]*domain.LoanHistory, error)

	// Summary aggregates counts and amounts per status, optionally for one owner
	Summary(ctx context.Context, ownerID *uuid.UUID) (*domain.LoanSummary, error)
}

// NotificationRepository defines the interface for notification data operations
type NotificationRepository interface {
	// FindByKey returns ErrNotFound when no notification has the key
	FindByKey(ctx context.Context, key domain.NotificationKey) (*domain.Notification, error)

	// Create inserts a notification; a key collision returns ErrDuplicate
	Create(ctx context.Context, n *domain.Notification) error

	GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error)

	// ListInApp returns one page of a user's IN_APP notifications, newest first
	ListInApp(ctx context.Context, userID uuid.UUID, unreadOnly bool, page domain.Page) ([]*domain.Notification, int, error)

	// CountUnread counts a user's unread IN_APP notifications
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)

	// MarkRead sets read_at if it is not set yet
	MarkRead(ctx context.Context, id uuid.UUID, at time.Time) error

	// MarkAllRead marks every unread IN_APP notification of a user
	MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)

	// ClaimPendingEmails moves up to limit PENDING emails to SENDING and returns
	// them, oldest first. Concurrent callers never receive the same row.
	ClaimPendingEmails(ctx context.Context, limit int) ([]*domain.Notification, error)

	// UpdateEmailStatus records the outcome of an email delivery attempt
	UpdateEmailStatus(ctx context.Context, id uuid.UUID, status domain.EmailStatus, errMsg *string, sentAt *time.Time) error
}

// AuditRepository defines the interface for audit log storage
type AuditRepository interface {
	Insert(ctx context.Context, entry *domain.AuditLog) error

	// List returns one page of entries, newest first, and the total count
	List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, int64, error)
}

// UnreadCountCache caches per-user unread notification counts
type UnreadCountCache interface {
	// Get returns ok=false on a cache miss
	Get(ctx context.Context, userID uuid.UUID) (count int, ok bool, err error)
	Set(ctx context.Context, userID uuid.UUID, count int) error
	Invalidate(ctx context.Context, userID uuid.UUID) error
}
