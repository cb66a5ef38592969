package repository

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/segyhp/loan-tracker/internal/domain"
)

const notificationColumns = `id, user_id, loan_id, type, channel, title, message, read_at,
		email_status, email_error, sent_at, created_at`

type notificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) FindByKey(ctx context.Context, key domain.NotificationKey) (*domain.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE loan_id = $1 AND type = $2 AND channel = $3
		LIMIT 1
	`

	var n domain.Notification
	if err := r.db.GetContext(ctx, &n, query, key.LoanID, key.Type, key.Channel); err != nil {
		return nil, translateError(err)
	}
	return &n, nil
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		n.ID,
		n.UserID,
		n.LoanID,
		n.Type,
		n.Channel,
		n.Title,
		n.Message,
		n.ReadAt,
		n.EmailStatus,
		n.EmailError,
		n.SentAt,
		n.CreatedAt,
	)

	return translateError(err)
}

func (r *notificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	var n domain.Notification
	err := r.db.GetContext(ctx, &n, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	if err != nil {
		return nil, translateError(err)
	}
	return &n, nil
}

func (r *notificationRepository) ListInApp(ctx context.Context, userID uuid.UUID, unreadOnly bool, page domain.Page) ([]*domain.Notification, int, error) {
	page = page.Normalize()

	where := ` WHERE user_id = $1 AND channel = $2`
	if unreadOnly {
		where += ` AND read_at IS NULL`
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notifications`+where, userID, domain.ChannelInApp); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications` + where +
		` ORDER BY created_at DESC LIMIT $3 OFFSET $4`

	items := []*domain.Notification{}
	if err := r.db.SelectContext(ctx, &items, query, userID, domain.ChannelInApp, page.Limit, page.Offset); err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM notifications
		WHERE user_id = $1 AND channel = $2 AND read_at IS NULL
	`

	var count int
	if err := r.db.GetContext(ctx, &count, query, userID, domain.ChannelInApp); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read_at = $2 WHERE id = $1 AND read_at IS NULL`, id, at)
	return err
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	query := `
		UPDATE notifications
		SET read_at = $3
		WHERE user_id = $1 AND channel = $2 AND read_at IS NULL
	`

	res, err := r.db.ExecContext(ctx, query, userID, domain.ChannelInApp, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *notificationRepository) ClaimPendingEmails(ctx context.Context, limit int) ([]*domain.Notification, error) {
	query := `
		UPDATE notifications
		SET email_status = $3
		WHERE id IN (
			SELECT id
			FROM notifications
			WHERE channel = $1 AND email_status = $2
			ORDER BY created_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + notificationColumns

	items := []*domain.Notification{}
	err := r.db.SelectContext(ctx, &items, query,
		domain.ChannelEmail, domain.EmailStatusPending, domain.EmailStatusSending, limit)
	if err != nil {
		return nil, err
	}

	// RETURNING does not keep the subquery order
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (r *notificationRepository) UpdateEmailStatus(ctx context.Context, id uuid.UUID, status domain.EmailStatus, errMsg *string, sentAt *time.Time) error {
	query := `
		UPDATE notifications
		SET email_status = $2, email_error = $3, sent_at = $4
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id, status, errMsg, sentAt)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
