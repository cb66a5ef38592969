package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-tracker/internal/domain"
	"github.com/segyhp/loan-tracker/internal/repository"
	customError "github.com/segyhp/loan-tracker/pkg/errors"
)

// NotificationService serves a user's in-app notifications
type NotificationService struct {
	notifications repository.NotificationRepository
	unread        repository.UnreadCountCache
	generator     *NotificationGenerator
	log           logrus.FieldLogger
	now           func() time.Time
}

// NewNotificationService wires the service; unread may be nil to disable caching
func NewNotificationService(
	notifications repository.NotificationRepository,
	unread repository.UnreadCountCache,
	generator *NotificationGenerator,
	log logrus.FieldLogger,
) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		unread:        unread,
		generator:     generator,
		log:           log.WithField("component", "notification_service"),
		now:           time.Now,
	}
}

func (s *NotificationService) List(ctx context.Context, actor domain.Actor, unreadOnly bool, page domain.Page) (*domain.ListResponse[*domain.Notification], error) {
	page = page.Normalize()

	items, total, err := s.notifications.ListInApp(ctx, actor.UserID, unreadOnly, page)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	return &domain.ListResponse[*domain.Notification]{
		Items:  items,
		Total:  total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}, nil
}

// UnreadCount reads through the cache; cache failures fall back to the database
func (s *NotificationService) UnreadCount(ctx context.Context, actor domain.Actor) (int, error) {
	log := s.log.WithField("user_id", actor.UserID)

	if s.unread != nil {
		count, ok, err := s.unread.Get(ctx, actor.UserID)
		if err != nil {
			log.WithError(err).Warn("Unread count cache read failed")
		} else if ok {
			return count, nil
		}
	}

	count, err := s.notifications.CountUnread(ctx, actor.UserID)
	if err != nil {
		return 0, customError.WrapDatabaseError(err)
	}

	if s.unread != nil {
		if err := s.unread.Set(ctx, actor.UserID, count); err != nil {
			log.WithError(err).Warn("Unread count cache write failed")
		}
	}
	return count, nil
}

// MarkRead marks one of the caller's in-app notifications read. Marking an
// already read notification keeps the original read time.
func (s *NotificationService) MarkRead(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Notification, error) {
	n, err := s.notifications.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapNotificationNotFound(id.String())
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if n.UserID != actor.UserID || n.Channel != domain.ChannelInApp {
		return nil, customError.WrapNotificationNotFound(id.String())
	}
	if n.IsRead() {
		return n, nil
	}

	at := s.now()
	if err := s.notifications.MarkRead(ctx, id, at); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	n.ReadAt = &at

	s.invalidate(ctx, actor.UserID)
	return n, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, actor domain.Actor) (int64, error) {
	updated, err := s.notifications.MarkAllRead(ctx, actor.UserID, s.now())
	if err != nil {
		return 0, customError.WrapDatabaseError(err)
	}
	s.invalidate(ctx, actor.UserID)
	return updated, nil
}

// RunGenerator triggers a notification pass outside the daily schedule
func (s *NotificationService) RunGenerator(ctx context.Context) (*domain.RunReport, error) {
	report, err := s.generator.Run(ctx)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return report, nil
}

// ForgetUnread drops the cached unread count of userID
func (s *NotificationService) ForgetUnread(ctx context.Context, userID uuid.UUID) {
	s.invalidate(ctx, userID)
}

func (s *NotificationService) invalidate(ctx context.Context, userID uuid.UUID) {
	invalidateUnread(ctx, s.unread, userID, s.log)
}

// invalidateUnread is best effort; the cache entry expires on its own
func invalidateUnread(ctx context.Context, unread repository.UnreadCountCache, userID uuid.UUID, log logrus.FieldLogger) {
	if unread == nil {
		return
	}
	if err := unread.Invalidate(ctx, userID); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Failed to invalidate unread count")
	}
}
