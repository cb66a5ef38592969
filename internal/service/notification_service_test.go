package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/loan-tracker/internal/domain"
	"github.com/segyhp/loan-tracker/internal/logger"
	"github.com/segyhp/loan-tracker/internal/mocks"
	"github.com/segyhp/loan-tracker/internal/repository"
	customError "github.com/segyhp/loan-tracker/pkg/errors"
)

func newNotificationService(cache repository.UnreadCountCache) (*NotificationService, *mocks.MockNotificationRepository) {
	repo := &mocks.MockNotificationRepository{}
	svc := NewNotificationService(repo, cache, nil, logger.Discard())
	svc.now = func() time.Time { return fixedNow }
	return svc, repo
}

func TestUnreadCount_CacheHit(t *testing.T) {
	cache := &mocks.MockUnreadCountCache{}
	svc, repo := newNotificationService(cache)
	actor := domain.Actor{UserID: uuid.New()}

	cache.On("Get", mock.Anything, actor.UserID).Return(4, true, nil)

	count, err := svc.UnreadCount(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	repo.AssertNotCalled(t, "CountUnread", mock.Anything, mock.Anything)
}

func TestUnreadCount_MissPopulatesCache(t *testing.T) {
	cache := &mocks.MockUnreadCountCache{}
	svc, repo := newNotificationService(cache)
	actor := domain.Actor{UserID: uuid.New()}

	cache.On("Get", mock.Anything, actor.UserID).Return(0, false, nil)
	repo.On("CountUnread", mock.Anything, actor.UserID).Return(2, nil)
	cache.On("Set", mock.Anything, actor.UserID, 2).Return(nil)

	count, err := svc.UnreadCount(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	cache.AssertExpectations(t)
}

func TestUnreadCount_CacheErrorFallsBack(t *testing.T) {
	cache := &mocks.MockUnreadCountCache{}
	svc, repo := newNotificationService(cache)
	actor := domain.Actor{UserID: uuid.New()}

	cache.On("Get", mock.Anything, actor.UserID).Return(0, false, errors.New("redis down"))
	repo.On("CountUnread", mock.Anything, actor.UserID).Return(7, nil)
	cache.On("Set", mock.Anything, actor.UserID, 7).Return(errors.New("redis down"))

	count, err := svc.UnreadCount(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestUnreadCount_WithoutCache(t *testing.T) {
	svc, repo := newNotificationService(nil)
	actor := domain.Actor{UserID: uuid.New()}
	repo.On("CountUnread", mock.Anything, actor.UserID).Return(1, nil)

	count, err := svc.UnreadCount(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMarkRead(t *testing.T) {
	owner := uuid.New()
	earlier := fixedNow.Add(-time.Hour)

	tests := []struct {
		name         string
		notification *domain.Notification
		repoErr      error
		actor        uuid.UUID
		wantErr      error
		wantUpdate   bool
	}{
		{
			name:         "unread in-app",
			notification: &domain.Notification{UserID: owner, Channel: domain.ChannelInApp},
			actor:        owner,
			wantUpdate:   true,
		},
		{
			name:         "already read keeps timestamp",
			notification: &domain.Notification{UserID: owner, Channel: domain.ChannelInApp, ReadAt: &earlier},
			actor:        owner,
		},
		{
			name:         "someone else's",
			notification: &domain.Notification{UserID: uuid.New(), Channel: domain.ChannelInApp},
			actor:        owner,
			wantErr:      customError.ErrNotificationNotFound,
		},
		{
			name:         "email channel",
			notification: &domain.Notification{UserID: owner, Channel: domain.ChannelEmail},
			actor:        owner,
			wantErr:      customError.ErrNotificationNotFound,
		},
		{
			name:    "missing",
			repoErr: repository.ErrNotFound,
			actor:   owner,
			wantErr: customError.ErrNotificationNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := &mocks.MockUnreadCountCache{}
			svc, repo := newNotificationService(cache)
			id := uuid.New()

			if tt.notification != nil {
				tt.notification.ID = id
				repo.On("GetByID", mock.Anything, id).Return(tt.notification, nil)
			} else {
				repo.On("GetByID", mock.Anything, id).Return(nil, tt.repoErr)
			}
			if tt.wantUpdate {
				repo.On("MarkRead", mock.Anything, id, fixedNow).Return(nil)
				cache.On("Invalidate", mock.Anything, owner).Return(nil)
			}

			n, err := svc.MarkRead(context.Background(), domain.Actor{UserID: tt.actor}, id)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				repo.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, n.ReadAt)
			if tt.wantUpdate {
				assert.True(t, fixedNow.Equal(*n.ReadAt))
			} else {
				assert.True(t, earlier.Equal(*n.ReadAt))
				repo.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything)
			}
			cache.AssertExpectations(t)
		})
	}
}

func TestMarkAllRead(t *testing.T) {
	cache := &mocks.MockUnreadCountCache{}
	svc, repo := newNotificationService(cache)
	actor := domain.Actor{UserID: uuid.New()}

	repo.On("MarkAllRead", mock.Anything, actor.UserID, fixedNow).Return(int64(3), nil)
	cache.On("Invalidate", mock.Anything, actor.UserID).Return(nil)

	updated, err := svc.MarkAllRead(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated)
	cache.AssertExpectations(t)
}

func TestListNotifications(t *testing.T) {
	svc, repo := newNotificationService(nil)
	actor := domain.Actor{UserID: uuid.New()}
	page := domain.Page{Limit: 500, Offset: 10}

	repo.On("ListInApp", mock.Anything, actor.UserID, true, domain.Page{Limit: domain.MaxPageLimit, Offset: 10}).
		Return([]*domain.Notification{{ID: uuid.New()}}, 11, nil)

	resp, err := svc.List(context.Background(), actor, true, page)
	require.NoError(t, err)
	assert.Equal(t, 11, resp.Total)
	assert.Equal(t, domain.MaxPageLimit, resp.Limit)
}

func TestRunGenerator(t *testing.T) {
	store := newMemNotifications()
	loan := newLoan("Asha", day(2024, 6, 13), domain.LoanStatusActive)
	gen := newTestGenerator(t, &staticLoans{loans: []*domain.Loan{loan}}, store)
	gen.now = func() time.Time { return scenarioNow }

	svc := NewNotificationService(&mocks.MockNotificationRepository{}, nil, gen, logger.Discard())
	report, err := svc.RunGenerator(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)

	failing := newTestGenerator(t, &staticLoans{err: errors.New("db down")}, store)
	svc = NewNotificationService(&mocks.MockNotificationRepository{}, nil, failing, logger.Discard())
	_, err = svc.RunGenerator(context.Background())
	assert.Equal(t, customError.ErrCodeDatabaseError, customError.CodeOf(err))
}
