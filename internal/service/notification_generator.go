package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-tracker/internal/domain"
	"github.com/segyhp/loan-tracker/internal/repository"
	"github.com/segyhp/loan-tracker/pkg/utils"
)

// ActiveLoanSource lists every loan whose stored status is not COMPLETED
type ActiveLoanSource interface {
	ListActive(ctx context.Context) ([]*domain.Loan, error)
}

// NotificationStore is the slice of notification storage the generator writes through.
// FindByKey returns repository.ErrNotFound when absent; Create returns
// repository.ErrDuplicate when the key already exists.
type NotificationStore interface {
	FindByKey(ctx context.Context, key domain.NotificationKey) (*domain.Notification, error)
	Create(ctx context.Context, n *domain.Notification) error
}

// NotificationGenerator scans active loans and makes sure their due-soon and
// overdue notifications exist. Running it any number of times for the same
// day leaves exactly one notification per (loan, type, channel).
type NotificationGenerator struct {
	loans     ActiveLoanSource
	store     NotificationStore
	unread    repository.UnreadCountCache
	formatter *utils.Formatter
	loc       *time.Location
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewNotificationGenerator wires a generator; unread may be nil
func NewNotificationGenerator(
	loans ActiveLoanSource,
	store NotificationStore,
	unread repository.UnreadCountCache,
	formatter *utils.Formatter,
	loc *time.Location,
	log logrus.FieldLogger,
) *NotificationGenerator {
	if loc == nil {
		loc = time.UTC
	}
	return &NotificationGenerator{
		loans:     loans,
		store:     store,
		unread:    unread,
		formatter: formatter,
		loc:       loc,
		log:       log.WithField("component", "notification_generator"),
		now:       time.Now,
	}
}

// Run generates notifications for the current moment
func (g *NotificationGenerator) Run(ctx context.Context) (*domain.RunReport, error) {
	return g.RunAt(ctx, g.now())
}

// RunAt generates notifications as if the clock read now. Only a failure to
// list loans is returned; per-notification failures are recorded in the report.
func (g *NotificationGenerator) RunAt(ctx context.Context, now time.Time) (*domain.RunReport, error) {
	today := utils.LocalDay(now, g.loc)
	report := &domain.RunReport{StartedAt: g.now(), Today: today}

	loans, err := g.loans.ListActive(ctx)
	if err != nil {
		g.log.WithError(err).Error("Failed to list active loans, aborting notification run")
		return nil, fmt.Errorf("list active loans: %w", err)
	}
	report.LoansScanned = len(loans)

	for _, loan := range loans {
		for _, key := range g.keysFor(loan, today) {
			report.Add(g.Ensure(ctx, loan, key.Type, key.Channel))
		}
	}

	report.FinishedAt = g.now()
	g.log.WithFields(logrus.Fields{
		"today":           today.Format(utils.DateLayout),
		"loans_scanned":   report.LoansScanned,
		"created":         report.Created,
		"already_existed": report.AlreadyExisted,
		"failed":          report.Failed,
	}).Info("Notification run finished")

	return report, nil
}

// keysFor returns the notifications a loan should have on the given day
func (g *NotificationGenerator) keysFor(loan *domain.Loan, today time.Time) []domain.NotificationKey {
	if !loan.IsActive() {
		return nil
	}

	dueDay := utils.LocalDay(loan.DueDate, g.loc)
	switch {
	case dueDay.Equal(utils.AddDays(today, 3)):
		return []domain.NotificationKey{
			{LoanID: loan.ID, Type: domain.NotificationTypeDueSoon, Channel: domain.ChannelInApp},
		}
	case dueDay.Equal(utils.AddDays(today, 1)):
		return []domain.NotificationKey{
			{LoanID: loan.ID, Type: domain.NotificationTypeDueSoon, Channel: domain.ChannelEmail},
		}
	case dueDay.Before(today):
		return []domain.NotificationKey{
			{LoanID: loan.ID, Type: domain.NotificationTypeOverdue, Channel: domain.ChannelInApp},
			{LoanID: loan.ID, Type: domain.NotificationTypeOverdue, Channel: domain.ChannelEmail},
		}
	}
	return nil
}

// Ensure creates the (loan, type, channel) notification unless it already exists
func (g *NotificationGenerator) Ensure(ctx context.Context, loan *domain.Loan, typ domain.NotificationType, channel domain.NotificationChannel) domain.EnsureResult {
	key := domain.NotificationKey{LoanID: loan.ID, Type: typ, Channel: channel}
	result := domain.EnsureResult{Key: key}
	log := g.log.WithFields(logrus.Fields{
		"loan_id": loan.ID,
		"type":    typ,
		"channel": channel,
	})

	existing, err := g.store.FindByKey(ctx, key)
	switch {
	case err == nil:
		result.Outcome = domain.OutcomeAlreadyExists
		result.Notification = existing
		return result
	case !errors.Is(err, repository.ErrNotFound):
		log.WithError(err).Error("Failed to look up notification")
		result.Outcome = domain.OutcomeFailed
		result.Err = fmt.Errorf("find notification: %w", err)
		return result
	}

	n := g.build(loan, typ, channel)
	if err := g.store.Create(ctx, n); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			log.Info("Notification created concurrently, skipping")
			result.Outcome = domain.OutcomeAlreadyExists
			return result
		}
		log.WithError(err).Error("Failed to create notification")
		result.Outcome = domain.OutcomeFailed
		result.Err = fmt.Errorf("create notification: %w", err)
		return result
	}

	if channel == domain.ChannelInApp {
		invalidateUnread(ctx, g.unread, loan.OwnerUserID, log)
	}

	log.Debug("Notification created")
	result.Outcome = domain.OutcomeCreated
	result.Notification = n
	return result
}

func (g *NotificationGenerator) build(loan *domain.Loan, typ domain.NotificationType, channel domain.NotificationChannel) *domain.Notification {
	loanID := loan.ID
	title, message := g.text(loan, typ, channel)

	n := &domain.Notification{
		ID:        uuid.New(),
		UserID:    loan.OwnerUserID,
		LoanID:    &loanID,
		Type:      typ,
		Channel:   channel,
		Title:     title,
		Message:   message,
		CreatedAt: g.now(),
	}
	if channel == domain.ChannelEmail {
		pending := domain.EmailStatusPending
		n.EmailStatus = &pending
	}
	return n
}

func (g *NotificationGenerator) text(loan *domain.Loan, typ domain.NotificationType, channel domain.NotificationChannel) (string, string) {
	amount := g.formatter.Currency(loan.ActualAmount)
	due := g.formatter.Date(loan.DueDate)

	if typ == domain.NotificationTypeOverdue {
		return "Loan overdue",
			fmt.Sprintf("%s's loan of %s was due on %s and is now overdue.", loan.BorrowerName, amount, due)
	}

	when := "in 3 days"
	if channel == domain.ChannelEmail {
		when = "tomorrow"
	}
	return "Loan due " + when,
		fmt.Sprintf("%s's loan of %s is due %s (%s).", loan.BorrowerName, amount, when, due)
}
