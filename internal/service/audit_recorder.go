package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-tracker/internal/domain"
	"github.com/segyhp/loan-tracker/internal/repository"
)

const auditWriteTimeout = 3 * time.Second

// AuditRecorder writes audit entries best-effort: failures are logged, never returned
type AuditRecorder struct {
	repo repository.AuditRepository
	log  logrus.FieldLogger
	now  func() time.Time
}

func NewAuditRecorder(repo repository.AuditRepository, log logrus.FieldLogger) *AuditRecorder {
	return &AuditRecorder{
		repo: repo,
		log:  log.WithField("component", "audit"),
		now:  time.Now,
	}
}

func (a *AuditRecorder) Record(
	ctx context.Context,
	meta domain.RequestMeta,
	action domain.AuditAction,
	targetType, targetID string,
	details map[string]interface{},
) {
	if a == nil || a.repo == nil {
		return
	}

	entry := &domain.AuditLog{
		ActorID:    meta.ActorID.String(),
		ActorEmail: meta.ActorEmail,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    details,
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
		CreatedAt:  a.now(),
	}

	// the request may already be finished; the write gets its own deadline
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	if err := a.repo.Insert(ctx, entry); err != nil {
		a.log.WithError(err).WithFields(logrus.Fields{
			"action":    action,
			"target_id": targetID,
		}).Warn("Failed to write audit log")
	}
}

func (a *AuditRecorder) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, int64, error) {
	return a.repo.List(ctx, filter)
}
