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

const (
	targetUser = "user"
	targetLoan = "loan"
	targetJob  = "job"
)

// AdminService holds system-wide operations. Every mutation is audited.
type AdminService struct {
	users            repository.UserRepository
	loans            *LoanService
	notifications    *NotificationService
	tokens           *auth.TokenManager
	impersonationTTL time.Duration
	audit            *AuditRecorder
	log              logrus.FieldLogger
}

func NewAdminService(
	users repository.UserRepository,
	loans *LoanService,
	notifications *NotificationService,
	tokens *auth.TokenManager,
	impersonationTTL time.Duration,
	audit *AuditRecorder,
	log logrus.FieldLogger,
) *AdminService {
	return &AdminService{
		users:            users,
		loans:            loans,
		notifications:    notifications,
		tokens:           tokens,
		impersonationTTL: impersonationTTL,
		audit:            audit,
		log:              log.WithField("component", "admin_service"),
	}
}

func (s *AdminService) ListUsers(ctx context.Context, page domain.Page) (*domain.ListResponse[*domain.User], error) {
	page = page.Normalize()
	users, total, err := s.users.List(ctx, page)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return &domain.ListResponse[*domain.User]{Items: users, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

func (s *AdminService) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapUserNotFound(id.String())
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return user, nil
}

func (s *AdminService) UpdateUser(ctx context.Context, meta domain.RequestMeta, id uuid.UUID, req *domain.UpdateUserRequest) (*domain.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	details := map[string]interface{}{}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
		details["name"] = user.Name
	}
	if req.Role != nil {
		user.Role = *req.Role
		details["role"] = user.Role
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
		details["is_active"] = user.IsActive
	}

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, customError.WrapUserNotFound(id.String())
		}
		return nil, customError.WrapDatabaseError(err)
	}

	s.audit.Record(ctx, meta, domain.AuditUserUpdate, targetUser, id.String(), details)
	return user, nil
}

// DeleteUser removes an account and, through cascades, everything it owns
func (s *AdminService) DeleteUser(ctx context.Context, meta domain.RequestMeta, id uuid.UUID) error {
	if id == meta.ActorID {
		return customError.WrapCannotDeleteSelf()
	}

	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}

	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return customError.WrapUserNotFound(id.String())
		}
		return customError.WrapDatabaseError(err)
	}

	s.notifications.ForgetUnread(ctx, id)
	s.log.WithField("user_id", id).Info("User deleted")
	s.audit.Record(ctx, meta, domain.AuditUserDelete, targetUser, id.String(), map[string]interface{}{
		"email": user.Email,
	})
	return nil
}

func (s *AdminService) ListAllLoans(ctx context.Context, filter domain.LoanFilter) (*domain.ListResponse[*domain.Loan], error) {
	return s.loans.ListAll(ctx, filter)
}

func (s *AdminService) CreateLoanForUser(ctx context.Context, meta domain.RequestMeta, userID uuid.UUID, req *domain.CreateLoanRequest) (*domain.Loan, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	loan, err := s.loans.CreateFor(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, meta, domain.AuditLoanCreateForUser, targetLoan, loan.ID.String(), map[string]interface{}{
		"owner_user_id": userID.String(),
		"borrower_name": loan.BorrowerName,
		"actual_amount": loan.ActualAmount.String(),
	})
	return loan, nil
}

func (s *AdminService) UpdateAnyLoan(ctx context.Context, meta domain.RequestMeta, id uuid.UUID, req *domain.UpdateLoanRequest) (*domain.Loan, error) {
	loan, err := s.loans.UpdateAny(ctx, meta.ActorID, id, req)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, meta, domain.AuditLoanUpdate, targetLoan, id.String(), map[string]interface{}{
		"owner_user_id": loan.OwnerUserID.String(),
		"status":        loan.Status,
		"due_date":      loan.DueDate,
		"actual_amount": loan.ActualAmount.String(),
	})
	return loan, nil
}

func (s *AdminService) DeleteAnyLoan(ctx context.Context, meta domain.RequestMeta, id uuid.UUID) error {
	if err := s.loans.DeleteAny(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, meta, domain.AuditLoanDelete, targetLoan, id.String(), nil)
	return nil
}

func (s *AdminService) ListAuditLogs(ctx context.Context, filter domain.AuditFilter) (*domain.ListResponse[*domain.AuditLog], error) {
	filter.Page = filter.Page.Normalize()
	entries, total, err := s.audit.List(ctx, filter)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return &domain.ListResponse[*domain.AuditLog]{
		Items:  entries,
		Total:  int(total),
		Limit:  filter.Page.Limit,
		Offset: filter.Page.Offset,
	}, nil
}

// Impersonate issues a short-lived token for a non-admin user
func (s *AdminService) Impersonate(ctx context.Context, meta domain.RequestMeta, id uuid.UUID) (*domain.ImpersonationResponse, error) {
	target, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if target.IsAdmin() {
		return nil, customError.WrapCannotImpersonate("Admins cannot be impersonated")
	}
	if !target.IsActive {
		return nil, customError.WrapCannotImpersonate("Inactive users cannot be impersonated")
	}

	admin := meta.ActorID
	token, expiresAt, err := s.tokens.IssueWithTTL(target, s.impersonationTTL, &admin)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"admin_id": admin, "user_id": id}).Warn("Impersonation token issued")
	s.audit.Record(ctx, meta, domain.AuditImpersonate, targetUser, id.String(), map[string]interface{}{
		"expires_at": expiresAt,
	})

	return &domain.ImpersonationResponse{
		Token:          token,
		ExpiresAt:      expiresAt,
		User:           target,
		ImpersonatedBy: admin,
	}, nil
}

// RunNotifications runs the notification generator on demand
func (s *AdminService) RunNotifications(ctx context.Context, meta domain.RequestMeta) (*domain.RunReport, error) {
	report, err := s.notifications.RunGenerator(ctx)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, meta, domain.AuditNotificationsRun, targetJob, "notification-generator", map[string]interface{}{
		"loans_scanned":   report.LoansScanned,
		"created":         report.Created,
		"already_existed": report.AlreadyExisted,
		"failed":          report.Failed,
	})
	return report, nil
}
