package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-tracker/internal/domain"
	"github.com/segyhp/loan-tracker/internal/export"
	"github.com/segyhp/loan-tracker/internal/repository"
	customError "github.com/segyhp/loan-tracker/pkg/errors"
	"github.com/segyhp/loan-tracker/pkg/utils"
)

type LoanService struct {
	loans     repository.LoanRepository
	unread    repository.UnreadCountCache
	formatter *utils.Formatter
	loc       *time.Location
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewLoanService wires the service; unread may be nil to disable caching
func NewLoanService(
	loans repository.LoanRepository,
	unread repository.UnreadCountCache,
	formatter *utils.Formatter,
	loc *time.Location,
	log logrus.FieldLogger,
) *LoanService {
	if loc == nil {
		loc = time.UTC
	}
	return &LoanService{
		loans:     loans,
		unread:    unread,
		formatter: formatter,
		loc:       loc,
		log:       log.WithField("component", "loan_service"),
		now:       time.Now,
	}
}

// Create records a loan owned by the caller
func (s *LoanService) Create(ctx context.Context, actor domain.Actor, req *domain.CreateLoanRequest) (*domain.Loan, error) {
	return s.CreateFor(ctx, actor.UserID, req)
}

// CreateFor records a loan owned by ownerID
func (s *LoanService) CreateFor(ctx context.Context, ownerID uuid.UUID, req *domain.CreateLoanRequest) (*domain.Loan, error) {
	given, err := s.parseDate("given_date", req.GivenDate)
	if err != nil {
		return nil, err
	}
	due, err := s.parseDate("due_date", req.DueDate)
	if err != nil {
		return nil, err
	}

	now := s.now()
	loan := &domain.Loan{
		ID:              uuid.New(),
		OwnerUserID:     ownerID,
		BorrowerName:    strings.TrimSpace(req.BorrowerName),
		BorrowerContact: strings.TrimSpace(req.BorrowerContact),
		PrincipalAmount: req.PrincipalAmount,
		InterestAmount:  req.InterestAmount,
		GivenDate:       given,
		DueDate:         due,
		Notes:           req.Notes,
		Status:          domain.LoanStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	loan.RecalculateActual()

	if err := validateLoan(loan); err != nil {
		return nil, err
	}

	if err := s.loans.Create(ctx, loan); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	s.log.WithFields(logrus.Fields{"loan_id": loan.ID, "owner_id": ownerID}).Info("Loan created")
	return loan, nil
}

// Get returns a loan the caller may see; other users' loans read as not found
func (s *LoanService) Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Loan, error) {
	return s.loadVisible(ctx, actor, id)
}

// List returns the caller's own loans
func (s *LoanService) List(ctx context.Context, actor domain.Actor, filter domain.LoanFilter) (*domain.ListResponse[*domain.Loan], error) {
	owner := actor.UserID
	filter.OwnerID = &owner
	return s.list(ctx, filter)
}

// ListAll returns loans across owners, optionally narrowed to filter.OwnerID
func (s *LoanService) ListAll(ctx context.Context, filter domain.LoanFilter) (*domain.ListResponse[*domain.Loan], error) {
	return s.list(ctx, filter)
}

func (s *LoanService) list(ctx context.Context, filter domain.LoanFilter) (*domain.ListResponse[*domain.Loan], error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, customError.WrapInvalidRequest("status must be ACTIVE, OVERDUE or COMPLETED", nil)
	}
	filter.Page = filter.Page.Normalize()

	loans, total, err := s.loans.List(ctx, filter)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	return &domain.ListResponse[*domain.Loan]{
		Items:  loans,
		Total:  total,
		Limit:  filter.Page.Limit,
		Offset: filter.Page.Offset,
	}, nil
}

// Update edits one of the caller's loans
func (s *LoanService) Update(ctx context.Context, actor domain.Actor, id uuid.UUID, req *domain.UpdateLoanRequest) (*domain.Loan, error) {
	loan, err := s.loadVisible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.applyUpdate(ctx, actor.UserID, loan, req)
}

// UpdateAny edits any loan on behalf of changedBy
func (s *LoanService) UpdateAny(ctx context.Context, changedBy uuid.UUID, id uuid.UUID, req *domain.UpdateLoanRequest) (*domain.Loan, error) {
	loan, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.applyUpdate(ctx, changedBy, loan, req)
}

func (s *LoanService) applyUpdate(ctx context.Context, changedBy uuid.UUID, loan *domain.Loan, req *domain.UpdateLoanRequest) (*domain.Loan, error) {
	oldDue := loan.DueDate
	oldInterest := loan.InterestAmount

	if req.BorrowerName != nil {
		loan.BorrowerName = strings.TrimSpace(*req.BorrowerName)
	}
	if req.BorrowerContact != nil {
		loan.BorrowerContact = strings.TrimSpace(*req.BorrowerContact)
	}
	if req.PrincipalAmount != nil {
		loan.PrincipalAmount = *req.PrincipalAmount
	}
	if req.InterestAmount != nil {
		loan.InterestAmount = *req.InterestAmount
	}
	if req.GivenDate != nil {
		given, err := s.parseDate("given_date", *req.GivenDate)
		if err != nil {
			return nil, err
		}
		loan.GivenDate = given
	}
	if req.DueDate != nil {
		due, err := s.parseDate("due_date", *req.DueDate)
		if err != nil {
			return nil, err
		}
		loan.DueDate = due
	}
	if req.Notes != nil {
		loan.Notes = *req.Notes
	}
	if req.Status != nil {
		s.setStatus(loan, *req.Status)
	}
	loan.RecalculateActual()

	if err := validateLoan(loan); err != nil {
		return nil, err
	}

	history := &domain.LoanHistory{
		ID:                uuid.New(),
		LoanID:            loan.ID,
		ChangedByUserID:   changedBy,
		OldDueDate:        oldDue,
		NewDueDate:        loan.DueDate,
		OldInterestAmount: oldInterest,
		NewInterestAmount: loan.InterestAmount,
		Note:              req.HistoryNote,
		CreatedAt:         s.now(),
	}
	if !history.DueDateChanged() && !history.InterestChanged() {
		history = nil
	}

	if err := s.loans.UpdateWithHistory(ctx, loan, history); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, customError.WrapLoanNotFound(loan.ID.String())
		}
		return nil, customError.WrapDatabaseError(err)
	}

	s.log.WithFields(logrus.Fields{
		"loan_id":         loan.ID,
		"history_written": history != nil,
	}).Info("Loan updated")
	return loan, nil
}

// Complete marks one of the caller's loans as repaid
func (s *LoanService) Complete(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Loan, error) {
	loan, err := s.loadVisible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if loan.Status == domain.LoanStatusCompleted {
		return nil, customError.WrapLoanAlreadyCompleted(id.String())
	}

	s.setStatus(loan, domain.LoanStatusCompleted)
	if err := s.loans.Update(ctx, loan); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	s.log.WithField("loan_id", loan.ID).Info("Loan completed")
	return loan, nil
}

// Delete removes one of the caller's loans with its history and notifications
func (s *LoanService) Delete(ctx context.Context, actor domain.Actor, id uuid.UUID) error {
	loan, err := s.loadVisible(ctx, actor, id)
	if err != nil {
		return err
	}
	return s.remove(ctx, loan)
}

func (s *LoanService) DeleteAny(ctx context.Context, id uuid.UUID) error {
	loan, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	return s.remove(ctx, loan)
}

// remove deletes the loan. The cascade drops its notifications, so the
// owner's cached unread count is stale afterwards.
func (s *LoanService) remove(ctx context.Context, loan *domain.Loan) error {
	err := s.loans.Delete(ctx, loan.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return customError.WrapLoanNotFound(loan.ID.String())
	}
	if err != nil {
		return customError.WrapDatabaseError(err)
	}

	invalidateUnread(ctx, s.unread, loan.OwnerUserID, s.log)
	s.log.WithFields(logrus.Fields{"loan_id": loan.ID, "owner_id": loan.OwnerUserID}).Info("Loan deleted")
	return nil
}

func (s *LoanService) History(ctx context.Context, actor domain.Actor, id uuid.UUID) ([]*domain.LoanHistory, error) {
	if _, err := s.loadVisible(ctx, actor, id); err != nil {
		return nil, err
	}
	history, err := s.loans.ListHistory(ctx, id)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return history, nil
}

func (s *LoanService) Summary(ctx context.Context, actor domain.Actor) (*domain.LoanSummary, error) {
	owner := actor.UserID
	summary, err := s.loans.Summary(ctx, &owner)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return summary, nil
}

// ExportResult is a rendered loan export ready to download
type ExportResult struct {
	Format   export.Format
	FileName string
	Data     []byte
}

// Export renders the caller's loans, or every loan for admins
func (s *LoanService) Export(ctx context.Context, actor domain.Actor, format string, filter domain.LoanFilter) (*ExportResult, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, customError.WrapInvalidExportFormat(format)
	}

	filter.OwnerID = nil
	if !actor.IsAdmin() {
		owner := actor.UserID
		filter.OwnerID = &owner
	}

	loans, err := s.loans.ListAll(ctx, filter)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, f, loans, s.formatter); err != nil {
		return nil, err
	}

	return &ExportResult{Format: f, FileName: f.FileName(s.now()), Data: buf.Bytes()}, nil
}

func (s *LoanService) load(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	loan, err := s.loans.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapLoanNotFound(id.String())
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return loan, nil
}

func (s *LoanService) loadVisible(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Loan, error) {
	loan, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if loan.OwnerUserID != actor.UserID && !actor.IsAdmin() {
		return nil, customError.WrapLoanNotFound(id.String())
	}
	return loan, nil
}

func (s *LoanService) setStatus(loan *domain.Loan, status domain.LoanStatus) {
	if status == domain.LoanStatusCompleted && loan.Status != domain.LoanStatusCompleted {
		at := s.now()
		loan.CompletedAt = &at
	}
	if status != domain.LoanStatusCompleted {
		loan.CompletedAt = nil
	}
	loan.Status = status
}

func (s *LoanService) parseDate(field, value string) (time.Time, error) {
	t, err := utils.ParseLocalDate(value, s.loc)
	if err != nil {
		return time.Time{}, customError.WrapInvalidLoan(field + " must be a YYYY-MM-DD date")
	}
	return t, nil
}

func validateLoan(loan *domain.Loan) error {
	if loan.BorrowerName == "" {
		return customError.WrapInvalidLoan("borrower_name is required")
	}
	if !loan.PrincipalAmount.GreaterThan(decimal.Zero) {
		return customError.WrapInvalidLoan("principal_amount must be greater than 0")
	}
	if loan.InterestAmount.IsNegative() {
		return customError.WrapInvalidLoan("interest_amount must not be negative")
	}
	if loan.DueDate.Before(loan.GivenDate) {
		return customError.WrapInvalidLoan("due_date must not be before given_date")
	}
	if !loan.Status.Valid() {
		return customError.WrapInvalidLoan("unknown status")
	}
	return nil
}
