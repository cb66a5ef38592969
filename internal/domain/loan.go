package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LoanStatus string

const (
	LoanStatusActive    LoanStatus = "ACTIVE"
	LoanStatusOverdue   LoanStatus = "OVERDUE"
	LoanStatusCompleted LoanStatus = "COMPLETED"
)

func (s LoanStatus) Valid() bool {
	switch s {
	case LoanStatusActive, LoanStatusOverdue, LoanStatusCompleted:
		return true
	}
	return false
}

// Loan represents money lent by its owner to a borrower
type Loan struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	OwnerUserID     uuid.UUID       `json:"owner_user_id" db:"owner_user_id"`
	BorrowerName    string          `json:"borrower_name" db:"borrower_name"`
	BorrowerContact string          `json:"borrower_contact" db:"borrower_contact"`
	PrincipalAmount decimal.Decimal `json:"principal_amount" db:"principal_amount"`
	InterestAmount  decimal.Decimal `json:"interest_amount" db:"interest_amount"`
	ActualAmount    decimal.Decimal `json:"actual_amount" db:"actual_amount"`
	GivenDate       time.Time       `json:"given_date" db:"given_date"`
	DueDate         time.Time       `json:"due_date" db:"due_date"`
	Notes           string          `json:"notes" db:"notes"`
	Status          LoanStatus      `json:"status" db:"status"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the loan still needs reminders. Any stored
// status other than COMPLETED counts, whatever the due date says.
func (l *Loan) IsActive() bool {
	return l.Status != LoanStatusCompleted
}

// RecalculateActual sets ActualAmount = principal + interest
func (l *Loan) RecalculateActual() {
	l.ActualAmount = l.PrincipalAmount.Add(l.InterestAmount)
}

// LoanHistory is an append-only record of a due date or interest change
type LoanHistory struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	LoanID            uuid.UUID       `json:"loan_id" db:"loan_id"`
	ChangedByUserID   uuid.UUID       `json:"changed_by_user_id" db:"changed_by_user_id"`
	OldDueDate        time.Time       `json:"old_due_date" db:"old_due_date"`
	NewDueDate        time.Time       `json:"new_due_date" db:"new_due_date"`
	OldInterestAmount decimal.Decimal `json:"old_interest_amount" db:"old_interest_amount"`
	NewInterestAmount decimal.Decimal `json:"new_interest_amount" db:"new_interest_amount"`
	Note              string          `json:"note" db:"note"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

func (h *LoanHistory) DueDateChanged() bool {
	return !h.OldDueDate.Equal(h.NewDueDate)
}

func (h *LoanHistory) InterestChanged() bool {
	return !h.OldInterestAmount.Equal(h.NewInterestAmount)
}

// LoanFilter narrows loan listings. A nil OwnerID lists across owners.
type LoanFilter struct {
	OwnerID *uuid.UUID
	Status  LoanStatus
	Search  string
	Page    Page
}

type StatusTotals struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

type LoanSummary struct {
	TotalLoans        int                         `json:"total_loans"`
	ByStatus          map[LoanStatus]StatusTotals `json:"by_status"`
	OutstandingAmount decimal.Decimal             `json:"outstanding_amount"`
	CompletedAmount   decimal.Decimal             `json:"completed_amount"`
}

// DTOs for requests and responses

type CreateLoanRequest struct {
	BorrowerName    string          `json:"borrower_name" validate:"required,max=200"`
	BorrowerContact string          `json:"borrower_contact" validate:"omitempty,max=200"`
	PrincipalAmount decimal.Decimal `json:"principal_amount" validate:"gt=0"`
	InterestAmount  decimal.Decimal `json:"interest_amount" validate:"gte=0"`
	GivenDate       string          `json:"given_date" validate:"required,datetime=2006-01-02"`
	DueDate         string          `json:"due_date" validate:"required,datetime=2006-01-02"`
	Notes           string          `json:"notes" validate:"omitempty,max=2000"`
}

type UpdateLoanRequest struct {
	BorrowerName    *string          `json:"borrower_name" validate:"omitempty,min=1,max=200"`
	BorrowerContact *string          `json:"borrower_contact" validate:"omitempty,max=200"`
	PrincipalAmount *decimal.Decimal `json:"principal_amount" validate:"omitempty,gt=0"`
	InterestAmount  *decimal.Decimal `json:"interest_amount" validate:"omitempty,gte=0"`
	GivenDate       *string          `json:"given_date" validate:"omitempty,datetime=2006-01-02"`
	DueDate         *string          `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Notes           *string          `json:"notes" validate:"omitempty,max=2000"`
	Status          *LoanStatus      `json:"status" validate:"omitempty,oneof=ACTIVE OVERDUE COMPLETED"`
	HistoryNote     string           `json:"history_note" validate:"omitempty,max=500"`
}
