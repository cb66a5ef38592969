package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/segyhp/loan-tracker/internal/domain"
)

const loanColumns = `id, owner_user_id, borrower_name, borrower_contact, principal_amount, interest_amount,
		actual_amount, given_date, due_date, notes, status, completed_at, created_at, updated_at`

type loanRepository struct {
	db *sqlx.DB
}

func NewLoanRepository(db *sqlx.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	query := `
		INSERT INTO loans (` + loanColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(ctx, query,
		loan.ID,
		loan.OwnerUserID,
		loan.BorrowerName,
		loan.BorrowerContact,
		loan.PrincipalAmount,
		loan.InterestAmount,
		loan.ActualAmount,
		loan.GivenDate,
		loan.DueDate,
		loan.Notes,
		loan.Status,
		loan.CompletedAt,
		loan.CreatedAt,
		loan.UpdatedAt,
	)

	return translateError(err)
}

func (r *loanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`

	var loan domain.Loan
	if err := r.db.GetContext(ctx, &loan, query, id); err != nil {
		return nil, translateError(err)
	}

	return &loan, nil
}

func (r *loanRepository) List(ctx context.Context, filter domain.LoanFilter) ([]*domain.Loan, int, error) {
	where, args := loanWhere(filter)
	page := filter.Page.Normalize()

	var total int
	countQuery := `SELECT COUNT(*) FROM loans` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM loans%s ORDER BY due_date ASC, created_at ASC LIMIT $%d OFFSET $%d`,
		loanColumns, where, len(args)+1, len(args)+2)

	loans := []*domain.Loan{}
	if err := r.db.SelectContext(ctx, &loans, query, append(args, page.Limit, page.Offset)...); err != nil {
		return nil, 0, err
	}

	return loans, total, nil
}

func (r *loanRepository) ListAll(ctx context.Context, filter domain.LoanFilter) ([]*domain.Loan, error) {
	where, args := loanWhere(filter)
	query := `SELECT ` + loanColumns + ` FROM loans` + where + ` ORDER BY due_date ASC, created_at ASC`

	loans := []*domain.Loan{}
	if err := r.db.SelectContext(ctx, &loans, query, args...); err != nil {
		return nil, err
	}

	return loans, nil
}

func (r *loanRepository) ListActive(ctx context.Context) ([]*domain.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE status <> $1
		ORDER BY due_date ASC
	`

	var loans []*domain.Loan
	if err := r.db.SelectContext(ctx, &loans, query, domain.LoanStatusCompleted); err != nil {
		return nil, err
	}

	return loans, nil
}

func (r *loanRepository) Update(ctx context.Context, loan *domain.Loan) error {
	return updateLoan(ctx, r.db, loan)
}

func (r *loanRepository) UpdateWithHistory(ctx context.Context, loan *domain.Loan, history *domain.LoanHistory) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := updateLoan(ctx, tx, loan); err != nil {
		return err
	}

	if history != nil {
		query := `
			INSERT INTO loan_history (id, loan_id, changed_by_user_id, old_due_date, new_due_date,
				old_interest_amount, new_interest_amount, note, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`
		_, err = tx.ExecContext(ctx, query,
			history.ID,
			history.LoanID,
			history.ChangedByUserID,
			history.OldDueDate,
			history.NewDueDate,
			history.OldInterestAmount,
			history.NewInterestAmount,
			history.Note,
			history.CreatedAt,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *loanRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM loans WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *loanRepository) ListHistory(ctx context.Context, loanID uuid.UUID) ([]*domain.LoanHistory, error) {
	query := `
		SELECT id, loan_id, changed_by_user_id, old_due_date, new_due_date,
			old_interest_amount, new_interest_amount, note, created_at
		FROM loan_history
		WHERE loan_id = $1
		ORDER BY created_at DESC
	`

	history := []*domain.LoanHistory{}
	if err := r.db.SelectContext(ctx, &history, query, loanID); err != nil {
		return nil, err
	}

	return history, nil
}

type statusRow struct {
	Status domain.LoanStatus `db:"status"`
	Count  int               `db:"count"`
	Amount decimal.Decimal   `db:"amount"`
}

func (r *loanRepository) Summary(ctx context.Context, ownerID *uuid.UUID) (*domain.LoanSummary, error) {
	where, args := loanWhere(domain.LoanFilter{OwnerID: ownerID})
	query := `
		SELECT status, COUNT(*) AS count, COALESCE(SUM(actual_amount), 0) AS amount
		FROM loans` + where + `
		GROUP BY status
	`

	var rows []statusRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	return buildSummary(rows), nil
}

func buildSummary(rows []statusRow) *domain.LoanSummary {
	summary := &domain.LoanSummary{
		ByStatus:          make(map[domain.LoanStatus]domain.StatusTotals),
		OutstandingAmount: decimal.Zero,
		CompletedAmount:   decimal.Zero,
	}
	for _, row := range rows {
		summary.TotalLoans += row.Count
		summary.ByStatus[row.Status] = domain.StatusTotals{Count: row.Count, Amount: row.Amount}
		if row.Status == domain.LoanStatusCompleted {
			summary.CompletedAmount = summary.CompletedAmount.Add(row.Amount)
		} else {
			summary.OutstandingAmount = summary.OutstandingAmount.Add(row.Amount)
		}
	}
	return summary
}

// likeEscaper makes search text match literally inside an ILIKE pattern
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// loanWhere builds the WHERE clause shared by listings, counts and summaries
func loanWhere(filter domain.LoanFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		clauses = append(clauses, fmt.Sprintf("owner_user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+likeEscaper.Replace(search)+"%")
		clauses = append(clauses, fmt.Sprintf(`borrower_name ILIKE $%d ESCAPE '\'`, len(args)))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func updateLoan(ctx context.Context, exec sqlx.ExecerContext, loan *domain.Loan) error {
	query := `
		UPDATE loans
		SET borrower_name = $2, borrower_contact = $3, principal_amount = $4, interest_amount = $5,
			actual_amount = $6, given_date = $7, due_date = $8, notes = $9, status = $10,
			completed_at = $11, updated_at = $12
		WHERE id = $1
	`

	loan.UpdatedAt = time.Now()
	res, err := exec.ExecContext(ctx, query,
		loan.ID,
		loan.BorrowerName,
		loan.BorrowerContact,
		loan.PrincipalAmount,
		loan.InterestAmount,
		loan.ActualAmount,
		loan.GivenDate,
		loan.DueDate,
		loan.Notes,
		loan.Status,
		loan.CompletedAt,
		loan.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
