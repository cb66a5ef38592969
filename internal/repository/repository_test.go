package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/segyhp/loan-tracker/internal/domain"
)

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name     string
		input    error
		expected error
	}{
		{name: "nil stays nil", input: nil, expected: nil},
		{name: "no rows", input: sql.ErrNoRows, expected: ErrNotFound},
		{name: "wrapped no rows", input: fmt.Errorf("get: %w", sql.ErrNoRows), expected: ErrNotFound},
		{name: "unique violation", input: &pq.Error{Code: "23505"}, expected: ErrDuplicate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, translateError(tt.input))
		})
	}

	other := &pq.Error{Code: "23503"}
	assert.Equal(t, error(other), translateError(other))

	plain := errors.New("connection reset")
	assert.Equal(t, plain, translateError(plain))
}

func TestLoanWhere(t *testing.T) {
	owner := uuid.New()

	where, args := loanWhere(domain.LoanFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = loanWhere(domain.LoanFilter{
		OwnerID: &owner,
		Status:  domain.LoanStatusActive,
		Search:  "  ravi ",
	})
	assert.Equal(t, ` WHERE owner_user_id = $1 AND status = $2 AND borrower_name ILIKE $3 ESCAPE '\'`, where)
	require.Len(t, args, 3)
	assert.Equal(t, owner, args[0])
	assert.Equal(t, domain.LoanStatusActive, args[1])
	assert.Equal(t, "%ravi%", args[2])

	_, args = loanWhere(domain.LoanFilter{Search: `50%_off\`})
	require.Len(t, args, 1)
	assert.Equal(t, `%50\%\_off\\%`, args[0])

	where, args = loanWhere(domain.LoanFilter{Status: domain.LoanStatusCompleted})
	assert.Equal(t, " WHERE status = $1", where)
	assert.Len(t, args, 1)
}

func TestBuildSummary(t *testing.T) {
	summary := buildSummary([]statusRow{
		{Status: domain.LoanStatusActive, Count: 2, Amount: decimal.NewFromInt(3000)},
		{Status: domain.LoanStatusOverdue, Count: 1, Amount: decimal.NewFromInt(500)},
		{Status: domain.LoanStatusCompleted, Count: 4, Amount: decimal.NewFromInt(8000)},
	})

	assert.Equal(t, 7, summary.TotalLoans)
	assert.True(t, decimal.NewFromInt(3500).Equal(summary.OutstandingAmount))
	assert.True(t, decimal.NewFromInt(8000).Equal(summary.CompletedAmount))
	assert.Equal(t, 1, summary.ByStatus[domain.LoanStatusOverdue].Count)

	empty := buildSummary(nil)
	assert.Zero(t, empty.TotalLoans)
	assert.True(t, empty.OutstandingAmount.IsZero())
	assert.NotNil(t, empty.ByStatus)
}

func TestAuditFilterDoc(t *testing.T) {
	assert.Equal(t, bson.M{}, auditFilterDoc(domain.AuditFilter{}))

	doc := auditFilterDoc(domain.AuditFilter{
		ActorID:    "admin-1",
		Action:     domain.AuditLoanDelete,
		TargetType: "loan",
		TargetID:   "loan-9",
	})
	assert.Equal(t, bson.M{
		"actor_id":    "admin-1",
		"action":      domain.AuditLoanDelete,
		"target_type": "loan",
		"target_id":   "loan-9",
	}, doc)
}
