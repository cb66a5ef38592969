package repository

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/loan-tracker/internal/config"
	"github.com/segyhp/loan-tracker/internal/domain"
)

const testDBName = "loan_tracker_test"

var testDB *sqlx.DB

func TestMain(m *testing.M) {
	if err := setup(); err != nil {
		fmt.Fprintf(os.Stderr, "postgres tests skipped: %v\n", err)
	}
	code := m.Run()
	teardown()
	os.Exit(code)
}

func adminDSN() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	cfg.Database.URL = ""
	cfg.Database.Name = "postgres"
	return cfg.Database.DSN(), nil
}

func setup() error {
	dsn, err := adminDSN()
	if err != nil {
		return err
	}
	adminDB, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return fmt.Errorf("connect to postgres database: %w", err)
	}
	defer adminDB.Close()

	_, _ = adminDB.Exec("DROP DATABASE IF EXISTS " + testDBName)
	if _, err := adminDB.Exec("CREATE DATABASE " + testDBName); err != nil {
		return fmt.Errorf("create test database: %w", err)
	}

	cfg, _ := config.Load()
	cfg.Database.URL = ""
	cfg.Database.Name = testDBName
	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connect to test database: %w", err)
	}

	schema, err := os.ReadFile("../../scripts/init.sql")
	if err != nil {
		db.Close()
		return fmt.Errorf("read init.sql: %w", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		db.Close()
		return fmt.Errorf("execute init.sql: %w", err)
	}

	testDB = db
	return nil
}

func teardown() {
	if testDB == nil {
		return
	}
	testDB.Close()

	dsn, err := adminDSN()
	if err != nil {
		return
	}
	adminDB, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return
	}
	defer adminDB.Close()
	_, _ = adminDB.Exec("DROP DATABASE IF EXISTS " + testDBName)
}

// setupTestDB returns a clean shared database, skipping when postgres is unavailable
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if testDB == nil {
		t.Skip("postgres not available")
	}
	testDB.MustExec("DELETE FROM notifications")
	testDB.MustExec("DELETE FROM loan_history")
	testDB.MustExec("DELETE FROM loans")
	testDB.MustExec("DELETE FROM users")
	return testDB
}

func seedUser(t *testing.T, repo UserRepository, email string) *domain.User {
	t.Helper()
	now := time.Now()
	user := &domain.User{
		ID:           uuid.New(),
		Name:         "Test User",
		Email:        email,
		PasswordHash: "hash",
		Role:         domain.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, repo.Create(context.Background(), user))
	return user
}

func seedLoan(t *testing.T, repo LoanRepository, owner uuid.UUID, borrower string, due time.Time, status domain.LoanStatus) *domain.Loan {
	t.Helper()
	now := time.Now()
	loan := &domain.Loan{
		ID:              uuid.New(),
		OwnerUserID:     owner,
		BorrowerName:    borrower,
		PrincipalAmount: decimal.NewFromInt(1000),
		InterestAmount:  decimal.NewFromInt(100),
		GivenDate:       due.AddDate(0, -1, 0),
		DueDate:         due,
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	loan.RecalculateActual()
	require.NoError(t, repo.Create(context.Background(), loan))
	return loan
}

func TestUserRepository_EmailUniqueCaseInsensitive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := seedUser(t, repo, "Asha@Example.com")

	got, err := repo.GetByEmail(ctx, "ASHA@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	dup := &domain.User{ID: uuid.New(), Name: "Other", Email: "asha@example.com", PasswordHash: "x", Role: domain.RoleUser}
	assert.ErrorIs(t, repo.Create(ctx, dup), ErrDuplicate)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoanRepository_ListFilterAndActive(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepository(db)
	repo := NewLoanRepository(db)
	ctx := context.Background()

	owner := seedUser(t, users, "owner@example.com")
	other := seedUser(t, users, "other@example.com")
	due := time.Date(2024, 6, 13, 0, 0, 0, 0, time.UTC)

	seedLoan(t, repo, owner.ID, "Ravi Kumar", due, domain.LoanStatusActive)
	seedLoan(t, repo, owner.ID, "Meera", due.AddDate(0, 0, 1), domain.LoanStatusCompleted)
	seedLoan(t, repo, other.ID, "Ravi Shah", due, domain.LoanStatusOverdue)

	loans, total, err := repo.List(ctx, domain.LoanFilter{OwnerID: &owner.ID, Page: domain.Page{Limit: 10}})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, loans, 2)

	loans, total, err = repo.List(ctx, domain.LoanFilter{Search: "ravi", Page: domain.Page{Limit: 1}})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, loans, 1)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)
	for _, l := range active {
		assert.NotEqual(t, domain.LoanStatusCompleted, l.Status)
	}

	summary, err := repo.Summary(ctx, &owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalLoans)
	assert.True(t, summary.OutstandingAmount.Equal(decimal.NewFromInt(1100)))
	assert.True(t, summary.CompletedAmount.Equal(decimal.NewFromInt(1100)))
}

func TestLoanRepository_UpdateWithHistory(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepository(db)
	repo := NewLoanRepository(db)
	ctx := context.Background()

	owner := seedUser(t, users, "owner@example.com")
	loan := seedLoan(t, repo, owner.ID, "Ravi", time.Date(2024, 6, 13, 0, 0, 0, 0, time.UTC), domain.LoanStatusActive)

	history := &domain.LoanHistory{
		ID:                uuid.New(),
		LoanID:            loan.ID,
		ChangedByUserID:   owner.ID,
		OldDueDate:        loan.DueDate,
		NewDueDate:        loan.DueDate.AddDate(0, 0, 7),
		OldInterestAmount: loan.InterestAmount,
		NewInterestAmount: loan.InterestAmount,
		Note:              "extended",
		CreatedAt:         time.Now(),
	}
	loan.DueDate = history.NewDueDate
	require.NoError(t, repo.UpdateWithHistory(ctx, loan, history))

	got, err := repo.GetByID(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, got.DueDate.Equal(history.NewDueDate))

	entries, err := repo.ListHistory(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "extended", entries[0].Note)

	require.NoError(t, repo.Delete(ctx, loan.ID))
	entries, err = repo.ListHistory(ctx, loan.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.ErrorIs(t, repo.Delete(ctx, loan.ID), ErrNotFound)
}

func TestNotificationRepository_UniqueKeyAndReads(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepository(db)
	loans := NewLoanRepository(db)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	owner := seedUser(t, users, "owner@example.com")
	loan := seedLoan(t, loans, owner.ID, "Ravi", time.Date(2024, 6, 13, 0, 0, 0, 0, time.UTC), domain.LoanStatusActive)

	inApp := &domain.Notification{
		ID: uuid.New(), UserID: owner.ID, LoanID: &loan.ID,
		Type: domain.NotificationTypeDueSoon, Channel: domain.ChannelInApp,
		Title: "Loan due in 3 days", Message: "m", CreatedAt: time.Now(),
	}
	require.NoError(t, repo.Create(ctx, inApp))

	dup := *inApp
	dup.ID = uuid.New()
	assert.ErrorIs(t, repo.Create(ctx, &dup), ErrDuplicate)

	found, err := repo.FindByKey(ctx, domain.NotificationKey{LoanID: loan.ID, Type: domain.NotificationTypeDueSoon, Channel: domain.ChannelInApp})
	require.NoError(t, err)
	assert.Equal(t, inApp.ID, found.ID)

	_, err = repo.FindByKey(ctx, domain.NotificationKey{LoanID: loan.ID, Type: domain.NotificationTypeOverdue, Channel: domain.ChannelInApp})
	assert.ErrorIs(t, err, ErrNotFound)

	count, err := repo.CountUnread(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	first := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, repo.MarkRead(ctx, inApp.ID, first))
	require.NoError(t, repo.MarkRead(ctx, inApp.ID, time.Now()))

	got, err := repo.GetByID(ctx, inApp.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ReadAt)
	assert.True(t, got.ReadAt.Equal(first))

	updated, err := repo.MarkAllRead(ctx, owner.ID, time.Now())
	require.NoError(t, err)
	assert.Zero(t, updated)
}

func TestNotificationRepository_PendingEmails(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepository(db)
	loans := NewLoanRepository(db)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	owner := seedUser(t, users, "owner@example.com")
	loan := seedLoan(t, loans, owner.ID, "Ravi", time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC), domain.LoanStatusActive)

	pending := domain.EmailStatusPending
	email := &domain.Notification{
		ID: uuid.New(), UserID: owner.ID, LoanID: &loan.ID,
		Type: domain.NotificationTypeDueSoon, Channel: domain.ChannelEmail,
		Title: "Loan due tomorrow", Message: "m", EmailStatus: &pending, CreatedAt: time.Now(),
	}
	require.NoError(t, repo.Create(ctx, email))

	items, err := repo.ClaimPendingEmails(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].EmailStatus)
	assert.Equal(t, domain.EmailStatusSending, *items[0].EmailStatus)

	// a claimed row is not handed out again
	items, err = repo.ClaimPendingEmails(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, items)

	sentAt := time.Now()
	require.NoError(t, repo.UpdateEmailStatus(ctx, email.ID, domain.EmailStatusSent, nil, &sentAt))

	got, err := repo.GetByID(ctx, email.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EmailStatusSent, *got.EmailStatus)

	assert.ErrorIs(t, repo.UpdateEmailStatus(ctx, uuid.New(), domain.EmailStatusSent, nil, &sentAt), ErrNotFound)
}

func TestNotificationRepository_ConcurrentClaimsAreDisjoint(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepository(db)
	loans := NewLoanRepository(db)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	owner := seedUser(t, users, "owner@example.com")
	pending := domain.EmailStatusPending
	due := time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		loan := seedLoan(t, loans, owner.ID, fmt.Sprintf("Borrower %d", i), due, domain.LoanStatusActive)
		for _, typ := range []domain.NotificationType{domain.NotificationTypeDueSoon, domain.NotificationTypeOverdue} {
			require.NoError(t, repo.Create(ctx, &domain.Notification{
				ID: uuid.New(), UserID: owner.ID, LoanID: &loan.ID,
				Type: typ, Channel: domain.ChannelEmail,
				Title: "t", Message: "m", EmailStatus: &pending, CreatedAt: time.Now(),
			}))
		}
	}

	var (
		mu      sync.Mutex
		claimed = map[uuid.UUID]int{}
		wg      sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				items, err := repo.ClaimPendingEmails(ctx, 2)
				if !assert.NoError(t, err) || len(items) == 0 {
					return
				}
				mu.Lock()
				for _, n := range items {
					claimed[n.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, 12)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "notification %s claimed %d times", id, n)
	}
}
