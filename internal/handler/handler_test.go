package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/loan-tracker/internal/auth"
	"github.com/segyhp/loan-tracker/internal/domain"
	"github.com/segyhp/loan-tracker/internal/logger"
	"github.com/segyhp/loan-tracker/internal/mocks"
	"github.com/segyhp/loan-tracker/internal/repository"
	"github.com/segyhp/loan-tracker/internal/service"
	"github.com/segyhp/loan-tracker/internal/storage"
	"github.com/segyhp/loan-tracker/pkg/utils"
)

type fixture struct {
	router        http.Handler
	users         *mocks.MockUserRepository
	loans         *mocks.MockLoanRepository
	notifications *mocks.MockNotificationRepository
	audits        *mocks.MockAuditRepository
	tokens        *auth.TokenManager
}

func newFixture(t *testing.T, checks map[string]storage.Pinger) *fixture {
	t.Helper()
	log := logger.Discard()

	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	formatter, err := utils.NewFormatter("en-IN", "INR", loc)
	require.NoError(t, err)

	f := &fixture{
		users:         &mocks.MockUserRepository{},
		loans:         &mocks.MockLoanRepository{},
		notifications: &mocks.MockNotificationRepository{},
		audits:        &mocks.MockAuditRepository{},
		tokens:        auth.NewTokenManager("test-secret", time.Hour),
	}

	authSvc := service.NewAuthService(f.users, f.tokens, log)
	loanSvc := service.NewLoanService(f.loans, nil, formatter, loc, log)
	generator := service.NewNotificationGenerator(f.loans, f.notifications, nil, formatter, loc, log)
	notificationSvc := service.NewNotificationService(f.notifications, nil, generator, log)
	adminSvc := service.NewAdminService(f.users, loanSvc, notificationSvc, f.tokens, 15*time.Minute,
		service.NewAuditRecorder(f.audits, log), log)

	enforcer, err := auth.NewEnforcer()
	require.NoError(t, err)

	f.router = NewRouter(Handlers{
		Auth:          NewAuthHandler(authSvc, log),
		Loans:         NewLoanHandler(loanSvc, log),
		Notifications: NewNotificationHandler(notificationSvc, log),
		Admin:         NewAdminHandler(adminSvc, log),
		Health:        NewHealthHandler(checks, time.Second),
	}, authSvc, enforcer, RouterOptions{}, log)
	return f
}

// login registers user with the repository mock and returns a bearer token for it
func (f *fixture) login(t *testing.T, role domain.Role) (*domain.User, string) {
	t.Helper()
	user := &domain.User{ID: uuid.New(), Email: "someone@example.com", Role: role, IsActive: true}
	f.users.On("GetByID", mock.Anything, user.ID).Return(user, nil).Maybe()

	token, _, err := f.tokens.Issue(user)
	require.NoError(t, err)
	return user, token
}

func (f *fixture) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestHealth(t *testing.T) {
	healthy := storage.PingFunc(func(context.Context) error { return nil })
	broken := storage.PingFunc(func(context.Context) error { return errors.New("connection refused") })

	t.Run("ready when every store answers", func(t *testing.T) {
		f := newFixture(t, map[string]storage.Pinger{"database": healthy, "redis": healthy})
		w := f.do(http.MethodGet, "/health/ready", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unavailable when a store fails", func(t *testing.T) {
		f := newFixture(t, map[string]storage.Pinger{"database": healthy, "mongo": broken})
		w := f.do(http.MethodGet, "/health/ready", "", nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var status HealthStatus
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &status))
		assert.Equal(t, "error", status.Status)
		assert.Equal(t, "ok", status.Checks["database"])
		assert.Contains(t, status.Checks["mongo"], "connection refused")
	})

	t.Run("liveness needs no stores", func(t *testing.T) {
		f := newFixture(t, nil)
		assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "", nil).Code)
	})
}

func TestAuthAndRBAC(t *testing.T) {
	f := newFixture(t, nil)
	_, userToken := f.login(t, domain.RoleUser)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		status int
	}{
		{name: "missing token", method: http.MethodGet, path: "/api/v1/loans", status: http.StatusUnauthorized},
		{name: "garbage token", method: http.MethodGet, path: "/api/v1/loans", token: "not-a-jwt", status: http.StatusUnauthorized},
		{name: "user on admin route", method: http.MethodGet, path: "/api/v1/admin/users", token: userToken, status: http.StatusForbidden},
		{name: "malformed id", method: http.MethodGet, path: "/api/v1/loans/not-a-uuid", token: userToken, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(tt.method, tt.path, tt.token, nil)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestRBAC_DeniedCarriesForbiddenCode(t *testing.T) {
	f := newFixture(t, nil)
	_, token := f.login(t, domain.RoleUser)

	w := f.do(http.MethodGet, "/api/v1/admin/audit-logs", token, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", decode(t, w).Code)
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/api/v1/nope", "", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	env := decode(t, w)
	assert.False(t, env.Success)
	assert.Equal(t, "Route not found", env.Message)
}

func TestAuthenticate_InactiveUserRejected(t *testing.T) {
	f := newFixture(t, nil)
	user := &domain.User{ID: uuid.New(), Role: domain.RoleUser}
	f.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	token, _, err := f.tokens.Issue(user)
	require.NoError(t, err)

	w := f.do(http.MethodGet, "/api/v1/me", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "USER_INACTIVE", decode(t, w).Code)
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t, nil)

	f.users.On("GetByEmail", mock.Anything, "asha@example.com").Return(nil, repository.ErrNotFound).Once()
	f.users.On("Create", mock.Anything, mock.AnythingOfType("*domain.User")).Return(nil)

	w := f.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": "Asha", "email": "Asha@Example.com", "password": "correct-horse",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp domain.AuthResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "asha@example.com", resp.User.Email)

	hash, err := auth.HashPassword("correct-horse")
	require.NoError(t, err)
	stored := &domain.User{ID: uuid.New(), Email: "asha@example.com", PasswordHash: hash, Role: domain.RoleUser, IsActive: true}
	f.users.On("GetByEmail", mock.Anything, "asha@example.com").Return(stored, nil)

	w = f.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "asha@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decode(t, w).Code)

	w = f.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "asha@example.com", "password": "correct-horse"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegister_ValidationErrors(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{"name": "Asha", "email": "nope", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)

	w = f.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{"unexpected": "field"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateLoan(t *testing.T) {
	f := newFixture(t, nil)
	user, token := f.login(t, domain.RoleUser)

	t.Run("created for the caller", func(t *testing.T) {
		f.loans.On("Create", mock.Anything, mock.MatchedBy(func(l *domain.Loan) bool {
			return l.OwnerUserID == user.ID && l.ActualAmount.Equal(decimal.NewFromInt(5250))
		})).Return(nil).Once()

		w := f.do(http.MethodPost, "/api/v1/loans", token, map[string]interface{}{
			"borrower_name":    "Ravi",
			"principal_amount": "5000",
			"interest_amount":  "250",
			"given_date":       "2024-06-01",
			"due_date":         "2024-07-01",
		})
		assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	})

	t.Run("zero principal rejected by validation", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/loans", token, map[string]interface{}{
			"borrower_name":    "Ravi",
			"principal_amount": "0",
			"interest_amount":  "0",
			"given_date":       "2024-06-01",
			"due_date":         "2024-07-01",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("due before given rejected by service", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/loans", token, map[string]interface{}{
			"borrower_name":    "Ravi",
			"principal_amount": "100",
			"interest_amount":  "0",
			"given_date":       "2024-07-01",
			"due_date":         "2024-06-01",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_LOAN", decode(t, w).Code)
	})
}

func TestGetLoan_OtherOwnerIsNotFound(t *testing.T) {
	f := newFixture(t, nil)
	_, token := f.login(t, domain.RoleUser)
	loan := &domain.Loan{ID: uuid.New(), OwnerUserID: uuid.New(), Status: domain.LoanStatusActive}
	f.loans.On("GetByID", mock.Anything, loan.ID).Return(loan, nil)

	w := f.do(http.MethodGet, "/api/v1/loans/"+loan.ID.String(), token, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "LOAN_NOT_FOUND", decode(t, w).Code)
}

func TestListLoans_BadStatus(t *testing.T) {
	f := newFixture(t, nil)
	_, token := f.login(t, domain.RoleUser)

	w := f.do(http.MethodGet, "/api/v1/loans?status=lost", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/api/v1/loans?limit=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportLoans(t *testing.T) {
	f := newFixture(t, nil)
	user, token := f.login(t, domain.RoleUser)
	f.loans.On("ListAll", mock.Anything, mock.MatchedBy(func(filter domain.LoanFilter) bool {
		return filter.OwnerID != nil && *filter.OwnerID == user.ID
	})).Return([]*domain.Loan{}, nil)

	w := f.do(http.MethodGet, "/api/v1/loans/export?format=csv", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")

	w = f.do(http.MethodGet, "/api/v1/loans/export?format=docx", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_EXPORT_FORMAT", decode(t, w).Code)
}

func TestNotifications(t *testing.T) {
	f := newFixture(t, nil)
	user, token := f.login(t, domain.RoleUser)

	f.notifications.On("CountUnread", mock.Anything, user.ID).Return(4, nil)
	w := f.do(http.MethodGet, "/api/v1/notifications/unread-count", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"unread":4}`, string(decode(t, w).Data))

	f.notifications.On("MarkAllRead", mock.Anything, user.ID, mock.AnythingOfType("time.Time")).Return(int64(4), nil)
	w = f.do(http.MethodPost, "/api/v1/notifications/read-all", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":4}`, string(decode(t, w).Data))

	missing := uuid.New()
	f.notifications.On("GetByID", mock.Anything, missing).Return(nil, repository.ErrNotFound)
	w = f.do(http.MethodPost, "/api/v1/notifications/"+missing.String()+"/read", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_DeleteSelfRefused(t *testing.T) {
	f := newFixture(t, nil)
	admin, token := f.login(t, domain.RoleAdmin)

	w := f.do(http.MethodDelete, "/api/v1/admin/users/"+admin.ID.String(), token, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "CANNOT_DELETE_SELF", decode(t, w).Code)
}

func TestAdmin_InheritsUserRoutes(t *testing.T) {
	f := newFixture(t, nil)
	admin, token := f.login(t, domain.RoleAdmin)

	w := f.do(http.MethodGet, "/api/v1/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		User domain.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &body))
	assert.Equal(t, admin.ID, body.User.ID)
}

func TestAdmin_RunNotifications(t *testing.T) {
	f := newFixture(t, nil)
	_, token := f.login(t, domain.RoleAdmin)

	f.loans.On("ListActive", mock.Anything).Return([]*domain.Loan{}, nil)
	f.audits.On("Insert", mock.Anything, mock.MatchedBy(func(e *domain.AuditLog) bool {
		return e.Action == domain.AuditNotificationsRun && e.IP == "192.0.2.1"
	})).Return(nil)

	w := f.do(http.MethodPost, "/api/v1/admin/notifications/run", token, nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	f.audits.AssertExpectations(t)
}

func TestAdmin_ImpersonationTokenWorks(t *testing.T) {
	f := newFixture(t, nil)
	admin, token := f.login(t, domain.RoleAdmin)
	target := &domain.User{ID: uuid.New(), Email: "ravi@example.com", Role: domain.RoleUser, IsActive: true}
	f.users.On("GetByID", mock.Anything, target.ID).Return(target, nil)
	f.audits.On("Insert", mock.Anything, mock.Anything).Return(nil)

	w := f.do(http.MethodPost, "/api/v1/admin/users/"+target.ID.String()+"/impersonate", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp domain.ImpersonationResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &resp))

	w = f.do(http.MethodGet, "/api/v1/me", resp.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var me struct {
		User           domain.User `json:"user"`
		ImpersonatedBy *uuid.UUID  `json:"impersonated_by"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &me))
	assert.Equal(t, target.ID, me.User.ID)
	require.NotNil(t, me.ImpersonatedBy)
	assert.Equal(t, admin.ID, *me.ImpersonatedBy)

	// impersonated users stay USER
	w = f.do(http.MethodGet, "/api/v1/admin/users", resp.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdmin_ListLoansByOwner(t *testing.T) {
	f := newFixture(t, nil)
	_, token := f.login(t, domain.RoleAdmin)
	owner := uuid.New()

	f.loans.On("List", mock.Anything, mock.MatchedBy(func(filter domain.LoanFilter) bool {
		return filter.OwnerID != nil && *filter.OwnerID == owner
	})).Return([]*domain.Loan{}, 0, nil).Once()

	w := f.do(http.MethodGet, "/api/v1/admin/loans?owner_id="+owner.String(), token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	f.loans.AssertExpectations(t)

	w = f.do(http.MethodGet, "/api/v1/admin/loans?owner_id=someone", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmin_AuditIPIgnoresForwardedForByDefault(t *testing.T) {
	f := newFixture(t, nil)
	_, token := f.login(t, domain.RoleAdmin)

	f.loans.On("ListActive", mock.Anything).Return([]*domain.Loan{}, nil)
	f.audits.On("Insert", mock.Anything, mock.MatchedBy(func(e *domain.AuditLog) bool {
		return e.Action == domain.AuditNotificationsRun && e.IP == "192.0.2.1"
	})).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/notifications/run", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	f.audits.AssertExpectations(t)
}

func TestRealIPMiddleware(t *testing.T) {
	var seen string
	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { seen = clientIP(r) })

	tests := []struct {
		name       string
		trustProxy bool
		forwarded  string
		expected   string
	}{
		{name: "untrusted ignores header", forwarded: "203.0.113.9", expected: "192.0.2.1"},
		{name: "trusted takes first hop", trustProxy: true, forwarded: "203.0.113.9, 10.0.0.1", expected: "203.0.113.9"},
		{name: "trusted without header", trustProxy: true, expected: "192.0.2.1"},
		{name: "trusted with garbage", trustProxy: true, forwarded: "not-an-ip", expected: "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			RealIPMiddleware(tt.trustProxy)(capture).ServeHTTP(httptest.NewRecorder(), r)
			assert.Equal(t, tt.expected, seen)
		})
	}
}
