package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailTaken           = errors.New("email already registered")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrUserInactive         = errors.New("user is inactive")
	ErrForbidden            = errors.New("forbidden")
	ErrLoanNotFound         = errors.New("loan not found")
	ErrLoanAlreadyCompleted = errors.New("loan is already completed")
	ErrInvalidLoan          = errors.New("invalid loan")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrCannotDeleteSelf     = errors.New("admins cannot delete their own account")
	ErrCannotImpersonate    = errors.New("user cannot be impersonated")
	ErrInvalidExportFormat  = errors.New("invalid export format")
	ErrInvalidRequest       = errors.New("invalid request")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeEmailTaken           = "EMAIL_TAKEN"
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeUserInactive         = "USER_INACTIVE"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeLoanNotFound         = "LOAN_NOT_FOUND"
	ErrCodeLoanAlreadyCompleted = "LOAN_ALREADY_COMPLETED"
	ErrCodeInvalidLoan          = "INVALID_LOAN"
	ErrCodeNotificationNotFound = "NOTIFICATION_NOT_FOUND"
	ErrCodeCannotDeleteSelf     = "CANNOT_DELETE_SELF"
	ErrCodeCannotImpersonate    = "CANNOT_IMPERSONATE"
	ErrCodeInvalidExportFormat  = "INVALID_EXPORT_FORMAT"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeDatabaseError        = "DATABASE_ERROR"
	ErrCodeCacheError           = "CACHE_ERROR"
)

// CodeOf returns the business code carried by err, or "" when err is not a BusinessError
func CodeOf(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

func WrapUserNotFound(userID string) *BusinessError {
	return NewBusinessError(
		ErrCodeUserNotFound,
		fmt.Sprintf("User with ID %s not found", userID),
		ErrUserNotFound,
	)
}

func WrapEmailTaken(email string) *BusinessError {
	return NewBusinessError(
		ErrCodeEmailTaken,
		fmt.Sprintf("Email %s is already registered", email),
		ErrEmailTaken,
	)
}

func WrapInvalidCredentials() *BusinessError {
	return NewBusinessError(ErrCodeInvalidCredentials, "Invalid email or password", ErrInvalidCredentials)
}

func WrapUserInactive() *BusinessError {
	return NewBusinessError(ErrCodeUserInactive, "User account is deactivated", ErrUserInactive)
}

func WrapForbidden(message string) *BusinessError {
	return NewBusinessError(ErrCodeForbidden, message, ErrForbidden)
}

func WrapLoanNotFound(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanNotFound,
		fmt.Sprintf("Loan with ID %s not found", loanID),
		ErrLoanNotFound,
	)
}

func WrapLoanAlreadyCompleted(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanAlreadyCompleted,
		fmt.Sprintf("Loan with ID %s is already completed", loanID),
		ErrLoanAlreadyCompleted,
	)
}

func WrapInvalidLoan(reason string) *BusinessError {
	return NewBusinessError(ErrCodeInvalidLoan, reason, ErrInvalidLoan)
}

func WrapNotificationNotFound(id string) *BusinessError {
	return NewBusinessError(
		ErrCodeNotificationNotFound,
		fmt.Sprintf("Notification with ID %s not found", id),
		ErrNotificationNotFound,
	)
}

func WrapCannotDeleteSelf() *BusinessError {
	return NewBusinessError(ErrCodeCannotDeleteSelf, "You cannot delete your own account", ErrCannotDeleteSelf)
}

func WrapCannotImpersonate(reason string) *BusinessError {
	return NewBusinessError(ErrCodeCannotImpersonate, reason, ErrCannotImpersonate)
}

func WrapInvalidExportFormat(format string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidExportFormat,
		fmt.Sprintf("Unsupported export format %q (use csv, pdf or xml)", format),
		ErrInvalidExportFormat,
	)
}

func WrapInvalidRequest(message string, err error) *BusinessError {
	if err == nil {
		err = ErrInvalidRequest
	}
	return NewBusinessError(ErrCodeInvalidRequest, message, err)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}
