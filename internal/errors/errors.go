// Package errors provides custom error types for the ZapGastos API.
// All service-layer errors should use AppError to ensure consistent,
// secure error responses that never leak internal details to clients.
package errors

import "net/http"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Is reports whether target carries the same code, so a wrapped sentinel
// still matches errors.Is(err, ErrBudgetNotFound).
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// Authentication & authorization errors.
var (
	ErrUnauthorized  = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrForbidden     = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
	ErrInvalidAPIKey = &AppError{Code: "INVALID_API_KEY", Message: "Invalid or expired API key", StatusCode: http.StatusUnauthorized}
	ErrMissingScope  = &AppError{Code: "MISSING_SCOPE", Message: "API key lacks the required scope", StatusCode: http.StatusForbidden}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// Category errors.
var (
	ErrCategoryNotFound = &AppError{Code: "CATEGORY_NOT_FOUND", Message: "Category not found", StatusCode: http.StatusNotFound}
	ErrCategoryInUse    = &AppError{Code: "CATEGORY_IN_USE", Message: "Category is used by existing transactions or budgets", StatusCode: http.StatusConflict}
	ErrDuplicateCategory = &AppError{Code: "DUPLICATE_CATEGORY", Message: "A category with this name already exists", StatusCode: http.StatusConflict}
)

// Transaction errors.
var (
	ErrTransactionNotFound    = &AppError{Code: "TRANSACTION_NOT_FOUND", Message: "Transaction not found", StatusCode: http.StatusNotFound}
	ErrInvalidTransactionType = &AppError{Code: "INVALID_TRANSACTION_TYPE", Message: "Unsupported transaction type", StatusCode: http.StatusBadRequest}
	ErrCategoryTypeMismatch   = &AppError{Code: "CATEGORY_TYPE_MISMATCH", Message: "Category type does not match transaction type", StatusCode: http.StatusBadRequest}
)

// Budget errors.
var (
	ErrBudgetNotFound         = &AppError{Code: "BUDGET_NOT_FOUND", Message: "Budget not found", StatusCode: http.StatusNotFound}
	ErrActiveBudgetExists     = &AppError{Code: "ACTIVE_BUDGET_EXISTS", Message: "An active budget already exists for this category", StatusCode: http.StatusConflict}
	ErrBudgetInactive         = &AppError{Code: "BUDGET_INACTIVE", Message: "Budget is not active", StatusCode: http.StatusBadRequest}
	ErrInvalidBudgetLimit     = &AppError{Code: "INVALID_BUDGET_LIMIT", Message: "Budget limit must be greater than zero and at most 99999999.99", StatusCode: http.StatusBadRequest}
	ErrInvalidPeriodicity     = &AppError{Code: "INVALID_PERIODICITY", Message: "Unsupported budget periodicity", StatusCode: http.StatusBadRequest}
	ErrInvalidAlertThreshold  = &AppError{Code: "INVALID_ALERT_THRESHOLD", Message: "Alert threshold must be greater than 0 and at most 100", StatusCode: http.StatusBadRequest}
	ErrPeriodNotFound         = &AppError{Code: "PERIOD_NOT_FOUND", Message: "Budget period not found", StatusCode: http.StatusNotFound}
	ErrInvalidExpenseAmount   = &AppError{Code: "INVALID_EXPENSE_AMOUNT", Message: "Expense amount must be greater than zero", StatusCode: http.StatusBadRequest}
	ErrPeriodicityConflict    = &AppError{Code: "PERIODICITY_CONFLICT", Message: "The current window of this periodicity is already closed for the budget", StatusCode: http.StatusConflict}
)

// API key errors.
var (
	ErrAPIKeyNotFound = &AppError{Code: "API_KEY_NOT_FOUND", Message: "API key not found", StatusCode: http.StatusNotFound}
	ErrInvalidScope   = &AppError{Code: "INVALID_SCOPE", Message: "Unknown API key scope", StatusCode: http.StatusBadRequest}
)
