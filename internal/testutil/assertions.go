package testutil

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "zapgastos/internal/errors"
	"zapgastos/internal/models"
)

// AssertAppError checks that err is an *AppError with the expected error code.
func AssertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected AppError with code %q, got nil", expectedCode)
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError, got %T: %v", err, err)
	}

	if appErr.Code != expectedCode {
		t.Errorf("expected error code %q, got %q (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertMoney compares a decimal amount with a literal. Trailing zeros are
// insignificant: "85.5" equals "85.50".
func AssertMoney(t *testing.T, what string, got decimal.Decimal, want string) {
	t.Helper()

	if !got.Equal(Money(t, want)) {
		t.Errorf("%s: expected %s, got %s", what, want, got.String())
	}
}

// ReloadPeriod reads a budget period back from the database.
func ReloadPeriod(t *testing.T, db *gorm.DB, id string) *models.BudgetPeriod {
	t.Helper()

	var p models.BudgetPeriod
	if err := db.Where("id = ?", id).First(&p).Error; err != nil {
		t.Fatalf("reload period %s: %v", id, err)
	}
	return &p
}
