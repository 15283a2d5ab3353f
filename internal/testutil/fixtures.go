package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"zapgastos/internal/models"
	"zapgastos/internal/period"
	"zapgastos/internal/uuid"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// NewUserID returns a fresh owner id. Users live in the auth service, so
// tests only need an identifier.
func NewUserID() string {
	return uuid.New()
}

// Money parses a decimal literal and fails the test on bad input.
func Money(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

// CreateTestCategory creates a category of the given type.
func CreateTestCategory(t *testing.T, db *gorm.DB, userID string, categoryType models.CategoryType) *models.Category {
	t.Helper()

	category := &models.Category{
		UserID: userID,
		Name:   fmt.Sprintf("Test Category %d", nextID()),
		Type:   categoryType,
	}
	if err := db.Create(category).Error; err != nil {
		t.Fatalf("failed to create test category: %v", err)
	}
	return category
}

// CreateTestTransaction inserts a ledger row directly, bypassing budget
// accounting. Use it to simulate drift or history.
func CreateTestTransaction(t *testing.T, db *gorm.DB, userID string, categoryID *string, txType models.TransactionType, amount string, date time.Time) *models.Transaction {
	t.Helper()

	tx := &models.Transaction{
		UserID:     userID,
		CategoryID: categoryID,
		Type:       txType,
		Amount:     Money(t, amount),
		Channel:    models.ChannelWebApp,
		Date:       date.UTC(),
	}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("failed to create test transaction: %v", err)
	}
	return tx
}

// CreateTestBudget creates an active budget with a 100.00 limit and an 80%
// alert threshold. It does not materialize any period.
func CreateTestBudget(t *testing.T, db *gorm.DB, userID, categoryID string, p period.Periodicity) *models.Budget {
	t.Helper()

	budget := &models.Budget{
		UserID:         userID,
		CategoryID:     categoryID,
		Name:           fmt.Sprintf("Test Budget %d", nextID()),
		LimitAmount:    decimal.NewFromInt(100),
		Periodicity:    p,
		AlertThreshold: models.DefaultAlertThreshold,
		IsActive:       true,
	}
	if err := db.Create(budget).Error; err != nil {
		t.Fatalf("failed to create test budget: %v", err)
	}
	return budget
}

// CreateTestAPIKey stores a key row with the given bcrypt hash and scopes.
func CreateTestAPIKey(t *testing.T, db *gorm.DB, userID, prefix, hash, scopes string) *models.APIKey {
	t.Helper()

	key := &models.APIKey{
		UserID:    userID,
		Name:      fmt.Sprintf("Test Key %d", nextID()),
		KeyPrefix: prefix,
		KeyHash:   hash,
		Scopes:    scopes,
		IsActive:  true,
	}
	if err := db.Create(key).Error; err != nil {
		t.Fatalf("failed to create test api key: %v", err)
	}
	return key
}
