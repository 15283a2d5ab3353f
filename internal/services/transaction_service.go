package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"zapgastos/internal/alert"
	apperrors "zapgastos/internal/errors"
	"zapgastos/internal/logger"
	"zapgastos/internal/models"
	"zapgastos/internal/notify"
	"zapgastos/internal/pagination"
)

const notifyTimeout = 10 * time.Second

// transactionService handles transaction-related business logic.
type transactionService struct {
	db             *gorm.DB
	categories     CategoryServicer
	budgets        BudgetServicer
	periods        PeriodServicer
	reconciliation ReconciliationServicer
	notifier       notify.Notifier
}

// NewTransactionService creates a new TransactionServicer. notifier may be nil,
// in which case alerts are only returned to the caller.
func NewTransactionService(
	db *gorm.DB,
	categories CategoryServicer,
	budgets BudgetServicer,
	periods PeriodServicer,
	reconciliation ReconciliationServicer,
	notifier notify.Notifier,
) TransactionServicer {
	return &transactionService{
		db:             db,
		categories:     categories,
		budgets:        budgets,
		periods:        periods,
		reconciliation: reconciliation,
		notifier:       notifier,
	}
}

// CreateTransaction records a ledger entry. in.Date is required; the API
// layer fills it from its clock. Categorized expenses with an active budget
// are applied to the budget period in the same database transaction; the
// resulting alert, if any, is returned with the entry.
func (s *transactionService) CreateTransaction(userID string, in TransactionInput) (*models.Transaction, *alert.Descriptor, error) {
	if !in.Amount.IsPositive() {
		return nil, nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be greater than zero")
	}
	if in.Type != models.TransactionTypeExpense && in.Type != models.TransactionTypeIncome {
		return nil, nil, apperrors.ErrInvalidTransactionType
	}
	if in.Date.IsZero() {
		return nil, nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "transaction date is required")
	}
	if in.Channel == "" {
		in.Channel = models.ChannelWebApp
	}

	if in.CategoryID != nil {
		category, err := s.categories.GetCategoryByID(userID, *in.CategoryID)
		if err != nil {
			return nil, nil, err
		}
		if string(category.Type) != string(in.Type) {
			return nil, nil, apperrors.ErrCategoryTypeMismatch
		}
	}

	transaction := &models.Transaction{
		UserID:      userID,
		CategoryID:  in.CategoryID,
		Type:        in.Type,
		Amount:      in.Amount.Round(2),
		Description: in.Description,
		Channel:     in.Channel,
		Date:        in.Date.UTC(),
	}

	var descriptor *alert.Descriptor
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(transaction).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		if transaction.Type != models.TransactionTypeExpense || transaction.CategoryID == nil {
			return nil
		}
		budget, err := s.budgets.GetActiveBudgetForCategory(tx, userID, *transaction.CategoryID)
		if err != nil {
			return err
		}
		if budget == nil {
			return nil
		}

		_, descriptor, err = s.periods.ApplyExpense(tx, budget, transaction.ID, transaction.Amount, transaction.Date)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	if descriptor != nil {
		s.deliver(descriptor)
	}
	return transaction, descriptor, nil
}

// deliver pushes the alert to the notifier and marks the period once the
// notifier accepted it. Failures leave alert_sent false for the digest sweep.
func (s *transactionService) deliver(d *alert.Descriptor) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if err := s.notifier.Notify(ctx, d); err != nil {
		logger.Get().Warnw("budget alert delivery failed",
			"period_id", d.PeriodID,
			"budget_id", d.BudgetID,
			"error", err,
		)
		return
	}
	if err := s.periods.MarkAlertSent(d.PeriodID); err != nil {
		logger.Get().Errorw("failed to mark budget alert as sent", "period_id", d.PeriodID, "error", err)
	}
}

// GetUserTransactions retrieves a paginated, filtered list of transactions for a user.
func (s *transactionService) GetUserTransactions(userID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
	base := s.db.Model(&models.Transaction{}).Where("user_id = ?", userID)
	base = applyTransactionFilters(base, filter)

	result, err := pagination.Find[models.Transaction](base, page, "date DESC, id DESC")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return result, nil
}

func applyTransactionFilters(q *gorm.DB, f TransactionFilter) *gorm.DB {
	if f.FromDate != nil {
		q = q.Where("date >= ?", f.FromDate.UTC())
	}
	if f.ToDate != nil {
		q = q.Where("date <= ?", f.ToDate.UTC())
	}
	if f.Type != nil {
		q = q.Where("type = ?", *f.Type)
	}
	if f.CategoryID != nil {
		q = q.Where("category_id = ?", *f.CategoryID)
	}
	return q
}

// GetTransactionByID retrieves a transaction by ID for a specific user
func (s *transactionService) GetTransactionByID(userID, transactionID string) (*models.Transaction, error) {
	var transaction models.Transaction
	if err := s.db.Preload("Category").Where("id = ? AND user_id = ?", transactionID, userID).First(&transaction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &transaction, nil
}

// DeleteTransaction removes a ledger entry and repairs the affected budget
// period from the remaining ledger rows.
func (s *transactionService) DeleteTransaction(userID, transactionID string) error {
	transaction, err := s.GetTransactionByID(userID, transactionID)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		affected := map[string]struct{}{}

		var applications []models.ExpenseApplication
		if err := tx.Where("transaction_id = ?", transaction.ID).Find(&applications).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		for _, a := range applications {
			affected[a.PeriodID] = struct{}{}
		}
		if len(applications) > 0 {
			if err := tx.Where("transaction_id = ?", transaction.ID).Delete(&models.ExpenseApplication{}).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}

		if err := tx.Delete(&models.Transaction{}, "id = ?", transaction.ID).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		// Entries recorded before the budget existed were never applied but
		// still count once the period is reconciled.
		if transaction.Type == models.TransactionTypeExpense && transaction.CategoryID != nil {
			budget, err := s.budgets.GetActiveBudgetForCategory(tx, userID, *transaction.CategoryID)
			if err != nil {
				return err
			}
			if budget != nil {
				p, err := s.periods.GetCurrentPeriod(tx, budget, transaction.Date)
				if err != nil {
					return err
				}
				if p != nil {
					affected[p.ID] = struct{}{}
				}
			}
		}

		for periodID := range affected {
			if _, err := s.reconciliation.RecomputePeriodTx(tx, periodID); err != nil {
				return err
			}
		}
		return nil
	})
}
