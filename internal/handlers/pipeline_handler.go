package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "zapgastos/internal/errors"
	"zapgastos/internal/middleware"
	"zapgastos/internal/models"
	"zapgastos/internal/services"
	"zapgastos/internal/uuid"
)

// PipelineHandler serves the N8N chat bot and operator jobs. Requests are
// authenticated with an API key; a key acts for its owner unless it carries
// the system scope.
type PipelineHandler struct {
	transactionService    services.TransactionServicer
	budgetService         services.BudgetServicer
	periodService         services.PeriodServicer
	reconciliationService services.ReconciliationServicer
	auditService          services.AuditServicer
	now                   func() time.Time
}

// NewPipelineHandler creates a new PipelineHandler.
func NewPipelineHandler(
	transactionService services.TransactionServicer,
	budgetService services.BudgetServicer,
	periodService services.PeriodServicer,
	reconciliationService services.ReconciliationServicer,
	auditService services.AuditServicer,
) *PipelineHandler {
	return &PipelineHandler{
		transactionService:    transactionService,
		budgetService:         budgetService,
		periodService:         periodService,
		reconciliationService: reconciliationService,
		auditService:          auditService,
		now:                   time.Now,
	}
}

// PipelineTransactionRequest is a transaction captured by the chat bot.
// UserID may name another user only for system keys.
type PipelineTransactionRequest struct {
	UserID string `json:"user_id" binding:"omitempty,uuid"`
	CreateTransactionRequest
}

// actingUser resolves the user a pipeline request operates on.
func actingUser(c *gin.Context, requested string) (string, error) {
	key, ok := middleware.APIKeyFromContext(c)
	if !ok {
		return "", apperrors.ErrUnauthorized
	}
	if requested == "" || requested == key.UserID {
		return key.UserID, nil
	}
	if !uuid.IsValid(requested) {
		return "", apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid user_id")
	}
	if !key.HasScope(models.ScopeSystem) {
		return "", apperrors.WithMessage(apperrors.ErrForbidden, "API key may only act for its owner")
	}
	return requested, nil
}

// CreateTransaction records a transaction coming from the chat bot.
// @Summary     Record transaction from pipeline
// @Description Records an expense or income for the key owner and returns the budget alert it triggered, if any
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       request body PipelineTransactionRequest true "Transaction details"
// @Success     201 {object} CreateTransactionResponse "Transaction created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     403 {object} ErrorResponse "Missing scope"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /pipeline/transactions [post]
func (h *PipelineHandler) CreateTransaction(c *gin.Context) {
	var req PipelineTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	userID, err := actingUser(c, req.UserID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	in, err := req.input(h.now())
	if err != nil {
		respondWithError(c, err)
		return
	}
	if in.Channel == "" {
		in.Channel = models.ChannelConversation
	}

	transaction, budgetAlert, err := h.transactionService.CreateTransaction(userID, in)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_TRANSACTION", "transaction", transaction.ID, c.ClientIP(),
		map[string]interface{}{"type": in.Type, "amount": transaction.Amount.String(), "channel": in.Channel})

	c.JSON(http.StatusCreated, CreateTransactionResponse{Transaction: transaction, BudgetAlert: budgetAlert})
}

// GetUserAlerts lists pending budget alerts for a user.
// @Summary     Pending alerts for user
// @Tags        pipeline
// @Produce     json
// @Security    ApiKeyAuth
// @Param       user_id path string true "User ID"
// @Success     200 {array}  alert.Descriptor "Pending alerts"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     403 {object} ErrorResponse "Missing scope"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /pipeline/users/{user_id}/alerts [get]
func (h *PipelineHandler) GetUserAlerts(c *gin.Context) {
	userID, err := actingUser(c, c.Param("user_id"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	alerts, err := h.periodService.ListAlertablePeriods(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

// GetUserBudgetSummary returns the budget overview the bot reports to a user.
// @Summary     Budget summary for user
// @Tags        pipeline
// @Produce     json
// @Security    ApiKeyAuth
// @Param       user_id path  string true  "User ID"
// @Param       as_of   query string false "Reference date (RFC 3339 or YYYY-MM-DD)"
// @Success     200 {array}  services.BudgetProgress "Budget summaries"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     403 {object} ErrorResponse "Missing scope"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /pipeline/users/{user_id}/budgets/summary [get]
func (h *PipelineHandler) GetUserBudgetSummary(c *gin.Context) {
	userID, err := actingUser(c, c.Param("user_id"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	asOf, err := parseAsOf(c, h.now)
	if err != nil {
		respondWithError(c, err)
		return
	}

	summaries, err := h.budgetService.GetBudgetSummaries(userID, asOf)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"budgets": summaries})
}

// MarkAlertSent records a delivered alert. System keys may mark any period.
// @Summary     Mark period alert as sent
// @Tags        pipeline
// @Produce     json
// @Security    ApiKeyAuth
// @Param       id path string true "Budget period ID"
// @Success     200 {object} MessageResponse "Alert marked as sent"
// @Failure     400 {object} ErrorResponse "Invalid period ID"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     404 {object} ErrorResponse "Period not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /pipeline/budget-periods/{id}/alert-sent [post]
func (h *PipelineHandler) MarkAlertSent(c *gin.Context) {
	key, ok := middleware.APIKeyFromContext(c)
	if !ok {
		respondWithError(c, apperrors.ErrUnauthorized)
		return
	}

	periodID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if key.HasScope(models.ScopeSystem) {
		err = h.periodService.MarkAlertSent(periodID)
	} else {
		err = h.periodService.MarkAlertSentForUser(key.UserID, periodID)
	}
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Alert marked as sent"})
}

// Recalculate rebuilds spent totals from the ledger for one user or, without
// user_id, for every active budget.
// @Summary     Recalculate budgets
// @Tags        pipeline
// @Produce     json
// @Security    ApiKeyAuth
// @Param       user_id query string false "Restrict to one user"
// @Param       as_of   query string false "Reference date (RFC 3339 or YYYY-MM-DD)"
// @Success     200 {object} services.ReconciliationSummary "Reconciliation summary"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     403 {object} ErrorResponse "Missing scope"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /pipeline/budgets/recalculate [post]
func (h *PipelineHandler) Recalculate(c *gin.Context) {
	var userID *string
	if v := c.Query("user_id"); v != "" {
		if !uuid.IsValid(v) {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid user_id"))
			return
		}
		userID = &v
	}

	asOf, err := parseAsOf(c, h.now)
	if err != nil {
		respondWithError(c, err)
		return
	}

	summary, err := h.reconciliationService.RecomputeAll(userID, asOf)
	if err != nil {
		respondWithError(c, err)
		return
	}

	target := ""
	if userID != nil {
		target = *userID
	}
	h.auditService.Log(models.SystemUserID, "RECALCULATE_BUDGETS", "budget", target, c.ClientIP(),
		map[string]interface{}{"periods_updated": summary.PeriodsUpdated, "failed": summary.Failed})

	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// Rollover finalizes ended periods and opens upcoming ones.
// @Summary     Roll budget periods over
// @Tags        pipeline
// @Produce     json
// @Security    ApiKeyAuth
// @Param       as_of query string false "Reference date (RFC 3339 or YYYY-MM-DD)"
// @Success     200 {object} services.RolloverSummary "Rollover summary"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     403 {object} ErrorResponse "Missing scope"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /pipeline/budgets/rollover [post]
func (h *PipelineHandler) Rollover(c *gin.Context) {
	asOf, err := parseAsOf(c, h.now)
	if err != nil {
		respondWithError(c, err)
		return
	}

	summary, err := h.reconciliationService.Rollover(asOf)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(models.SystemUserID, "ROLLOVER_PERIODS", "budget_period", "", c.ClientIP(),
		map[string]interface{}{"finalized": summary.PeriodsFinalized, "created": summary.PeriodsCreated})

	c.JSON(http.StatusOK, gin.H{"summary": summary})
}
