package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "zapgastos/internal/errors"
	"zapgastos/internal/models"
	"zapgastos/internal/pagination"
	"zapgastos/internal/period"
	"zapgastos/internal/services"
)

// BudgetHandler handles budget and budget period requests.
type BudgetHandler struct {
	budgetService         services.BudgetServicer
	periodService         services.PeriodServicer
	reconciliationService services.ReconciliationServicer
	auditService          services.AuditServicer
	now                   func() time.Time
}

// NewBudgetHandler creates a new BudgetHandler.
func NewBudgetHandler(
	budgetService services.BudgetServicer,
	periodService services.PeriodServicer,
	reconciliationService services.ReconciliationServicer,
	auditService services.AuditServicer,
) *BudgetHandler {
	return &BudgetHandler{
		budgetService:         budgetService,
		periodService:         periodService,
		reconciliationService: reconciliationService,
		auditService:          auditService,
		now:                   time.Now,
	}
}

// CreateBudgetRequest represents the request payload for creating a budget.
// Limit and threshold ranges are checked by the service so callers get the
// dedicated error codes.
type CreateBudgetRequest struct {
	CategoryID     string             `json:"category_id" binding:"required,uuid"`
	Name           string             `json:"name" binding:"required,min=1,max=100"`
	LimitAmount    decimal.Decimal    `json:"limit_amount"`
	Periodicity    period.Periodicity `json:"periodicity" binding:"required,periodicity"`
	AlertThreshold *decimal.Decimal   `json:"alert_threshold"`
}

// UpdateBudgetRequest represents the request payload for updating a budget.
type UpdateBudgetRequest struct {
	Name           *string             `json:"name" binding:"omitempty,min=1,max=100"`
	LimitAmount    *decimal.Decimal    `json:"limit_amount"`
	Periodicity    *period.Periodicity `json:"periodicity" binding:"omitempty,periodicity"`
	AlertThreshold *decimal.Decimal    `json:"alert_threshold"`
	IsActive       *bool               `json:"is_active"`
}

// CreatePeriodRequest optionally names the date whose period should exist.
type CreatePeriodRequest struct {
	TargetDate string `json:"target_date"`
}

// BudgetDetailResponse is a budget with its current period, if materialized.
type BudgetDetailResponse struct {
	Budget        *models.Budget       `json:"budget"`
	CurrentPeriod *models.BudgetPeriod `json:"current_period"`
}

// CreateBudget handles the creation of a new budget.
// @Summary     Create a budget
// @Description Create a budget for an expense category and open its current period
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateBudgetRequest true "Budget details"
// @Success     201 {object} models.Budget "Budget created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     409 {object} ErrorResponse "Active budget exists for category"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets [post]
func (h *BudgetHandler) CreateBudget(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	budget, err := h.budgetService.CreateBudget(userID, services.BudgetInput{
		CategoryID:     req.CategoryID,
		Name:           req.Name,
		LimitAmount:    req.LimitAmount,
		Periodicity:    req.Periodicity,
		AlertThreshold: req.AlertThreshold,
	}, h.now())
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_BUDGET", "budget", budget.ID, c.ClientIP(),
		map[string]interface{}{"name": req.Name, "limit_amount": req.LimitAmount.String(), "periodicity": req.Periodicity})

	c.JSON(http.StatusCreated, gin.H{"budget": budget})
}

// GetBudgets handles listing budgets for the authenticated user.
// @Summary     Get budgets
// @Description Get a paginated list of budgets for the authenticated user
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       is_active   query bool   false "Filter by active status"
// @Param       periodicity query string false "Filter by periodicity (monthly/biweekly/weekly)"
// @Param       page        query int    false "Page number (default 1)"
// @Param       page_size   query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Budget] "Paginated budgets"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets [get]
func (h *BudgetHandler) GetBudgets(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	var isActive *bool
	if v := c.Query("is_active"); v != "" {
		switch v {
		case "true":
			b := true
			isActive = &b
		case "false":
			b := false
			isActive = &b
		default:
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "is_active must be 'true' or 'false'"))
			return
		}
	}

	var periodicity *period.Periodicity
	if v := c.Query("periodicity"); v != "" {
		p, err := period.ParsePeriodicity(v)
		if err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "periodicity must be 'monthly', 'biweekly' or 'weekly'"))
			return
		}
		periodicity = &p
	}

	result, err := h.budgetService.GetUserBudgets(userID, page, isActive, periodicity)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetBudget handles retrieving a budget together with its current period.
// @Summary     Get budget by ID
// @Description Get a budget and the period covering as_of (default now)
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string true  "Budget ID"
// @Param       as_of query string false "Reference date (RFC 3339 or YYYY-MM-DD)"
// @Success     200 {object} BudgetDetailResponse "Budget details"
// @Failure     400 {object} ErrorResponse "Invalid budget ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id} [get]
func (h *BudgetHandler) GetBudget(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	budgetID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	asOf, err := parseAsOf(c, h.now)
	if err != nil {
		respondWithError(c, err)
		return
	}

	budget, current, err := h.budgetService.GetBudgetWithCurrentPeriod(userID, budgetID, asOf)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, BudgetDetailResponse{Budget: budget, CurrentPeriod: current})
}

// UpdateBudget handles updating an existing budget.
// @Summary     Update budget
// @Description Update name, limit, periodicity, threshold or active flag of a budget
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string              true "Budget ID"
// @Param       request body UpdateBudgetRequest true "Updated budget details"
// @Success     200 {object} models.Budget "Updated budget"
// @Failure     400 {object} ErrorResponse "Invalid input or budget ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     409 {object} ErrorResponse "Active budget exists for category, or the periodicity's current window is closed"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id} [put]
func (h *BudgetHandler) UpdateBudget(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	budgetID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	budget, err := h.budgetService.UpdateBudget(userID, budgetID, services.BudgetUpdate{
		Name:           req.Name,
		LimitAmount:    req.LimitAmount,
		Periodicity:    req.Periodicity,
		AlertThreshold: req.AlertThreshold,
		IsActive:       req.IsActive,
	}, h.now())
	if err != nil {
		respondWithError(c, err)
		return
	}

	changes := map[string]interface{}{}
	if req.Name != nil {
		changes["name"] = *req.Name
	}
	if req.LimitAmount != nil {
		changes["limit_amount"] = req.LimitAmount.String()
	}
	if req.Periodicity != nil {
		changes["periodicity"] = *req.Periodicity
	}
	if req.AlertThreshold != nil {
		changes["alert_threshold"] = req.AlertThreshold.String()
	}
	if req.IsActive != nil {
		changes["is_active"] = *req.IsActive
	}
	h.auditService.Log(userID, "UPDATE_BUDGET", "budget", budgetID, c.ClientIP(), changes)

	c.JSON(http.StatusOK, gin.H{"budget": budget})
}

// DeleteBudget deactivates a budget, or removes it with its periods when
// hard=true.
// @Summary     Delete budget
// @Description Deactivate a budget (default) or delete it permanently with hard=true
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  string true  "Budget ID"
// @Param       hard query bool   false "Delete the budget and its periods"
// @Success     200 {object} MessageResponse "Budget deactivated or deleted"
// @Failure     400 {object} ErrorResponse "Invalid budget ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id} [delete]
func (h *BudgetHandler) DeleteBudget(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	budgetID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if c.Query("hard") == "true" {
		if err := h.budgetService.DeleteBudget(userID, budgetID); err != nil {
			respondWithError(c, err)
			return
		}
		h.auditService.Log(userID, "DELETE_BUDGET", "budget", budgetID, c.ClientIP(), nil)
		c.JSON(http.StatusOK, gin.H{"message": "Budget deleted successfully"})
		return
	}

	if err := h.budgetService.DeactivateBudget(userID, budgetID); err != nil {
		respondWithError(c, err)
		return
	}
	h.auditService.Log(userID, "DEACTIVATE_BUDGET", "budget", budgetID, c.ClientIP(), nil)
	c.JSON(http.StatusOK, gin.H{"message": "Budget deactivated successfully"})
}

// GetBudgetProgress handles retrieving spending progress for a budget.
// @Summary     Get budget progress
// @Description Spending vs limit for the period covering as_of (default now)
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string true  "Budget ID"
// @Param       as_of query string false "Reference date (RFC 3339 or YYYY-MM-DD)"
// @Success     200 {object} services.BudgetProgress "Budget progress"
// @Failure     400 {object} ErrorResponse "Invalid budget ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id}/progress [get]
func (h *BudgetHandler) GetBudgetProgress(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	budgetID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	asOf, err := parseAsOf(c, h.now)
	if err != nil {
		respondWithError(c, err)
		return
	}

	progress, err := h.budgetService.GetBudgetProgress(userID, budgetID, asOf)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"progress": progress})
}

// GetBudgetSummary handles the per-budget progress overview.
// @Summary     Budget summary
// @Description Progress of every active budget for the period covering as_of
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       as_of query string false "Reference date (RFC 3339 or YYYY-MM-DD)"
// @Success     200 {array}  services.BudgetProgress "Budget summaries"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/summary [get]
func (h *BudgetHandler) GetBudgetSummary(c *gin.Context) {
	userID, err := getUserID(c)
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

// GetBudgetAlerts lists periods at or over their threshold that have not been
// alerted yet.
// @Summary     Pending budget alerts
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Success     200 {array}  alert.Descriptor "Pending alerts"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/alerts [get]
func (h *BudgetHandler) GetBudgetAlerts(c *gin.Context) {
	userID, err := getUserID(c)
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

// RecalculateBudgets rebuilds the spent totals of the caller's budgets from
// the transaction ledger.
// @Summary     Recalculate budgets
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       as_of query string false "Reference date (RFC 3339 or YYYY-MM-DD)"
// @Success     200 {object} services.ReconciliationSummary "Reconciliation summary"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/recalculate [post]
func (h *BudgetHandler) RecalculateBudgets(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	asOf, err := parseAsOf(c, h.now)
	if err != nil {
		respondWithError(c, err)
		return
	}

	summary, err := h.reconciliationService.RecomputeAll(&userID, asOf)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "RECALCULATE_BUDGETS", "budget", "", c.ClientIP(),
		map[string]interface{}{"periods_updated": summary.PeriodsUpdated, "failed": summary.Failed})

	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// ListBudgetPeriods handles the period history of a budget, newest first.
// @Summary     List budget periods
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id        path  string true  "Budget ID"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.BudgetPeriod] "Paginated periods"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id}/periods [get]
func (h *BudgetHandler) ListBudgetPeriods(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	budgetID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	// ownership check
	if _, err := h.budgetService.GetBudgetByID(userID, budgetID); err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.periodService.ListBudgetPeriods(budgetID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// CreateBudgetPeriod materializes the period covering target_date (default
// now). It answers 201 when a row was inserted and 200 when it already existed.
// @Summary     Create budget period
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string              true  "Budget ID"
// @Param       request body CreatePeriodRequest false "Target date"
// @Success     200 {object} models.BudgetPeriod "Existing period"
// @Success     201 {object} models.BudgetPeriod "Period created"
// @Failure     400 {object} ErrorResponse "Invalid input or inactive budget"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id}/periods [post]
func (h *BudgetHandler) CreateBudgetPeriod(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	budgetID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreatePeriodRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
			return
		}
	}
	target, err := parseInstant(req.TargetDate, h.now())
	if err != nil {
		respondWithError(c, err)
		return
	}

	budget, err := h.budgetService.GetBudgetByID(userID, budgetID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	p, created, err := h.periodService.CreatePeriod(budget, target)
	if err != nil {
		respondWithError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"period": p, "created": created})
}

// GetCurrentPeriod returns the stored period covering as_of without creating it.
// @Summary     Current budget period
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string true  "Budget ID"
// @Param       as_of query string false "Reference date (RFC 3339 or YYYY-MM-DD)"
// @Success     200 {object} models.BudgetPeriod "Current period"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget or period not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id}/periods/current [get]
func (h *BudgetHandler) GetCurrentPeriod(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	budgetID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	asOf, err := parseAsOf(c, h.now)
	if err != nil {
		respondWithError(c, err)
		return
	}

	budget, err := h.budgetService.GetBudgetByID(userID, budgetID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	p, err := h.periodService.GetCurrentPeriod(nil, budget, asOf)
	if err != nil {
		respondWithError(c, err)
		return
	}
	if p == nil {
		respondWithError(c, apperrors.ErrPeriodNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"period": p})
}

// MarkAlertSent records that the alert for a period was delivered.
// @Summary     Mark period alert as sent
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget period ID"
// @Success     200 {object} MessageResponse "Alert marked as sent"
// @Failure     400 {object} ErrorResponse "Invalid period ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Period not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budget-periods/{id}/alert-sent [post]
func (h *BudgetHandler) MarkAlertSent(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	periodID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.periodService.MarkAlertSentForUser(userID, periodID); err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Alert marked as sent"})
}
