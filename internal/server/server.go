// Package server wires services, handlers and middleware into the HTTP router
// shared by the API binary and the end-to-end tests.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	_ "zapgastos/internal/docs" // swagger docs
	"zapgastos/internal/handlers"
	"zapgastos/internal/middleware"
	"zapgastos/internal/models"
	"zapgastos/internal/notify"
	"zapgastos/internal/period"
	"zapgastos/internal/services"
	"zapgastos/internal/validator"
)

// Options tunes the budget engine.
type Options struct {
	Location              *time.Location
	DefaultAlertThreshold decimal.Decimal
	RolloverLead          time.Duration
	// Notifier is optional; nil leaves alerts to the polling endpoints.
	Notifier notify.Notifier
}

// Services bundles every service the handlers and the CLI depend on.
type Services struct {
	Categories     services.CategoryServicer
	Transactions   services.TransactionServicer
	Budgets        services.BudgetServicer
	Periods        services.PeriodServicer
	Reconciliation services.ReconciliationServicer
	APIKeys        services.APIKeyServicer
	Audit          services.AuditServicer
}

// NewServices builds the service graph on db.
func NewServices(db *gorm.DB, opts Options) *Services {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	threshold := opts.DefaultAlertThreshold
	if threshold.IsZero() {
		threshold = models.DefaultAlertThreshold
	}

	calc := period.NewCalculator(loc)
	periods := services.NewPeriodService(db, calc)
	budgets := services.NewBudgetService(db, periods, calc, threshold)
	reconciliation := services.NewReconciliationService(db, periods, calc, opts.RolloverLead)
	categories := services.NewCategoryService(db)

	return &Services{
		Categories:     categories,
		Transactions:   services.NewTransactionService(db, categories, budgets, periods, reconciliation, opts.Notifier),
		Budgets:        budgets,
		Periods:        periods,
		Reconciliation: reconciliation,
		APIKeys:        services.NewAPIKeyService(db),
		Audit:          services.NewAuditService(db),
	}
}

// NewRouter registers every route on a new gin engine.
func NewRouter(svc *Services, corsOrigins []string) *gin.Engine {
	validator.Register()

	budgetHandler := handlers.NewBudgetHandler(svc.Budgets, svc.Periods, svc.Reconciliation, svc.Audit)
	categoryHandler := handlers.NewCategoryHandler(svc.Categories, svc.Audit)
	transactionHandler := handlers.NewTransactionHandler(svc.Transactions, svc.Audit)
	apiKeyHandler := handlers.NewAPIKeyHandler(svc.APIKeys, svc.Audit)
	pipelineHandler := handlers.NewPipelineHandler(svc.Transactions, svc.Budgets, svc.Periods, svc.Reconciliation, svc.Audit)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.CORS(corsOrigins))

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	categories := protected.Group("/categories")
	categories.POST("", categoryHandler.CreateCategory)
	categories.GET("", categoryHandler.GetUserCategories)
	categories.GET("/:id", categoryHandler.GetCategoryByID)
	categories.PUT("/:id", categoryHandler.UpdateCategory)
	categories.DELETE("/:id", categoryHandler.DeleteCategory)

	transactions := protected.Group("/transactions")
	transactions.POST("", transactionHandler.CreateTransaction)
	transactions.GET("", transactionHandler.GetUserTransactions)
	transactions.GET("/:id", transactionHandler.GetTransactionByID)
	transactions.DELETE("/:id", transactionHandler.DeleteTransaction)

	budgets := protected.Group("/budgets")
	budgets.POST("", budgetHandler.CreateBudget)
	budgets.GET("", budgetHandler.GetBudgets)
	budgets.GET("/summary", budgetHandler.GetBudgetSummary)
	budgets.GET("/alerts", budgetHandler.GetBudgetAlerts)
	budgets.POST("/recalculate", budgetHandler.RecalculateBudgets)
	budgets.GET("/:id", budgetHandler.GetBudget)
	budgets.PUT("/:id", budgetHandler.UpdateBudget)
	budgets.DELETE("/:id", budgetHandler.DeleteBudget)
	budgets.GET("/:id/progress", budgetHandler.GetBudgetProgress)
	budgets.GET("/:id/periods", budgetHandler.ListBudgetPeriods)
	budgets.POST("/:id/periods", budgetHandler.CreateBudgetPeriod)
	budgets.GET("/:id/periods/current", budgetHandler.GetCurrentPeriod)

	protected.POST("/budget-periods/:id/alert-sent", budgetHandler.MarkAlertSent)

	apiKeys := protected.Group("/api-keys")
	apiKeys.POST("", apiKeyHandler.CreateAPIKey)
	apiKeys.GET("", apiKeyHandler.ListAPIKeys)
	apiKeys.DELETE("/:id", apiKeyHandler.RevokeAPIKey)

	// Machine routes for the N8N chat bot and operator jobs
	pipeline := v1.Group("/pipeline")
	pipeline.Use(middleware.APIKeyAuth(svc.APIKeys))
	pipeline.POST("/transactions", middleware.RequireScope(models.ScopeTransactions), pipelineHandler.CreateTransaction)
	pipeline.GET("/users/:user_id/alerts", middleware.RequireScope(models.ScopeBudgets), pipelineHandler.GetUserAlerts)
	pipeline.GET("/users/:user_id/budgets/summary", middleware.RequireScope(models.ScopeBudgets), pipelineHandler.GetUserBudgetSummary)
	pipeline.POST("/budget-periods/:id/alert-sent", middleware.RequireScope(models.ScopeBudgets), pipelineHandler.MarkAlertSent)
	pipeline.POST("/budgets/recalculate", middleware.RequireScope(models.ScopeSystem), pipelineHandler.Recalculate)
	pipeline.POST("/budgets/rollover", middleware.RequireScope(models.ScopeSystem), pipelineHandler.Rollover)

	return router
}
