package main

import (
	"fmt"
	"os"

	"zapgastos/internal/config"
	"zapgastos/internal/database"
	"zapgastos/internal/logger"
	"zapgastos/internal/notify"
	"zapgastos/internal/server"
)

// @title           ZapGastos API
// @version         1.0
// @description     Expense tracking and budget period accounting for the ZapGastos chat assistant.
// @termsOfService  http://swagger.io/terms/

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description Machine key issued through /api-keys or budgetctl.

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	dbConfig, err := database.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load database configuration: %w", err)
	}

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer dbManager.Close()

	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	loc, err := appConfig.Location()
	if err != nil {
		return err
	}

	opts := server.Options{
		Location:              loc,
		DefaultAlertThreshold: appConfig.DefaultAlertThreshold,
		RolloverLead:          appConfig.RolloverLead,
	}
	if webhook := notify.NewWebhook(appConfig.N8NWebhookURL, appConfig.N8NWebhookTimeout); webhook != nil {
		opts.Notifier = webhook
		log.Info("Budget alerts will be pushed to the N8N webhook")
	}

	svc := server.NewServices(dbManager.DB(), opts)
	router := server.NewRouter(svc, appConfig.CORSOrigins)

	log.Infof("Starting ZapGastos API on port %s (timezone %s)", appConfig.Port, loc)
	log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
	return router.Run(":" + appConfig.Port)
}
