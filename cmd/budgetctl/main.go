// Command budgetctl runs budget maintenance jobs against the ZapGastos
// database. It is meant for cron and for operators.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"zapgastos/internal/config"
	"zapgastos/internal/database"
	"zapgastos/internal/logger"
	"zapgastos/internal/server"
)

var Version = "dev"

// env is what every subcommand needs once the database is open.
type env struct {
	svc   *server.Services
	loc   *time.Location
	now   func() time.Time
	out   io.Writer
	close func()
}

// opener builds an env on demand so commands that fail flag parsing never
// touch the database.
type opener func(cmd *cobra.Command) (*env, error)

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := newRootCmd(openDatabase).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(open opener) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "budgetctl",
		Short:         "Budget period maintenance for ZapGastos",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "YAML overlay with budget engine settings (overrides CONFIG_FILE)")

	rootCmd.AddCommand(recomputeCmd(open))
	rootCmd.AddCommand(rolloverCmd(open))
	rootCmd.AddCommand(alertsCmd(open))
	rootCmd.AddCommand(markAlertSentCmd(open))
	rootCmd.AddCommand(apiKeyCmd(open))
	rootCmd.AddCommand(tokenCmd())

	return rootCmd
}

func openDatabase(cmd *cobra.Command) (*env, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		os.Setenv("CONFIG_FILE", path)
	}
	appConfig, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	loc, err := appConfig.Location()
	if err != nil {
		return nil, err
	}

	dbConfig, err := database.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load database configuration: %w", err)
	}
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database manager: %w", err)
	}
	if err := dbManager.RunMigrations(); err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	svc := server.NewServices(dbManager.DB(), server.Options{
		Location:              loc,
		DefaultAlertThreshold: appConfig.DefaultAlertThreshold,
		RolloverLead:          appConfig.RolloverLead,
	})
	return &env{
		svc: svc,
		loc: loc,
		now: time.Now,
		out: cmd.OutOrStdout(),
		close: func() {
			if err := dbManager.Close(); err != nil {
				logger.Get().Warnf("database close error: %v", err)
			}
		},
	}, nil
}
