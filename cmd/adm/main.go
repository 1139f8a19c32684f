// Package main provides the main entry point for the exam backend admin CLI
// tool.
package main

import (
	"context"
	"fmt"
	"os"

	"ieltsprep/cmd/adm/commands"
	"ieltsprep/internal/config"
	"ieltsprep/internal/database"
	"ieltsprep/internal/observability"
	"ieltsprep/internal/services"
	"ieltsprep/internal/services/mailer"

	"github.com/spf13/cobra"
)

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Quiet logging and no telemetry exporters for the CLI
	cfg.Server.LogLevel = "error"
	cfg.OpenTelemetry.EnableTracing = false
	cfg.OpenTelemetry.EnableMetrics = false
	cfg.OpenTelemetry.EnableLogging = false

	tp, mp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "ieltsprep-admin")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if tp != nil {
			if err := tp.Shutdown(context.TODO()); err != nil {
				logger.Warn(ctx, "Error shutting down tracer provider", map[string]interface{}{"error": err.Error(), "provider": "tracer"})
			}
		}
		if mp != nil {
			if err := mp.Shutdown(context.TODO()); err != nil {
				logger.Warn(ctx, "Error shutting down meter provider", map[string]interface{}{"error": err.Error(), "provider": "meter"})
			}
		}
	}()

	// Connect without running migrations; `adm db migrate` does that
	// explicitly.
	dbManager := database.NewManager(logger)
	db, err := dbManager.InitDBWithoutMigrations(cfg.Database)
	if err != nil {
		logger.Error(ctx, "Failed to connect to database", err, map[string]interface{}{"db_url": cfg.Database.URL})
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn(ctx, "Failed to close database connection", map[string]interface{}{"error": err.Error()})
		}
	}()

	providerKeys, err := services.NewProviderKeyService(db, logger, cfg.Server.KeyEncryptionSecret)
	if err != nil {
		logger.Error(ctx, "Failed to initialize provider key service", err, nil)
		os.Exit(1)
	}
	usage := services.NewUsageService(cfg, db, logger, mailer.NewEmailService(cfg, logger))
	apiKeys := services.NewAuthAPIKeyService(db, logger)

	rootCmd := &cobra.Command{
		Use:   "adm",
		Short: "Exam backend administration tool",
		Long: `Administration tool for the exam generation backend.

Provides commands for user management, provider key rotation, daily
quota inspection, service API keys, and database operations.`,

		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				fmt.Printf("Error showing help: %v\n", err)
			}
		},
	}

	rootCmd.AddCommand(commands.UserCommands(db, logger))
	rootCmd.AddCommand(commands.ProviderKeyCommands(providerKeys, logger))
	rootCmd.AddCommand(commands.QuotaCommands(usage, logger))
	rootCmd.AddCommand(commands.APIKeyCommands(apiKeys, logger))
	rootCmd.AddCommand(commands.DatabaseCommands(dbManager, db, cfg.Database.URL, logger))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
