package commands

import (
	"context"
	"database/sql"
	"fmt"

	"ieltsprep/internal/database"
	"ieltsprep/internal/observability"
	contextutils "ieltsprep/internal/utils"

	"github.com/spf13/cobra"
)

// DatabaseCommands returns the database management commands
func DatabaseCommands(dbManager *database.Manager, db *sql.DB, databaseURL string, logger *observability.Logger) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
		Long: `Database management commands for the exam backend.

Available commands:
  stats   - Show database statistics
  migrate - Apply pending migrations`,
	}

	dbCmd.AddCommand(statsCmd(db, logger))
	dbCmd.AddCommand(migrateCmd(dbManager, db, databaseURL, logger))

	return dbCmd
}

func statsCmd(db *sql.DB, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()

			fmt.Println(getDatabaseInfo(db))

			counts := []struct {
				label string
				query string
			}{
				{"users", `SELECT COUNT(*) FROM users`},
				{"api keys", `SELECT COUNT(*) FROM auth_api_keys`},
				{"provider keys", `SELECT COUNT(*) FROM provider_keys`},
				{"generated tests", `SELECT COUNT(*) FROM generated_tests`},
				{"usage rows today", `SELECT COUNT(*) FROM daily_usage WHERE usage_date = CURRENT_DATE`},
			}
			for _, c := range counts {
				var n int
				if err := db.QueryRowContext(ctx, c.query).Scan(&n); err != nil {
					logger.Error(ctx, "Failed to read statistics", err, map[string]interface{}{"table": c.label})
					return contextutils.WrapErrorf(err, "failed to count %s", c.label)
				}
				fmt.Printf("  %-18s %d\n", c.label+":", n)
			}
			return nil
		},
	}
}

func migrateCmd(dbManager *database.Manager, db *sql.DB, databaseURL string, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()

			logger.Info(ctx, "Applying migrations", map[string]interface{}{"database_url": maskDatabaseURL(databaseURL)})
			if err := dbManager.RunMigrations(db, databaseURL); err != nil {
				return contextutils.WrapError(err, "failed to apply migrations")
			}

			fmt.Println("Migrations applied")
			return nil
		},
	}
}
