// Package commands provides CLI commands for the admin tool
package commands

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"ieltsprep/internal/observability"
	contextutils "ieltsprep/internal/utils"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

// UserCommands returns the user management commands
func UserCommands(db *sql.DB, logger *observability.Logger) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "User management commands",
		Long: `User management commands for the exam backend.

Available commands:
  create - Create a new user account
  list   - List all users`,
	}

	userCmd.AddCommand(createUserCmd(db, logger))
	userCmd.AddCommand(listUsersCmd(db, logger))

	return userCmd
}

func createUserCmd(db *sql.DB, logger *observability.Logger) *cobra.Command {
	var email string
	var password string

	cmd := &cobra.Command{
		Use:   "create [username]",
		Short: "Create a new user account",
		Long: `Create a new user account.

The password is taken from --password or, if the flag is absent, from the
ADMIN_USER_PASSWORD environment variable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx := context.Background()
			username := args[0]

			if password == "" {
				password = os.Getenv("ADMIN_USER_PASSWORD")
			}
			if password == "" {
				return contextutils.ErrorWithContextf("no password provided: use --password or ADMIN_USER_PASSWORD")
			}

			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return contextutils.WrapError(err, "failed to hash password")
			}

			var id int
			err = db.QueryRowContext(ctx, `
				INSERT INTO users (username, email, password_hash, created_at, updated_at)
				VALUES ($1, $2, $3, NOW(), NOW())
				RETURNING id`, username, email, string(hash)).Scan(&id)
			if err != nil {
				logger.Error(ctx, "Failed to create user", err, map[string]interface{}{"username": username})
				return contextutils.WrapError(err, "failed to create user")
			}

			fmt.Printf("Created user %q with id %d\n", username, id)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address for the new user")
	cmd.Flags().StringVar(&password, "password", "", "Password for the new user")

	return cmd
}

func listUsersCmd(db *sql.DB, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all users",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()

			rows, err := db.QueryContext(ctx, `
				SELECT id, username, COALESCE(email, ''), created_at
				FROM users ORDER BY id`)
			if err != nil {
				logger.Error(ctx, "Failed to list users", err, nil)
				return contextutils.WrapError(err, "failed to list users")
			}
			defer func() { _ = rows.Close() }()

			fmt.Printf("%-5s %-20s %-30s %-20s\n", "ID", "Username", "Email", "Created")
			count := 0
			for rows.Next() {
				var id int
				var username, email string
				var created time.Time
				if err := rows.Scan(&id, &username, &email, &created); err != nil {
					return contextutils.WrapError(err, "failed to scan user row")
				}
				fmt.Printf("%-5d %-20s %-30s %-20s\n", id, username, email, created.Format("2006-01-02 15:04"))
				count++
			}
			if err := rows.Err(); err != nil {
				return contextutils.WrapError(err, "failed to iterate users")
			}
			if count == 0 {
				fmt.Println("No users found")
			}
			return nil
		},
	}
}
