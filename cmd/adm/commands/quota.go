package commands

import (
	"context"
	"fmt"
	"strconv"

	"ieltsprep/internal/observability"
	"ieltsprep/internal/services"
	contextutils "ieltsprep/internal/utils"

	"github.com/spf13/cobra"
)

// QuotaCommands returns the daily usage inspection commands
func QuotaCommands(usage *services.UsageService, logger *observability.Logger) *cobra.Command {
	quotaCmd := &cobra.Command{
		Use:   "quota",
		Short: "Daily token quota commands",
		Long: `Inspect and reset per-user daily token counters.

Available commands:
  show  - Show today's counter for a user
  reset - Delete today's counter for a user`,
	}

	quotaCmd.AddCommand(showQuotaCmd(usage, logger))
	quotaCmd.AddCommand(resetQuotaCmd(usage, logger))

	return quotaCmd
}

func showQuotaCmd(usage *services.UsageService, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "show [user-id]",
		Short: "Show today's token counter for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx := context.Background()
			userID, err := strconv.Atoi(args[0])
			if err != nil {
				return contextutils.ErrorWithContextf("invalid user id %q", args[0])
			}

			today, err := usage.GetTodayUsage(ctx, userID)
			if err != nil {
				logger.Error(ctx, "Failed to read daily usage", err, map[string]interface{}{"user_id": userID})
				return contextutils.WrapError(err, "failed to read daily usage")
			}

			fmt.Printf("User %d usage for %s\n", userID, today.UsageDate.Format("2006-01-02"))
			fmt.Printf("  prompt tokens:     %d\n", today.PromptTokens)
			fmt.Printf("  completion tokens: %d\n", today.CompletionTokens)
			fmt.Printf("  total tokens:      %d / %d\n", today.TotalTokens, today.Ceiling)
			return nil
		},
	}
}

func resetQuotaCmd(usage *services.UsageService, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "reset [user-id]",
		Short: "Delete today's token counter for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx := context.Background()
			userID, err := strconv.Atoi(args[0])
			if err != nil {
				return contextutils.ErrorWithContextf("invalid user id %q", args[0])
			}

			if err := usage.ResetToday(ctx, userID); err != nil {
				logger.Error(ctx, "Failed to reset daily usage", err, map[string]interface{}{"user_id": userID})
				return contextutils.WrapError(err, "failed to reset daily usage")
			}

			fmt.Printf("Daily usage reset for user %d\n", userID)
			return nil
		},
	}
}
