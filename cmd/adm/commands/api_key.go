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

// APIKeyCommands returns the service API key management commands
func APIKeyCommands(apiKeys services.AuthAPIKeyServiceInterface, logger *observability.Logger) *cobra.Command {
	keyCmd := &cobra.Command{
		Use:   "apikey",
		Short: "Service API key management",
		Long: `Manage header-auth API keys.

Available commands:
  create - Issue a new API key for a user
  list   - List a user's API keys
  delete - Revoke an API key`,
	}

	keyCmd.AddCommand(createAPIKeyCmd(apiKeys, logger))
	keyCmd.AddCommand(listAPIKeysCmd(apiKeys, logger))
	keyCmd.AddCommand(deleteAPIKeyCmd(apiKeys, logger))

	return keyCmd
}

func createAPIKeyCmd(apiKeys services.AuthAPIKeyServiceInterface, logger *observability.Logger) *cobra.Command {
	var keyName string

	cmd := &cobra.Command{
		Use:   "create [user-id]",
		Short: "Issue a new API key for a user",
		Long: `Issue a new API key for a user.

The raw key is printed once and never stored; only a hash is kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx := context.Background()
			userID, err := strconv.Atoi(args[0])
			if err != nil {
				return contextutils.ErrorWithContextf("invalid user id %q", args[0])
			}

			key, rawKey, err := apiKeys.CreateAPIKey(ctx, userID, keyName)
			if err != nil {
				logger.Error(ctx, "Failed to create API key", err, map[string]interface{}{"user_id": userID})
				return contextutils.WrapError(err, "failed to create API key")
			}

			fmt.Printf("Created API key %d (%s) for user %d\n", key.ID, key.KeyName, userID)
			fmt.Printf("Raw key (store it now, it will not be shown again):\n%s\n", rawKey)
			return nil
		},
	}

	cmd.Flags().StringVar(&keyName, "name", "cli", "Display name for the key")

	return cmd
}

func listAPIKeysCmd(apiKeys services.AuthAPIKeyServiceInterface, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "list [user-id]",
		Short: "List a user's API keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx := context.Background()
			userID, err := strconv.Atoi(args[0])
			if err != nil {
				return contextutils.ErrorWithContextf("invalid user id %q", args[0])
			}

			keys, err := apiKeys.ListAPIKeys(ctx, userID)
			if err != nil {
				logger.Error(ctx, "Failed to list API keys", err, map[string]interface{}{"user_id": userID})
				return contextutils.WrapError(err, "failed to list API keys")
			}

			if len(keys) == 0 {
				fmt.Printf("User %d has no API keys\n", userID)
				return nil
			}

			fmt.Printf("%-5s %-20s %-12s %-20s\n", "ID", "Name", "Prefix", "Created")
			for _, key := range keys {
				fmt.Printf("%-5d %-20s %-12s %-20s\n", key.ID, key.KeyName, key.KeyPrefix, key.CreatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func deleteAPIKeyCmd(apiKeys services.AuthAPIKeyServiceInterface, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [user-id] [key-id]",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx := context.Background()
			userID, err := strconv.Atoi(args[0])
			if err != nil {
				return contextutils.ErrorWithContextf("invalid user id %q", args[0])
			}
			keyID, err := strconv.Atoi(args[1])
			if err != nil {
				return contextutils.ErrorWithContextf("invalid key id %q", args[1])
			}

			if err := apiKeys.DeleteAPIKey(ctx, userID, keyID); err != nil {
				logger.Error(ctx, "Failed to delete API key", err, map[string]interface{}{"user_id": userID, "key_id": keyID})
				return contextutils.WrapError(err, "failed to delete API key")
			}

			fmt.Printf("API key %d revoked for user %d\n", keyID, userID)
			return nil
		},
	}
}
