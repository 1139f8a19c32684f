package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"ieltsprep/internal/observability"
	"ieltsprep/internal/services"
	contextutils "ieltsprep/internal/utils"

	"github.com/spf13/cobra"
)

// ProviderKeyCommands returns the provider key management commands
func ProviderKeyCommands(providerKeys services.ProviderKeyServiceInterface, logger *observability.Logger) *cobra.Command {
	keyCmd := &cobra.Command{
		Use:   "provider-key",
		Short: "Gemini provider key management",
		Long: `Manage stored Gemini API keys.

Available commands:
  set    - Set or rotate a user's provider key
  status - Show whether a user has a key on file
  delete - Remove a user's provider key`,
	}

	keyCmd.AddCommand(setProviderKeyCmd(providerKeys, logger))
	keyCmd.AddCommand(providerKeyStatusCmd(providerKeys, logger))
	keyCmd.AddCommand(deleteProviderKeyCmd(providerKeys, logger))

	return keyCmd
}

func setProviderKeyCmd(providerKeys services.ProviderKeyServiceInterface, logger *observability.Logger) *cobra.Command {
	var apiKey string

	cmd := &cobra.Command{
		Use:   "set [user-id]",
		Short: "Set or rotate a user's provider key",
		Long: `Set or rotate the Gemini API key stored for a user.

The key is taken from --key or, if the flag is absent, from the
GEMINI_API_KEY environment variable. It is encrypted before storage.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx := context.Background()
			userID, err := strconv.Atoi(args[0])
			if err != nil {
				return contextutils.ErrorWithContextf("invalid user id %q", args[0])
			}

			if apiKey == "" {
				apiKey = os.Getenv("GEMINI_API_KEY")
			}
			if apiKey == "" {
				return contextutils.ErrorWithContextf("no key provided: use --key or GEMINI_API_KEY")
			}

			if err := providerKeys.SetProviderKey(ctx, userID, apiKey); err != nil {
				logger.Error(ctx, "Failed to store provider key", err, map[string]interface{}{"user_id": userID})
				return contextutils.WrapError(err, "failed to store provider key")
			}

			fmt.Printf("Provider key stored for user %d\n", userID)
			return nil
		},
	}

	cmd.Flags().StringVar(&apiKey, "key", "", "Gemini API key to store")

	return cmd
}

func providerKeyStatusCmd(providerKeys services.ProviderKeyServiceInterface, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "status [user-id]",
		Short: "Show whether a user has a provider key on file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx := context.Background()
			userID, err := strconv.Atoi(args[0])
			if err != nil {
				return contextutils.ErrorWithContextf("invalid user id %q", args[0])
			}

			_, err = providerKeys.GetProviderKey(ctx, userID)
			if errors.Is(err, contextutils.ErrRecordNotFound) {
				fmt.Printf("User %d has no provider key on file\n", userID)
				return nil
			}
			if err != nil {
				logger.Error(ctx, "Failed to read provider key", err, map[string]interface{}{"user_id": userID})
				return contextutils.WrapError(err, "failed to read provider key")
			}

			fmt.Printf("User %d has a provider key on file\n", userID)
			return nil
		},
	}
}

func deleteProviderKeyCmd(providerKeys services.ProviderKeyServiceInterface, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [user-id]",
		Short: "Remove a user's provider key",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx := context.Background()
			userID, err := strconv.Atoi(args[0])
			if err != nil {
				return contextutils.ErrorWithContextf("invalid user id %q", args[0])
			}

			if err := providerKeys.DeleteProviderKey(ctx, userID); err != nil {
				logger.Error(ctx, "Failed to delete provider key", err, map[string]interface{}{"user_id": userID})
				return contextutils.WrapError(err, "failed to delete provider key")
			}

			fmt.Printf("Provider key removed for user %d\n", userID)
			return nil
		},
	}
}
