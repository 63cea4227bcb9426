package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clearcut-studio/studio-server/internal/app"
	"github.com/clearcut-studio/studio-server/internal/config"
)

var apiKeyCmd = &cobra.Command{
	Use:   "api-key",
	Short: "Manage stored provider API keys",
}

var apiKeySetCmd = &cobra.Command{
	Use:   "set <provider> <key>",
	Short: "Store a provider API key, sealed at rest",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(config.GetConfig(), app.WithDBInitialization())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ProviderKeyRepository.SetKey(a.Context(), args[0], args[1]); err != nil {
			return err
		}

		fmt.Printf("stored key for %s\n", args[0])
		return nil
	},
}

var apiKeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored provider keys (masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(config.GetConfig(), app.WithDBInitialization())
		if err != nil {
			return err
		}
		defer a.Close()

		keys, err := a.ProviderKeyRepository.ListKeys(a.Context())
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			fmt.Println("no keys stored")
			return nil
		}

		for _, key := range keys {
			fmt.Printf("%-12s %s\n", key.Provider, key.KeyMask)
		}
		return nil
	},
}

var apiKeyDeleteCmd = &cobra.Command{
	Use:   "delete <provider>",
	Short: "Delete a stored provider key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(config.GetConfig(), app.WithDBInitialization())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ProviderKeyRepository.DeleteKey(a.Context(), args[0]); err != nil {
			return err
		}

		fmt.Printf("deleted key for %s\n", args[0])
		return nil
	},
}

func init() {
	apiKeyCmd.AddCommand(apiKeySetCmd, apiKeyListCmd, apiKeyDeleteCmd)
}
