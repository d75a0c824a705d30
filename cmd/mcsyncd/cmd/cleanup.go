package cmd

import (
	"fmt"

	"github.com/materials-commons/mcsync/pkg/storagepath"
	"github.com/materials-commons/mcsync/pkg/webdavclient"
	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove storage directories of accounts that are no longer configured",
	RunE: func(cmd *cobra.Command, args []string) error {
		accounts, _ := cmd.Flags().GetStringSlice("accounts")
		if len(accounts) == 0 {
			accounts = webdavclient.NewProvider(accountsFromSettings(settings)).Accounts()
		}

		removed := storagepath.NewResolver(settings.Root).DeleteUnusedUserDirs(accounts)
		for _, dir := range removed {
			fmt.Println(dir)
		}

		return nil
	},
}

func init() {
	cleanupCmd.Flags().StringSlice("accounts", nil, "accounts to keep (default the configured account)")
	rootCmd.AddCommand(cleanupCmd)
}
