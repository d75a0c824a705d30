package cmd

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/apex/log"
	"github.com/materials-commons/mcsync/pkg/config"
	"github.com/materials-commons/mcsync/pkg/lock"
	"github.com/materials-commons/mcsync/pkg/migration"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Move the local store to a new root",
	Long: `migrate moves every account directory, the tmp and logs directories from
the current root to a new one and rewrites stored paths. The daemon must not
be running. Files already at the destination are overwritten and the old
root is removed afterwards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		if from == "" {
			from = settings.Root
		}

		if to == "" {
			return errors.New("--to is required")
		}

		m := migration.NewMigrator(newStors(settings), lock.NewLease(), nil, migration.WithRootChanged(warnRootChanged))

		plan, err := m.Plan(from, to)
		if err != nil {
			return err
		}
		log.Infof("Migrating %d bytes from %s to %s, %d bytes available", plan.LegacySize, plan.LegacyRoot, plan.NewRoot, plan.AvailableSpace)

		var last migration.Progress
		result, err := m.Migrate(cmd.Context(), from, to, func(p migration.Progress) {
			if p.Type != last.Type || p.Percent/10 != last.Percent/10 {
				log.Infof("%s %d%% %s", p.Type, p.Percent, p.Current)
			}
			last = p
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}

		if !result.OK() {
			return errors.New("migration finished with failures")
		}

		return nil
	},
}

func init() {
	migrateCmd.Flags().String("from", "", "root to migrate from (default the configured root)")
	migrateCmd.Flags().String("to", "", "root to migrate to")
	rootCmd.AddCommand(migrateCmd)
}

func warnRootChanged(newRoot string) {
	log.Warnf("Storage root is now %s, set %s (or --root) to it", newRoot, config.KeyRoot)
}
