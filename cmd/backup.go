package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// backupCmd represents the backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload local records as a new cloud snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer a.logger.Sync()

		if cmd.Flags().Changed("keep") {
			a.cfg.Restore.CloudRetention, _ = cmd.Flags().GetInt("keep")
		}

		res, err := a.restoreService().BackupToCloud(ctx)
		if err != nil {
			return err
		}
		a.logger.Info("Cloud backup uploaded",
			zap.String("file", res.File.Path),
			zap.Int64("size", res.File.Size),
			zap.Strings("pruned", res.Pruned))
		fmt.Printf("Uploaded %s\n", res.File.Path)
		if len(res.Pruned) > 0 {
			fmt.Printf("Pruned %d old snapshot(s)\n", len(res.Pruned))
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(backupCmd)
	backupCmd.Flags().Int("keep", 0, "Cloud snapshots to keep after upload (0 disables pruning; defaults to config)")
}
