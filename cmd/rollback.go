package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// rollbackCmd represents the rollback command
var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore local records from the latest backup",
	Long:  `Replaces local records with the most recent pre-restore backup and deletes that backup.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		yes, _ := cmd.Flags().GetBool("yes")

		a, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer a.logger.Sync()

		backups, err := a.applier.Backups(ctx)
		if err != nil {
			return fmt.Errorf("failed to list backups: %w", err)
		}
		if len(backups) == 0 {
			fmt.Println("No backups available.")
			return nil
		}

		title := fmt.Sprintf("Roll back to %s?", backups[0].CreatedAt.Format("2006-01-02 15:04:05"))
		ok, err := confirm(title, "Local records are replaced by the backup.", yes)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Rollback cancelled.")
			return nil
		}

		res, err := a.applier.Rollback(ctx)
		if err != nil {
			return err
		}
		a.logger.Info("Rollback completed",
			zap.String("backup", res.BackupKey),
			zap.Int("restored", len(res.Restored)),
			zap.Strings("pruned", res.Pruned))
		fmt.Printf("Restored %d collection(s) from %s\n", len(res.Restored), res.BackupKey)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(rollbackCmd)
	rollbackCmd.Flags().BoolP("yes", "y", false, "Roll back without asking for confirmation")
}
