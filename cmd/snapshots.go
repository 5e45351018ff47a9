package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// snapshotsCmd represents the snapshots command
var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List cloud snapshots and local backups",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer a.logger.Sync()

		files, err := a.source.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list snapshots: %w", err)
		}
		backups, err := a.applier.Backups(ctx)
		if err != nil {
			return fmt.Errorf("failed to list backups: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "CLOUD SNAPSHOT\tSIZE\tMODIFIED\n")
		for _, f := range files {
			fmt.Fprintf(w, "%s\t%s\t%s\n", f.Path, humanize.Bytes(uint64(f.Size)), f.LastModified)
		}
		fmt.Fprintf(w, "\nLOCAL BACKUP\tCREATED\t\n")
		for _, b := range backups {
			fmt.Fprintf(w, "%s\t%s\t\n", b.Key, humanize.Time(b.CreatedAt))
		}
		return w.Flush()
	},
}

func init() {
	RootCmd.AddCommand(snapshotsCmd)
}
