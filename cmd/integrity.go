package cmd

import (
	"context"
	"fmt"
	"os"

	"restore-manager/feature/integrity"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var fixFlag bool

// integrityCmd represents the integrity command
var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Perform integrity checks on the restore system",
	Long:  `Checks the snapshot bucket, the local store schema and the local backups.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) > 0 {
			cmd.Help()
			return
		}
		runIntegrityChecks(cmd.Context(), true, true, true)
	},
}

// bucketCmd represents the integrity bucket command
var bucketCmd = &cobra.Command{
	Use:   "bucket",
	Short: "Check and fix the snapshot bucket",
	Run: func(cmd *cobra.Command, args []string) {
		runIntegrityChecks(cmd.Context(), true, false, false)
	},
}

// storeCmd represents the integrity store command
var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Check the local store schema",
	Run: func(cmd *cobra.Command, args []string) {
		runIntegrityChecks(cmd.Context(), false, true, false)
	},
}

// backupsCmd represents the integrity backups command
var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "Check local backups",
	Run: func(cmd *cobra.Command, args []string) {
		runIntegrityChecks(cmd.Context(), false, false, true)
	},
}

func init() {
	RootCmd.AddCommand(integrityCmd)
	integrityCmd.AddCommand(bucketCmd, storeCmd, backupsCmd)

	bucketCmd.Flags().BoolVar(&fixFlag, "fix", false, "Create the bucket if missing")
}

func runIntegrityChecks(ctx context.Context, runBucket, runStore, runBackups bool) {
	a, err := bootstrap(ctx)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	logg := a.logger
	defer logg.Sync()

	svc := integrity.NewService(a.client, a.cfg.Storage, a.db, a.store, a.applier, logg)

	if runBucket {
		logg.Info("Checking snapshot bucket...")
		report, err := svc.CheckBucket(ctx)
		if err != nil {
			logg.Fatal("Bucket check failed", zap.Error(err))
		}

		switch {
		case !report.Exists && fixFlag:
			logg.Info("Creating missing bucket...")
			if err := svc.FixBucket(ctx); err != nil {
				logg.Fatal("Failed to create bucket", zap.Error(err))
			}
		case !report.Exists:
			logg.Warn("Snapshot bucket is missing", zap.String("bucket", report.Bucket))
			logg.Info("Run 'integrity bucket --fix' to create it.")
		default:
			logg.Info("Snapshot bucket is present",
				zap.String("bucket", report.Bucket),
				zap.Int("snapshots", report.Snapshots),
				zap.String("status", report.Status))
		}
	}

	if runStore {
		logg.Info("Checking local store schema...", zap.String("driver", a.cfg.Restore.StoreDriver))
		report, err := svc.CheckStore()
		switch {
		case err != nil:
			logg.Error("Store schema check failed", zap.Error(err))
		case report == nil:
			logg.Info("Store is not database backed; skipped.")
		case report.Matched:
			logg.Info("Store schema matches expected definition.", zap.String("table", report.Table))
		default:
			logg.Warn("Store schema mismatches found",
				zap.String("table", report.Table),
				zap.Strings("missing", report.MissingColumns))
			for _, e := range report.Errors {
				logg.Error("Inspection Error", zap.String("error", e))
			}
		}
	}

	if runBackups {
		logg.Info("Checking local backups...")
		report, err := svc.CheckBackups(ctx)
		if err != nil {
			logg.Fatal("Backup check failed", zap.Error(err))
		}
		if len(report.Unreadable) > 0 {
			logg.Warn("Unreadable backups detected", zap.Strings("backups", report.Unreadable))
		}
		logg.Info("Local backups checked",
			zap.Int("count", report.Count),
			zap.Int("retention", report.Retention),
			zap.String("latest", report.Latest),
			zap.String("status", report.Status))
	}
}
