package cmd

import (
	"fmt"
	"strings"

	"restore-manager/core/reconcile"
	"restore-manager/feature/restore"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// restoreCmd represents the restore command
var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore local records from a cloud snapshot",
	Long: `Diffs local records against a cloud snapshot, merges them with the chosen
strategy and applies the result. A local backup is taken before writing and
can be restored with the rollback command.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		file, _ := cmd.Flags().GetString("file")
		strategyFlag, _ := cmd.Flags().GetString("strategy")
		only, _ := cmd.Flags().GetStringSlice("only")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		yes, _ := cmd.Flags().GetBool("yes")
		interactive, _ := cmd.Flags().GetBool("interactive")

		strategy := reconcile.Strategy(strategyFlag)
		if !strategy.IsValid() {
			return fmt.Errorf("unknown strategy %q", strategyFlag)
		}
		flags, err := parseCollections(only)
		if err != nil {
			return err
		}

		a, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer a.logger.Sync()
		svc := a.restoreService()

		if file == "" {
			files, err := svc.ListSnapshots(ctx)
			if err != nil {
				return fmt.Errorf("failed to list snapshots: %w", err)
			}
			if len(files) == 0 {
				return fmt.Errorf("no cloud snapshots found in bucket %s", a.source.Bucket())
			}
			file = files[0].Path
			a.logger.Info("Using latest snapshot", zap.String("file", file))
		}

		view, err := svc.StartSession(ctx, file)
		if err != nil {
			return err
		}
		printDiff(view.Diff)

		if _, err := svc.SelectStrategy(strategy); err != nil {
			return err
		}
		if _, err := svc.SelectContent(flags); err != nil {
			return err
		}

		if strategy == reconcile.StrategyManual && interactive && view.ConflictCount > 0 {
			if err := promptConflicts(svc); err != nil {
				_ = svc.AbandonSession()
				return err
			}
		}

		preview, err := svc.PrepareMerge()
		if err != nil {
			return err
		}
		printSummary(preview)

		if dryRun {
			_ = svc.AbandonSession()
			fmt.Println("\nDry run: no changes written.")
			return nil
		}

		ok, err := confirm(fmt.Sprintf("Apply the %s restore?", strategy), strategy.Description(), yes)
		if err != nil {
			return err
		}
		if !ok {
			_ = svc.AbandonSession()
			fmt.Println("Restore cancelled.")
			return nil
		}

		res, err := svc.Apply(ctx)
		if res != nil {
			printApply(res)
		}
		return err
	},
}

func parseCollections(names []string) (map[reconcile.CollectionName]bool, error) {
	flags := make(map[reconcile.CollectionName]bool, len(reconcile.Collections))
	for _, name := range reconcile.Collections {
		flags[name] = len(names) == 0
	}
	for _, raw := range names {
		name := reconcile.CollectionName(strings.TrimSpace(raw))
		if !name.IsValid() {
			return nil, fmt.Errorf("unknown collection %q", raw)
		}
		flags[name] = true
	}
	return flags, nil
}

// choicePrevious is the prompt value that moves back one conflict.
const choicePrevious = "previous"

// conflictOptions lists the prompt choices. ChoiceMerge keeps the record with
// the newer updatedAt since no field merge is configured.
func conflictOptions(position int) []huh.Option[string] {
	options := []huh.Option[string]{
		huh.NewOption("Keep local version", string(reconcile.ChoiceLocal)),
		huh.NewOption("Use cloud version", string(reconcile.ChoiceCloud)),
		huh.NewOption("Use the newer version (by updatedAt)", string(reconcile.ChoiceMerge)),
	}
	if position > 0 {
		options = append(options, huh.NewOption("Previous conflict", choicePrevious))
	}
	return options
}

// promptConflicts walks the session's conflicts with its cursor, asking for a
// choice on each and showing a line diff.
func promptConflicts(svc *restore.Service) error {
	cv, err := svc.CurrentConflict()
	if err != nil {
		return err
	}
	for {
		fmt.Printf("\nConflict %d/%d: %s\n", cv.Position+1, cv.Total, cv.Key)
		fmt.Println(renderPreview(cv.Preview))

		choice := string(cv.Choice)
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[string]().
					Title(fmt.Sprintf("How should %s be resolved?", cv.Key)).
					Description(fmt.Sprintf("Recommended: %s", cv.Recommendation)).
					Options(conflictOptions(cv.Position)...).
					Value(&choice),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("failed to get user input for conflict resolution: %w", err)
		}

		if choice == choicePrevious {
			if cv, _, err = svc.PreviousConflict(); err != nil {
				return err
			}
			continue
		}
		if _, err := svc.SelectCurrent(reconcile.Choice(choice)); err != nil {
			return err
		}
		next, moved, err := svc.NextConflict()
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}
		cv = next
	}
}

func renderPreview(chunks []reconcile.PreviewChunk) string {
	var b strings.Builder
	for _, ch := range chunks {
		prefix := "  "
		switch ch.Type {
		case reconcile.ChunkRemoved:
			prefix = "- "
		case reconcile.ChunkAdded:
			prefix = "+ "
		}
		for _, line := range strings.Split(strings.TrimSuffix(ch.Content, "\n"), "\n") {
			b.WriteString(prefix + line + "\n")
		}
	}
	return b.String()
}

func printDiff(diff *reconcile.DiffResult) {
	fmt.Println("\n=== Differences ===")
	for _, name := range reconcile.Collections {
		cd := diff.Collection(name)
		if cd == nil {
			continue
		}
		fmt.Printf("%-16s local=%d cloud=%d cloud-only=%d local-only=%d identical=%d conflicts=%d\n",
			name, cd.TotalLocal, cd.TotalCloud, cd.CloudOnlyCount, cd.LocalOnlyCount, cd.IdenticalCount, len(cd.Conflicts))
	}
}

func printSummary(m *reconcile.MergeResult) {
	fmt.Printf("\n=== Merge Preview (%s) ===\n", m.Strategy)
	for _, name := range reconcile.Collections {
		s, ok := m.Summary[name]
		if !ok {
			continue
		}
		fmt.Printf("%-16s added=%d updated=%d kept=%d discarded=%d\n", name, s.Added, s.Updated, s.Kept, s.Discarded)
	}
	for _, w := range m.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
}

func printApply(res *reconcile.ApplyResult) {
	fmt.Printf("\nState: %s\n", res.State)
	if res.BackupKey != "" {
		fmt.Printf("Backup: %s\n", res.BackupKey)
	}
	for _, m := range res.Mismatches {
		fmt.Printf("Mismatch in %s: expected %d, found %d\n", m.Collection, m.Expected, m.Actual)
	}
	if res.Error != "" {
		fmt.Printf("Error: %s\n", res.Error)
	}
}

// confirm asks a yes/no question unless skip is set.
func confirm(title, description string, skip bool) (bool, error) {
	if skip {
		return true, nil
	}
	ok := false
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Description(description).
			Value(&ok),
	))
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("failed to get confirmation: %w", err)
	}
	return ok, nil
}

func init() {
	RootCmd.AddCommand(restoreCmd)

	restoreCmd.Flags().String("file", "", "Cloud snapshot object path (defaults to the latest)")
	restoreCmd.Flags().String("strategy", string(reconcile.StrategySmart), "Merge strategy: smart, local, cloud or manual")
	restoreCmd.Flags().StringSlice("only", nil, "Restore only these collections (comma separated)")
	restoreCmd.Flags().Bool("dry-run", false, "Show the merge preview without writing")
	restoreCmd.Flags().BoolP("yes", "y", false, "Apply without asking for confirmation")
	restoreCmd.Flags().Bool("interactive", false, "Prompt for each conflict with the manual strategy")
}
