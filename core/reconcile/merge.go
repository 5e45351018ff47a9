package reconcile

import (
	"fmt"
)

// Validate checks the strategy, restore flags and custom resolutions.
func (o MergeOptions) Validate() error {
	if !o.Strategy.IsValid() {
		return &InputError{Reason: fmt.Sprintf("unknown strategy %q", o.Strategy), Err: ErrInvalidOptions}
	}
	for name := range o.RestoreFlags {
		if !name.IsValid() {
			return &InputError{Reason: fmt.Sprintf("unknown collection %q in restore flags", name), Err: ErrInvalidOptions}
		}
	}
	for id, c := range o.CustomConflictResolutions {
		if !c.IsValid() {
			return &InputError{Reason: fmt.Sprintf("invalid choice %q for %q", c, id), Err: ErrInvalidOptions}
		}
	}
	return nil
}

// Restores reports whether a collection is selected. A nil flag map selects all.
func (o MergeOptions) Restores(name CollectionName) bool {
	if o.RestoreFlags == nil {
		return true
	}
	return o.RestoreFlags[name]
}

// Merge combines local and cloud according to opts. When diff is nil it is
// computed. Merge never panics on bad input; failures are reported through
// MergeResult.Success and MergeResult.Error.
func Merge(local, cloud Snapshot, diff *DiffResult, opts MergeOptions) *MergeResult {
	if err := opts.Validate(); err != nil {
		return failedMerge(opts.Strategy, err)
	}
	lcols, err := local.Collections()
	if err != nil {
		return failedMerge(opts.Strategy, err)
	}
	ccols, err := cloud.Collections()
	if err != nil {
		return failedMerge(opts.Strategy, err)
	}
	if diff == nil {
		if diff, err = Diff(local, cloud); err != nil {
			return failedMerge(opts.Strategy, err)
		}
	}

	result := &MergeResult{
		Success:    true,
		Strategy:   opts.Strategy,
		MergedData: make(map[CollectionName]Collection),
		Summary:    make(map[CollectionName]CollectionSummary),
		Warnings:   []string{},
	}

	for _, name := range Collections {
		if !opts.Restores(name) {
			continue
		}
		cd := diff.Collection(name)

		var (
			out Collection
			sum CollectionSummary
		)
		if name == CollectionSettings {
			out, sum, err = mergeSettings(lcols[name], ccols[name], cd, opts)
		} else {
			out, sum, err = mergeCollection(name, lcols[name], ccols[name], cd, opts)
		}
		if err != nil {
			return failedMerge(opts.Strategy, err)
		}

		result.MergedData[name] = out
		result.Summary[name] = sum
		if sum.Discarded > 0 {
			result.Warnings = append(result.Warnings, discardWarning(name, opts.Strategy, sum.Discarded))
		}
	}
	return result
}

func failedMerge(strategy Strategy, err error) *MergeResult {
	return &MergeResult{Success: false, Strategy: strategy, Error: err.Error()}
}

func discardWarning(name CollectionName, strategy Strategy, n int) string {
	side := "cloud-only"
	if strategy == StrategyCloud {
		side = "local-only"
	}
	return fmt.Sprintf("%s: %d %s record(s) will be discarded by the %s strategy", name, n, side, strategy)
}

func copyCollection(c Collection) Collection {
	out := make(Collection, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

func mismatch(name CollectionName, id, reason string) error {
	return &InputError{Collection: name, Reason: fmt.Sprintf("diff does not match snapshots: %q %s", id, reason), Err: ErrInvalidSnapshot}
}

func mergeCollection(name CollectionName, local, cloud Collection, cd *CollectionDiff, opts MergeOptions) (Collection, CollectionSummary, error) {
	var sum CollectionSummary

	switch opts.Strategy {
	case StrategyLocal:
		sum.Kept = len(local)
		sum.Discarded = cd.CloudOnlyCount
		return copyCollection(local), sum, nil
	case StrategyCloud:
		sum.Added = len(cloud)
		sum.Discarded = cd.LocalOnlyCount
		return copyCollection(cloud), sum, nil
	}

	out := copyCollection(local)
	for _, id := range cd.CloudOnly {
		v, ok := cloud[id]
		if !ok {
			return nil, sum, mismatch(name, id, "missing from cloud")
		}
		if _, ok := local[id]; ok {
			return nil, sum, mismatch(name, id, "present locally")
		}
		out[id] = v
		sum.Added++
	}

	for _, c := range cd.Conflicts {
		lv, lok := local[c.ID]
		cv, cok := cloud[c.ID]
		if !lok || !cok {
			return nil, sum, mismatch(name, c.ID, "is not shared")
		}
		v, err := resolveConflict(name, c, lv, cv, opts)
		if err != nil {
			return nil, sum, err
		}
		out[c.ID] = v
		if !recordsEqual(v, lv) {
			sum.Updated++
		}
	}

	sum.Kept = len(out) - sum.Added - sum.Updated
	return out, sum, nil
}

func resolveConflict(name CollectionName, c Conflict, local, cloud Record, opts MergeOptions) (Record, error) {
	choice := newer(local, cloud)
	if opts.Strategy == StrategyManual {
		if custom, ok := customChoice(c, opts.CustomConflictResolutions); ok {
			choice = custom
		}
	}

	switch choice {
	case ChoiceCloud:
		return cloud, nil
	case ChoiceMerge:
		if opts.FieldMerge == nil {
			if newer(local, cloud) == ChoiceCloud {
				return cloud, nil
			}
			return local, nil
		}
		v, err := opts.FieldMerge(name, c.ID, local, cloud)
		if err != nil {
			return nil, fmt.Errorf("field merge %s: %w", c.Key(), err)
		}
		return v, nil
	default:
		return local, nil
	}
}

func customChoice(c Conflict, custom map[string]Choice) (Choice, bool) {
	if choice, ok := custom[c.Key()]; ok {
		return choice, true
	}
	choice, ok := custom[c.ID]
	return choice, ok
}

func mergeSettings(local, cloud Collection, cd *CollectionDiff, opts MergeOptions) (Collection, CollectionSummary, error) {
	var sum CollectionSummary
	lv, lok := local[SettingsKey]
	cv, cok := cloud[SettingsKey]

	if opts.Strategy == StrategyLocal {
		sum.Kept = len(local)
		sum.Discarded = cd.CloudOnlyCount
		return copyCollection(local), sum, nil
	}

	if !cok {
		sum.Kept = len(local)
		return copyCollection(local), sum, nil
	}
	if opts.Strategy == StrategyCloud || !lok {
		sum.Added = 1
		return Collection{SettingsKey: cv}, sum, nil
	}

	v := cv
	if opts.SettingsMerge != nil && !recordsEqual(lv, cv) {
		merged, err := opts.SettingsMerge(lv, cv)
		if err != nil {
			return nil, sum, fmt.Errorf("settings merge: %w", err)
		}
		v = merged
	}
	if recordsEqual(v, lv) {
		sum.Kept = 1
	} else {
		sum.Updated = 1
	}
	return Collection{SettingsKey: v}, sum, nil
}

// Snapshot returns the merged data as a Snapshot.
func (r *MergeResult) Snapshot() Snapshot {
	return SnapshotOf(r.MergedData)
}

// TotalDiscarded returns the number of records dropped across all collections.
func (r *MergeResult) TotalDiscarded() int {
	n := 0
	for _, s := range r.Summary {
		n += s.Discarded
	}
	return n
}
