package reconcile

import "time"

// CollectionName identifies one keyed set of records inside a snapshot.
type CollectionName string

const (
	CollectionVideos          CollectionName = "videos"
	CollectionActors          CollectionName = "actors"
	CollectionSubscriptions   CollectionName = "subscriptions"
	CollectionDiscoveredWorks CollectionName = "discoveredWorks"
	CollectionSettings        CollectionName = "settings"
)

// Collections lists every collection in the order they are diffed, merged and written.
var Collections = []CollectionName{
	CollectionVideos,
	CollectionActors,
	CollectionSubscriptions,
	CollectionDiscoveredWorks,
	CollectionSettings,
}

// IsValid reports whether n is one of the known collections.
func (n CollectionName) IsValid() bool {
	for _, c := range Collections {
		if c == n {
			return true
		}
	}
	return false
}

// SettingsKey is the sentinel record id under which the settings object is held,
// so settings travel through the same keyed code path as every other collection.
const SettingsKey = "__settings__"

// Record is an opaque record value decoded from JSON. Only "updatedAt" is ever read.
type Record = any

// Collection maps record ids to records.
type Collection map[string]Record

// Choice is a resolution for one conflicting record.
type Choice string

const (
	ChoiceLocal Choice = "local"
	ChoiceCloud Choice = "cloud"
	// ChoiceMerge asks for a field-level combination; without a FieldMergeFunc the
	// newer record wins.
	ChoiceMerge Choice = "merge"
)

// IsValid returns true if the choice is recognized.
func (c Choice) IsValid() bool {
	switch c {
	case ChoiceLocal, ChoiceCloud, ChoiceMerge:
		return true
	default:
		return false
	}
}

// Strategy is the global policy applied to one-sided keys and conflicts.
type Strategy string

const (
	StrategySmart  Strategy = "smart"
	StrategyLocal  Strategy = "local"
	StrategyCloud  Strategy = "cloud"
	StrategyManual Strategy = "manual"
)

// IsValid returns true if the strategy is recognized.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategySmart, StrategyLocal, StrategyCloud, StrategyManual:
		return true
	default:
		return false
	}
}

// Description returns a human-readable description of the strategy.
func (s Strategy) Description() string {
	switch s {
	case StrategySmart:
		return "Union of both sides; conflicts keep the newer record"
	case StrategyLocal:
		return "Keep local data; cloud-only records are discarded"
	case StrategyCloud:
		return "Replace with cloud data; local-only records are discarded"
	case StrategyManual:
		return "Union of both sides; conflicts use per-record choices"
	default:
		return "Unknown strategy"
	}
}

// Conflict is a record present in both snapshots with differing content.
type Conflict struct {
	// Collection is the collection holding the record.
	Collection CollectionName `json:"collection"`

	// ID is the record id.
	ID string `json:"id"`

	Local Record `json:"local"`
	Cloud Record `json:"cloud"`

	// LocalUpdatedAt and CloudUpdatedAt are nil when the record carries no timestamp.
	LocalUpdatedAt *int64 `json:"localUpdatedAt,omitempty"`
	CloudUpdatedAt *int64 `json:"cloudUpdatedAt,omitempty"`

	// Recommendation is the side with the strictly newer timestamp, or merge.
	Recommendation Choice `json:"recommendation"`
}

// Key returns the collection-qualified id used by the resolver and by
// MergeOptions.CustomConflictResolutions.
func (c Conflict) Key() string {
	return ConflictKey(c.Collection, c.ID)
}

// ConflictKey builds the qualified key of a record id.
func ConflictKey(collection CollectionName, id string) string {
	return string(collection) + ":" + id
}

// CollectionDiff is the classification of one collection.
type CollectionDiff struct {
	Collection     CollectionName `json:"collection"`
	TotalLocal     int            `json:"totalLocal"`
	TotalCloud     int            `json:"totalCloud"`
	CloudOnlyCount int            `json:"cloudOnlyCount"`
	LocalOnlyCount int            `json:"localOnlyCount"`
	IdenticalCount int            `json:"identicalCount"`

	// CloudOnly and LocalOnly hold the sorted ids present on one side only.
	CloudOnly []string `json:"cloudOnly"`
	LocalOnly []string `json:"localOnly"`

	// Conflicts is sorted by id.
	Conflicts []Conflict `json:"conflicts"`
}

// SettingsDiff reports the settings object as a whole.
type SettingsDiff struct {
	HasConflict bool   `json:"hasConflict"`
	Local       Record `json:"local"`
	Cloud       Record `json:"cloud"`
}

// DiffResult is the immutable outcome of Diff.
type DiffResult struct {
	Collections map[CollectionName]*CollectionDiff `json:"collections"`
	Settings    SettingsDiff                       `json:"settings"`
}

// FieldMergeFunc combines two conflicting records field by field.
type FieldMergeFunc func(collection CollectionName, id string, local, cloud Record) (Record, error)

// SettingsMergeFunc combines the two settings objects.
type SettingsMergeFunc func(local, cloud Record) (Record, error)

// MergeOptions controls Merge.
type MergeOptions struct {
	Strategy Strategy `json:"strategy"`

	// RestoreFlags selects collections to merge and write. A nil map selects all.
	RestoreFlags map[CollectionName]bool `json:"restoreFlags,omitempty"`

	// CustomConflictResolutions is consulted only by the manual strategy. Keys are
	// Conflict.Key values; a bare record id is accepted as a fallback.
	CustomConflictResolutions map[string]Choice `json:"customConflictResolutions,omitempty"`

	FieldMerge    FieldMergeFunc    `json:"-"`
	SettingsMerge SettingsMergeFunc `json:"-"`
}

// CollectionSummary counts the effect of a merge on one collection.
type CollectionSummary struct {
	// Added counts output records absent from local.
	Added int `json:"added"`
	// Updated counts conflicts whose resolved value differs from local.
	Updated int `json:"updated"`
	// Kept counts output records taken unchanged from local.
	Kept int `json:"kept"`
	// Discarded counts records dropped by the local or cloud strategy.
	Discarded int `json:"discarded"`
}

// MergeResult is the immutable outcome of Merge.
type MergeResult struct {
	Success    bool                                 `json:"success"`
	Strategy   Strategy                             `json:"strategy"`
	MergedData map[CollectionName]Collection        `json:"mergedData,omitempty"`
	Summary    map[CollectionName]CollectionSummary `json:"summary,omitempty"`
	Warnings   []string                             `json:"warnings,omitempty"`
	Error      string                               `json:"error,omitempty"`
}

// ApplyState is a state of the apply/rollback state machine.
type ApplyState string

const (
	StateIdle       ApplyState = "idle"
	StateBackingUp  ApplyState = "backing_up"
	StateWriting    ApplyState = "writing"
	StateVerifying  ApplyState = "verifying"
	StateCommitted  ApplyState = "committed"
	StateFailed     ApplyState = "failed"
	StateRolledBack ApplyState = "rolled_back"
)

// IntegrityMismatch describes a collection whose written cardinality is wrong.
type IntegrityMismatch struct {
	Collection CollectionName `json:"collection"`
	Expected   int            `json:"expected"`
	Actual     int            `json:"actual"`
}

// ApplyResult reports one Apply run.
type ApplyResult struct {
	State      ApplyState             `json:"state"`
	BackupKey  string                 `json:"backupKey,omitempty"`
	Written    []CollectionName       `json:"written"`
	Counts     map[CollectionName]int `json:"counts,omitempty"`
	Mismatches []IntegrityMismatch    `json:"mismatches,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// Success reports whether the apply committed.
func (r *ApplyResult) Success() bool {
	return r.State == StateCommitted
}

// RollbackResult reports one Rollback run.
type RollbackResult struct {
	Success   bool             `json:"success"`
	BackupKey string           `json:"backupKey,omitempty"`
	Restored  []CollectionName `json:"restored,omitempty"`
	Pruned    []string         `json:"pruned,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// BackupInfo describes a stored pre-apply backup.
type BackupInfo struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"createdAt"`
}
