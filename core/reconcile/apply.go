package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultBackupRetention is the number of backups kept when none is configured.
const DefaultBackupRetention = 5

// Store is the durable local key-value store. Collections are stored under
// their collection name, backups under BackupPrefix.
type Store interface {
	// Read returns the value of key and whether it exists.
	Read(ctx context.Context, key string) ([]byte, bool, error)
	Write(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists every key with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Applier writes merge results to a Store with a backup, a cardinality check
// and rollback. One Apply or Rollback runs at a time.
type Applier struct {
	store     Store
	logger    *zap.Logger
	retention int
	now       func() time.Time

	mu    sync.Mutex
	state ApplyState
}

// NewApplier creates an Applier. A non-positive retention uses DefaultBackupRetention.
func NewApplier(store Store, logger *zap.Logger, retention int) *Applier {
	if retention <= 0 {
		retention = DefaultBackupRetention
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{
		store:     store,
		logger:    logger,
		retention: retention,
		now:       time.Now,
		state:     StateIdle,
	}
}

// State returns the state reached by the last operation.
func (a *Applier) State() ApplyState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Retention returns the number of backups kept.
func (a *Applier) Retention() int {
	return a.retention
}

// LoadSnapshot reads every collection from the store. Missing keys are omitted.
func LoadSnapshot(ctx context.Context, store Store) (Snapshot, error) {
	s := Snapshot{}
	for _, name := range Collections {
		data, ok, err := store.Read(ctx, string(name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if !ok {
			continue
		}
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		s[string(name)] = v
	}
	return s, nil
}

func flagged(flags map[CollectionName]bool, name CollectionName) bool {
	if flags == nil {
		return true
	}
	return flags[name]
}

// writeCollection persists a normalized collection. An empty settings
// collection removes the key.
func writeCollection(ctx context.Context, store Store, name CollectionName, c Collection) error {
	var value any = map[string]any(c)
	if name == CollectionSettings {
		v, ok := c[SettingsKey]
		if !ok {
			return store.Delete(ctx, string(name))
		}
		value = v
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return store.Write(ctx, string(name), data)
}

// countCollection re-reads a collection and returns its cardinality.
func countCollection(ctx context.Context, store Store, name CollectionName) (int, error) {
	data, ok, err := store.Read(ctx, string(name))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return 0, fmt.Errorf("decode %s: %w", name, err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return 0, nil
	}
	if name == CollectionSettings {
		return 1, nil
	}
	return len(obj), nil
}

func (a *Applier) setState(s ApplyState) {
	a.state = s
	a.logger.Debug("Apply state changed", zap.String("state", string(s)))
}

// Apply writes the flagged collections of a successful merge. A nil flag map
// writes every collection present in the merge output.
func (a *Applier) Apply(ctx context.Context, merge *MergeResult, flags map[CollectionName]bool) (*ApplyResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res := &ApplyResult{State: StateIdle, Written: []CollectionName{}, Counts: map[CollectionName]int{}}
	if merge == nil || !merge.Success {
		res.State = StateFailed
		res.Error = "merge result is not successful"
		return res, &InputError{Reason: res.Error, Err: ErrInvalidOptions}
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	a.setState(StateBackingUp)
	key, err := a.backup(ctx)
	if err != nil {
		a.setState(StateFailed)
		res.State = StateFailed
		res.Error = err.Error()
		a.logger.Error("Backup failed, nothing written", zap.Error(err))
		return res, fmt.Errorf("%w: %v", ErrBackupFailed, err)
	}
	res.BackupKey = key

	if err := ctx.Err(); err != nil {
		if delErr := a.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			a.logger.Warn("Failed to remove backup of cancelled apply", zap.String("backup", key), zap.Error(delErr))
		}
		a.setState(StateIdle)
		res.State = StateIdle
		res.BackupKey = ""
		return res, err
	}

	// Writing is not interruptible once started.
	ctx = context.WithoutCancel(ctx)

	a.setState(StateWriting)
	for _, name := range Collections {
		if !flagged(flags, name) {
			continue
		}
		c, ok := merge.MergedData[name]
		if !ok {
			continue
		}
		if err := writeCollection(ctx, a.store, name, c); err != nil {
			a.setState(StateFailed)
			res.State = StateFailed
			res.Error = err.Error()
			a.logger.Error("Write failed, backup retained", zap.String("collection", string(name)), zap.String("backup", key), zap.Error(err))
			return res, fmt.Errorf("write %s: %w", name, err)
		}
		res.Written = append(res.Written, name)
	}

	a.setState(StateVerifying)
	for _, name := range res.Written {
		actual, err := countCollection(ctx, a.store, name)
		if err != nil {
			a.setState(StateFailed)
			res.State = StateFailed
			res.Error = err.Error()
			return res, fmt.Errorf("verify %s: %w", name, err)
		}
		res.Counts[name] = actual
		if expected := len(merge.MergedData[name]); expected != actual {
			res.Mismatches = append(res.Mismatches, IntegrityMismatch{Collection: name, Expected: expected, Actual: actual})
		}
	}
	if len(res.Mismatches) > 0 {
		a.setState(StateFailed)
		res.State = StateFailed
		res.Error = fmt.Sprintf("%d collection(s) failed verification", len(res.Mismatches))
		a.logger.Error("Integrity check failed, backup retained",
			zap.String("backup", key),
			zap.Any("mismatches", res.Mismatches))
		return res, fmt.Errorf("%w: %s", ErrIntegrity, res.Error)
	}

	a.setState(StateCommitted)
	res.State = StateCommitted
	if pruned, err := a.prune(ctx); err != nil {
		a.logger.Warn("Failed to prune backups", zap.Error(err))
	} else if len(pruned) > 0 {
		a.logger.Debug("Pruned backups", zap.Strings("keys", pruned))
	}
	a.logger.Info("Merge applied",
		zap.String("backup", key),
		zap.Int("collections", len(res.Written)))
	return res, nil
}
