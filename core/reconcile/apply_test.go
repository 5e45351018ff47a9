package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedStore(t *testing.T, store Store, s Snapshot) {
	t.Helper()
	for name, v := range s {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		require.NoError(t, store.Write(context.Background(), name, data))
	}
}

func newTestApplier(store Store, retention int) *Applier {
	a := NewApplier(store, zap.NewNop(), retention)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	n := 0
	a.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return a
}

func TestApplier_ApplyAndRollback(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	local := mustSnapshot(t, `{
		"videos":{"a":{"v":1,"updatedAt":1},"b":{"v":2}},
		"settings":{"theme":"dark"}
	}`)
	cloud := mustSnapshot(t, `{
		"videos":{"a":{"v":9,"updatedAt":5},"c":{"v":3}},
		"actors":{"x":{"name":"n"}},
		"settings":{"theme":"light"}
	}`)
	seedStore(t, store, local)

	merge := mergeOf(t, local, cloud, MergeOptions{Strategy: StrategySmart})
	require.True(t, merge.Success)

	a := newTestApplier(store, 5)
	res, err := a.Apply(ctx, merge, nil)
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, StateCommitted, a.State())
	assert.NotEmpty(t, res.BackupKey)
	assert.Equal(t, 3, res.Counts[CollectionVideos])
	assert.Equal(t, 1, res.Counts[CollectionActors])
	assert.Equal(t, 1, res.Counts[CollectionSettings])

	applied, err := LoadSnapshot(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, "light", applied["settings"].(map[string]any)["theme"])
	assert.Len(t, applied["videos"], 3)

	backups, err := a.Backups(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, res.BackupKey, backups[0].Key)

	rb, err := a.Rollback(ctx)
	require.NoError(t, err)
	assert.True(t, rb.Success)
	assert.Equal(t, res.BackupKey, rb.BackupKey)
	assert.Equal(t, StateRolledBack, a.State())

	restored, err := LoadSnapshot(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, local, restored)

	backups, err = a.Backups(ctx)
	require.NoError(t, err)
	assert.Empty(t, backups, "consumed backup is removed")
}

func TestApplier_OnlyFlaggedCollectionsWritten(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	local := mustSnapshot(t, `{"videos":{"a":{}},"actors":{"x":{}}}`)
	cloud := mustSnapshot(t, `{"videos":{"b":{}},"actors":{"y":{}}}`)
	seedStore(t, store, local)

	merge := mergeOf(t, local, cloud, MergeOptions{Strategy: StrategyCloud})
	flags := map[CollectionName]bool{CollectionVideos: true}

	res, err := newTestApplier(store, 5).Apply(ctx, merge, flags)
	require.NoError(t, err)
	assert.Equal(t, []CollectionName{CollectionVideos}, res.Written)

	after, err := LoadSnapshot(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"b": map[string]any{}}, after["videos"])
	assert.Equal(t, local["actors"], after["actors"])
}

func TestApplier_BackupFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	local := mustSnapshot(t, `{"videos":{"a":{}}}`)
	seedStore(t, store, local)
	store.failWrite = func(key string) error {
		if len(key) > len(BackupPrefix) && key[:len(BackupPrefix)] == BackupPrefix {
			return errDisk
		}
		return nil
	}

	merge := mergeOf(t, local, mustSnapshot(t, `{"videos":{"b":{}}}`), MergeOptions{Strategy: StrategyCloud})
	a := newTestApplier(store, 5)
	res, err := a.Apply(ctx, merge, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackupFailed)
	assert.Equal(t, StateFailed, res.State)
	assert.Empty(t, res.Written)

	after, err := LoadSnapshot(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, local, after)
}

func TestApplier_IntegrityFailureKeepsBackup(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	local := mustSnapshot(t, `{"videos":{"a":{}}}`)
	seedStore(t, store, local)
	store.dropWrites = map[string]bool{"videos": true}

	merge := mergeOf(t, local, mustSnapshot(t, `{"videos":{"b":{}}}`), MergeOptions{Strategy: StrategySmart})
	a := newTestApplier(store, 5)
	res, err := a.Apply(ctx, merge, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.Equal(t, StateFailed, res.State)
	require.Len(t, res.Mismatches, 1)
	assert.Equal(t, IntegrityMismatch{Collection: CollectionVideos, Expected: 2, Actual: 0}, res.Mismatches[0])

	backups, err := a.Backups(ctx)
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	store.dropWrites = nil
	rb, err := a.Rollback(ctx)
	require.NoError(t, err)
	assert.True(t, rb.Success)
	after, err := LoadSnapshot(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, local, after)
}

func TestApplier_WriteFailure(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.failWrite = func(key string) error {
		if key == string(CollectionActors) {
			return errDisk
		}
		return nil
	}

	merge := mergeOf(t, Snapshot{}, mustSnapshot(t, `{"videos":{"a":{}},"actors":{"x":{}}}`), MergeOptions{Strategy: StrategySmart})
	res, err := newTestApplier(store, 5).Apply(ctx, merge, nil)
	require.ErrorIs(t, err, errDisk)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, []CollectionName{CollectionVideos}, res.Written)
}

func TestApplier_RejectsFailedMerge(t *testing.T) {
	res, err := newTestApplier(newMemStore(), 5).Apply(context.Background(), &MergeResult{Success: false, Error: "bad"}, nil)
	assert.ErrorIs(t, err, ErrInvalidOptions)
	assert.Equal(t, StateFailed, res.State)

	_, err = newTestApplier(newMemStore(), 5).Apply(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestApplier_CancelledBeforeWritingLeavesNoTrace(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := newMemStore()

	merge := mergeOf(t, Snapshot{}, mustSnapshot(t, `{"videos":{"a":{}}}`), MergeOptions{Strategy: StrategySmart})
	res, err := newTestApplier(store, 5).Apply(ctx, merge, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateIdle, res.State)
	assert.Empty(t, store.data)
}

func TestApplier_CancelDuringWritingCompletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := newMemStore()
	store.honorCancel = true
	local := mustSnapshot(t, `{"videos":{"a":{}},"actors":{"x":{}}}`)
	cloud := mustSnapshot(t, `{"videos":{"b":{}},"actors":{"y":{}}}`)
	seedStore(t, store, local)

	merge := mergeOf(t, local, cloud, MergeOptions{Strategy: StrategySmart})
	store.afterWrite = func(key string) {
		if key == string(CollectionVideos) {
			cancel()
		}
	}

	res, err := newTestApplier(store, 5).Apply(ctx, merge, nil)
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, res.State)
	assert.Equal(t, Collections, res.Written)
	assert.Equal(t, 2, res.Counts[CollectionActors])

	store.afterWrite = nil
	after, err := LoadSnapshot(context.Background(), store)
	require.NoError(t, err)
	assert.Len(t, after["videos"], 2)
	assert.Len(t, after["actors"], 2)
}

func TestApplier_RetentionPrunesOldest(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	a := newTestApplier(store, 3)

	var keys []string
	for i := 0; i < 5; i++ {
		cloud := mustSnapshot(t, fmt.Sprintf(`{"videos":{"v%d":{}}}`, i))
		merge := mergeOf(t, Snapshot{}, cloud, MergeOptions{Strategy: StrategyCloud})
		res, err := a.Apply(ctx, merge, nil)
		require.NoError(t, err)
		keys = append(keys, res.BackupKey)
	}

	backups, err := a.Backups(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 3)
	assert.Equal(t, keys[4], backups[0].Key)
	assert.Equal(t, keys[2], backups[2].Key)
	assert.True(t, backups[0].CreatedAt.After(backups[1].CreatedAt))
}

func TestApplier_BackupKeysAreUnique(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	a := NewApplier(store, nil, 5)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	k1, err := a.backup(ctx)
	require.NoError(t, err)
	k2, err := a.backup(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
	assert.Equal(t, "backup_2026-01-01T00:00:00.000000000Z", k1)
}

func TestApplier_RollbackWithoutBackup(t *testing.T) {
	res, err := newTestApplier(newMemStore(), 5).Rollback(context.Background())
	assert.ErrorIs(t, err, ErrNoBackup)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestApplier_RollbackDeletesCollectionsAbsentFromBackup(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	a := newTestApplier(store, 5)

	merge := mergeOf(t, Snapshot{}, mustSnapshot(t, `{"subscriptions":{"s":{}}}`), MergeOptions{Strategy: StrategyCloud})
	_, err := a.Apply(ctx, merge, nil)
	require.NoError(t, err)

	_, err = a.Rollback(ctx)
	require.NoError(t, err)
	_, ok, err := store.Read(ctx, string(CollectionSubscriptions))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApplier_Prune(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	a := newTestApplier(store, 2)
	for i := 0; i < 4; i++ {
		_, err := a.backup(ctx)
		require.NoError(t, err)
	}
	store.data["backup_garbage"] = []byte("{}")

	pruned, err := a.Prune(ctx)
	require.NoError(t, err)
	assert.Len(t, pruned, 2)

	backups, err := a.Backups(ctx)
	require.NoError(t, err)
	assert.Len(t, backups, 2)
}
