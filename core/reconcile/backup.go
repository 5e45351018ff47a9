package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// BackupPrefix prefixes every backup key in the store.
const BackupPrefix = "backup_"

const backupLayout = "2006-01-02T15:04:05.000000000Z"

type backupDocument struct {
	CreatedAt   string   `json:"createdAt"`
	Collections Snapshot `json:"collections"`
}

func backupKey(t time.Time) string {
	return BackupPrefix + t.UTC().Format(backupLayout)
}

// backup captures every collection currently in the store under a new key.
func (a *Applier) backup(ctx context.Context) (string, error) {
	snap, err := LoadSnapshot(ctx, a.store)
	if err != nil {
		return "", err
	}

	now := a.now().UTC()
	key := backupKey(now)
	for {
		_, exists, err := a.store.Read(ctx, key)
		if err != nil {
			return "", fmt.Errorf("check backup key: %w", err)
		}
		if !exists {
			break
		}
		now = now.Add(time.Nanosecond)
		key = backupKey(now)
	}

	data, err := json.Marshal(backupDocument{CreatedAt: now.Format(time.RFC3339Nano), Collections: snap})
	if err != nil {
		return "", fmt.Errorf("encode backup: %w", err)
	}
	if err := a.store.Write(ctx, key, data); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	a.logger.Debug("Backup written", zap.String("key", key), zap.Int("bytes", len(data)))
	return key, nil
}

// Backups lists stored backups, newest first.
func (a *Applier) Backups(ctx context.Context) ([]BackupInfo, error) {
	keys, err := a.store.Keys(ctx, BackupPrefix)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	out := make([]BackupInfo, 0, len(keys))
	for _, k := range keys {
		t, err := time.Parse(backupLayout, strings.TrimPrefix(k, BackupPrefix))
		if err != nil {
			a.logger.Warn("Ignoring malformed backup key", zap.String("key", k))
			continue
		}
		out = append(out, BackupInfo{Key: k, CreatedAt: t})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Prune deletes backups beyond the retention count and returns the deleted keys.
func (a *Applier) Prune(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.prune(ctx)
}

func (a *Applier) prune(ctx context.Context) ([]string, error) {
	backups, err := a.Backups(ctx)
	if err != nil {
		return nil, err
	}
	if len(backups) <= a.retention {
		return nil, nil
	}
	var pruned []string
	for _, b := range backups[a.retention:] {
		if err := a.store.Delete(ctx, b.Key); err != nil {
			return pruned, fmt.Errorf("delete backup %s: %w", b.Key, err)
		}
		pruned = append(pruned, b.Key)
	}
	return pruned, nil
}

// Rollback restores every collection from the most recent backup. Collections
// absent from the backup are deleted. The consumed backup is removed.
func (a *Applier) Rollback(ctx context.Context) (*RollbackResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	backups, err := a.Backups(ctx)
	if err != nil {
		return &RollbackResult{Error: err.Error()}, err
	}
	if len(backups) == 0 {
		return &RollbackResult{Error: ErrNoBackup.Error()}, ErrNoBackup
	}
	latest := backups[0]
	res := &RollbackResult{BackupKey: latest.Key}

	data, ok, err := a.store.Read(ctx, latest.Key)
	if err != nil {
		res.Error = err.Error()
		return res, fmt.Errorf("read backup %s: %w", latest.Key, err)
	}
	if !ok {
		res.Error = ErrNoBackup.Error()
		return res, fmt.Errorf("%w: %s vanished", ErrNoBackup, latest.Key)
	}
	var doc backupDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		res.Error = err.Error()
		return res, fmt.Errorf("decode backup %s: %w", latest.Key, err)
	}

	for _, name := range Collections {
		v, ok := doc.Collections[string(name)]
		if !ok || v == nil {
			if err := a.store.Delete(ctx, string(name)); err != nil {
				res.Error = err.Error()
				return res, fmt.Errorf("restore %s: %w", name, err)
			}
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			res.Error = err.Error()
			return res, fmt.Errorf("encode %s: %w", name, err)
		}
		if err := a.store.Write(ctx, string(name), raw); err != nil {
			res.Error = err.Error()
			return res, fmt.Errorf("restore %s: %w", name, err)
		}
		res.Restored = append(res.Restored, name)
	}

	if err := a.store.Delete(ctx, latest.Key); err != nil {
		a.logger.Warn("Failed to remove consumed backup", zap.String("backup", latest.Key), zap.Error(err))
	}
	if res.Pruned, err = a.prune(ctx); err != nil {
		a.logger.Warn("Failed to prune backups", zap.Error(err))
	}

	a.setState(StateRolledBack)
	res.Success = true
	a.logger.Info("Rolled back", zap.String("backup", latest.Key), zap.Int("collections", len(res.Restored)))
	return res, nil
}
