package checks

import (
	"context"
	"encoding/json"
	"fmt"

	"restore-manager/core/reconcile"
)

// BackupReport describes the local pre-apply backups.
type BackupReport struct {
	Count      int      `json:"count"`
	Retention  int      `json:"retention"`
	Latest     string   `json:"latest,omitempty"`
	Unreadable []string `json:"unreadable"`
	Status     string   `json:"status"` // "ok", "warning", "error"
}

// CheckBackups verifies every backup decodes and the count respects retention.
func CheckBackups(ctx context.Context, store reconcile.Store, applier *reconcile.Applier) (*BackupReport, error) {
	backups, err := applier.Backups(ctx)
	if err != nil {
		return nil, err
	}

	report := &BackupReport{
		Count:      len(backups),
		Retention:  applier.Retention(),
		Unreadable: []string{},
		Status:     "ok",
	}
	if len(backups) > 0 {
		report.Latest = backups[0].Key
	}

	for _, b := range backups {
		data, ok, err := store.Read(ctx, b.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to read backup %s: %w", b.Key, err)
		}
		var doc struct {
			Collections map[string]any `json:"collections"`
		}
		if !ok || json.Unmarshal(data, &doc) != nil {
			report.Unreadable = append(report.Unreadable, b.Key)
		}
	}

	switch {
	case len(report.Unreadable) > 0:
		report.Status = "error"
	case report.Count > report.Retention:
		report.Status = "warning"
	}
	return report, nil
}
