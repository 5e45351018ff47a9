package checks

import (
	"context"
	"fmt"
	"strings"

	"restore-manager/core/storage"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// BucketReport describes the cloud snapshot bucket.
type BucketReport struct {
	Bucket    string `json:"bucket"`
	Prefix    string `json:"prefix"`
	Exists    bool   `json:"exists"`
	Snapshots int    `json:"snapshots"`
	Status    string `json:"status"` // "ok", "missing", "empty"
}

// CheckBucket verifies the bucket exists and counts snapshot files under prefix.
func CheckBucket(ctx context.Context, client storage.Client, bucket, prefix string) (*BucketReport, error) {
	report := &BucketReport{Bucket: bucket, Prefix: prefix, Status: "ok"}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		report.Status = "missing"
		return report, nil
	}
	report.Exists = true

	opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true}
	for obj := range client.ListObjects(ctx, bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list snapshots: %w", obj.Err)
		}
		if strings.HasSuffix(obj.Key, ".json") || strings.HasSuffix(obj.Key, ".json.gz") {
			report.Snapshots++
		}
	}
	if report.Snapshots == 0 {
		report.Status = "empty"
	}
	return report, nil
}

// FixBucket creates the bucket when it is missing.
func FixBucket(ctx context.Context, client storage.Client, bucket, region string, logger *zap.Logger) error {
	if err := storage.EnsureBucket(ctx, client, bucket, region); err != nil {
		logger.Error("Failed to create bucket", zap.String("bucket", bucket), zap.Error(err))
		return err
	}
	logger.Info("Bucket ready", zap.String("bucket", bucket))
	return nil
}
