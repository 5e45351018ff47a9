package snapshot

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"restore-manager/core/reconcile"
	"restore-manager/core/storage"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

const (
	extJSON    = ".json"
	extGzip    = ".json.gz"
	namePrefix = "backup-"
	// nameLayout keeps object names sortable by time.
	nameLayout = "20060102T150405.000Z"
)

// FileInfo describes one snapshot file in the cloud store.
type FileInfo struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	LastModified string `json:"lastModified"`
	Size         int64  `json:"size"`

	modified time.Time
}

// ErrTooLarge is returned when a snapshot exceeds the configured size limit.
var ErrTooLarge = errors.New("snapshot exceeds size limit")

// Source reads and writes snapshot files in one bucket under one prefix.
type Source struct {
	client   storage.Client
	bucket   string
	prefix   string
	maxBytes int64
	logger   *zap.Logger
	now      func() time.Time
}

// NewSource creates a Source for the configured bucket and prefix.
func NewSource(client storage.Client, cfg storage.Config, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		maxBytes: cfg.MaxSnapshotBytes(),
		logger:   logger,
		now:      time.Now,
	}
}

// Bucket returns the bucket name.
func (s *Source) Bucket() string {
	return s.bucket
}

func isSnapshotName(name string) bool {
	return strings.HasSuffix(name, extJSON) || strings.HasSuffix(name, extGzip)
}

// List returns the snapshot files, newest first.
func (s *Source) List(ctx context.Context) ([]FileInfo, error) {
	opts := minio.ListObjectsOptions{Prefix: s.prefix, Recursive: true}

	var files []FileInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list snapshots: %w", obj.Err)
		}
		if !isSnapshotName(obj.Key) {
			continue
		}
		files = append(files, FileInfo{
			Name:         path.Base(obj.Key),
			Path:         obj.Key,
			LastModified: obj.LastModified.UTC().Format(time.RFC3339),
			Size:         obj.Size,
			modified:     obj.LastModified,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if !files[i].modified.Equal(files[j].modified) {
			return files[i].modified.After(files[j].modified)
		}
		return files[i].Path > files[j].Path
	})
	return files, nil
}

// Fetch downloads and decodes one snapshot file.
func (s *Source) Fetch(ctx context.Context, objectPath string) (reconcile.Snapshot, error) {
	if !isSnapshotName(objectPath) {
		return nil, fmt.Errorf("fetch %s: not a snapshot file", objectPath)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, objectPath, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", objectPath, err)
	}
	defer obj.Close()

	var r io.Reader = obj
	if strings.HasSuffix(objectPath, ".gz") {
		gz, err := gzip.NewReader(obj)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", objectPath, err)
		}
		defer gz.Close()
		r = gz
	}

	// Applies to the decompressed stream.
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", objectPath, err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("fetch %s: %w (%d bytes)", objectPath, ErrTooLarge, s.maxBytes)
	}

	snap, err := reconcile.DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", objectPath, err)
	}
	s.logger.Debug("Fetched snapshot", zap.String("path", objectPath), zap.Int("bytes", len(data)))
	return snap, nil
}

// Upload writes a gzip-compressed snapshot under a new timestamped name.
func (s *Source) Upload(ctx context.Context, snap reconcile.Snapshot) (FileInfo, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(snap); err != nil {
		return FileInfo{}, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		return FileInfo{}, fmt.Errorf("compress snapshot: %w", err)
	}

	now := s.now().UTC()
	name := namePrefix + now.Format(nameLayout) + extGzip
	objectPath := s.prefix + name
	size := int64(buf.Len())

	_, err := s.client.PutObject(ctx, s.bucket, objectPath, &buf, size, minio.PutObjectOptions{
		ContentType: "application/gzip",
	})
	if err != nil {
		return FileInfo{}, fmt.Errorf("upload %s: %w", objectPath, err)
	}

	s.logger.Info("Uploaded snapshot", zap.String("path", objectPath), zap.Int64("size", size))
	return FileInfo{
		Name:         name,
		Path:         objectPath,
		LastModified: now.Format(time.RFC3339),
		Size:         size,
		modified:     now,
	}, nil
}

// Prune removes all but the newest keep snapshot files. A non-positive keep
// disables pruning.
func (s *Source) Prune(ctx context.Context, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	files, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(files) <= keep {
		return nil, nil
	}

	stale := files[keep:]
	objectsCh := make(chan minio.ObjectInfo, len(stale))
	for _, f := range stale {
		objectsCh <- minio.ObjectInfo{Key: f.Path}
	}
	close(objectsCh)

	errorCh := s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{})

	failed := map[string]bool{}
	var errs []string
	for e := range errorCh {
		if e.Err != nil {
			failed[e.ObjectName] = true
			errs = append(errs, fmt.Sprintf("%s: %v", e.ObjectName, e.Err))
		}
	}

	var removed []string
	for _, f := range stale {
		if !failed[f.Path] {
			removed = append(removed, f.Path)
		}
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("prune had %d errors: %v", len(errs), errs)
	}
	s.logger.Info("Pruned cloud snapshots", zap.Int("removed", len(removed)), zap.Int("kept", keep))
	return removed, nil
}
