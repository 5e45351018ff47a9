// Package storage provides an abstraction layer for object storage services.
//
// It wraps the MinIO Go client to provide the operations needed to keep cloud
// snapshots of the local record database: listing snapshot files, uploading new
// ones, downloading a selected one and removing old ones. Any S3-compatible host
// (AWS S3, MinIO, R2) can hold the backups.
//
// # Client Interface
//
// The Client interface abstracts the underlying storage provider, making it easier
// to mock storage interactions for unit testing (see core/storage/mocks).
//
// # Usage
//
//	client, err := storage.NewClient(config)
//	exists, err := client.BucketExists(ctx, "backups")
package storage
