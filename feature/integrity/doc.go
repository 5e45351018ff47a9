// Package integrity provides health checks for the restore system.
//
// # Checks Provided
//
//   - Bucket: the cloud snapshot bucket exists and holds snapshot files (supports ?fix=true).
//   - Store: the kv_entries table has the expected columns (database store only).
//   - Backups: every local backup decodes and the count respects retention.
//
// # HTTP Endpoints
//
//   - GET /integrity : Runs all checks.
//   - GET /integrity/bucket
//   - GET /integrity/store
//   - GET /integrity/backups
package integrity
