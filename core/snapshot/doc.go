// Package snapshot lists, fetches, uploads and prunes cloud snapshot files kept
// in S3-compatible object storage.
//
// Snapshot files are JSON documents, optionally gzip-compressed when the object
// name ends in ".gz". Cache sits in front of Source.Fetch so repeated requests
// for the same file within a TTL share one download.
package snapshot
