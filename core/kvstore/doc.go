// Package kvstore provides the durable local key-value stores the restore
// engine writes collections and backups to.
//
// GormStore keeps entries in the kv_entries table of a MySQL or SQLite
// database. FileStore keeps one file per key and replaces files atomically.
// MemoryStore is process-local and intended for tests and dry runs.
package kvstore
