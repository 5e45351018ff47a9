// Package database handles database connections and schema inspection.
//
// It provides a wrapper around GORM to configure MySQL or SQLite connections based
// on the application's configuration. The database backs the local record store
// (see core/kvstore) when the store driver is "database".
//
// # Connect
//
// Connect opens the configured driver, applies pool settings and pings the database
// with the configured timeout.
//
// # Schema Inspection
//
// GetTableColumns and MissingColumns let the integrity check verify that the key-value
// table has the expected shape.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Fatal("Database connection failed", err)
//	}
//
//	missing, err := database.MissingColumns(db, "kv_entries", []string{"key", "value"})
package database
