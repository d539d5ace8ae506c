// Package database provides SQLite connectivity for the MQTT manager.
//
// The database holds a single key-value table of namespaced blobs (see
// internal/infrastructure/kvstore). This package only manages:
//   - The connection, with WAL mode, a busy timeout and immediate write locks
//   - Embedded schema migrations
//   - Lifecycle and an integrity health check
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is chmod 0600; it contains the broker password
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Storage.SQLite)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
