// Package kvstore provides the persistent key-value store shared by the
// device's subsystems.
//
// Values are opaque blobs addressed by a namespace and a key, both at most
// MaxKeyLen bytes. Writes are staged with Set and made durable with Commit.
//
// Two backends are available:
//   - SQLiteStore (default): a kv_blobs table in the local SQLite file
//   - RedisStore: one Redis string per blob, committed with MULTI/EXEC
//
// # Locking
//
// The store is shared with unrelated persistence clients. A Lock serialises
// whole read-compare-write sequences across them; individual Store calls are
// safe for concurrent use without it.
//
// # Usage
//
//	lock := kvstore.NewLock(cfg.Storage.LockTimeout)
//	if err := lock.Acquire(ctx); err != nil {
//	    return err
//	}
//	defer lock.Release()
//
//	if err := store.Set(ctx, "espmqttmgr", "mqtt_config", blob); err != nil {
//	    return err
//	}
//	return store.Commit(ctx)
package kvstore
