// Package manager keeps a device connected to a single MQTT broker.
//
// A Manager owns one dispatcher goroutine that consumes a bounded queue of
// Messages. Network watcher notifications, broker client notifications,
// caller orders and the reconnect timer all become Messages, and the
// dispatcher applies them one at a time. Everything that changes
// connection state (the connectivity flags, the broker client, the status
// snapshot, the persisted profile) is written from that goroutine.
//
// # Lifecycle
//
//	m, err := manager.New(manager.Options{Store: store, Logger: log})
//	if err != nil { ... }
//	if err := m.Start(ctx); err != nil { ... }
//	defer m.Close(ctx)
//
// Start loads the persisted connection profile. If one exists the manager
// waits for the network to come up and connects; otherwise it asks the
// access point hinter to start provisioning.
//
// # Orders
//
// ConnectAsync and DisconnectAsync queue an order and return at once.
// Progress is reported through per-kind callbacks registered with
// SetCallback and through the status snapshot:
//
//	if m.LockStatus(time.Second) {
//		doc := m.StatusJSON()
//		m.UnlockStatus()
//		...
//	}
//
// # Reconnection
//
// After an established connection drops, the manager re-arms a single-shot
// retry timer when the profile has AutoReconnect set. A failed attempt
// reports a broker error and the following disconnect re-arms the timer.
// A successful connection persists the profile with AutoReconnect enabled.
package manager
