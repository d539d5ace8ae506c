package netif

import (
	"sync"
	"time"
)

// AccessPoint tracks the provisioning access-point hints the connection
// manager gives the network layer. Radio control itself belongs to the
// platform; this type records the requested state and, when auto-shutdown
// is enabled, reports the access point as stopped after a grace period.
type AccessPoint struct {
	mu           sync.Mutex
	running      bool
	autoShutdown bool
	grace        time.Duration
	shutdown     *time.Timer

	logger Logger
}

// DefaultShutdownGrace is how long the access point stays up once
// auto-shutdown is enabled.
const DefaultShutdownGrace = 60 * time.Second

// NewAccessPoint creates an AccessPoint. A zero grace uses DefaultShutdownGrace.
func NewAccessPoint(grace time.Duration) *AccessPoint {
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}
	return &AccessPoint{grace: grace, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (a *AccessPoint) SetLogger(logger Logger) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	a.logger = logger
}

// RequestAccessPointStart asks for the provisioning access point to run.
func (a *AccessPoint) RequestAccessPointStart() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		a.logger.Info("access point start requested")
	}
	a.running = true
	if a.autoShutdown {
		a.armLocked()
	}
}

// SetAutoShutdown enables or cancels the automatic shutdown of a running
// access point.
func (a *AccessPoint) SetAutoShutdown(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.autoShutdown != enabled {
		a.logger.Debug("access point auto-shutdown", "enabled", enabled)
	}
	a.autoShutdown = enabled
	if !enabled {
		a.disarmLocked()
		return
	}
	if a.running {
		a.armLocked()
	}
}

// State reports whether the access point is running and whether
// auto-shutdown is enabled.
func (a *AccessPoint) State() (running, autoShutdown bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running, a.autoShutdown
}

// Close cancels a pending shutdown.
func (a *AccessPoint) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disarmLocked()
}

func (a *AccessPoint) armLocked() {
	if a.shutdown != nil {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(a.grace, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.shutdown != t {
			return
		}
		a.shutdown = nil
		if a.autoShutdown && a.running {
			a.running = false
			a.logger.Info("access point stopped after grace period")
		}
	})
	a.shutdown = t
}

func (a *AccessPoint) disarmLocked() {
	if a.shutdown != nil {
		a.shutdown.Stop()
		a.shutdown = nil
	}
}
