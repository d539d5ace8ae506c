package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-mqttmgr/internal/infrastructure/kvstore"
	"github.com/nerrad567/gray-logic-mqttmgr/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-mqttmgr/internal/netif"
)

// DefaultQueueSize is the dispatcher queue capacity.
const DefaultQueueSize = 3

// Logger defines the logging interface for the manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// BrokerClient is one broker connection. It is started once, stopped at
// most once and destroyed; a new client is built for every connect order.
type BrokerClient interface {
	Start() error
	Stop() error
	Destroy()
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(filter string, qos byte) error
	Unsubscribe(filter string) error
}

// BrokerFactory builds a client that reports to handler.
type BrokerFactory func(cfg mqtt.ClientConfig, handler mqtt.EventHandler) (BrokerClient, error)

// PahoBrokerFactory builds clients from the mqtt package.
func PahoBrokerFactory(cfg mqtt.ClientConfig, handler mqtt.EventHandler) (BrokerClient, error) {
	c, err := mqtt.New(cfg, handler)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// AccessPointHinter receives provisioning access-point hints.
type AccessPointHinter interface {
	RequestAccessPointStart()
	SetAutoShutdown(enabled bool)
}

type noopHinter struct{}

func (noopHinter) RequestAccessPointStart() {}
func (noopHinter) SetAutoShutdown(bool)     {}

// NetworkWatcher reports link and address changes until ctx is done.
type NetworkWatcher interface {
	Watch(ctx context.Context, emit func(netif.Event)) error
}

// Transition describes one processed dispatcher message.
type Transition struct {
	Kind     Kind
	Flags    Flags
	At       time.Time
	Duration time.Duration
}

// TransitionRecorder receives a Transition after every processed message.
type TransitionRecorder interface {
	RecordTransition(tr Transition)
}

// Options configures a Manager. Store is required.
type Options struct {
	Store     kvstore.Store
	Lock      *kvstore.Lock
	Namespace string

	// Broker builds broker clients. Defaults to PahoBrokerFactory.
	Broker BrokerFactory

	// Client settings that are not part of the persisted profile.
	ClientID           string
	KeepAlive          time.Duration
	ConnectTimeout     time.Duration
	InsecureSkipVerify bool

	AccessPoint AccessPointHinter
	Network     NetworkWatcher
	Observer    SnapshotObserver
	Recorder    TransitionRecorder
	Metrics     *Metrics
	Logger      Logger

	QueueSize     int
	RetryInterval time.Duration
}

// Manager is the MQTT connection-lifecycle manager. All connection state
// changes run on a single dispatcher goroutine fed by a bounded queue.
type Manager struct {
	opts      Options
	logger    Logger
	config    *ConfigStore
	status    *Snapshot
	flags     connectivity
	callbacks *callbackTable
	hinter    AccessPointHinter
	factory   BrokerFactory

	queue    chan Message
	done     chan struct{}
	loopDone chan struct{}
	stopped  chan struct{}
	running  atomic.Bool

	runCtx    context.Context
	runCancel context.CancelFunc
	watchDone chan struct{}

	startMu   sync.Mutex
	started   bool
	closeOnce sync.Once

	timer *retryTimer

	// client is replaced only by the dispatcher; clientMu lets API callers
	// read it. clientGen and nextGen are dispatcher-only.
	clientMu  sync.RWMutex
	client    BrokerClient
	clientGen uint64
	nextGen   uint64
}

// New creates a Manager. Nothing runs until Start.
func New(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, ErrNoStore
	}
	if opts.Broker == nil {
		opts.Broker = PahoBrokerFactory
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}

	var logger Logger = noopLogger{}
	if opts.Logger != nil {
		logger = opts.Logger
	}
	var hinter AccessPointHinter = noopHinter{}
	if opts.AccessPoint != nil {
		hinter = opts.AccessPoint
	}

	config := NewConfigStore(opts.Store, opts.Lock, opts.Namespace)
	config.SetLogger(logger)

	return &Manager{
		opts:      opts,
		logger:    logger,
		config:    config,
		status:    NewSnapshot(opts.Observer),
		callbacks: newCallbackTable(),
		hinter:    hinter,
		factory:   opts.Broker,
		done:      make(chan struct{}),
		loopDone:  make(chan struct{}),
		stopped:   make(chan struct{}),
		watchDone: make(chan struct{}),
	}, nil
}

// Start loads the persisted profile and starts the dispatcher and the
// network watcher. With a profile the device begins in auto-connect mode
// and the access point may shut down; without one the profile is zeroed,
// auto-reconnect is off and the access point is kept alive.
//
// The network watcher stops when ctx is done or on Close.
//
// Parameters:
//   - ctx: bounds the profile load and the network watcher's lifetime.
//     The dispatcher itself keeps running until Close.
//
// Returns:
//   - error: ErrAlreadyRunning on a second call, ErrNotRunning after Close
//
// Example:
//
//	if err := m.Start(ctx); err != nil {
//	    return err
//	}
//	defer m.Close(context.Background())
func (m *Manager) Start(ctx context.Context) error {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	if m.started {
		return ErrAlreadyRunning
	}
	select {
	case <-m.done:
		return ErrNotRunning
	default:
	}
	m.started = true

	m.logger.Info("MQTT manager starting")

	m.queue = make(chan Message, m.opts.QueueSize)
	m.timer = newRetryTimer(m.opts.RetryInterval, m.retryFired)
	m.runCtx, m.runCancel = context.WithCancel(context.WithoutCancel(ctx))

	if m.status.Lock(-1) {
		m.status.Clear()
		m.status.Unlock()
	}

	if _, ok := m.config.Load(ctx); ok {
		m.logger.Info("MQTT config reloaded, starting access point temporarily")
		m.hinter.SetAutoShutdown(true)
		m.hinter.RequestAccessPointStart()
	} else {
		m.logger.Warn("no MQTT config found, starting access point")
		m.config.Reset()
		m.config.Update(func(p *Profile) { p.AutoReconnect = false })
		m.hinter.RequestAccessPointStart()
		m.hinter.SetAutoShutdown(false)
	}

	m.running.Store(true)
	go m.run()

	if m.opts.Network != nil {
		watchCtx, cancel := context.WithCancel(ctx)
		translator := &networkTranslator{m: m}
		go func() {
			select {
			case <-m.done:
			case <-watchCtx.Done():
			}
			cancel()
		}()
		go func() {
			defer close(m.watchDone)
			if err := m.opts.Network.Watch(watchCtx, translator.translate); err != nil {
				m.logger.Warn("network watcher stopped", "error", err)
			}
		}()
	} else {
		close(m.watchDone)
	}

	m.logger.Info("MQTT manager started", "queue_size", m.opts.QueueSize, "retry_interval", m.opts.RetryInterval)
	return nil
}

// Close stops the manager. Posting after Close returns ErrNotRunning.
//
// The shutdown order is: stop accepting messages, stop the retry timer,
// wait for the dispatcher to finish its current message, discard queued
// messages, release the broker client, then close the status snapshot.
//
// Parameters:
//   - ctx: bounds how long Close waits for the dispatcher
//
// Returns:
//   - error: nil once teardown has completed, or the ctx error when the
//     dispatcher is still busy. Teardown then completes in the background
//     as soon as the dispatcher returns, and a later Close waits for it.
func (m *Manager) Close(ctx context.Context) error {
	m.closeOnce.Do(m.shutdown)

	select {
	case <-m.stopped:
		return nil
	default:
	}
	select {
	case <-m.stopped:
		return nil
	case <-ctx.Done():
		// A dispatcher blocked on the status lock is released by this.
		m.status.Close()
		return fmt.Errorf("waiting for dispatcher: %w", ctx.Err())
	}
}

// shutdown runs once. It signals every producer and the dispatcher to stop
// and hands the rest of the teardown to a goroutine.
func (m *Manager) shutdown() {
	m.startMu.Lock()
	started := m.started
	m.startMu.Unlock()

	m.running.Store(false)
	close(m.done)
	if !started {
		m.status.Close()
		close(m.stopped)
		return
	}
	m.runCancel()
	m.timer.Close()

	go m.teardown()
}

// teardown waits for the dispatcher and the network watcher to exit, then
// releases what they owned.
func (m *Manager) teardown() {
	defer close(m.stopped)

	<-m.loopDone
	<-m.watchDone

	discarded := 0
drain:
	for {
		select {
		case <-m.queue:
			discarded++
		default:
			break drain
		}
	}

	m.flags.clear(FlagBrokerConnected)
	m.releaseClient()
	m.status.Close()

	m.logger.Info("MQTT manager stopped", "discarded", discarded)
}

// post queues msg, waiting for room. It fails once the manager is closed.
func (m *Manager) post(msg Message) error {
	if !m.running.Load() {
		return ErrNotRunning
	}
	select {
	case m.queue <- msg:
		return nil
	case <-m.done:
		return ErrNotRunning
	}
}

// ConnectAsync queues a connect order and returns.
func (m *Manager) ConnectAsync() error {
	return m.post(Message{Kind: KindOrderConnect})
}

// DisconnectAsync queues a disconnect order and returns.
func (m *Manager) DisconnectAsync() error {
	return m.post(Message{Kind: KindOrderDisconnect})
}

// SetURI sets the broker URI, cut to fit the profile field.
func (m *Manager) SetURI(uri string) {
	m.logger.Info("MQTT URI set", "uri", uri)
	m.config.Update(func(p *Profile) { p.URI = uri })
}

// URI returns the broker URI.
func (m *Manager) URI() string {
	return m.config.Profile().URI
}

// SetUsername sets the broker username.
func (m *Manager) SetUsername(username string) {
	m.logger.Info("MQTT username set", "username", username)
	m.config.Update(func(p *Profile) { p.Username = username })
}

// SetPassword sets the broker password.
func (m *Manager) SetPassword(password string) {
	m.logger.Info("MQTT password set")
	m.config.Update(func(p *Profile) { p.Password = password })
}

// SetAutoReconnect sets the auto-reconnect flag. It takes effect on the
// next connect order.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.config.Update(func(p *Profile) { p.AutoReconnect = enabled })
}

// AutoReconnect reports the auto-reconnect flag.
func (m *Manager) AutoReconnect() bool {
	return m.config.Profile().AutoReconnect
}

// Profile returns a copy of the in-memory profile.
func (m *Manager) Profile() Profile {
	return m.config.Profile()
}

// SaveConfig persists the profile if it changed.
func (m *Manager) SaveConfig(ctx context.Context) error {
	return m.config.Save(ctx)
}

// FetchConfig reloads the profile from storage.
func (m *Manager) FetchConfig(ctx context.Context) bool {
	_, ok := m.config.Load(ctx)
	return ok
}

// IsConnected reports whether the broker connection is up.
func (m *Manager) IsConnected() bool {
	return m.flags.has(FlagBrokerConnected)
}

// Flags returns the connectivity flags.
func (m *Manager) Flags() Flags {
	return m.flags.load()
}

// SetCallback registers h for kind, replacing any previous handler.
// Unknown kinds are ignored.
//
// Handlers for dispatcher kinds run on the dispatcher goroutine after the
// message has been applied; KindBrokerEvent handlers run on the broker
// client's goroutine. Either way a slow handler delays everything behind it.
//
// Parameters:
//   - kind: the message kind, KindNone through KindBrokerEvent
//   - h: the handler; nil restores the no-op default
//
// Example:
//
//	m.SetCallback(manager.KindBrokerConnected, manager.HandlerFunc(func(manager.Message) {
//	    log.Info("broker up")
//	}))
func (m *Manager) SetCallback(kind Kind, h Handler) {
	if !m.callbacks.set(kind, h) {
		m.logger.Warn("callback for unknown message kind ignored", "kind", int(kind))
	}
}

// LockStatus takes the status snapshot lock. See Snapshot.Lock.
func (m *Manager) LockStatus(timeout time.Duration) bool {
	return m.status.Lock(timeout)
}

// UnlockStatus releases the status snapshot lock.
func (m *Manager) UnlockStatus() {
	m.status.Unlock()
}

// StatusJSON returns the raw status document. The caller must hold the
// status lock.
func (m *Manager) StatusJSON() string {
	return m.status.Raw()
}

// Status reads and decodes the status document under the lock.
//
// Parameters:
//   - timeout: how long to wait for the lock; zero tries once, negative
//     waits indefinitely
//
// Returns:
//   - StatusDocument: the decoded document; the zero value while cleared
//   - error: ErrStatusBusy when the lock is not available in time or the
//     manager is closed
func (m *Manager) Status(timeout time.Duration) (StatusDocument, error) {
	if !m.status.Lock(timeout) {
		return StatusDocument{}, ErrStatusBusy
	}
	raw := m.status.Raw()
	m.status.Unlock()
	return DecodeStatus(raw)
}

// Publish sends a message through the current broker client.
//
// Parameters:
//   - topic: the topic, validated by the client (no wildcards)
//   - payload: the message body
//   - qos: 0, 1 or 2
//   - retained: whether the broker keeps the message for new subscribers
//
// Returns:
//   - error: mqtt.ErrNotStarted when no client exists, otherwise the
//     client's error (mqtt.ErrNotConnected, mqtt.ErrInvalidTopic, ...)
func (m *Manager) Publish(topic string, payload []byte, qos byte, retained bool) error {
	c := m.currentClient()
	if c == nil {
		return mqtt.ErrNotStarted
	}
	return c.Publish(topic, payload, qos, retained)
}

// Subscribe subscribes the current broker client to filter.
func (m *Manager) Subscribe(filter string, qos byte) error {
	c := m.currentClient()
	if c == nil {
		return mqtt.ErrNotStarted
	}
	return c.Subscribe(filter, qos)
}

// Unsubscribe removes a subscription from the current broker client.
func (m *Manager) Unsubscribe(filter string) error {
	c := m.currentClient()
	if c == nil {
		return mqtt.ErrNotStarted
	}
	return c.Unsubscribe(filter)
}

func (m *Manager) currentClient() BrokerClient {
	m.clientMu.RLock()
	defer m.clientMu.RUnlock()
	return m.client
}

// retryFired runs on the timer goroutine.
func (m *Manager) retryFired() {
	if m.flags.has(FlagBrokerConnected) {
		return
	}
	m.logger.Info("retry timer fired, sending connect order")
	m.opts.Metrics.retryFired()
	if err := m.post(Message{Kind: KindOrderConnect}); err != nil && !errors.Is(err, ErrNotRunning) {
		m.logger.Warn("retry connect order dropped", "error", err)
	}
}
