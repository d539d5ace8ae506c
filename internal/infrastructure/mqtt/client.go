package mqtt

import (
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client wraps one paho client for one connection lifecycle:
// New (init), Start, Stop, Destroy. A destroyed client is never reused; the
// caller builds a new one for the next connection.
//
// Every lifecycle change is reported to the EventHandler given to New.
// A failed connect attempt reports EventError followed by EventDisconnected.
// Stop does not report EventDisconnected.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are restored after a library-driven reconnect.
type Client struct {
	client  pahomqtt.Client
	handler EventHandler

	mu        sync.Mutex
	started   bool
	destroyed atomic.Bool

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]byte
	subMu         sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// New builds a client from cfg without connecting. It fails only when the
// configuration cannot be turned into paho options.
func New(cfg ClientConfig, handler EventHandler) (*Client, error) {
	opts, err := buildClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	if handler == nil {
		handler = EventHandlerFunc(func(Event) {})
	}

	c := &Client{
		handler:       handler,
		subscriptions: make(map[string]byte),
		logger:        noopLogger{},
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.restoreSubscriptions()
		c.emit(Event{Kind: EventConnected})
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		typ, code := ClassifyError(err)
		c.emit(Event{Kind: EventDisconnected, Err: err, Type: typ, Code: code})
	})
	opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.emit(Event{
			Kind:    EventData,
			Topic:   msg.Topic(),
			Payload: msg.Payload(),
			QoS:     msg.Qos(),
		})
	})

	c.client = pahomqtt.NewClient(opts)
	return c, nil
}

// SetLogger sets a logger for handler panics and background failures.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	defer c.loggerMu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// Start begins connecting in the background and returns immediately.
// The outcome arrives as EventConnected, or EventError then EventDisconnected.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed.Load() {
		return ErrDestroyed
	}
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true

	token := c.client.Connect()
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			c.emit(classifyConnectError(token, err))
			c.emit(Event{Kind: EventDisconnected, Err: err})
		}
	}()
	return nil
}

// Stop disconnects from the broker. It does not report EventDisconnected.
func (c *Client) Stop() error {
	c.mu.Lock()
	if c.destroyed.Load() {
		c.mu.Unlock()
		return ErrDestroyed
	}
	if !c.started {
		c.mu.Unlock()
		return ErrNotStarted
	}
	c.started = false
	c.mu.Unlock()

	// Outside the lock: paho waits for its router, which may be inside emit.
	c.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}

// Destroy releases the client. No events are delivered afterwards.
// Destroying a started client stops it first.
func (c *Client) Destroy() {
	c.mu.Lock()
	if c.destroyed.Load() {
		c.mu.Unlock()
		return
	}
	c.destroyed.Store(true)
	wasStarted := c.started
	c.started = false
	c.mu.Unlock()

	if wasStarted {
		c.client.Disconnect(0)
	}

	c.subMu.Lock()
	clear(c.subscriptions)
	c.subMu.Unlock()
}

// IsConnected reports the library's view of the connection.
func (c *Client) IsConnected() bool {
	if c.client == nil {
		return false
	}
	return c.client.IsConnected()
}

// emit delivers an event unless the client has been destroyed.
func (c *Client) emit(ev Event) {
	if c.destroyed.Load() {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.getLogger().Error("MQTT event handler panic recovered",
				"event", ev.Kind.String(),
				"panic", fmt.Sprint(r),
			)
		}
	}()
	c.handler.HandleEvent(ev)
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for topic, qos := range c.subscriptions {
		// Errors surface on the next publish or as a lost connection.
		c.client.Subscribe(topic, qos, nil)
	}
}
