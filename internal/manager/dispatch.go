package manager

import (
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-mqttmgr/internal/infrastructure/mqtt"
)

// run is the dispatcher loop: one message at a time, in arrival order.
func (m *Manager) run() {
	defer close(m.loopDone)

	for {
		select {
		case <-m.done:
			return
		default:
		}

		select {
		case <-m.done:
			return
		case msg := <-m.queue:
			m.process(msg)
		}
	}
}

func (m *Manager) process(msg Message) {
	start := time.Now()

	notify := true
	switch msg.Kind {
	case KindLinkUp:
		m.onLinkUp()
	case KindAddressAcquired:
		m.onAddressAcquired()
	case KindAddressChanged:
		m.onAddressChanged()
	case KindLinkDown:
		m.onLinkDown()
	case KindOrderConnect:
		notify = m.onConnectOrder()
	case KindOrderDisconnect:
		m.onDisconnectOrder()
	case KindBrokerConnected, KindBrokerDisconnected, KindBrokerError:
		if m.stale(msg) {
			m.logger.Debug("ignoring event from a released MQTT client", "event", msg.Kind.String())
			return
		}
		switch msg.Kind {
		case KindBrokerConnected:
			m.onBrokerConnected()
		case KindBrokerDisconnected:
			m.onBrokerDisconnected()
		default:
			m.onBrokerError(msg)
		}
	default:
		m.logger.Warn("unexpected message kind", "kind", msg.Kind.String())
		return
	}

	if notify {
		m.invoke(msg)
	}

	took := time.Since(start)
	flags := m.flags.load()
	m.opts.Metrics.observeMessage(msg.Kind, took, flags, len(m.queue))
	if m.opts.Recorder != nil {
		m.opts.Recorder.RecordTransition(Transition{
			Kind:     msg.Kind,
			Flags:    flags,
			At:       start,
			Duration: took,
		})
	}
}

func (m *Manager) onLinkUp() {
	m.flags.set(FlagLinkUp)
}

func (m *Manager) onAddressAcquired() {
	m.flags.set(FlagAddressAcquired)
	if m.config.Profile().IsConfigured() {
		// May be queued behind later producers when the queue is full.
		m.enqueue(Message{Kind: KindOrderConnect})
	}
}

func (m *Manager) onAddressChanged() {
	m.logger.Info("network address changed")
	m.flags.set(FlagAddressAcquired)
	if m.flags.has(FlagBrokerConnected) {
		m.flags.clear(FlagBrokerConnected)
		m.releaseClient()
	}
	// Sockets bound to the old address are dead; force a new connection.
	// On a full queue this order moves to a goroutine and may land behind
	// later external messages.
	m.enqueue(Message{Kind: KindOrderConnect})
}

func (m *Manager) onLinkDown() {
	m.logger.Info("network link down")
	m.flags.clear(FlagLinkUp | FlagAddressAcquired)
	if m.flags.has(FlagBrokerConnected) {
		m.flags.clear(FlagBrokerConnected)
		m.releaseClient()
	}
}

// onConnectOrder reports whether the callback should run; it does not
// when the broker is already connected.
func (m *Manager) onConnectOrder() bool {
	m.flags.clear(FlagDisconnectRequested)

	if m.flags.has(FlagBrokerConnected) {
		m.logger.Warn("already connected, connect order ignored")
		return false
	}

	p := m.config.Profile()
	if !p.IsConfigured() {
		m.logger.Error("MQTT URI not set, connect order ignored")
		return true
	}

	m.startClient(p)
	return true
}

func (m *Manager) startClient(p Profile) {
	// A client still trying to connect is replaced, never reused.
	m.releaseClient()

	m.nextGen++
	gen := m.nextGen

	cfg := mqtt.ClientConfig{
		URI:                p.URI,
		Username:           p.Username,
		Password:           p.Password,
		ClientID:           m.opts.ClientID,
		AutoReconnect:      p.AutoReconnect,
		KeepAlive:          m.opts.KeepAlive,
		ConnectTimeout:     m.opts.ConnectTimeout,
		InsecureSkipVerify: m.opts.InsecureSkipVerify,
	}

	m.logger.Info("connecting to MQTT broker", "uri", p.URI, "auto_reconnect", p.AutoReconnect)

	client, err := m.factory(cfg, &brokerTranslator{m: m, generation: gen})
	if err != nil {
		m.logger.Error("could not init MQTT client", "error", err)
		// Not FIFO with external producers when the queue is full.
		m.enqueue(Message{Kind: KindBrokerError, Payload: initFailedText})
		return
	}

	m.clientMu.Lock()
	m.client = client
	m.clientGen = gen
	m.clientMu.Unlock()

	m.opts.Metrics.connectAttempt()
	if err := client.Start(); err != nil {
		m.logger.Error("could not start MQTT client", "error", err)
		m.releaseClient()
		m.enqueue(Message{Kind: KindBrokerError, Payload: initFailedText})
	}
}

func (m *Manager) onDisconnectOrder() {
	m.logger.Info("disconnecting from MQTT broker")
	m.flags.set(FlagDisconnectRequested)
	m.timer.Stop()

	// No disconnected event follows a stop, so the flag is cleared here.
	m.flags.clear(FlagBrokerConnected)
	m.releaseClient()

	m.writeStatus(ReasonUserDisconnect, "")
	m.hinter.SetAutoShutdown(false)
}

func (m *Manager) onBrokerConnected() {
	m.logger.Info("MQTT broker connected")
	m.flags.set(FlagBrokerConnected)
	m.writeStatus(ReasonConnectionOK, "")

	// The profile is proven; keep reconnecting from now on and persist it.
	m.config.Update(func(p *Profile) { p.AutoReconnect = true })
	if err := m.config.Save(m.runCtx); err != nil {
		m.opts.Metrics.saveFailed()
		m.logger.Error("saving MQTT config", "error", err)
	}

	m.hinter.SetAutoShutdown(true)
}

func (m *Manager) onBrokerDisconnected() {
	if m.flags.has(FlagBrokerConnected) {
		m.writeStatus(ReasonLostConnection, "")
	}
	m.flags.clear(FlagBrokerConnected)

	m.logger.Info("MQTT broker disconnected, cancelling access point auto-shutdown")
	m.hinter.SetAutoShutdown(false)

	if m.config.Profile().AutoReconnect {
		m.logger.Info("arming reconnect timer", "interval", m.opts.RetryInterval)
		m.timer.Arm()
	}
}

func (m *Manager) onBrokerError(msg Message) {
	text, _ := msg.Payload.(string)
	m.logger.Warn("MQTT connection attempt failed", "error", text)
	m.writeStatus(ReasonFailedAttempt, text)
}

// stale reports whether msg came from a client that has been released.
func (m *Manager) stale(msg Message) bool {
	return msg.generation != 0 && msg.generation != m.clientGen
}

// releaseClient stops and destroys the current client, if any. Callers
// clear FlagBrokerConnected first.
func (m *Manager) releaseClient() {
	m.clientMu.Lock()
	client := m.client
	m.client = nil
	m.clientGen = 0
	m.clientMu.Unlock()

	if client == nil {
		return
	}
	if err := client.Stop(); err != nil && !errors.Is(err, mqtt.ErrNotStarted) {
		m.logger.Warn("could not stop MQTT client", "error", err)
	}
	client.Destroy()
}

// writeStatus updates the snapshot, waiting as long as needed for readers.
func (m *Manager) writeStatus(reason ReasonCode, errText string) {
	if !m.status.Lock(-1) {
		return
	}
	m.status.Generate(m.config.Profile().URI, reason, errText)
	m.status.Unlock()
}

// enqueue queues a message from the dispatcher itself. The dispatcher
// cannot wait for room in its own queue, so a full queue hands the send
// to a goroutine. That send competes with external producers, so ordering
// against them is lost in that case.
func (m *Manager) enqueue(msg Message) {
	select {
	case m.queue <- msg:
	default:
		go func() {
			if err := m.post(msg); err != nil {
				m.logger.Debug("queued message dropped", "kind", msg.Kind.String(), "error", err)
			}
		}()
	}
}

// invoke runs the callback for msg.Kind. A panicking callback is logged
// and does not stop the dispatcher.
func (m *Manager) invoke(msg Message) {
	h := m.callbacks.get(msg.Kind)
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("callback panic recovered", "kind", msg.Kind.String(), "panic", fmt.Sprint(r))
		}
	}()
	h.Handle(msg)
}
