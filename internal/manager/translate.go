package manager

import (
	"fmt"

	"github.com/nerrad567/gray-logic-mqttmgr/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-mqttmgr/internal/netif"
)

// initFailedText is the status error when a broker client cannot be built.
const initFailedText = "Could not init MQTT client!"

// networkTranslator turns netif notifications into dispatcher messages.
// It runs on the watcher goroutine only.
type networkTranslator struct {
	m *Manager

	// hasAddress mirrors the address flag from the watcher's point of view,
	// so a replacement address can be told apart from a first one.
	hasAddress bool
}

func (t *networkTranslator) translate(ev netif.Event) {
	var kind Kind
	switch ev.Kind {
	case netif.EventLinkUp:
		kind = KindLinkUp
	case netif.EventLinkDown:
		t.hasAddress = false
		kind = KindLinkDown
	case netif.EventAddressAcquired:
		if t.hasAddress && ev.Changed {
			kind = KindAddressChanged
		} else {
			t.hasAddress = true
			kind = KindAddressAcquired
		}
	default:
		return
	}

	if err := t.m.post(Message{Kind: kind, Payload: ev}); err != nil {
		t.m.logger.Debug("network event dropped", "event", kind.String(), "error", err)
	}
}

// brokerTranslator receives events from one broker client. Connection
// events are queued for the dispatcher tagged with the client's
// generation; every event is also handed to the KindBrokerEvent callback.
type brokerTranslator struct {
	m          *Manager
	generation uint64
}

// HandleEvent implements mqtt.EventHandler.
func (t *brokerTranslator) HandleEvent(ev mqtt.Event) {
	var msg Message
	switch ev.Kind {
	case mqtt.EventConnected:
		t.m.logger.Info("MQTT event", "event", ev.Kind.String())
		msg = Message{Kind: KindBrokerConnected}
	case mqtt.EventDisconnected:
		t.m.logger.Info("MQTT event", "event", ev.Kind.String())
		msg = Message{Kind: KindBrokerDisconnected}
	case mqtt.EventError:
		text := brokerErrorText(ev)
		t.m.logger.Error("MQTT error", "error", text, "cause", ev.Err)
		msg = Message{Kind: KindBrokerError, Payload: text}
	default:
		t.m.logger.Debug("MQTT event", "event", ev.Kind.String(), "topic", ev.Topic)
	}

	if msg.Kind != KindNone {
		msg.generation = t.generation
		if err := t.m.post(msg); err != nil {
			t.m.logger.Debug("MQTT event dropped", "event", msg.Kind.String(), "error", err)
		}
	}

	t.m.invoke(Message{Kind: KindBrokerEvent, Payload: ev})
}

// brokerErrorText renders a broker error as a short human-readable
// string bounded by MaxErrorLen.
func brokerErrorText(ev mqtt.Event) string {
	var text string
	switch ev.Type {
	case mqtt.ErrorTypeTLS:
		text = fmt.Sprintf("MQTT TLS ERROR. Code 0x%x", ev.Code)
	case mqtt.ErrorTypeConnectionRefused:
		switch ev.Code {
		case mqtt.ReturnCodeBadProtocol:
			text = "Connection refused, bad protocol"
		case mqtt.ReturnCodeServerUnavailable:
			text = "Connection refused, server unavailable"
		case mqtt.ReturnCodeBadCredentials:
			text = "Connection refused, bad username or password"
		case mqtt.ReturnCodeNotAuthorized:
			text = "Connection refused, not authorized"
		default:
			text = "Connection refused, Unknown reason"
		}
	default:
		text = fmt.Sprintf("MQTT Unknown error. Code 0x%x", int(ev.Type))
	}
	return truncateUTF8(text, MaxErrorLen-1)
}
