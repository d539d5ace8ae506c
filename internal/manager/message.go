package manager

import "fmt"

// Kind identifies a dispatcher message. Values are stable and index the
// callback table.
type Kind int

// Message kinds. Events report something that already happened; orders
// request a change of connection state.
const (
	KindNone Kind = iota
	KindLinkUp
	KindAddressAcquired
	KindAddressChanged
	KindLinkDown
	KindOrderConnect
	KindOrderDisconnect
	KindBrokerConnected
	KindBrokerDisconnected
	KindBrokerError
	// KindBrokerEvent carries every raw broker-client notification to its
	// callback. It is never queued.
	KindBrokerEvent

	kindCount
)

var kindNames = [kindCount]string{
	KindNone:               "none",
	KindLinkUp:             "link_up",
	KindAddressAcquired:    "address_acquired",
	KindAddressChanged:     "address_changed",
	KindLinkDown:           "link_down",
	KindOrderConnect:       "order_connect",
	KindOrderDisconnect:    "order_disconnect",
	KindBrokerConnected:    "broker_connected",
	KindBrokerDisconnected: "broker_disconnected",
	KindBrokerError:        "broker_error",
	KindBrokerEvent:        "broker_event",
}

// String returns the snake_case name used in logs and metric labels.
func (k Kind) String() string {
	if k.Valid() {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Valid reports whether k is a known message kind.
func (k Kind) Valid() bool {
	return k >= KindNone && k < kindCount
}

// Message is one unit of work for the dispatcher.
//
// Payload depends on Kind:
//   - KindBrokerError: the error text (string)
//   - KindBrokerEvent: the raw mqtt.Event
//   - network kinds: the netif.Event that produced them
//   - everything else: nil
type Message struct {
	Kind    Kind
	Payload any

	// generation ties broker notifications to the client that produced
	// them. Zero means the message is not tied to a client.
	generation uint64
}
