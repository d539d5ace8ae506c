package mqtt

import "fmt"

// EventKind identifies a client lifecycle notification.
type EventKind int

// Event kinds delivered to an EventHandler.
const (
	EventConnected EventKind = iota + 1
	EventDisconnected
	EventError
	EventSubscribed
	EventUnsubscribed
	EventPublished
	EventData
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	case EventSubscribed:
		return "subscribed"
	case EventUnsubscribed:
		return "unsubscribed"
	case EventPublished:
		return "published"
	case EventData:
		return "data"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// ErrorType classifies an EventError.
type ErrorType int

// Error types, numbered like the embedded MQTT stacks report them.
const (
	ErrorTypeNone ErrorType = iota
	ErrorTypeTLS
	ErrorTypeConnectionRefused
	ErrorTypeTransport
)

// Event is a single notification from the client.
//
// Topic and Payload are set for subscription and data events. Err, Type and
// Code are set for error and disconnect events. For ErrorTypeConnectionRefused
// Code is the CONNACK return code; for ErrorTypeTLS it is the TLS alert or
// certificate error reason when one is known.
type Event struct {
	Kind    EventKind
	Topic   string
	Payload []byte
	QoS     byte

	Err  error
	Type ErrorType
	Code int
}

// EventHandler receives client notifications. HandleEvent is called from
// paho's goroutines and must not block.
type EventHandler interface {
	HandleEvent(Event)
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(Event)

// HandleEvent calls f(ev).
func (f EventHandlerFunc) HandleEvent(ev Event) { f(ev) }
