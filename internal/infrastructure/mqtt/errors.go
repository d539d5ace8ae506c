package mqtt

import "errors"

// Lifecycle errors. A Client moves New -> Start -> Stop -> Destroy; calls
// out of that order fail with one of these.
var (
	ErrNotStarted     = errors.New("mqtt: client not started")
	ErrAlreadyStarted = errors.New("mqtt: client already started")
	ErrDestroyed      = errors.New("mqtt: client destroyed")
	ErrNotConnected   = errors.New("mqtt: client not connected")
)

// Argument errors.
var (
	// ErrInvalidURI covers an empty broker URI or a scheme missing from
	// defaultPorts.
	ErrInvalidURI   = errors.New("mqtt: invalid broker URI")
	ErrInvalidQoS   = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)

// Operation errors wrap the token error returned by the broker client.
var (
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")
)
