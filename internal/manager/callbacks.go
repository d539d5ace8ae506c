package manager

import "sync"

// Handler receives a message after the dispatcher has applied it.
// Handlers run on the dispatcher goroutine (or, for KindBrokerEvent, on
// the broker client's goroutine) and must return quickly: a blocked
// handler stalls all further dispatch.
type Handler interface {
	Handle(msg Message)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(msg Message)

// Handle calls f(msg).
func (f HandlerFunc) Handle(msg Message) { f(msg) }

type noopHandler struct{}

func (noopHandler) Handle(Message) {}

// callbackTable maps each message kind to one handler.
type callbackTable struct {
	mu       sync.RWMutex
	handlers [kindCount]Handler
}

func newCallbackTable() *callbackTable {
	t := &callbackTable{}
	for i := range t.handlers {
		t.handlers[i] = noopHandler{}
	}
	return t
}

// set replaces the handler for kind. A nil handler restores the no-op.
// It reports false for an unknown kind and leaves the table untouched.
func (t *callbackTable) set(kind Kind, h Handler) bool {
	if !kind.Valid() {
		return false
	}
	if h == nil {
		h = noopHandler{}
	}
	t.mu.Lock()
	t.handlers[kind] = h
	t.mu.Unlock()
	return true
}

func (t *callbackTable) get(kind Kind) Handler {
	if !kind.Valid() {
		return noopHandler{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.handlers[kind]
}
