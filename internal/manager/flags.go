package manager

import (
	"strings"
	"sync/atomic"
)

// Flags is a snapshot of the connectivity bitset.
type Flags uint32

// Connectivity flags.
const (
	FlagLinkUp Flags = 1 << iota
	FlagAddressAcquired
	FlagBrokerConnected
	FlagDisconnectRequested
)

// Has reports whether every bit in f2 is set in f.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f.Has(FlagLinkUp) {
		parts = append(parts, "link_up")
	}
	if f.Has(FlagAddressAcquired) {
		parts = append(parts, "address_acquired")
	}
	if f.Has(FlagBrokerConnected) {
		parts = append(parts, "broker_connected")
	}
	if f.Has(FlagDisconnectRequested) {
		parts = append(parts, "disconnect_requested")
	}
	return strings.Join(parts, "|")
}

// connectivity is the atomically updated flag word. Only the dispatcher
// writes it; any goroutine may read it.
type connectivity struct {
	word atomic.Uint32
}

func (c *connectivity) load() Flags {
	return Flags(c.word.Load())
}

func (c *connectivity) has(f Flags) bool {
	return c.load().Has(f)
}

func (c *connectivity) set(f Flags) {
	c.word.Or(uint32(f))
}

func (c *connectivity) clear(f Flags) {
	c.word.And(^uint32(f))
}
