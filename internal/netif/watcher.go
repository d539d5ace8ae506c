package netif

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"
)

// DefaultPollInterval is used when Config.PollInterval is not set.
const DefaultPollInterval = 2 * time.Second

// EventKind identifies a network notification.
type EventKind int

// Network notifications.
const (
	EventLinkUp EventKind = iota + 1
	EventLinkDown
	EventAddressAcquired
)

func (k EventKind) String() string {
	switch k {
	case EventLinkUp:
		return "link_up"
	case EventLinkDown:
		return "link_down"
	case EventAddressAcquired:
		return "address_acquired"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one link or address notification.
type Event struct {
	Kind      EventKind
	Interface string

	// Address is set for EventAddressAcquired.
	Address netip.Addr

	// Changed reports that an address was already held and a different
	// one replaced it.
	Changed bool
}

// ErrNoInterface is returned when no usable interface can be found.
var ErrNoInterface = errors.New("netif: no usable network interface")

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Config configures a Watcher.
type Config struct {
	// Interface is the interface to watch. Empty selects the first
	// non-loopback interface that is up.
	Interface string

	PollInterval time.Duration
}

// linkState is what one poll observed.
type linkState struct {
	name string
	up   bool
	addr netip.Addr
}

// Watcher polls a network interface and reports link and address changes.
type Watcher struct {
	cfg      Config
	readLink func(name string) (linkState, error)
	logger   Logger
}

// NewWatcher creates a Watcher backed by the host's interface table.
func NewWatcher(cfg Config) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Watcher{
		cfg:      cfg,
		readLink: readInterface,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger.
func (w *Watcher) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	w.logger = logger
}

// Watch polls until ctx is done, calling emit for each change. The first
// poll reports the current state as changes from "down, no address".
// emit is called from the Watch goroutine only.
//
// A failed read counts as link down, so an interface that disappears
// produces a link-down event rather than an error.
//
// Parameters:
//   - ctx: stops the poll loop
//   - emit: receives link-up, address-acquired and link-down events in
//     the order they were observed
//
// Returns:
//   - error: always nil; the loop only ends through ctx
func (w *Watcher) Watch(ctx context.Context, emit func(Event)) error {
	var prev linkState

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		cur, err := w.readLink(w.cfg.Interface)
		if err != nil {
			w.logger.Debug("network state read failed", "interface", w.cfg.Interface, "error", err)
			cur = linkState{name: prev.name}
		}
		for _, ev := range diffStates(prev, cur) {
			w.logger.Info("network event", "event", ev.Kind.String(), "interface", ev.Interface,
				"address", ev.Address.String(), "changed", ev.Changed)
			emit(ev)
		}
		prev = cur

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// diffStates returns the events that turn prev into cur.
func diffStates(prev, cur linkState) []Event {
	var events []Event
	name := cur.name
	if name == "" {
		name = prev.name
	}

	switch {
	case cur.up && !prev.up:
		events = append(events, Event{Kind: EventLinkUp, Interface: name})
	case !cur.up && prev.up:
		return append(events, Event{Kind: EventLinkDown, Interface: name})
	case !cur.up:
		return nil
	}

	// A link that came back up starts without an address.
	held := prev.addr
	if !prev.up {
		held = netip.Addr{}
	}
	if cur.addr.IsValid() && cur.addr != held {
		events = append(events, Event{
			Kind:      EventAddressAcquired,
			Interface: name,
			Address:   cur.addr,
			Changed:   held.IsValid(),
		})
	}
	return events
}

// readInterface reads the state of name, or of the first usable
// interface when name is empty.
func readInterface(name string) (linkState, error) {
	var iface *net.Interface
	if name != "" {
		i, err := net.InterfaceByName(name)
		if err != nil {
			return linkState{}, fmt.Errorf("looking up interface %s: %w", name, err)
		}
		iface = i
	} else {
		ifaces, err := net.Interfaces()
		if err != nil {
			return linkState{}, fmt.Errorf("listing interfaces: %w", err)
		}
		for i := range ifaces {
			if ifaces[i].Flags&net.FlagLoopback == 0 && ifaces[i].Flags&net.FlagUp != 0 {
				iface = &ifaces[i]
				break
			}
		}
		if iface == nil {
			return linkState{}, ErrNoInterface
		}
	}

	state := linkState{
		name: iface.Name,
		up:   iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagRunning != 0,
	}
	if !state.up {
		return state, nil
	}

	addrs, err := iface.Addrs()
	if err != nil {
		return state, nil //nolint:nilerr // An up link without readable addresses has no address yet
	}
	state.addr = firstIPv4(addrs)
	return state, nil
}

func firstIPv4(addrs []net.Addr) netip.Addr {
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		addr, ok := netip.AddrFromSlice(ipnet.IP)
		if !ok {
			continue
		}
		addr = addr.Unmap()
		if addr.Is4() && !addr.IsLoopback() && !addr.IsLinkLocalUnicast() {
			return addr
		}
	}
	return netip.Addr{}
}
