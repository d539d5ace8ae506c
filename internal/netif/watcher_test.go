package netif

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"
)

func TestDiffStates(t *testing.T) {
	addrA := netip.MustParseAddr("192.168.1.20")
	addrB := netip.MustParseAddr("192.168.1.21")

	tests := []struct {
		name string
		prev linkState
		cur  linkState
		want []Event
	}{
		{
			name: "no change while down",
			prev: linkState{name: "wlan0"},
			cur:  linkState{name: "wlan0"},
			want: nil,
		},
		{
			name: "link up without address",
			prev: linkState{name: "wlan0"},
			cur:  linkState{name: "wlan0", up: true},
			want: []Event{{Kind: EventLinkUp, Interface: "wlan0"}},
		},
		{
			name: "link up with address",
			prev: linkState{name: "wlan0"},
			cur:  linkState{name: "wlan0", up: true, addr: addrA},
			want: []Event{
				{Kind: EventLinkUp, Interface: "wlan0"},
				{Kind: EventAddressAcquired, Interface: "wlan0", Address: addrA},
			},
		},
		{
			name: "address acquired",
			prev: linkState{name: "wlan0", up: true},
			cur:  linkState{name: "wlan0", up: true, addr: addrA},
			want: []Event{{Kind: EventAddressAcquired, Interface: "wlan0", Address: addrA}},
		},
		{
			name: "address changed",
			prev: linkState{name: "wlan0", up: true, addr: addrA},
			cur:  linkState{name: "wlan0", up: true, addr: addrB},
			want: []Event{{Kind: EventAddressAcquired, Interface: "wlan0", Address: addrB, Changed: true}},
		},
		{
			name: "address unchanged",
			prev: linkState{name: "wlan0", up: true, addr: addrA},
			cur:  linkState{name: "wlan0", up: true, addr: addrA},
			want: nil,
		},
		{
			name: "link down",
			prev: linkState{name: "wlan0", up: true, addr: addrA},
			cur:  linkState{name: "wlan0"},
			want: []Event{{Kind: EventLinkDown, Interface: "wlan0"}},
		},
		{
			name: "read failure keeps name",
			prev: linkState{name: "wlan0", up: true},
			cur:  linkState{},
			want: []Event{{Kind: EventLinkDown, Interface: "wlan0"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := diffStates(tt.prev, tt.cur)
			if len(got) != len(tt.want) {
				t.Fatalf("diffStates() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("event[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// scriptedLinks returns the states in order, repeating the last one.
type scriptedLinks struct {
	mu     sync.Mutex
	states []linkState
	calls  int
}

func (p *scriptedLinks) readLink(string) (linkState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	if i >= len(p.states) {
		i = len(p.states) - 1
	}
	p.calls++
	if !p.states[i].up && p.states[i].name == "" {
		return linkState{}, errors.New("interface gone")
	}
	return p.states[i], nil
}

func TestWatcher_Watch(t *testing.T) {
	addr := netip.MustParseAddr("10.0.0.5")
	links := &scriptedLinks{states: []linkState{
		{name: "eth0", up: true},
		{name: "eth0", up: true, addr: addr},
		{},
	}}

	w := NewWatcher(Config{Interface: "eth0", PollInterval: 5 * time.Millisecond})
	w.readLink = links.readLink

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 8)
	done := make(chan error, 1)
	go func() {
		done <- w.Watch(ctx, func(ev Event) { events <- ev })
	}()

	want := []EventKind{EventLinkUp, EventAddressAcquired, EventLinkDown}
	for i, kind := range want {
		select {
		case ev := <-events:
			if ev.Kind != kind {
				t.Fatalf("event[%d] = %v, want %v", i, ev.Kind, kind)
			}
			if ev.Interface != "eth0" {
				t.Errorf("event[%d] interface = %q, want eth0", i, ev.Interface)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %v", kind)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch() did not return after cancel")
	}
}

func TestFirstIPv4(t *testing.T) {
	addrs := []net.Addr{
		&net.IPNet{IP: net.ParseIP("127.0.0.1"), Mask: net.CIDRMask(8, 32)},
		&net.IPNet{IP: net.ParseIP("fe80::1"), Mask: net.CIDRMask(64, 128)},
		&net.IPNet{IP: net.ParseIP("169.254.3.4"), Mask: net.CIDRMask(16, 32)},
		&net.IPNet{IP: net.ParseIP("192.168.4.2"), Mask: net.CIDRMask(24, 32)},
	}
	if got := firstIPv4(addrs); got != netip.MustParseAddr("192.168.4.2") {
		t.Errorf("firstIPv4() = %v, want 192.168.4.2", got)
	}
	if got := firstIPv4(nil); got.IsValid() {
		t.Errorf("firstIPv4(nil) = %v, want invalid", got)
	}
}

func TestEventKindString(t *testing.T) {
	if EventAddressAcquired.String() != "address_acquired" {
		t.Errorf("String() = %q", EventAddressAcquired.String())
	}
	if EventKind(42).String() != "event(42)" {
		t.Errorf("String() = %q", EventKind(42).String())
	}
}
