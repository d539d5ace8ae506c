package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-mqttmgr/internal/infrastructure/kvstore"
	"github.com/nerrad567/gray-logic-mqttmgr/internal/infrastructure/mqtt"
)

const testTimeout = 2 * time.Second

// memStore is an in-memory kvstore.Store that counts writes.
type memStore struct {
	mu        sync.Mutex
	committed map[string][]byte
	staged    map[string][]byte
	sets      int
	commits   int
	getErr    error
	commitErr error
}

func newMemStore() *memStore {
	return &memStore{
		committed: make(map[string][]byte),
		staged:    make(map[string][]byte),
	}
}

func (s *memStore) Get(_ context.Context, namespace, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	k := namespace + "/" + key
	if v, ok := s.staged[k]; ok {
		return append([]byte(nil), v...), nil
	}
	if v, ok := s.committed[k]; ok {
		return append([]byte(nil), v...), nil
	}
	return nil, kvstore.ErrNotFound
}

func (s *memStore) Set(_ context.Context, namespace, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	s.staged[namespace+"/"+key] = append([]byte(nil), value...)
	return nil
}

func (s *memStore) Commit(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
	if s.commitErr != nil {
		return s.commitErr
	}
	for k, v := range s.staged {
		s.committed[k] = v
	}
	clear(s.staged)
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) writes() (sets, commits int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets, s.commits
}

// seed stores p as if a previous run had saved it.
func (s *memStore) seed(t *testing.T, p Profile) {
	t.Helper()
	blob, err := p.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}
	s.mu.Lock()
	s.committed[DefaultNamespace+"/"+ProfileKey] = blob
	s.mu.Unlock()
}

// fakeClient is a BrokerClient driven by the test.
type fakeClient struct {
	cfg     mqtt.ClientConfig
	handler mqtt.EventHandler

	mu        sync.Mutex
	starts    int
	stops     int
	destroyed bool
	published []string
}

func (c *fakeClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	return nil
}

func (c *fakeClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return nil
}

func (c *fakeClient) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed = true
}

func (c *fakeClient) Publish(topic string, _ []byte, _ byte, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, topic)
	return nil
}

func (c *fakeClient) Subscribe(string, byte) error { return nil }
func (c *fakeClient) Unsubscribe(string) error     { return nil }

func (c *fakeClient) emit(ev mqtt.Event) {
	c.handler.HandleEvent(ev)
}

func (c *fakeClient) state() (starts, stops int, destroyed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts, c.stops, c.destroyed
}

// fakeBroker records every client it builds.
type fakeBroker struct {
	mu      sync.Mutex
	clients []*fakeClient
	initErr error
}

func (b *fakeBroker) factory(cfg mqtt.ClientConfig, handler mqtt.EventHandler) (BrokerClient, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initErr != nil {
		return nil, b.initErr
	}
	c := &fakeClient{cfg: cfg, handler: handler}
	b.clients = append(b.clients, c)
	return c, nil
}

func (b *fakeBroker) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *fakeBroker) last(t *testing.T) *fakeClient {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.clients) == 0 {
		t.Fatal("no broker client was created")
	}
	return b.clients[len(b.clients)-1]
}

// recordingHinter records access-point hints in order.
type recordingHinter struct {
	mu    sync.Mutex
	calls []string
}

func (h *recordingHinter) RequestAccessPointStart() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "start")
}

func (h *recordingHinter) SetAutoShutdown(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if enabled {
		h.calls = append(h.calls, "auto_shutdown_on")
	} else {
		h.calls = append(h.calls, "auto_shutdown_off")
	}
}

func (h *recordingHinter) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

// callbackSink receives every callback invocation.
type callbackSink struct {
	ch chan Message
}

func newCallbackSink(m *Manager, kinds ...Kind) *callbackSink {
	s := &callbackSink{ch: make(chan Message, 256)}
	for _, k := range kinds {
		m.SetCallback(k, HandlerFunc(func(msg Message) { s.ch <- msg }))
	}
	return s
}

// await waits for a callback of kind, skipping others.
func (s *callbackSink) await(t *testing.T, kind Kind) Message {
	t.Helper()
	deadline := time.After(testTimeout)
	for {
		select {
		case msg := <-s.ch:
			if msg.Kind == kind {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v callback", kind)
			return Message{}
		}
	}
}

// allKinds lists every kind the dispatcher can notify about.
var allKinds = []Kind{
	KindLinkUp, KindAddressAcquired, KindAddressChanged, KindLinkDown,
	KindOrderConnect, KindOrderDisconnect, KindBrokerConnected,
	KindBrokerDisconnected, KindBrokerError, KindBrokerEvent,
}

type harness struct {
	m      *Manager
	store  *memStore
	broker *fakeBroker
	hinter *recordingHinter
	sink   *callbackSink
}

func newHarness(t *testing.T, seed *Profile, tweak func(*Options)) *harness {
	t.Helper()
	h := &harness{
		store:  newMemStore(),
		broker: &fakeBroker{},
		hinter: &recordingHinter{},
	}
	if seed != nil {
		h.store.seed(t, *seed)
	}

	opts := Options{
		Store:         h.store,
		Broker:        h.broker.factory,
		AccessPoint:   h.hinter,
		RetryInterval: time.Hour,
	}
	if tweak != nil {
		tweak(&opts)
	}

	m, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.m = m
	h.sink = newCallbackSink(m, allKinds...)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		if err := m.Close(ctx); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return h
}

// sync posts a link-up event and waits for its callback. Everything queued
// before it has been processed once it returns.
func (h *harness) sync(t *testing.T) {
	t.Helper()
	if err := h.m.post(Message{Kind: KindLinkUp}); err != nil {
		t.Fatalf("post() error = %v", err)
	}
	h.sink.await(t, KindLinkUp)
}

// connect drives the manager to the connected state.
func (h *harness) connect(t *testing.T) *fakeClient {
	t.Helper()
	if err := h.m.ConnectAsync(); err != nil {
		t.Fatalf("ConnectAsync() error = %v", err)
	}
	h.sink.await(t, KindOrderConnect)
	c := h.broker.last(t)
	c.emit(mqtt.Event{Kind: mqtt.EventConnected})
	h.sink.await(t, KindBrokerConnected)
	return c
}

func (h *harness) status(t *testing.T) StatusDocument {
	t.Helper()
	doc, err := h.m.Status(testTimeout)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	return doc
}

var errBoom = errors.New("boom")
