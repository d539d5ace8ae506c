package manager

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Status snapshot limits.
const (
	// StatusCapacity is the largest serialized status document in bytes.
	StatusCapacity = 256

	// MaxErrorLen bounds error text in the snapshot, including a terminator
	// byte kept for parity with the persisted field layout.
	MaxErrorLen = 64
)

// emptyStatus is the document shown before the first update.
const emptyStatus = "{}\n"

// ReasonCode says why the status snapshot was last updated.
type ReasonCode int

// Reason codes. Values are part of the status document.
const (
	ReasonNoConfig ReasonCode = iota
	ReasonConnectionOK
	ReasonUserDisconnect
	ReasonFailedAttempt
	ReasonLostConnection
)

func (r ReasonCode) String() string {
	switch r {
	case ReasonNoConfig:
		return "no_config"
	case ReasonConnectionOK:
		return "connection_ok"
	case ReasonUserDisconnect:
		return "user_disconnect"
	case ReasonFailedAttempt:
		return "failed_attempt"
	case ReasonLostConnection:
		return "lost_connection"
	default:
		return "reason(" + strconv.Itoa(int(r)) + ")"
	}
}

// StatusDocument is the decoded form of the status snapshot. A cleared
// snapshot decodes to the zero value.
type StatusDocument struct {
	URI    string     `json:"uri"`
	Reason ReasonCode `json:"urc"`
	Error  string     `json:"error"`
}

// SnapshotObserver is notified with a copy of every new snapshot, after
// the snapshot lock has been released.
type SnapshotObserver interface {
	SnapshotUpdated(doc []byte)
}

// Snapshot is the bounded status document shared between the dispatcher
// (sole writer) and external readers. Writers and readers hold the same
// lock, so a partially written document is never observable.
type Snapshot struct {
	sem  chan struct{}
	done chan struct{}

	closeOnce sync.Once

	// Held by sem; bufMu also covers them so an unpaired Unlock cannot
	// race a writer.
	bufMu sync.Mutex
	buf   []byte
	dirty bool

	observer SnapshotObserver
}

// NewSnapshot returns a cleared snapshot. observer may be nil.
func NewSnapshot(observer SnapshotObserver) *Snapshot {
	s := &Snapshot{
		sem:      make(chan struct{}, 1),
		done:     make(chan struct{}),
		buf:      make([]byte, 0, StatusCapacity),
		observer: observer,
	}
	s.buf = append(s.buf, emptyStatus...)
	return s
}

// Lock takes the snapshot lock. A zero timeout tries once; a negative
// timeout waits until the lock is free. Lock returns false on timeout and
// after Close.
func (s *Snapshot) Lock(timeout time.Duration) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.sem <- struct{}{}:
		return true
	default:
	}
	if timeout == 0 {
		return false
	}

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case s.sem <- struct{}{}:
		return true
	case <-expired:
		return false
	case <-s.done:
		return false
	}
}

// Unlock releases the lock taken by Lock and notifies the observer when
// the document changed while it was held. Unlock without a matching Lock
// does nothing.
func (s *Snapshot) Unlock() {
	s.bufMu.Lock()
	select {
	case <-s.sem:
	default:
		s.bufMu.Unlock()
		return
	}
	var doc []byte
	if s.dirty && s.observer != nil {
		doc = bytes.Clone(s.buf)
	}
	s.dirty = false
	s.bufMu.Unlock()

	if doc != nil {
		s.observer.SnapshotUpdated(doc)
	}
}

// Raw returns the current document. The caller must hold the lock.
func (s *Snapshot) Raw() string {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	return string(s.buf)
}

// Clear resets the document to an empty object. The caller must hold the lock.
func (s *Snapshot) Clear() {
	s.set([]byte(emptyStatus))
}

// set replaces the document.
func (s *Snapshot) set(doc []byte) {
	s.bufMu.Lock()
	s.buf = append(s.buf[:0], doc...)
	s.dirty = true
	s.bufMu.Unlock()
}

// Generate writes a new document for uri, reason and errText, shortening
// errText and then uri until it fits StatusCapacity. The caller must hold
// the lock.
func (s *Snapshot) Generate(uri string, reason ReasonCode, errText string) {
	errText = truncateUTF8(errText, MaxErrorLen-1)
	for {
		doc := formatStatus(uri, reason, errText)
		if len(doc) <= StatusCapacity {
			s.set(doc)
			return
		}
		switch {
		case errText != "":
			errText = dropLastRune(errText)
		case uri != "":
			uri = dropLastRune(uri)
		default:
			// The fixed part always fits.
			s.set([]byte(emptyStatus))
			return
		}
	}
}

// Close makes every later Lock fail.
func (s *Snapshot) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func formatStatus(uri string, reason ReasonCode, errText string) []byte {
	return fmt.Appendf(nil, "{\"uri\":%s,\"urc\":%d,\"error\":%s}\n",
		jsonString(uri), int(reason), jsonString(errText))
}

// jsonString quotes s with JSON escaping, leaving HTML characters as-is.
func jsonString(s string) []byte {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s) //nolint:errcheck // Encoding a string cannot fail
	return bytes.TrimSuffix(b.Bytes(), []byte("\n"))
}

func dropLastRune(s string) string {
	return truncateUTF8(s, len(s)-1)
}

// DecodeStatus parses a status document.
func DecodeStatus(raw string) (StatusDocument, error) {
	var doc StatusDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return StatusDocument{}, fmt.Errorf("decoding status document: %w", err)
	}
	return doc, nil
}
