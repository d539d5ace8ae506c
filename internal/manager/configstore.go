package manager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-mqttmgr/internal/infrastructure/kvstore"
)

// Persistence location of the profile blob.
const (
	DefaultNamespace = "espmqttmgr"
	ProfileKey       = "mqtt_config"
)

// ConfigStore keeps the in-memory connection profile and persists it to a
// kvstore.Store. Every storage access holds the shared persistence lock for
// its whole duration, because the store is shared with other subsystems.
type ConfigStore struct {
	store     kvstore.Store
	lock      *kvstore.Lock
	namespace string
	logger    Logger

	mu      sync.Mutex
	profile Profile

	// unsaved is set when a commit failed. A store may still report the
	// staged value from Get, so diff cannot be trusted until a commit
	// succeeds. Guarded by lock.
	unsaved bool
}

// NewConfigStore creates a ConfigStore with an empty profile. A nil lock
// gets a private lock that waits for the caller's context.
func NewConfigStore(store kvstore.Store, lock *kvstore.Lock, namespace string) *ConfigStore {
	if lock == nil {
		lock = kvstore.NewLock(0)
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &ConfigStore{
		store:     store,
		lock:      lock,
		namespace: namespace,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for persistence diagnostics.
func (s *ConfigStore) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// Profile returns a copy of the in-memory profile.
func (s *ConfigStore) Profile() Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// Update applies fn to the in-memory profile. Fields are cut to their
// capacities afterwards.
func (s *ConfigStore) Update(fn func(p *Profile)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.profile)
	s.profile = s.profile.fitted()
}

// Reset zeroes the in-memory profile.
func (s *ConfigStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = Profile{}
}

// Load reads the persisted profile into memory. It reports false when the
// lock cannot be taken, the blob is missing or unreadable, or the stored URI
// is empty; the in-memory profile is zeroed in the last three cases.
func (s *ConfigStore) Load(ctx context.Context) (Profile, bool) {
	if err := s.lock.Acquire(ctx); err != nil {
		s.logger.Error("loading MQTT config: acquiring persistence lock", "error", err)
		return s.Profile(), false
	}
	defer s.lock.Release()

	p, err := s.read(ctx)
	if err != nil || !p.IsConfigured() {
		if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
			s.logger.Warn("loading MQTT config", "error", err)
		}
		s.Reset()
		return Profile{}, false
	}

	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()

	s.logger.Info("MQTT config loaded", "profile", p)
	return p, true
}

// HasChanged re-reads the persisted profile and compares it byte-wise with
// the in-memory one. A failed re-read counts as changed.
func (s *ConfigStore) HasChanged(ctx context.Context) bool {
	if err := s.lock.Acquire(ctx); err != nil {
		return true
	}
	defer s.lock.Release()

	changed, _ := s.diff(ctx)
	return changed
}

// Save writes the in-memory profile when it differs from the persisted
// one. An unchanged profile performs no writes.
func (s *ConfigStore) Save(ctx context.Context) error {
	if err := s.lock.Acquire(ctx); err != nil {
		return fmt.Errorf("saving MQTT config: acquiring persistence lock: %w", err)
	}
	defer s.lock.Release()

	changed, blob := s.diff(ctx)
	if !changed {
		s.logger.Info("MQTT config not saved, no change detected")
		return nil
	}

	if err := s.store.Set(ctx, s.namespace, ProfileKey, blob); err != nil {
		s.unsaved = true
		return fmt.Errorf("saving MQTT config: %w", err)
	}
	if err := s.store.Commit(ctx); err != nil {
		s.unsaved = true
		s.logger.Error("MQTT config commit failed", "error", err)
		return fmt.Errorf("committing MQTT config: %w", err)
	}
	s.unsaved = false

	s.logger.Debug("MQTT config saved", "profile", s.Profile())
	return nil
}

// diff encodes the in-memory profile and compares it with storage. After
// a failed commit it always reports a change. The caller holds the
// persistence lock.
func (s *ConfigStore) diff(ctx context.Context) (bool, []byte) {
	blob, _ := s.Profile().MarshalBinary()
	if s.unsaved {
		return true, blob
	}

	stored, err := s.store.Get(ctx, s.namespace, ProfileKey)
	if err != nil {
		return true, blob
	}
	var p Profile
	if err := p.UnmarshalBinary(stored); err != nil || !p.IsConfigured() {
		return true, blob
	}
	return !bytes.Equal(stored, blob), blob
}

// read fetches and decodes the persisted profile. The caller holds the
// persistence lock.
func (s *ConfigStore) read(ctx context.Context) (Profile, error) {
	blob, err := s.store.Get(ctx, s.namespace, ProfileKey)
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := p.UnmarshalBinary(blob); err != nil {
		return Profile{}, err
	}
	return p, nil
}
