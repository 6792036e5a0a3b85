// Package memory provides in-process implementations of the snapshot store
// and the incident repository.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/KEPSOAR/DER-SecAgent/internal/core/snapshot"
	"github.com/KEPSOAR/DER-SecAgent/pkg/serialization"
)

// SnapshotStore implements snapshot.Saver in memory. Snapshots are stored
// serialized so callers never share maps with the store.
type SnapshotStore struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	ttl        time.Duration
	maxEntries int
	serializer *serialization.Serializer

	stop     chan struct{}
	stopOnce sync.Once
}

// Config holds configuration for SnapshotStore
type Config struct {
	TTL             time.Duration // Zero keeps snapshots forever
	MaxEntries      int           // Oldest snapshots are evicted beyond this; zero means 10000
	CleanupInterval time.Duration // Zero disables the background sweep
	Serializer      *serialization.Serializer
}

type entry struct {
	data      []byte
	meta      snapshot.Snapshot // without State, for filtering
	expiresAt time.Time
}

// NewSnapshotStore creates a store and starts the expiry sweep when
// configured. Call Close to stop it.
func NewSnapshotStore(cfg Config) *SnapshotStore {
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = 10000
	}
	if cfg.Serializer == nil {
		cfg.Serializer = serialization.DefaultSerializer()
	}
	s := &SnapshotStore{
		entries:    make(map[string]*entry),
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		serializer: cfg.Serializer,
		stop:       make(chan struct{}),
	}
	if cfg.TTL > 0 && cfg.CleanupInterval > 0 {
		go s.sweep(cfg.CleanupInterval)
	}
	return s
}

// NewDefaultSnapshotStore creates a store without expiry.
func NewDefaultSnapshotStore() *SnapshotStore {
	return NewSnapshotStore(Config{})
}

// Save stores a validated snapshot, replacing one with the same ID.
func (s *SnapshotStore) Save(_ context.Context, snap *snapshot.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("snapshot validation failed: %w", err)
	}
	data, err := s.serializer.Serialize(snap)
	if err != nil {
		return fmt.Errorf("%w: %v", snapshot.ErrSaveFailed, err)
	}
	meta := *snap
	meta.State = nil
	meta.Visited = nil

	e := &entry{data: data, meta: meta}
	if s.ttl > 0 {
		e.expiresAt = time.Now().Add(s.ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[snap.ID] = e
	s.evictLocked()
	return nil
}

// Load returns a copy of the snapshot.
func (s *SnapshotStore) Load(_ context.Context, id string) (*snapshot.Snapshot, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok || e.expired(time.Now()) {
		return nil, snapshot.ErrSnapshotNotFound
	}
	var snap snapshot.Snapshot
	if err := s.serializer.Deserialize(e.data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", snapshot.ErrLoadFailed, err)
	}
	return &snap, nil
}

// List returns matching snapshots, newest first.
func (s *SnapshotStore) List(ctx context.Context, filter snapshot.Filter) ([]*snapshot.Snapshot, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("filter validation failed: %w", err)
	}

	now := time.Now()
	s.mu.RLock()
	var ids []string
	for id, e := range s.entries {
		if !e.expired(now) && filter.Matches(&e.meta) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.entries[ids[i]].meta, s.entries[ids[j]].meta
		if a.Timestamp.Equal(b.Timestamp) {
			return a.ID > b.ID
		}
		return a.Timestamp.After(b.Timestamp)
	})
	s.mu.RUnlock()

	if filter.Offset >= len(ids) {
		return nil, nil
	}
	ids = ids[filter.Offset:]
	if filter.Limit > 0 && len(ids) > filter.Limit {
		ids = ids[:filter.Limit]
	}

	out := make([]*snapshot.Snapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := s.Load(ctx, id)
		if err != nil {
			// expired or removed meanwhile
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// Delete removes a snapshot.
func (s *SnapshotStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return snapshot.ErrSnapshotNotFound
	}
	delete(s.entries, id)
	return nil
}

// Len returns the number of stored snapshots, expired ones included until
// the next sweep.
func (s *SnapshotStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the expiry sweep.
func (s *SnapshotStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

func (s *SnapshotStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-s.stop:
			return
		}
	}
}

func (s *SnapshotStore) removeExpired() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, id)
		}
	}
}

// evictLocked drops the oldest snapshots beyond maxEntries.
func (s *SnapshotStore) evictLocked() {
	for len(s.entries) > s.maxEntries {
		var oldest string
		for id, e := range s.entries {
			if oldest == "" || e.meta.Timestamp.Before(s.entries[oldest].meta.Timestamp) {
				oldest = id
			}
		}
		delete(s.entries, oldest)
	}
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}
