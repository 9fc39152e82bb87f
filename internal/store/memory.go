package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/xcobe/cnx-waterlevel-monitor/internal/bucket"
)

type memoryKey struct {
	StationID string
	BucketKey string
}

// MemoryStore is an in-memory implementation of Store with the same upsert
// semantics as FileStore. Useful for testing and development.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[memoryKey]*Entry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[memoryKey]*Entry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, stationID, bucketKey string) (*Entry, error) {
	if err := bucket.ValidateKey(bucketKey); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.entries[memoryKey{stationID, bucketKey}]
	if !exists {
		return nil, ErrNotFound
	}

	// Return a copy to prevent external modification.
	copy := *e
	return &copy, nil
}

func (s *MemoryStore) Put(ctx context.Context, stationID, bucketKey string, payload json.RawMessage) (*Entry, error) {
	if err := bucket.ValidateKey(bucketKey); err != nil {
		return nil, err
	}

	fields, err := payloadFields(payload)
	if err != nil {
		return nil, err
	}
	cleaned, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	meta := Metadata{
		StationID:   stationID,
		BucketKey:   bucketKey,
		CollectedAt: now,
		UpdatedAt:   now,
		IsLatest:    true,
	}
	if prev, exists := s.entries[memoryKey{stationID, bucketKey}]; exists {
		if !prev.Metadata.CollectedAt.IsZero() {
			meta.CollectedAt = prev.Metadata.CollectedAt
		}
		if prev.Metadata.ArchivedAt != nil {
			meta.ArchivedAt = prev.Metadata.ArchivedAt
			meta.IsLatest = false
		}
	}

	e := &Entry{StationID: stationID, BucketKey: bucketKey, Payload: cleaned, Metadata: meta}
	s.entries[memoryKey{stationID, bucketKey}] = e

	copy := *e
	return &copy, nil
}

func (s *MemoryStore) List(ctx context.Context, stationID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0)
	for k := range s.entries {
		if k.StationID == stationID {
			keys = append(keys, k.BucketKey)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys, nil
}

func (s *MemoryStore) Delete(ctx context.Context, stationID, bucketKey string) error {
	if err := bucket.ValidateKey(bucketKey); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := memoryKey{stationID, bucketKey}
	if _, exists := s.entries[k]; !exists {
		return ErrNotFound
	}
	delete(s.entries, k)
	return nil
}

func (s *MemoryStore) PruneBefore(ctx context.Context, stationID, cutoffKey string) (int, error) {
	if err := bucket.ValidateKey(cutoffKey); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for k := range s.entries {
		if k.StationID != stationID {
			continue
		}
		if len(k.BucketKey) != len(cutoffKey) || k.BucketKey >= cutoffKey {
			continue
		}
		delete(s.entries, k)
		deleted++
	}
	return deleted, nil
}
