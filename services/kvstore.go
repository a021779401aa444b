package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrKeyNotFound is returned by KVStore.Get for absent keys
var ErrKeyNotFound = errors.New("key not found")

// Storage buckets used by the docket
const (
	BucketSessions     = "sessions"      // date|locationID -> Session
	BucketSessionKeys  = "session_keys"  // sessionID -> date|locationID
	BucketSessionCases = "session_cases" // sessionID -> []CaseRecord ordered by slot
	BucketCaseIndex    = "case_index"    // caseID -> sessionID
	BucketSessionDates = "session_dates" // date -> []sessionID
	BucketLocations    = "locations"     // "dynamic" -> []Location
)

// KVStore is the persistence collaborator of the docket. Implementations only
// need plain get/put/delete; all invariants are enforced above this layer.
type KVStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, value []byte) error
	Delete(ctx context.Context, bucket, key string) error
}

// MemoryKV is a process-local KVStore
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemoryKV creates an empty in-memory store
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]map[string][]byte)}
}

func (m *MemoryKV) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[bucket][key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (m *MemoryKV) Put(ctx context.Context, bucket, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.data[bucket]
	if !ok {
		b = make(map[string][]byte)
		m.data[bucket] = b
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	b[key] = stored
	return nil
}

func (m *MemoryKV) Delete(ctx context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data[bucket], key)
	return nil
}

// getJSON loads and decodes a value; found is false when the key is absent
func getJSON(ctx context.Context, kv KVStore, bucket, key string, dst interface{}) (bool, error) {
	raw, err := kv.Get(ctx, bucket, key)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s/%s: %w", bucket, key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("failed to decode %s/%s: %w", bucket, key, err)
	}
	return true, nil
}

func putJSON(ctx context.Context, kv KVStore, bucket, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", bucket, key, err)
	}
	if err := kv.Put(ctx, bucket, key, raw); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", bucket, key, err)
	}
	return nil
}
