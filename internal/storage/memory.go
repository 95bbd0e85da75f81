package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps artifacts in process. URLs use the mem:// scheme and are
// only meaningful to the same process.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memObject
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{objects: make(map[string]memObject), ttl: ttl, now: time.Now}
}

func (m *MemoryStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	cp := append([]byte(nil), data...)
	m.mu.Lock()
	m.objects[key] = memObject{data: cp, contentType: contentType}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) SignedURL(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return fmt.Sprintf("mem://%s?expires=%d", key, m.now().Add(m.ttl).Unix()), nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Get returns a stored artifact and its content type.
func (m *MemoryStore) Get(key string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[key]
	return o.data, o.contentType, ok
}

// Len reports the number of stored artifacts.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
