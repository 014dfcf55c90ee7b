package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process Store with the same key/TTL/atomicity
// semantics as the Redis-backed Cache. It backs tests and local runs
// without a Redis instance.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memEntry
}

type memEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memEntry)}
}

func (m *Memory) lookup(full string) (memEntry, bool) {
	e, ok := m.entries[full]
	if !ok {
		return memEntry{}, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(m.entries, full)
		return memEntry{}, false
	}
	return e, true
}

func (m *Memory) Set(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memEntry{value: fmt.Sprintf("%v", value)}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.entries[namespace+":"+key] = e
	return nil
}

func (m *Memory) Get(ctx context.Context, namespace, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookup(namespace + ":" + key)
	if !ok {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (m *Memory) Delete(ctx context.Context, namespace string, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.entries, namespace+":"+k)
	}
	return nil
}

func (m *Memory) GetTTL(ctx context.Context, namespace, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookup(namespace + ":" + key)
	if !ok {
		return -2 * time.Second, nil // matches Redis TTL reply for a missing key
	}
	if e.expiresAt.IsZero() {
		return -1 * time.Second, nil
	}
	return time.Until(e.expiresAt), nil
}

func (m *Memory) IncrWithExpire(ctx context.Context, namespace, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	full := namespace + ":" + key
	e, ok := m.lookup(full)
	if !ok {
		m.entries[full] = memEntry{value: "1", expiresAt: time.Now().Add(window)}
		return 1, nil
	}

	cnt, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cache: value at %s is not an integer", full)
	}
	cnt++
	e.value = strconv.FormatInt(cnt, 10)
	m.entries[full] = e
	return cnt, nil
}

func (m *Memory) IncrUnderCap(ctx context.Context, namespace, key, mirrorKey string, max int64) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	full := namespace + ":" + key

	var cnt int64
	if e, ok := m.lookup(full); ok {
		parsed, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("cache: value at %s is not an integer", full)
		}
		cnt = parsed
	}

	if cnt >= max {
		return cnt, false, nil
	}

	// A vanished mirror means there is nothing left to count against.
	mirror, ok := m.lookup(namespace + ":" + mirrorKey)
	if !ok {
		return cnt, false, nil
	}
	cnt++

	e := memEntry{value: strconv.FormatInt(cnt, 10)}
	if !mirror.expiresAt.IsZero() {
		e.expiresAt = mirror.expiresAt
	}
	m.entries[full] = e
	return cnt, true, nil
}

func (m *Memory) DeleteIfEquals(ctx context.Context, namespace, key, expected string, extraKeys ...string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookup(namespace + ":" + key)
	if !ok || e.value != expected {
		return false, nil
	}
	delete(m.entries, namespace+":"+key)
	for _, k := range extraKeys {
		delete(m.entries, namespace+":"+k)
	}
	return true, nil
}
