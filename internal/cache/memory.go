package cache

import (
	"context"
	"sync"
	"time"

	"github.com/pagetrail/bookcore/internal/model"
)

// memoryL1 is an in-memory L1 test double, the same shape as the reference
// server's newMemoryCache() helper (referenced from its tests but absent
// from the retrieved pack, reauthored here from the L1 interface contract).
type memoryL1 struct {
	mu   sync.Mutex
	data map[string]memEntry
}

type memEntry struct {
	value   []byte
	expires time.Time
}

// NewMemoryL1 returns an in-memory L1 usable in tests without Redis.
func NewMemoryL1() L1 {
	return &memoryL1{data: map[string]memEntry{}}
}

func (m *memoryL1) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[key]
	if !ok || time.Now().After(e.expires) {
		delete(m.data, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *memoryL1) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = memEntry{value: value, expires: time.Now().Add(ttl)}
	return nil
}

func (m *memoryL1) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.data[key]; ok && time.Now().Before(e.expires) {
		return false, nil
	}
	m.data[key] = memEntry{value: value, expires: time.Now().Add(ttl)}
	return true, nil
}

func (m *memoryL1) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// memoryL2 is an in-memory L2 test double.
type memoryL2 struct {
	mu   sync.Mutex
	rows map[string]model.BookSearchCache
}

// NewMemoryL2 returns an in-memory L2 usable in tests without Postgres.
func NewMemoryL2() L2 {
	return &memoryL2{rows: map[string]model.BookSearchCache{}}
}

func l2Key(searchKey, provider string) string { return searchKey + "|" + provider }

func (m *memoryL2) Get(_ context.Context, searchKey, provider string) (*model.BookSearchCache, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[l2Key(searchKey, provider)]
	if !ok || time.Now().After(row.ExpiresAt) {
		return nil, nil
	}
	cp := row
	return &cp, nil
}

func (m *memoryL2) GetStale(_ context.Context, searchKey, provider string) (*model.BookSearchCache, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[l2Key(searchKey, provider)]
	if !ok {
		return nil, nil
	}
	cp := row
	return &cp, nil
}

func (m *memoryL2) Upsert(_ context.Context, row model.BookSearchCache) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[l2Key(row.SearchKey, row.Provider)] = row
	return nil
}

func (m *memoryL2) Delete(_ context.Context, searchKey, provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, l2Key(searchKey, provider))
	return nil
}
