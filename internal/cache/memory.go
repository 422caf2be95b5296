package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory, bounded by a byte budget.
// When the budget is exceeded the oldest entries are evicted first.
type MemoryStore struct {
	entries sync.Map // Key -> *CacheEntry

	mu          sync.Mutex
	currentSize int64
	maxSize     int64
	lastCleanup time.Time

	now func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(maxSize int64) *MemoryStore {
	if maxSize <= 0 {
		maxSize = MaxCacheSize
	}
	return &MemoryStore{maxSize: maxSize, now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, key Key) ([]byte, bool, error) {
	v, ok := m.entries.Load(key)
	if !ok {
		return nil, false, nil
	}
	entry := v.(*CacheEntry)
	if entry.Expired(m.now()) {
		m.remove(key, entry)
		return nil, false, nil
	}

	data, err := entry.Value()
	if err != nil {
		return nil, false, wrapErr("memory", "get", err)
	}
	return data, true, nil
}

func (m *MemoryStore) Put(_ context.Context, key Key, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if int64(len(value)) > m.maxSize {
		return nil
	}

	data := value
	var isCompressed bool
	if ShouldCompress(value) {
		if compressed, err := CompressData(value); err == nil && len(compressed) < len(value) {
			data = compressed
			isCompressed = true
		}
	}

	entry := &CacheEntry{
		Key:          key,
		Data:         data,
		IsCompressed: isCompressed,
		CreatedAt:    m.now(),
		TTLSeconds:   ttlSeconds(ttl),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, loaded := m.entries.Swap(key, entry); loaded {
		m.currentSize -= int64(len(old.(*CacheEntry).Data))
	}
	m.currentSize += int64(len(data))
	m.evictOldestLocked()
	return nil
}

func (m *MemoryStore) EvictExpired(_ context.Context) (int, error) {
	now := m.now()
	var evicted int
	m.entries.Range(func(key, value any) bool {
		entry := value.(*CacheEntry)
		if entry.Expired(now) && m.remove(key.(Key), entry) {
			evicted++
		}
		return true
	})

	m.mu.Lock()
	m.lastCleanup = now
	m.mu.Unlock()
	return evicted, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries.Clear()
	m.currentSize = 0
	return nil
}

// Stats reports the current footprint of the store.
func (m *MemoryStore) Stats() Stats {
	var entryCount int
	var totalOriginalSize, totalCompressedSize int64
	m.entries.Range(func(_, value any) bool {
		entryCount++
		entry := value.(*CacheEntry)
		if entry.IsCompressed {
			if plain, err := entry.Value(); err == nil {
				totalOriginalSize += int64(len(plain))
				totalCompressedSize += int64(len(entry.Data))
			}
		}
		return true
	})

	var compressionRatio float64
	if totalOriginalSize > 0 {
		compressionRatio = float64(totalCompressedSize) / float64(totalOriginalSize)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		CurrentSize:      m.currentSize,
		MaxSize:          m.maxSize,
		EntryCount:       entryCount,
		LastCleanupTime:  m.lastCleanup,
		CompressionRatio: compressionRatio,
	}
}

// remove deletes key only if it still maps to entry, so a concurrent Put of
// a fresh value is never lost.
func (m *MemoryStore) remove(key Key, entry *CacheEntry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.entries.CompareAndDelete(key, entry) {
		return false
	}
	m.currentSize -= int64(len(entry.Data))
	return true
}

func (m *MemoryStore) evictOldestLocked() {
	if m.currentSize <= m.maxSize {
		return
	}

	var all []*CacheEntry
	m.entries.Range(func(_, value any) bool {
		all = append(all, value.(*CacheEntry))
		return true
	})
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	for _, entry := range all {
		if m.currentSize <= m.maxSize {
			return
		}
		if m.entries.CompareAndDelete(entry.Key, entry) {
			m.currentSize -= int64(len(entry.Data))
		}
	}
}
