package cache

import "time"

// CacheEntry is an immutable stored value with its freshness metadata.
type CacheEntry struct {
	Key          Key       `json:"key"`
	Data         []byte    `json:"data"`
	IsCompressed bool      `json:"compressed,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	TTLSeconds   int64     `json:"ttl_seconds"`
}

// ExpiresAt is CreatedAt plus the entry's time to live.
func (e *CacheEntry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(time.Duration(e.TTLSeconds) * time.Second)
}

// Expired reports whether the entry is stale at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt())
}

// Value returns the plain payload, decompressing it when needed.
func (e *CacheEntry) Value() ([]byte, error) {
	if !e.IsCompressed {
		return e.Data, nil
	}
	return DecompressData(e.Data)
}

// Cache configuration
const (
	DefaultCacheDuration  = time.Hour
	MaxCacheSize          = 100 * 1024 * 1024 // 100MB
	CleanupInterval       = 1 * time.Minute
	MinSizeForCompression = 1024 // Only compress values larger than 1KB
)

func ttlSeconds(ttl time.Duration) int64 {
	secs := int64(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
