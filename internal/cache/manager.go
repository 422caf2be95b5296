package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

type Stats struct {
	Backend          string    `json:"backend"`
	Hits             uint64    `json:"hits"`
	Misses           uint64    `json:"misses"`
	Errors           uint64    `json:"errors"`
	HitRatio         float64   `json:"hit_ratio"`
	CurrentSize      int64     `json:"current_size_bytes,omitempty"`
	MaxSize          int64     `json:"max_size_bytes,omitempty"`
	EntryCount       int       `json:"entry_count,omitempty"`
	LastCleanupTime  time.Time `json:"last_cleanup_time,omitempty"`
	CompressionRatio float64   `json:"compression_ratio,omitempty"`
}

// statser is implemented by backends that can describe their footprint.
type statser interface {
	Stats() Stats
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Manager wraps a Store, counting hits, misses and failures. Store errors are
// logged and downgraded: Get reports a miss and Put is dropped, so a broken
// cache never fails a request.
type Manager struct {
	store   Store
	backend string
	logger  *slog.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
	errors atomic.Uint64

	hitCounter   *metrics.Counter
	missCounter  *metrics.Counter
	errorCounter *metrics.Counter
}

func NewManager(store Store, backend string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:        store,
		backend:      backend,
		logger:       logger.With("component", "cache", "backend", backend),
		hitCounter:   metrics.GetOrCreateCounter(`glimpse_cache_hits_total{backend="` + backend + `"}`),
		missCounter:  metrics.GetOrCreateCounter(`glimpse_cache_misses_total{backend="` + backend + `"}`),
		errorCounter: metrics.GetOrCreateCounter(`glimpse_cache_errors_total{backend="` + backend + `"}`),
	}
}

func (m *Manager) Get(ctx context.Context, key Key) ([]byte, bool) {
	data, ok, err := m.store.Get(ctx, key)
	if err != nil {
		m.recordError("get", key, err)
		ok = false
	}
	if ok {
		m.hits.Add(1)
		m.hitCounter.Inc()
		return data, true
	}
	m.misses.Add(1)
	m.missCounter.Inc()
	return nil, false
}

func (m *Manager) Put(ctx context.Context, key Key, value []byte, ttl time.Duration) {
	if err := m.store.Put(ctx, key, value, ttl); err != nil {
		m.recordError("put", key, err)
	}
}

func (m *Manager) EvictExpired(ctx context.Context) (int, error) {
	return m.store.EvictExpired(ctx)
}

// Ping checks backends with a remote dependency. Local backends are always
// reachable.
func (m *Manager) Ping(ctx context.Context) error {
	if p, ok := m.store.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (m *Manager) Close() error {
	return m.store.Close()
}

func (m *Manager) GetStats() Stats {
	var stats Stats
	if s, ok := m.store.(statser); ok {
		stats = s.Stats()
	}
	stats.Backend = m.backend
	stats.Hits = m.hits.Load()
	stats.Misses = m.misses.Load()
	stats.Errors = m.errors.Load()
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRatio = float64(stats.Hits) / float64(total)
	}
	return stats
}

func (m *Manager) recordError(op string, key Key, err error) {
	m.errors.Add(1)
	m.errorCounter.Inc()
	m.logger.Warn("cache unavailable, continuing without it",
		"op", op,
		"key", string(key),
		"error", err,
	)
}

// StartSweeper runs EvictExpired every interval until ctx is done. Lazy
// expiry on Get stays authoritative; the sweep only reclaims space.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = CleanupInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := m.store.EvictExpired(ctx)
				if err != nil {
					m.logger.Warn("cache sweep failed", "error", err)
					continue
				}
				if n > 0 {
					m.logger.Debug("cache sweep completed", "evicted", n)
				}
			}
		}
	}()
}
