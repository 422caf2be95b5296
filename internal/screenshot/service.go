package screenshot

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/muandane/glimpse/internal/browser"
	"github.com/muandane/glimpse/internal/cache"
	"github.com/muandane/glimpse/internal/imaging"
)

// Capturer renders a page. *browser.Browser implements it.
type Capturer interface {
	Capture(ctx context.Context, opts browser.CaptureOptions) (*browser.RawCapture, error)
}

// Cache is the subset of *cache.Manager the service needs. Failures are
// absorbed by the implementation.
type Cache interface {
	Get(ctx context.Context, key cache.Key) ([]byte, bool)
	Put(ctx context.Context, key cache.Key, value []byte, ttl time.Duration)
}

type Result struct {
	Set    *imaging.DerivativeSet
	Cached bool
}

type Service struct {
	capturer Capturer
	cache    Cache
	ttl      time.Duration
	logger   *slog.Logger

	captureDuration *metrics.Histogram
}

// NewService wires the capture path. A nil cache disables caching.
func NewService(c Capturer, store Cache, ttl time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		capturer:        c,
		cache:           store,
		ttl:             ttl,
		logger:          logger.With("component", "screenshot"),
		captureDuration: metrics.GetOrCreateHistogram("glimpse_capture_duration_seconds"),
	}
}

// Screenshot returns the derivative set for req, from cache when fresh.
// Concurrent misses for the same key each capture; the last write wins.
func (s *Service) Screenshot(ctx context.Context, req Request) (*Result, error) {
	req.Normalize()
	key := req.Key()

	if s.cache != nil && !req.Live {
		if data, ok := s.cache.Get(ctx, key); ok {
			set := &imaging.DerivativeSet{}
			err := json.Unmarshal(data, set)
			if err == nil {
				return &Result{Set: set, Cached: true}, nil
			}
			s.logger.Warn("discarding undecodable cache entry", "key", string(key), "error", err)
		}
	}

	start := time.Now()
	raw, err := s.capturer.Capture(ctx, browser.CaptureOptions{URL: req.URL, FullPage: req.FullPage})
	if err != nil {
		return nil, err
	}
	s.captureDuration.UpdateDuration(start)

	set, err := imaging.BuildDerivatives(imaging.Raw{
		Bytes:      raw.Image,
		Width:      raw.Width,
		Height:     raw.Height,
		FinalURL:   raw.FinalURL,
		CapturedAt: raw.CapturedAt,
	}, imaging.Options{
		Width:           req.Width,
		Height:          req.Height,
		Quality:         req.Quality,
		ThumbnailMaxDim: req.ThumbnailMaxDim,
		Format:          req.Format,
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(set); err == nil {
			// Stored even when the client has gone away.
			s.cache.Put(context.WithoutCancel(ctx), key, data, s.ttl)
		}
	}

	return &Result{Set: set}, nil
}
