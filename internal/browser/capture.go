package browser

import (
	"bytes"
	"context"
	"image"
	"time"

	// PNG decoder for reading back the capture dimensions.
	_ "image/png"

	"github.com/go-rod/rod/lib/proto"
)

type CaptureOptions struct {
	URL            string
	FullPage       bool
	ViewportWidth  int
	ViewportHeight int
}

// RawCapture is a PNG exactly as rendered, before any resizing.
type RawCapture struct {
	Image      []byte
	Width      int
	Height     int
	FinalURL   string
	CapturedAt time.Time
}

// Capture renders opts.URL and returns the raster at native size. The whole
// call, including waiting for a free page slot, is bounded by the capture
// timeout.
func (b *Browser) Capture(ctx context.Context, opts CaptureOptions) (*RawCapture, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	s, err := b.openSession(ctx, opts.ViewportWidth, opts.ViewportHeight)
	if err != nil {
		return nil, captureErr(ctx, RenderFailed, opts.URL, err)
	}
	defer s.release()

	if err := navigate(s.page, opts.URL); err != nil {
		return nil, captureErr(ctx, NavigationFailed, opts.URL, err)
	}

	shot, err := s.page.Screenshot(opts.FullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, captureErr(ctx, RenderFailed, opts.URL, err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(shot))
	if err != nil {
		return nil, captureErr(ctx, RenderFailed, opts.URL, err)
	}

	finalURL := opts.URL
	if info, err := s.page.Info(); err == nil && info.URL != "" {
		finalURL = info.URL
	}

	b.logger.Debug("page captured",
		"url", opts.URL,
		"final_url", finalURL,
		"full_page", opts.FullPage,
		"width", cfg.Width,
		"height", cfg.Height,
		"duration", time.Since(start),
	)

	return &RawCapture{
		Image:      shot,
		Width:      cfg.Width,
		Height:     cfg.Height,
		FinalURL:   finalURL,
		CapturedAt: time.Now().UTC(),
	}, nil
}
