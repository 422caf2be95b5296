package browser

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/muandane/glimpse/internal/imaging"
)

const (
	maxFrames     = 150
	frameQuality  = 70
	defaultTail   = time.Second
	recordMaxEdge = 800
)

type RecordOptions struct {
	URL    string
	Width  int
	Height int
	// Tail keeps recording after the page settled.
	Tail time.Duration
}

// Record films the page loading through the screencast API and returns an
// animated GIF. At most maxFrames frames are kept.
func (b *Browser) Record(ctx context.Context, opts RecordOptions) ([]byte, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	s, err := b.openSession(ctx, opts.Width, opts.Height)
	if err != nil {
		return nil, captureErr(ctx, RenderFailed, opts.URL, err)
	}
	defer s.release()
	page := s.page

	var (
		mu     sync.Mutex
		frames []imaging.Frame
	)
	go page.EachEvent(func(e *proto.PageScreencastFrame) {
		mu.Lock()
		if len(frames) < maxFrames {
			ts := time.Now()
			if e.Metadata != nil && e.Metadata.Timestamp != 0 {
				ts = e.Metadata.Timestamp.Time()
			}
			frames = append(frames, imaging.Frame{Data: e.Data, Timestamp: ts})
		}
		mu.Unlock()
		_ = proto.PageScreencastFrameAck{SessionID: e.SessionID}.Call(page)
	})()

	quality := frameQuality
	if err := (proto.PageStartScreencast{
		Format:  proto.PageStartScreencastFormatJpeg,
		Quality: &quality,
	}).Call(page); err != nil {
		return nil, captureErr(ctx, RenderFailed, opts.URL, err)
	}

	if err := navigate(page, opts.URL); err != nil {
		return nil, captureErr(ctx, NavigationFailed, opts.URL, err)
	}

	tail := opts.Tail
	if tail <= 0 {
		tail = defaultTail
	}
	select {
	case <-time.After(tail):
	case <-ctx.Done():
		return nil, captureErr(ctx, Timeout, opts.URL, ctx.Err())
	}

	if err := (proto.PageStopScreencast{}).Call(page); err != nil {
		return nil, captureErr(ctx, RenderFailed, opts.URL, err)
	}

	mu.Lock()
	captured := append([]imaging.Frame(nil), frames...)
	mu.Unlock()

	b.logger.Debug("session recorded", "url", opts.URL, "frames", len(captured))
	return imaging.EncodeGIF(captured, recordMaxEdge)
}
