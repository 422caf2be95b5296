package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color/palette"
	"image/gif"
	"time"

	"golang.org/x/image/draw"
)

// Frame is one still of a recording and the time it was shown.
type Frame struct {
	Data      []byte
	Timestamp time.Time
}

// EncodeGIF assembles frames into a looping animated GIF. Every frame is
// decoded, fitted within maxDim and dithered onto the Plan 9 palette. Frame
// delays follow the recorded timestamps.
func EncodeGIF(frames []Frame, maxDim int) ([]byte, error) {
	if len(frames) == 0 {
		return nil, &ImageError{Kind: EmptyCapture}
	}

	anim := &gif.GIF{}
	for i, f := range frames {
		src, _, err := image.Decode(bytes.NewReader(f.Data))
		if err != nil {
			return nil, &ImageError{Kind: DecodeFailed, Err: fmt.Errorf("frame %d: %w", i, err)}
		}
		b := src.Bounds()
		if b.Dx() == 0 || b.Dy() == 0 {
			continue
		}
		w, h := b.Dx(), b.Dy()
		if maxDim > 0 {
			w, h = fitWithin(w, h, maxDim)
		}

		paletted := image.NewPaletted(image.Rect(0, 0, w, h), palette.Plan9)
		draw.FloydSteinberg.Draw(paletted, paletted.Bounds(), Resize(src, w, h), image.Point{})

		anim.Image = append(anim.Image, paletted)
		anim.Delay = append(anim.Delay, frameDelay(frames, i))
	}
	if len(anim.Image) == 0 {
		return nil, &ImageError{Kind: EmptyCapture}
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, &ImageError{Kind: EncodeFailed, Err: err}
	}
	return buf.Bytes(), nil
}

// frameDelay is the gap to the next frame in hundredths of a second.
func frameDelay(frames []Frame, i int) int {
	const fallback = 10
	if i+1 >= len(frames) || frames[i].Timestamp.IsZero() {
		return fallback
	}
	d := frames[i+1].Timestamp.Sub(frames[i].Timestamp) / (10 * time.Millisecond)
	if d <= 0 {
		return 1
	}
	return int(d)
}
