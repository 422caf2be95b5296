// Package imaging turns one captured raster into the full, small and
// thumbnail derivatives served by the screenshot endpoint.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
	"time"

	// Registered for image.Decode.
	_ "image/gif"

	"golang.org/x/image/draw"
)

type Format string

const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
	WEBP Format = "webp"
)

// ParseFormat accepts the formats the pipeline can encode. An empty string
// selects JPEG.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jpg", "jpeg":
		return JPEG, nil
	case "png":
		return PNG, nil
	case "webp":
		return "", fmt.Errorf("format webp is not supported")
	default:
		return "", fmt.Errorf("unknown image format %q", s)
	}
}

// ContentType is the MIME type of f.
func (f Format) ContentType() string {
	return "image/" + string(f)
}

const (
	// SmallRatio is the scale of the small derivative relative to full.
	SmallRatio = 0.5
	// ThumbnailQuality is used for thumbnails regardless of the requested quality.
	ThumbnailQuality = 60

	DefaultQuality         = 85
	DefaultThumbnailMaxDim = 450
	MaxThumbnailDim        = 4096
)

type EncodedImage struct {
	Bytes  []byte `json:"bytes"`
	Format Format `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type DerivativeSet struct {
	Full       EncodedImage `json:"full"`
	Small      EncodedImage `json:"small"`
	Thumbnail  EncodedImage `json:"thumbnail"`
	FinalURL   string       `json:"final_url,omitempty"`
	CapturedAt time.Time    `json:"captured_at"`
}

// Raw is the capture handed to the pipeline. Width and Height are the
// dimensions reported by the browser.
type Raw struct {
	Bytes      []byte
	Width      int
	Height     int
	FinalURL   string
	CapturedAt time.Time
}

// Options controls derivative geometry and encoding. Zero Width or Height
// means the dimension was not requested.
type Options struct {
	Width           int
	Height          int
	Quality         int
	ThumbnailMaxDim int
	Format          Format
}

type ErrorKind string

const (
	EmptyCapture ErrorKind = "EmptyCapture"
	DecodeFailed ErrorKind = "DecodeFailed"
	EncodeFailed ErrorKind = "EncodeFailed"
)

type ImageError struct {
	Kind ErrorKind
	Err  error
}

func (e *ImageError) Error() string {
	if e.Err == nil {
		return "image: " + string(e.Kind)
	}
	return fmt.Sprintf("image: %s: %v", e.Kind, e.Err)
}

func (e *ImageError) Unwrap() error { return e.Err }

// IsKind reports whether err is an ImageError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ie *ImageError
	return errors.As(err, &ie) && ie.Kind == kind
}

// ClampQuality restricts q to [1, 100].
func ClampQuality(q int) int {
	return min(max(q, 1), 100)
}

// BuildDerivatives decodes raw once and derives every variant from the
// decoded pixels. It returns either a complete set or an error.
func BuildDerivatives(raw Raw, opts Options) (*DerivativeSet, error) {
	if raw.Width <= 0 || raw.Height <= 0 || len(raw.Bytes) == 0 {
		return nil, &ImageError{Kind: EmptyCapture}
	}

	src, _, err := image.Decode(bytes.NewReader(raw.Bytes))
	if err != nil {
		return nil, &ImageError{Kind: DecodeFailed, Err: err}
	}
	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, &ImageError{Kind: EmptyCapture}
	}

	if opts.Format == "" {
		opts.Format = JPEG
	}
	quality := ClampQuality(opts.Quality)
	thumbMax := opts.ThumbnailMaxDim
	if thumbMax <= 0 {
		thumbMax = DefaultThumbnailMaxDim
	}

	fullW, fullH := fullSize(b.Dx(), b.Dy(), opts.Width, opts.Height)
	smallW, smallH := max(int(float64(fullW)*SmallRatio), 1), max(int(float64(fullH)*SmallRatio), 1)
	thumbW, thumbH := fitWithin(fullW, fullH, thumbMax)

	set := &DerivativeSet{FinalURL: raw.FinalURL, CapturedAt: raw.CapturedAt}
	steps := []struct {
		dst     *EncodedImage
		w, h    int
		quality int
	}{
		{&set.Full, fullW, fullH, quality},
		{&set.Small, smallW, smallH, quality},
		{&set.Thumbnail, thumbW, thumbH, ThumbnailQuality},
	}
	for _, s := range steps {
		data, err := Encode(Resize(src, s.w, s.h), opts.Format, s.quality)
		if err != nil {
			return nil, err
		}
		*s.dst = EncodedImage{Bytes: data, Format: opts.Format, Width: s.w, Height: s.h}
	}
	return set, nil
}

// fullSize applies the requested dimensions. A single dimension keeps the
// source aspect ratio; no request keeps the native size.
func fullSize(srcW, srcH, reqW, reqH int) (int, int) {
	switch {
	case reqW > 0 && reqH > 0:
		return reqW, reqH
	case reqW > 0:
		return reqW, max(scale(srcH, reqW, srcW), 1)
	case reqH > 0:
		return max(scale(srcW, reqH, srcH), 1), reqH
	default:
		return srcW, srcH
	}
}

// fitWithin shrinks (w, h) so the longer edge is at most maxDim. It never
// enlarges.
func fitWithin(w, h, maxDim int) (int, int) {
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	if w >= h {
		return maxDim, min(max(scale(h, maxDim, w), 1), maxDim)
	}
	return min(max(scale(w, maxDim, h), 1), maxDim), maxDim
}

// scale returns round(v * num / den).
func scale(v, num, den int) int {
	return int((int64(v)*int64(num)*2 + int64(den)) / (int64(den) * 2))
}

// Resize scales src to w x h with Catmull-Rom resampling. src is returned
// untouched when it already has that size.
func Resize(src image.Image, w, h int) image.Image {
	b := src.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// Encode writes img in format f. quality is ignored for PNG.
func Encode(img image.Image, f Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch f {
	case JPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: ClampQuality(quality)})
	case PNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(&buf, img)
	default:
		err = fmt.Errorf("no encoder for %q", f)
	}
	if err != nil {
		return nil, &ImageError{Kind: EncodeFailed, Err: err}
	}
	return buf.Bytes(), nil
}
