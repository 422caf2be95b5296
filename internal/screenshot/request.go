// Package screenshot serves screenshot derivatives, capturing a page only
// when no fresh cached set exists.
package screenshot

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/muandane/glimpse/internal/cache"
	"github.com/muandane/glimpse/internal/imaging"
)

// MaxDimension bounds requested output sizes.
const MaxDimension = 10000

// Request is a validated screenshot request. Zero Width or Height means the
// dimension is not constrained.
type Request struct {
	URL             string
	FullPage        bool
	Width           int
	Height          int
	Quality         int
	ThumbnailMaxDim int
	Format          imaging.Format
	// Live skips the cache lookup. The fresh result still refreshes the cache.
	Live bool
}

// NewRequest returns a request for url with the default quality.
func NewRequest(url string) Request {
	return Request{URL: url, Quality: imaging.DefaultQuality}
}

// Normalize clamps quality into [1, 100], zero included, and fills the
// remaining defaults.
func (r *Request) Normalize() {
	r.Quality = imaging.ClampQuality(r.Quality)
	if r.ThumbnailMaxDim == 0 {
		r.ThumbnailMaxDim = imaging.DefaultThumbnailMaxDim
	}
	if r.Format == "" {
		r.Format = imaging.JPEG
	}
}

// Validate checks a normalized request.
func (r *Request) Validate() error {
	if err := ValidateURL(r.URL); err != nil {
		return err
	}
	if r.Width < 0 || r.Width > MaxDimension {
		return fmt.Errorf("width must be between 1 and %d", MaxDimension)
	}
	if r.Height < 0 || r.Height > MaxDimension {
		return fmt.Errorf("height must be between 1 and %d", MaxDimension)
	}
	if r.ThumbnailMaxDim < 1 || r.ThumbnailMaxDim > imaging.MaxThumbnailDim {
		return fmt.Errorf("thumbnail_size must be between 1 and %d", imaging.MaxThumbnailDim)
	}
	switch r.Format {
	case imaging.JPEG, imaging.PNG:
	default:
		return fmt.Errorf("format %q is not supported", r.Format)
	}
	return nil
}

// Key fingerprints every field that changes the rendered derivatives.
func (r *Request) Key() cache.Key {
	return cache.NewKey("screenshot",
		r.URL,
		strconv.FormatBool(r.FullPage),
		strconv.Itoa(r.Width),
		strconv.Itoa(r.Height),
		strconv.Itoa(imaging.ClampQuality(r.Quality)),
		strconv.Itoa(r.ThumbnailMaxDim),
		string(r.Format),
	)
}

// ValidateURL accepts absolute http and https URLs with a host.
func ValidateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("url must be absolute")
	}
	return nil
}
