package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/muandane/glimpse/internal/browser"
	"github.com/muandane/glimpse/internal/cache"
	"github.com/muandane/glimpse/internal/screenshot"
)

// Browser is the part of *browser.Browser the page handlers drive.
type Browser interface {
	Browse(ctx context.Context, opts browser.BrowseOptions) (*browser.BrowseResult, error)
	Record(ctx context.Context, opts browser.RecordOptions) ([]byte, error)
}

// Cache matches *cache.Manager. Store failures never reach the handler.
type Cache interface {
	Get(ctx context.Context, key cache.Key) ([]byte, bool)
	Put(ctx context.Context, key cache.Key, value []byte, ttl time.Duration)
}

type BrowseHandler struct {
	browser Browser
	cache   Cache
	ttl     time.Duration
	logger  *slog.Logger
}

// NewBrowseHandler serves /browse and /video. A nil cache disables caching
// of browse results.
func NewBrowseHandler(b Browser, c Cache, ttl time.Duration, logger *slog.Logger) *BrowseHandler {
	return &BrowseHandler{browser: b, cache: c, ttl: ttl, logger: logger}
}

func parseBrowseOptions(c *gin.Context) (browser.BrowseOptions, bool, error) {
	opts := browser.BrowseOptions{
		URL:      c.Query("url"),
		Method:   strings.ToUpper(strings.TrimSpace(c.DefaultQuery("method", http.MethodGet))),
		PostData: c.Query("post_data"),
	}
	if err := screenshot.ValidateURL(opts.URL); err != nil {
		return opts, false, invalid("url", "%s", err)
	}
	if opts.Method != http.MethodGet && opts.Method != http.MethodPost {
		return opts, false, invalid("method", "must be GET or POST")
	}
	if err := browser.CheckName(c.Query("browser")); err != nil {
		return opts, false, invalid("browser", "%s", err)
	}
	var err error
	if opts.HideCookieBanners, err = queryBool(c, "cookiebanner"); err != nil {
		return opts, false, err
	}
	live, err := queryBool(c, "live")
	if err != nil {
		return opts, false, err
	}
	return opts, live, nil
}

func browseKey(opts browser.BrowseOptions) cache.Key {
	banner := "0"
	if opts.HideCookieBanners {
		banner = "1"
	}
	return cache.NewKey("browse", opts.URL, opts.Method, opts.PostData, browser.SupportedBrowser, banner)
}

func (h *BrowseHandler) Browse(c *gin.Context) {
	opts, live, err := parseBrowseOptions(c)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}

	key := browseKey(opts)
	if h.cache != nil && !live {
		if data, ok := h.cache.Get(c.Request.Context(), key); ok && json.Valid(data) {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, "application/json; charset=utf-8", data)
			return
		}
	}

	res, err := h.browser.Browse(c.Request.Context(), opts)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}

	data, err := json.Marshal(res)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	if h.cache != nil {
		h.cache.Put(context.WithoutCancel(c.Request.Context()), key, data, h.ttl)
	}
	c.Header("X-Cache", "MISS")
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// recordingName is the sha256 of the url, so repeated recordings of a page
// share a file name.
func recordingName(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:]) + ".gif"
}

func (h *BrowseHandler) Video(c *gin.Context) {
	url := c.Query("url")
	if err := screenshot.ValidateURL(url); err != nil {
		sendError(c, h.logger, invalid("url", "%s", err))
		return
	}
	if err := browser.CheckName(c.Query("browser_name")); err != nil {
		sendError(c, h.logger, invalid("browser_name", "%s", err))
		return
	}
	width, err := queryDim(c, "width", screenshot.MaxDimension)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	height, err := queryDim(c, "height", screenshot.MaxDimension)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}

	gif, err := h.browser.Record(c.Request.Context(), browser.RecordOptions{
		URL:    url,
		Width:  width,
		Height: height,
	})
	if err != nil {
		sendError(c, h.logger, err)
		return
	}

	c.Header("Content-Disposition", `inline; filename="`+recordingName(url)+`"`)
	c.Data(http.StatusOK, "image/gif", gif)
}
