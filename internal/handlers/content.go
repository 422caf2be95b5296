package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/muandane/glimpse/internal/cache"
	"github.com/muandane/glimpse/internal/content"
	"github.com/muandane/glimpse/internal/screenshot"
)

// MaxHTMLBytes caps uploaded markup.
const MaxHTMLBytes = 10 << 20

type ContentHandler struct {
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewContentHandler(c Cache, ttl time.Duration, logger *slog.Logger) *ContentHandler {
	return &ContentHandler{cache: c, ttl: ttl, logger: logger}
}

// readHTML takes the "html" form field, or the raw body for any other
// content type.
func readHTML(c *gin.Context) (string, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxHTMLBytes)

	ct := c.ContentType()
	if ct == "application/x-www-form-urlencoded" || strings.HasPrefix(ct, "multipart/form-data") {
		html, ok := c.GetPostForm("html")
		if !ok {
			return "", invalid("html", "form field is required")
		}
		return html, nil
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", invalid("html", "could not read body: %s", err)
	}
	return string(body), nil
}

// cached runs convert on miss and stores its output under namespace.
func (h *ContentHandler) cached(ctx context.Context, namespace, html string, convert func(string) (string, error)) (string, error) {
	key := cache.NewKey(namespace, html)
	if h.cache != nil {
		if data, ok := h.cache.Get(ctx, key); ok {
			return string(data), nil
		}
	}
	out, err := convert(html)
	if err != nil {
		return "", err
	}
	if h.cache != nil {
		h.cache.Put(context.WithoutCancel(ctx), key, []byte(out), h.ttl)
	}
	return out, nil
}

func (h *ContentHandler) Minimize(c *gin.Context) {
	html, err := readHTML(c)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	out, err := h.cached(c.Request.Context(), "minimize", html, content.Minify)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"minified_html": out})
}

func (h *ContentHandler) ExtractText(c *gin.Context) {
	html, err := readHTML(c)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	out, err := h.cached(c.Request.Context(), "extract_text", html, content.ExtractText)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": out})
}

// Reader accepts an optional url query parameter used to resolve relative
// links in the article.
func (h *ContentHandler) Reader(c *gin.Context) {
	html, err := readHTML(c)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	pageURL := c.Query("url")
	if pageURL != "" {
		if err := screenshot.ValidateURL(pageURL); err != nil {
			sendError(c, h.logger, invalid("url", "%s", err))
			return
		}
	}
	article, err := content.Reader(html, pageURL)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

func (h *ContentHandler) Markdown(c *gin.Context) {
	html, err := readHTML(c)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	md, err := content.Markdown(html)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"markdown": md})
}
