package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/muandane/glimpse/internal/imaging"
	"github.com/muandane/glimpse/internal/screenshot"
)

// Screenshotter produces derivative sets. *screenshot.Service implements it.
type Screenshotter interface {
	Screenshot(ctx context.Context, req screenshot.Request) (*screenshot.Result, error)
}

type ScreenshotResponse struct {
	URL                 string         `json:"url"`
	FinalURL            string         `json:"final_url,omitempty"`
	Cached              bool           `json:"cached"`
	Format              imaging.Format `json:"format"`
	FullScreenshot      []byte         `json:"full_screenshot"`
	SmallScreenshot     []byte         `json:"small_screenshot"`
	ThumbnailScreenshot []byte         `json:"thumbnail_screenshot"`
	FullWidth           int            `json:"full_width"`
	FullHeight          int            `json:"full_height"`
	SmallWidth          int            `json:"small_width"`
	SmallHeight         int            `json:"small_height"`
	ThumbnailWidth      int            `json:"thumbnail_width"`
	ThumbnailHeight     int            `json:"thumbnail_height"`
}

type ScreenshotHandler struct {
	service Screenshotter
	logger  *slog.Logger
}

func NewScreenshotHandler(service Screenshotter, logger *slog.Logger) *ScreenshotHandler {
	return &ScreenshotHandler{service: service, logger: logger}
}

// parseScreenshotRequest builds a normalized, validated request from the
// query string.
func parseScreenshotRequest(c *gin.Context) (screenshot.Request, error) {
	var err error
	req := screenshot.NewRequest(c.Query("url"))
	if req.FullPage, err = queryBool(c, "full", "full_page"); err != nil {
		return req, err
	}
	if req.Live, err = queryBool(c, "live"); err != nil {
		return req, err
	}
	if req.Width, err = queryDim(c, "width", screenshot.MaxDimension); err != nil {
		return req, err
	}
	if req.Height, err = queryDim(c, "height", screenshot.MaxDimension); err != nil {
		return req, err
	}
	quality, ok, err := queryInt(c, "quality")
	if err != nil {
		return req, err
	}
	if ok {
		req.Quality = quality
	}
	if req.ThumbnailMaxDim, err = queryDim(c, "thumbnail_size", imaging.MaxThumbnailDim); err != nil {
		return req, err
	}
	if req.Format, err = imaging.ParseFormat(c.Query("format")); err != nil {
		return req, invalid("format", "%s", err)
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		return req, invalid("", "%s", err)
	}
	return req, nil
}

func (h *ScreenshotHandler) Screenshot(c *gin.Context) {
	req, err := parseScreenshotRequest(c)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}

	res, err := h.service.Screenshot(c.Request.Context(), req)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}

	set := res.Set
	if res.Cached {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	c.JSON(http.StatusOK, ScreenshotResponse{
		URL:                 req.URL,
		FinalURL:            set.FinalURL,
		Cached:              res.Cached,
		Format:              set.Full.Format,
		FullScreenshot:      set.Full.Bytes,
		SmallScreenshot:     set.Small.Bytes,
		ThumbnailScreenshot: set.Thumbnail.Bytes,
		FullWidth:           set.Full.Width,
		FullHeight:          set.Full.Height,
		SmallWidth:          set.Small.Width,
		SmallHeight:         set.Small.Height,
		ThumbnailWidth:      set.Thumbnail.Width,
		ThumbnailHeight:     set.Thumbnail.Height,
	})
}
