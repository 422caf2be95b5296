package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/muandane/glimpse/internal/cache"
)

// StatsSource is implemented by *cache.Manager.
type StatsSource interface {
	GetStats() cache.Stats
}

type StatsHandler struct {
	source StatsSource
}

func NewStatsHandler(source StatsSource) *StatsHandler {
	return &StatsHandler{source: source}
}

func (h *StatsHandler) Stats(c *gin.Context) {
	if h.source == nil {
		c.JSON(http.StatusOK, gin.H{"backend": "disabled"})
		return
	}
	c.JSON(http.StatusOK, h.source.GetStats())
}
