package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/falstudio/falstudio/internal/mediacache"
)

// CacheHandler exposes media-cache introspection and the user-triggered
// storage reset.
type CacheHandler struct {
	cache  *mediacache.Store
	logger *slog.Logger
}

func NewCacheHandler(cache *mediacache.Store, logger *slog.Logger) *CacheHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheHandler{cache: cache, logger: logger}
}

func (h *CacheHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.cache.Stats())
}

func (h *CacheHandler) Clear(c *gin.Context) {
	h.cache.ClearAll()
	h.logger.Info("media cache cleared")
	c.Status(http.StatusNoContent)
}
