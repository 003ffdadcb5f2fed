package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/falstudio/falstudio/internal/records"
)

// GalleryHandler serves the generation history backing the gallery view.
type GalleryHandler struct {
	records *records.Store
	logger  *slog.Logger
}

func NewGalleryHandler(rec *records.Store, logger *slog.Logger) *GalleryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GalleryHandler{records: rec, logger: logger}
}

func (h *GalleryHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.records.GetAll())
}

type patchRequest struct {
	Status    *string  `json:"status"`
	MediaURLs []string `json:"mediaUrls"`
}

func (h *GalleryHandler) Patch(c *gin.Context) {
	var req patchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.records.Upsert(c.Param("id"), records.Partial{
		Status:    req.Status,
		MediaURLs: req.MediaURLs,
	})
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}
		h.logger.Error("failed to update record", "record", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *GalleryHandler) Delete(c *gin.Context) {
	if err := h.records.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	c.Status(http.StatusNoContent)
}
