package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/falstudio/falstudio/internal/catalog"
	"github.com/falstudio/falstudio/internal/inference"
	"github.com/falstudio/falstudio/internal/records"
)

// Generator submits validated inputs upstream and waits for the result.
type Generator interface {
	Generate(ctx context.Context, endpoint string, input map[string]interface{}) (*inference.Result, error)
}

// GenerateHandler proxies generation requests to the upstream API, records
// the outcome in the history, and localizes result media into the cache.
type GenerateHandler struct {
	catalog  *catalog.Catalog
	records  *records.Store
	resolver records.Resolver
	client   Generator
	logger   *slog.Logger
}

func NewGenerateHandler(cat *catalog.Catalog, rec *records.Store, resolver records.Resolver, client Generator, logger *slog.Logger) *GenerateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerateHandler{
		catalog:  cat,
		records:  rec,
		resolver: resolver,
		client:   client,
		logger:   logger,
	}
}

type generateRequest struct {
	ModelID string                 `json:"modelId" binding:"required"`
	Params  map[string]interface{} `json:"params"`
}

func (h *GenerateHandler) Generate(c *gin.Context) {
	start := time.Now()

	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	model, ok := h.catalog.Get(req.ModelID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "model not found"})
		return
	}

	input, err := model.ValidateParams(req.Params)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logger := h.logger.With("model", model.ID, "endpoint", model.Endpoint)

	result, err := h.client.Generate(c.Request.Context(), model.Endpoint, input)
	if err != nil {
		logger.Error("generation failed", "error", err)
		rec := h.records.Add(records.Record{
			ModelID: model.ID,
			Params:  input,
			Status:  "failed",
		})
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "record": rec})
		return
	}

	rec := h.records.Add(records.Record{
		ModelID:   model.ID,
		Params:    input,
		MediaURLs: result.MediaURLs(),
		Status:    "completed",
	})

	localized, err := h.records.LocalizeMedia(c.Request.Context(), rec.ID, h.resolver)
	if err != nil {
		// The record exists with remote URLs; serving those is the
		// documented degraded mode.
		logger.Warn("media localization failed", "record", rec.ID, "error", err)
		localized = rec
	}

	logger.Info("generation completed",
		"record", localized.ID,
		"media", len(localized.MediaURLs),
		"duration", time.Since(start).String(),
	)
	c.JSON(http.StatusOK, localized)
}
