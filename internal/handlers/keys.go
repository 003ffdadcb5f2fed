package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/falstudio/falstudio/internal/inference"
)

// Verifier checks upstream credentials.
type Verifier interface {
	VerifyKey(ctx context.Context) error
}

// KeysHandler verifies the configured upstream API key on behalf of the UI.
type KeysHandler struct {
	client Verifier
	logger *slog.Logger
}

func NewKeysHandler(client Verifier, logger *slog.Logger) *KeysHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeysHandler{client: client, logger: logger}
}

func (h *KeysHandler) Verify(c *gin.Context) {
	err := h.client.VerifyKey(c.Request.Context())
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"valid": true})
		return
	}
	if errors.Is(err, inference.ErrInvalidKey) {
		c.JSON(http.StatusOK, gin.H{"valid": false})
		return
	}
	h.logger.Error("key verification failed", "error", err)
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}
