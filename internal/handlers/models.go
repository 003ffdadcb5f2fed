package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/falstudio/falstudio/internal/catalog"
)

// ModelsHandler serves the model catalog the UI builds its forms from.
type ModelsHandler struct {
	catalog *catalog.Catalog
}

func NewModelsHandler(c *catalog.Catalog) *ModelsHandler {
	return &ModelsHandler{catalog: c}
}

func (h *ModelsHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog.All())
}

func (h *ModelsHandler) Get(c *gin.Context) {
	model, ok := h.catalog.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "model not found"})
		return
	}
	c.JSON(http.StatusOK, model)
}
