package router

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/falstudio/falstudio/internal/handlers"
	"github.com/falstudio/falstudio/internal/middleware"
)

// Handlers bundles the route handlers the router wires up.
type Handlers struct {
	Generate *handlers.GenerateHandler
	Models   *handlers.ModelsHandler
	Gallery  *handlers.GalleryHandler
	Cache    *handlers.CacheHandler
	Keys     *handlers.KeysHandler
}

// Setup builds the gin engine with middleware and routes registered.
func Setup(h Handlers, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	metricsMiddleware := middleware.NewMetricsMiddleware()
	r.Use(middleware.WithLogging(logger))
	r.Use(metricsMiddleware.WithMetrics())

	r.GET("/health", handlers.HealthCheck)
	r.GET("/metrics", metricsMiddleware.Handler())

	api := r.Group("/api")
	{
		api.POST("/generate", h.Generate.Generate)
		api.GET("/models", h.Models.List)
		api.GET("/models/:id", h.Models.Get)
		api.GET("/gallery", h.Gallery.List)
		api.PATCH("/gallery/:id", h.Gallery.Patch)
		api.DELETE("/gallery/:id", h.Gallery.Delete)
		api.GET("/cache/stats", h.Cache.Stats)
		api.POST("/cache/clear", h.Cache.Clear)
		api.POST("/keys/verify", h.Keys.Verify)
	}

	return r
}
