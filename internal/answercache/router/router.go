// Package router provides answer cache service routing.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/answercache/internal/answercache/handler"
)

// Register registers the answer cache service routes.
func Register(engine *gin.Engine, cacheHandler *handler.CacheHandler) {
	logger.Info("Registering answer cache routes...")

	v1 := engine.Group("/v1")
	{
		cache := v1.Group("/cache")
		{
			cache.POST("/lookup", cacheHandler.Lookup)
			cache.POST("/store", cacheHandler.Store)
			cache.POST("/invalidate", cacheHandler.Invalidate)
			cache.GET("/stats", cacheHandler.Stats)
		}

		confidence := v1.Group("/confidence")
		{
			confidence.POST("/predict", cacheHandler.Predict)
			confidence.POST("/sample", cacheHandler.Sample)
		}
	}

	engine.GET("/metrics", cacheHandler.Metrics)
	engine.GET("/healthz", cacheHandler.Healthz)

	logger.Info("HTTP routes registered")
}
