package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nearmap/server/internal/config"
	"github.com/nearmap/server/internal/middleware"
	"github.com/nearmap/server/internal/session"
	"github.com/nearmap/server/internal/storage"
)

// NewRouter wires the public surface of the server: a health check, a
// Prometheus scrape endpoint, and the single WebSocket upgrade route
// that carries the whole session protocol (spec.md §4.G). There are no
// other protected REST routes, so request authentication happens once
// per event inside internal/session rather than as gin middleware.
func NewRouter(cfg *config.Config, db *storage.Postgres, redis *storage.Redis, sess *session.Server) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(middleware.Security())
	router.Use(middleware.RateLimit(redis, nil, cfg))

	router.GET("/health", healthCheck(db, redis))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", func(c *gin.Context) {
		sess.HandleWS(c.Writer, c.Request)
	})

	return router
}

func healthCheck(db *storage.Postgres, redis *storage.Redis) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "down",
			})
			return
		}

		if err := redis.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"redis":  "down",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"database": "up",
			"redis":    "up",
		})
	}
}
