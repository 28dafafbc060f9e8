package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"price-tracker/pkg/contextx"
	"price-tracker/pkg/logx"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, handlers *Handlers, log *slog.Logger, gatherer prometheus.Gatherer, cronSecret string) {
	r.Use(requestLogger(log))

	v1 := r.Group("/api")
	{
		// Health check (handle both GET and HEAD)
		v1.GET("/health", handlers.HealthCheck)
		v1.HEAD("/health", handlers.HealthCheck)

		// Monitoring pass, called by an external cron
		v1.GET("/cron", cronAuth(cronSecret), handlers.RunPass)

		// Products
		v1.GET("/products", handlers.GetProducts)
		v1.POST("/products", handlers.TrackProduct)
		v1.GET("/products/:id", handlers.GetProduct)
		v1.DELETE("/products/:id", handlers.DeleteProduct)
		v1.GET("/products/:id/history", handlers.GetProductHistory)
		v1.PUT("/products/:id/target-price", handlers.SetTargetPrice)
		v1.POST("/products/:id/subscribers", handlers.AddSubscriber)

		// Stats
		v1.GET("/stats", handlers.GetStats)
		v1.GET("/scheduler", handlers.GetSchedulerStatus)
	}

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// cronAuth requires "Authorization: Bearer <secret>" when a secret is set.
func cronAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		want := "Bearer " + secret
		got := c.GetHeader("Authorization")
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Next()
	}
}

// requestLogger puts the logger in the request context and logs every request.
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		ctx := contextx.WithLogger(c.Request.Context(), log)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		log.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Int64(logx.FieldDurationMs, time.Since(start).Milliseconds()),
		)
	}
}
