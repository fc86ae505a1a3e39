package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/shim-server/internal/domain/auth"
	"github.com/yanqian/shim-server/internal/infra/config"
)

// NewRouter wires up the HTTP handlers and returns a configured server.
func NewRouter(cfg *config.Config, handler *Handler, authSvc auth.Service, logger *slog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		requestLogger(logger),
		corsMiddleware(cfg.HTTP.AllowedOrigins),
		errorHandlingMiddleware(logger),
	)
	limit := rateLimitMiddleware(newCallerRateLimiter(cfg.HTTP.RateLimit), logger)

	router.GET("/healthz", handler.Health)

	api := router.Group("/api/v1")
	api.POST("/auth/token", limit, handler.IssueToken)

	protected := api.Group("")
	if cfg.Auth.Enabled {
		protected.Use(authMiddleware(authSvc))
	}
	protected.Use(limit)
	{
		protected.GET("/shims", handler.ListShims)
		protected.GET("/data/:shim", handler.GetData)
		protected.GET("/accounts", handler.ListAccounts)
		protected.PUT("/accounts/:shim/:username", handler.PutAccount)
		protected.GET("/accounts/:shim/:username", handler.GetAccount)
		protected.DELETE("/accounts/:shim/:username", handler.DeleteAccount)
	}

	return &http.Server{
		Addr:           cfg.HTTP.Address,
		Handler:        withRetry(router, cfg.HTTP.Retry, logger),
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		attrs := []any{"method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status(), "latency_ms", latency.Milliseconds()}
		if claims, ok := getClaims(c); ok {
			attrs = append(attrs, "client", claims.ClientID)
		}
		logger.Info("http request", attrs...)
	}
}
