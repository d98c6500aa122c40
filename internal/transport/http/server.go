package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"parlor-server/internal/config"
	"parlor-server/internal/core"
	"parlor-server/internal/store"
)

// NewServer builds the HTTP server: REST endpoints, health probes and
// the WebSocket entry point.
func NewServer(registry *core.Registry, st store.Store, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		LoggerMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	router.GET("/", rootHandler)
	router.GET("/health", healthHandler)

	debugLogs := NewDebugLogHandlers(st, logger)
	api := router.Group("/api")
	{
		api.POST("/debug-log", RateLimitMiddleware(cfg.DebugLogPerMinute), debugLogs.Append)
		api.GET("/debug-logs", debugLogs.ListToday)
	}

	ws := NewWSHandler(registry, cfg.WriteTimeout, logger)
	router.GET("/ws/:room/:username", ws.Handle)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func rootHandler(c *gin.Context) {
	c.JSON(stdhttp.StatusOK, gin.H{"message": "WebSocket server is running"})
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
