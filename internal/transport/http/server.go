package http

import (
	"fmt"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/config"
	"github.com/vovakirdan/wirerelay/internal/core"
	"github.com/vovakirdan/wirerelay/internal/transport/tcp"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// NewServer builds the admin HTTP server: health, registry and history
// inspection, and a websocket bridge onto the relay protocol.
func NewServer(hub *core.Hub, conns *tcp.Handler, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.AdminAddr,
		Handler:           NewRouter(hub, conns, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter wires the admin routes onto a gin engine.
func NewRouter(hub *core.Hub, conns *tcp.Handler, logger *zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	admin := NewAdminHandlers(hub, logger)

	router.GET("/health", healthHandler)
	api := router.Group("/api")
	{
		api.GET("/clients", admin.ListClients)
		api.GET("/history", admin.History)
	}
	router.GET("/ws", gin.WrapH(NewWSHandler(conns, logger)))

	return router
}

func healthHandler(c *gin.Context) {
	_, _ = fmt.Fprint(c.Writer, "ok")
}
