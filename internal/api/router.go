package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/infiniteinsight/spectral/internal/commands"
	"github.com/infiniteinsight/spectral/internal/websocket"
)

// RouterConfig holds the dependencies needed to build the HTTP router. It is
// populated in cmd/spectral after the commands.Service and websocket.Hub are
// constructed.
type RouterConfig struct {
	Service *commands.Service
	Hub     *websocket.Hub
	Logger  *zap.Logger
}

// NewRouter builds the Chi router for the loopback command dispatch surface.
// Every registered command is reachable as POST /api/v1/invoke/{command},
// and GET /api/v1/ws upgrades to the shell's single WebSocket connection.
// There is no auth group: the server only ever binds 127.0.0.1.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	handler := NewHandler(cfg.Service, cfg.Logger)
	wsHandler := NewWSHandler(cfg.Hub, cfg.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/invoke/{command}", handler.Invoke)
		r.Get("/ws", wsHandler.ServeWS)
	})

	return r
}
