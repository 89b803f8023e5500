package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/infiniteinsight/spectral/internal/websocket"
)

// WSHandler handles the WebSocket upgrade endpoint GET /api/v1/ws, which the
// shell connects to once per vault session to receive scan:progress,
// scan:complete, discovery:complete, discovery:error, and removal:update
// events.
//
// Topic subscription is declared at connection time via the `topics` query
// parameter, a comma-separated list of the topics defined in
// internal/websocket/message.go (e.g. "scan:<job_id>", "removal:<vault_id>").
//
// Example connection URL:
//
//	ws://127.0.0.1:PORT/api/v1/ws?topics=scan:018f...,removal:v1
type WSHandler struct {
	hub    *websocket.Hub
	logger *zap.Logger
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(hub *websocket.Hub, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:    hub,
		logger: logger.Named("ws_handler"),
	}
}

// ServeWS handles GET /api/v1/ws. It builds the topic list, upgrades the
// connection, and starts the client read/write pumps. The handler blocks
// until the connection closes — this is expected for WebSocket handlers.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	topics := h.resolveTopics(r)

	client, err := websocket.NewClient(h.hub, w, r, topics, h.logger)
	if err != nil {
		// Upgrade failure is already logged by gorilla; the response has
		// already been written by the upgrader on error.
		h.logger.Warn("ws: upgrade failed", zap.Error(err))
		return
	}

	h.logger.Info("ws: client connected",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Strings("topics", topics),
	)

	// Run blocks until the connection closes. readPump and writePump handle
	// cleanup and hub unregistration internally.
	client.Run()

	h.logger.Info("ws: client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

// resolveTopics parses the comma-separated `topics` query parameter.
// Unknown or malformed topic strings are silently ignored — the client will
// simply never receive messages for topics that do not exist.
func (h *WSHandler) resolveTopics(r *http.Request) []string {
	seen := make(map[string]struct{})
	var topics []string

	raw := r.URL.Query().Get("topics")
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, exists := seen[t]; !exists {
			seen[t] = struct{}{}
			topics = append(topics, t)
		}
	}

	return topics
}
