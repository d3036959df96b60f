// Package gateway is the external-facing transport: it accepts client
// connections over HTTP and WebSocket, feeds each inbound message to the
// dispatcher and emits the reply (or a classified error) back on the same
// channel.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"AgentChat/internal/backend"
	"AgentChat/internal/config"
	"AgentChat/internal/dispatcher"
	"AgentChat/internal/prompt"
	"AgentChat/internal/session"
)

// Error kinds surfaced to clients.
const (
	KindUnsupportedProvider = "unsupported_provider"
	KindAuthentication      = "authentication_error"
	KindProviderUnavailable = "provider_unavailable"
	KindUnknownSession      = "unknown_session"
	KindBadRequest          = "bad_request"
	KindInternal            = "internal"
)

// errorKind classifies an error into its client-facing kind.
func errorKind(err error) string {
	switch {
	case errors.Is(err, backend.ErrUnsupportedProvider):
		return KindUnsupportedProvider
	case errors.Is(err, backend.ErrAuthentication):
		return KindAuthentication
	case errors.Is(err, backend.ErrProviderUnavailable):
		return KindProviderUnavailable
	case errors.Is(err, session.ErrUnknownSession):
		return KindUnknownSession
	default:
		return KindInternal
	}
}

// Gateway serves the chat API.
type Gateway struct {
	dispatcher *dispatcher.Dispatcher
	options    config.Options
	logger     *slog.Logger
	upgrader   websocket.Upgrader
}

// New creates a Gateway over the dispatcher.
func New(d *dispatcher.Dispatcher, options config.Options, logger *slog.Logger) *Gateway {
	return &Gateway{
		dispatcher: d,
		options:    options,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The browser front-end is served from elsewhere during
			// development, so cross-origin upgrades are allowed.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the gin engine with all routes attached.
func (g *Gateway) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", g.health)
	router.GET("/api/config", g.getConfig)
	router.POST("/api/chat", g.postChat)
	router.GET("/ws", g.serveWS)

	return router
}

func (g *Gateway) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": g.dispatcher.Store().Len()})
}

// getConfig reports the selectable backends, models and use cases. Local
// providers that can enumerate their models get the live list merged ahead
// of the configured one.
func (g *Gateway) getConfig(c *gin.Context) {
	models := make(map[string][]string, len(g.options.Providers))
	defaults := make(map[string]string, len(g.options.Providers))
	for name, p := range g.options.Providers {
		models[name] = p.Models
		defaults[name] = p.DefaultModel
	}

	if adapter, err := g.dispatcher.Lookup(config.BackendOllama); err == nil {
		if lister, ok := adapter.(backend.ModelLister); ok {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			live, err := lister.ListModels(ctx)
			switch {
			case err != nil:
				g.logger.Warn("failed to list local models", "provider", config.BackendOllama, "error", err)
			case len(live) > 0:
				names := make([]string, len(live))
				for i, m := range live {
					names[i] = m.Name
				}
				models[config.BackendOllama] = mergeModels(names, models[config.BackendOllama])
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"page_title":          g.options.PageTitle,
		"backends":            g.dispatcher.Backends(),
		"models":              models,
		"default_models":      defaults,
		"usecases":            prompt.Usecases(),
		"chat_history_length": g.options.HistoryWindow,
	})
}

// chatRequest is the REST message envelope.
type chatRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Text      string `json:"text" binding:"required"`
	Backend   string `json:"backend" binding:"required"`
	Usecase   string `json:"usecase"`
}

// postChat is the single-shot REST alternative to the WebSocket channel.
// Session ids are client-managed here; the session is created on first use.
func (g *Gateway) postChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error_kind":    KindBadRequest,
			"error_message": "invalid request body",
		})
		return
	}

	reply, err := g.dispatcher.Handle(c.Request.Context(), dispatcher.Request{
		SessionID: req.SessionID,
		Text:      req.Text,
		Backend:   req.Backend,
		Usecase:   req.Usecase,
	})
	if err != nil {
		kind := errorKind(err)
		c.JSON(httpStatus(kind), gin.H{
			"session_id":    req.SessionID,
			"error_kind":    kind,
			"error_message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": req.SessionID,
		"reply_text": reply,
	})
}

// mergeModels unions the live and configured model lists, live names first,
// without duplicates.
func mergeModels(live, configured []string) []string {
	seen := make(map[string]bool, len(live)+len(configured))
	merged := make([]string, 0, len(live)+len(configured))
	for _, name := range append(live, configured...) {
		if seen[name] {
			continue
		}
		seen[name] = true
		merged = append(merged, name)
	}
	return merged
}

// httpStatus maps an error kind to a REST status code.
func httpStatus(kind string) int {
	switch kind {
	case KindUnsupportedProvider, KindBadRequest:
		return http.StatusBadRequest
	case KindProviderUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// serveWS upgrades the connection and runs the per-client loop. Each
// connection owns one session, created here and destroyed on teardown.
func (g *Gateway) serveWS(c *gin.Context) {
	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newClientConn(conn, g, uuid.NewString())
	client.run(c.Request.Context())
}

// timestamp formats event times the way the browser client expects.
func timestamp() string {
	return time.Now().Format(time.RFC3339)
}
