// Package gateway accepts authenticated WebSocket connections, keeps the
// node-local registry of sessions and rooms, and routes inbound frames.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/limaxs-dev/chat-server/internal/auth"
	"github.com/limaxs-dev/chat-server/internal/events"
	"github.com/limaxs-dev/chat-server/internal/metrics"
	"github.com/limaxs-dev/chat-server/internal/models"
)

// TokenVerifier authenticates the token presented at connect time.
type TokenVerifier interface {
	Verify(token string) (*auth.Identity, error)
}

// PresenceStore records users coming online and clears call state on close.
type PresenceStore interface {
	SetOnline(ctx context.Context, userID uuid.UUID) error
	ClearBusy(ctx context.Context, userID uuid.UUID) error
}

// RoomDirectory lists the rooms a user belongs to.
type RoomDirectory interface {
	RoomIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// Config wires a Gateway.
type Config struct {
	Verifier TokenVerifier
	Presence PresenceStore
	Rooms    RoomDirectory
	Registry *Registry
	Router   *Router
	Options  Options

	// CheckOrigin overrides the upgrader's origin check. Nil allows all origins.
	CheckOrigin func(r *http.Request) bool
}

// Gateway is the WebSocket endpoint.
type Gateway struct {
	verifier TokenVerifier
	presence PresenceStore
	rooms    RoomDirectory
	registry *Registry
	router   *Router
	opts     Options
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	wg sync.WaitGroup
}

// New creates a gateway.
func New(cfg Config, logger zerolog.Logger) *Gateway {
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Gateway{
		verifier: cfg.Verifier,
		presence: cfg.Presence,
		rooms:    cfg.Rooms,
		registry: cfg.Registry,
		router:   cfg.Router,
		opts:     cfg.Options.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger: logger.With().Str("component", "gateway").Logger(),
	}
}

// Registry returns the registry the gateway registers connections in.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		metrics.ConnectionsTotal.WithLabelValues("failed").Inc()
		g.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	identity, err := g.verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		metrics.ConnectionsTotal.WithLabelValues("unauthorized").Inc()
		g.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket connection rejected")
		g.reject(ws, err)
		return
	}

	g.wg.Add(1)
	defer g.wg.Done()

	// Handler work is not cancelled when the client goes away.
	ctx := context.WithoutCancel(r.Context())

	c := newConn(ws, g.opts, g.logger)
	c.bind(*identity)
	go c.writePump(g.opts)

	if !g.open(ctx, c) {
		c.CloseWith(websocket.CloseInternalServerErr, "")
		return
	}
	defer g.close(ctx, c)

	g.readPump(ctx, c)
}

// open moves an authenticated connection to the open state. PRESENCE is
// queued before the connection becomes visible to fanout so it is always the
// first frame the client receives.
func (g *Gateway) open(ctx context.Context, c *Conn) bool {
	id := c.Identity()

	presence, err := events.Encode(events.PresenceData{
		UserID:   id.UserID,
		UserName: id.Name,
		Status:   models.PresenceOnline,
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to encode presence")
		return false
	}
	c.Enqueue(presence)

	if err := g.presence.SetOnline(ctx, id.UserID); err != nil {
		c.logger.Error().Err(err).Msg("failed to set presence")
	}

	g.registry.Register(c)

	rooms, err := g.rooms.RoomIDsForUser(ctx, id.UserID)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to load room memberships")
		c.Enqueue(errorFrame(events.CodeInternal, "Failed to load rooms"))
		g.registry.Unregister(c)
		metrics.ConnectionsTotal.WithLabelValues("failed").Inc()
		return false
	}
	for _, roomID := range rooms {
		g.registry.JoinRoom(roomID, c)
	}

	metrics.ConnectionsTotal.WithLabelValues("accepted").Inc()
	metrics.ConnectionsActive.Inc()
	c.logger.Info().
		Str("tenant_id", id.TenantID).
		Int("rooms", len(rooms)).
		Msg("websocket opened")
	return true
}

// readPump feeds inbound frames to the router until the socket fails.
func (g *Gateway) readPump(ctx context.Context, c *Conn) {
	c.ws.SetReadLimit(g.opts.ReadLimitBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if !c.limiter.Allow() {
			c.Enqueue(errorFrame(events.CodeProtocol, "rate limit exceeded"))
			continue
		}

		if reply := g.router.Handle(ctx, c.Identity(), data); reply != nil {
			c.Enqueue(reply)
		}
	}
}

// close tears down the session. Clearing call state is best-effort.
func (g *Gateway) close(ctx context.Context, c *Conn) {
	c.Close()
	g.registry.Unregister(c)
	metrics.ConnectionsActive.Dec()

	if err := g.presence.ClearBusy(ctx, c.UserID()); err != nil {
		c.logger.Warn().Err(err).Msg("failed to clear call state")
	}
	c.logger.Info().Dur("duration", time.Since(c.OpenedAt())).Msg("websocket closed")
}

// reject sends an authentication error frame and closes the socket.
func (g *Gateway) reject(ws *websocket.Conn, err error) {
	defer ws.Close()

	deadline := time.Now().Add(g.opts.WriteTimeout)
	_ = ws.SetWriteDeadline(deadline)
	if werr := ws.WriteMessage(websocket.TextMessage, errorFrame(events.CodeAuthentication, authErrorText(err))); werr != nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed")
	_ = ws.WriteControl(websocket.CloseMessage, msg, deadline)
}

// Shutdown closes every connection with a going-away frame and waits for
// their teardown to finish or ctx to end.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.registry.CloseAll()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func authErrorText(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return "No token provided"
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	default:
		return "Invalid token"
	}
}
