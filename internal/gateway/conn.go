package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/limaxs-dev/chat-server/internal/auth"
	"github.com/limaxs-dev/chat-server/internal/crypto"
	"github.com/limaxs-dev/chat-server/internal/metrics"
)

// Options tunes per-connection transport behaviour.
type Options struct {
	NodeID         string
	SendQueueSize  int
	ReadLimitBytes int64
	WriteTimeout   time.Duration
	PongWait       time.Duration
	PingInterval   time.Duration
	FrameRate      float64
	FrameBurst     int
}

// DefaultOptions returns the transport settings used when none are configured.
func DefaultOptions() Options {
	return Options{
		SendQueueSize:  256,
		ReadLimitBytes: 64 * 1024,
		WriteTimeout:   10 * time.Second,
		PongWait:       60 * time.Second,
		PingInterval:   25 * time.Second,
		FrameRate:      20,
		FrameBurst:     40,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = d.SendQueueSize
	}
	if o.ReadLimitBytes <= 0 {
		o.ReadLimitBytes = d.ReadLimitBytes
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.FrameRate <= 0 {
		o.FrameRate = d.FrameRate
	}
	if o.FrameBurst <= 0 {
		o.FrameBurst = d.FrameBurst
	}
	return o
}

// Conn is one client connection. Frames are queued with Enqueue and written
// by a single writer goroutine; the queue is bounded and a connection whose
// queue overflows is closed.
type Conn struct {
	id       string
	nodeID   string
	openedAt time.Time
	identity auth.Identity

	ws      *websocket.Conn
	send    chan []byte
	done    chan struct{}
	limiter *rate.Limiter
	logger  zerolog.Logger

	closeOnce   sync.Once
	closeCode   int
	closeReason string
}

func newConn(ws *websocket.Conn, opts Options, logger zerolog.Logger) *Conn {
	id := crypto.NewConnID()
	return &Conn{
		id:       id,
		nodeID:   opts.NodeID,
		openedAt: time.Now(),
		ws:       ws,
		send:     make(chan []byte, opts.SendQueueSize),
		done:     make(chan struct{}),
		limiter:  rate.NewLimiter(rate.Limit(opts.FrameRate), opts.FrameBurst),
		logger:   logger.With().Str("conn_id", id).Logger(),
	}
}

// ID returns the connection identifier.
func (c *Conn) ID() string { return c.id }

// OpenedAt returns when the connection was accepted.
func (c *Conn) OpenedAt() time.Time { return c.openedAt }

// Identity returns the authenticated session. It is zero before authentication.
func (c *Conn) Identity() auth.Identity { return c.identity }

// UserID returns the authenticated user.
func (c *Conn) UserID() uuid.UUID { return c.identity.UserID }

// Done is closed when the connection starts closing.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) bind(id auth.Identity) {
	c.identity = id
	c.logger = c.logger.With().
		Str("user_id", id.UserID.String()).
		Str("node_id", c.nodeID).
		Logger()
}

// Enqueue queues a frame for delivery. It reports false if the connection is
// closing or its queue was full, in which case the connection is closed.
func (c *Conn) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	case <-c.done:
		return false
	default:
		metrics.OutboundDropped.Inc()
		c.logger.Warn().Int("queue_size", cap(c.send)).Msg("send queue full, closing slow connection")
		c.CloseWith(websocket.CloseTryAgainLater, "send queue overflow")
		return false
	}
}

// Close closes the connection normally.
func (c *Conn) Close() {
	c.CloseWith(websocket.CloseNormalClosure, "")
}

// CloseWith closes the connection with a close code. Frames already queued
// are flushed first. Only the first call has an effect.
func (c *Conn) CloseWith(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}

// writePump owns all writes to the socket.
func (c *Conn) writePump(opts Options) {
	ticker := time.NewTicker(opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame, opts.WriteTimeout); err != nil {
				c.logger.Debug().Err(err).Msg("write failed")
				c.CloseWith(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil, opts.WriteTimeout); err != nil {
				c.logger.Debug().Err(err).Msg("ping failed")
				c.CloseWith(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.done:
			c.flush(opts.WriteTimeout)
			return
		}
	}
}

// flush writes whatever is still queued, then the close frame.
func (c *Conn) flush(timeout time.Duration) {
	if c.closeCode == websocket.CloseAbnormalClosure {
		return
	}
	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame, timeout); err != nil {
				return
			}
		default:
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(timeout))
			return
		}
	}
}

func (c *Conn) write(messageType int, data []byte, timeout time.Duration) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, data)
}
