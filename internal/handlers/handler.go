package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/pion/webrtc/v4"

	"github.com/limaxs-dev/chat-server/internal/store"
)

// ConnectionCounter reports how many WebSocket sessions this node holds.
type ConnectionCounter interface {
	Count() int
}

// Options carries the node details the handlers report.
type Options struct {
	NodeID      string
	Connections ConnectionCounter
	ICEServers  []webrtc.ICEServer
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db    store.DataStore
	redis *store.RedisStore
	opts  Options
}

// NewHandler creates a new Handler with the given stores.
func NewHandler(db store.DataStore, redis *store.RedisStore, opts Options) *Handler {
	return &Handler{db: db, redis: redis, opts: opts}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
