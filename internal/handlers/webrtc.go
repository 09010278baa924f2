package handlers

import (
	"net/http"

	"github.com/pion/webrtc/v4"
)

// WebRTCConfigResponse is the peer connection configuration handed to clients.
type WebRTCConfigResponse struct {
	ICEServers []webrtc.ICEServer `json:"iceServers"`
}

// WebRTCConfig returns the ICE servers clients should use for calls.
func (h *Handler) WebRTCConfig(w http.ResponseWriter, r *http.Request) {
	servers := h.opts.ICEServers
	if servers == nil {
		servers = []webrtc.ICEServer{}
	}
	h.JSON(w, http.StatusOK, WebRTCConfigResponse{ICEServers: servers})
}
