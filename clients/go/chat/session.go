package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/limaxs-dev/chat-server/internal/events"
)

// ErrRejected is returned by Dial when the server refuses the token.
var ErrRejected = errors.New("connection rejected")

// Session is an open event stream.
type Session struct {
	ws *websocket.Conn
	mu sync.Mutex // serializes writes

	// Presence is the PRESENCE frame received when the session opened.
	Presence events.PresenceData
}

// Dial opens the WebSocket and waits for the server's PRESENCE frame.
func (c *Client) Dial(ctx context.Context) (*Session, error) {
	target, err := c.socketURL()
	if err != nil {
		return nil, err
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.BaseURL, err)
	}

	s := &Session{ws: ws}
	frame, err := s.Next(ctx)
	if err != nil {
		ws.Close()
		return nil, err
	}
	if frame.Code != "" {
		ws.Close()
		return nil, fmt.Errorf("%w: %s (%s)", ErrRejected, frame.Error, frame.Code)
	}
	if frame.Event != events.Presence {
		ws.Close()
		return nil, fmt.Errorf("expected PRESENCE, got %q", frame.Event)
	}
	if err := frame.DecodeData(&s.Presence); err != nil {
		ws.Close()
		return nil, err
	}
	return s, nil
}

// Next blocks for the next server frame. The context deadline, if any,
// bounds the read.
func (s *Session) Next(ctx context.Context) (events.Frame, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := s.ws.SetReadDeadline(deadline); err != nil {
		return events.Frame{}, err
	}

	_, data, err := s.ws.ReadMessage()
	if err != nil {
		return events.Frame{}, err
	}
	return events.ParseFrame(data)
}

// Send wraps a payload in an envelope and writes it.
func (s *Session) Send(p events.Payload) error {
	data, err := json.Marshal(events.New(p))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.WriteMessage(websocket.TextMessage, data)
}

// SendMessage posts a text message to a room.
func (s *Session) SendMessage(roomID uuid.UUID, text string) error {
	return s.Send(events.SendMessageData{RoomID: roomID, Type: "TEXT", ContentText: text})
}

// SetTyping announces a typing indicator in a room.
func (s *Session) SetTyping(roomID uuid.UUID, typing bool) error {
	return s.Send(events.TypingData{RoomID: roomID, IsTyping: typing})
}

// SendDescription relays an SDP offer or answer to another user.
func (s *Session) SendDescription(targetID uuid.UUID, desc webrtc.SessionDescription) error {
	return s.Send(events.SignalSDPData{TargetID: targetID, Type: desc.Type.String(), SDP: desc.SDP})
}

// Candidate relays an ICE candidate to another user.
func (s *Session) Candidate(targetID uuid.UUID, candidate webrtc.ICECandidateInit) error {
	data, err := events.NewSignalICE(targetID, candidate)
	if err != nil {
		return err
	}
	return s.Send(data)
}

// Close sends a normal close frame and closes the socket.
func (s *Session) Close() error {
	s.mu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.mu.Unlock()
	return s.ws.Close()
}
