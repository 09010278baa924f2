// Package events defines the WebSocket envelope and its payload variants.
//
// Every frame exchanged with a client, and every payload carried by the
// broker, is an Envelope: {"event": tag, "traceId": uuid, "data": payload}.
// The payload shape is selected by the tag.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Event is the envelope tag.
type Event string

const (
	SendMsg      Event = "SEND_MSG"
	NewMessage   Event = "NEW_MESSAGE"
	Typing       Event = "TYPING"
	SignalSDP    Event = "SIGNAL_SDP"
	SignalICE    Event = "SIGNAL_ICE"
	CallRejected Event = "CALL_REJECTED"
	Presence     Event = "PRESENCE"
	Ack          Event = "ACK"
)

var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrUnknownEvent      = errors.New("unknown event")
	ErrMissingField      = errors.New("missing required field")
)

// Payload is implemented by every envelope data variant.
type Payload interface {
	Event() Event
}

// Envelope is the uniform wrapper of every frame.
type Envelope struct {
	Event   Event     `json:"event"`
	TraceID uuid.UUID `json:"traceId"`
	Data    Payload   `json:"data"`
}

// New wraps a payload in an envelope with a fresh trace id.
func New(p Payload) Envelope {
	return Envelope{Event: p.Event(), TraceID: uuid.New(), Data: p}
}

// Encode wraps and serializes a payload in one step.
func Encode(p Payload) ([]byte, error) {
	return json.Marshal(New(p))
}

// SendMessageData is sent by a client to post a chat message.
type SendMessageData struct {
	RoomID      uuid.UUID       `json:"roomId"`
	Type        string          `json:"type"`
	ContentText string          `json:"contentText"`
	ContentMeta json.RawMessage `json:"contentMeta,omitempty"`
}

func (SendMessageData) Event() Event { return SendMsg }

// NewMessageData announces a persisted message.
type NewMessageData struct {
	ID          uuid.UUID `json:"id"`
	RoomID      uuid.UUID `json:"roomId"`
	SenderID    uuid.UUID `json:"senderId"`
	Type        string    `json:"type"`
	ContentText string    `json:"contentText"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (NewMessageData) Event() Event { return NewMessage }

// TypingData is a typing indicator for a room.
type TypingData struct {
	RoomID   uuid.UUID `json:"roomId"`
	IsTyping bool      `json:"isTyping"`
}

func (TypingData) Event() Event { return Typing }

// SignalSDPData relays an SDP offer or answer to a peer.
type SignalSDPData struct {
	TargetID uuid.UUID `json:"targetId"`
	Type     string    `json:"type"`
	SDP      string    `json:"sdp"`
}

func (SignalSDPData) Event() Event { return SignalSDP }

// IsOffer reports whether the description starts a call. The wire value is
// the lowercase "offer"; the busy check depends on it.
func (d SignalSDPData) IsOffer() bool {
	return d.Type == webrtc.SDPTypeOffer.String()
}

// SignalICEData relays an ICE candidate to a peer. sdpMid and sdpMLineIndex
// are carried as received.
type SignalICEData struct {
	TargetID      uuid.UUID       `json:"targetId"`
	Candidate     string          `json:"candidate"`
	SDPMid        json.RawMessage `json:"sdpMid,omitempty"`
	SDPMLineIndex json.RawMessage `json:"sdpMLineIndex,omitempty"`
}

// NewSignalICE builds the relay payload for a local candidate.
func NewSignalICE(targetID uuid.UUID, c webrtc.ICECandidateInit) (SignalICEData, error) {
	d := SignalICEData{TargetID: targetID, Candidate: c.Candidate}
	if c.SDPMid != nil {
		mid, err := json.Marshal(*c.SDPMid)
		if err != nil {
			return SignalICEData{}, err
		}
		d.SDPMid = mid
	}
	if c.SDPMLineIndex != nil {
		idx, err := json.Marshal(*c.SDPMLineIndex)
		if err != nil {
			return SignalICEData{}, err
		}
		d.SDPMLineIndex = idx
	}
	return d, nil
}

func (SignalICEData) Event() Event { return SignalICE }

// CallRejectedData tells a caller their offer was not forwarded.
type CallRejectedData struct {
	CallerID uuid.UUID `json:"callerId"`
	TargetID uuid.UUID `json:"targetId"`
	Status   string    `json:"status"`
	Reason   string    `json:"reason"`
}

func (CallRejectedData) Event() Event { return CallRejected }

// PresenceData reports a user's online status.
type PresenceData struct {
	UserID   uuid.UUID `json:"userId"`
	UserName string    `json:"userName"`
	Status   string    `json:"status"`
}

func (PresenceData) Event() Event { return Presence }

// AckData acknowledges receipt of a frame.
type AckData struct {
	MessageID string `json:"messageId,omitempty"`
}

func (AckData) Event() Event { return Ack }

type rawEnvelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Decode parses an inbound frame into its tagged payload variant.
func Decode(raw []byte) (Payload, error) {
	var env rawEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	var p Payload
	switch env.Event {
	case SendMsg:
		p = &SendMessageData{}
	case Typing:
		p = &TypingData{}
	case SignalSDP:
		p = &SignalSDPData{}
	case SignalICE:
		p = &SignalICEData{}
	case Ack:
		p = &AckData{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(env.Data, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return p, nil
}

// Routing holds the keys the fanout listener uses to find local recipients.
type Routing struct {
	Event    Event
	RoomID   uuid.UUID
	TargetID uuid.UUID
}

// Route extracts the routing keys of a broker payload without decoding the
// full variant.
func Route(raw []byte) (Routing, error) {
	var env struct {
		Event Event `json:"event"`
		Data  *struct {
			RoomID   *uuid.UUID `json:"roomId"`
			TargetID *uuid.UUID `json:"targetId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return Routing{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Data == nil {
		return Routing{}, fmt.Errorf("%w: data", ErrMissingField)
	}

	r := Routing{Event: env.Event}
	if env.Data.RoomID != nil {
		r.RoomID = *env.Data.RoomID
	}
	if env.Data.TargetID != nil {
		r.TargetID = *env.Data.TargetID
	}
	return r, nil
}

// FieldError reports a required payload field that was absent.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string { return e.Field + " required" }

func (e *FieldError) Is(target error) bool { return target == ErrMissingField }

// Validate checks the fields SEND_MSG cannot be processed without.
func (d *SendMessageData) Validate() error {
	if d.RoomID == uuid.Nil {
		return &FieldError{Field: "roomId"}
	}
	return nil
}

// Validate checks the fields TYPING cannot be processed without.
func (d *TypingData) Validate() error {
	if d.RoomID == uuid.Nil {
		return &FieldError{Field: "roomId"}
	}
	return nil
}

// Validate checks the fields SIGNAL_SDP cannot be processed without.
func (d *SignalSDPData) Validate() error {
	if d.TargetID == uuid.Nil {
		return &FieldError{Field: "targetId"}
	}
	if d.Type == "" {
		return &FieldError{Field: "type"}
	}
	return nil
}

// Validate checks the fields SIGNAL_ICE cannot be processed without.
func (d *SignalICEData) Validate() error {
	if d.TargetID == uuid.Nil {
		return &FieldError{Field: "targetId"}
	}
	if d.Candidate == "" {
		return &FieldError{Field: "candidate"}
	}
	return nil
}

// Frame is a server frame with its payload left undecoded. Error and status
// frames populate the flat fields instead of Event.
type Frame struct {
	Event   Event           `json:"event,omitempty"`
	TraceID uuid.UUID       `json:"traceId"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"`
	Status  string          `json:"status,omitempty"`
}

// ParseFrame decodes a server frame.
func ParseFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return f, nil
}

// DecodeData unmarshals the frame payload into v.
func (f Frame) DecodeData(v any) error {
	return json.Unmarshal(f.Data, v)
}
