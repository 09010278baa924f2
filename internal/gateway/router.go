package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/limaxs-dev/chat-server/internal/auth"
	"github.com/limaxs-dev/chat-server/internal/broker"
	"github.com/limaxs-dev/chat-server/internal/events"
	"github.com/limaxs-dev/chat-server/internal/metrics"
	"github.com/limaxs-dev/chat-server/internal/models"
	"github.com/limaxs-dev/chat-server/internal/store"
)

// Status texts acknowledging frames that have no other reply.
const (
	StatusTyping = "typing_processed"
	StatusSignal = "signal_processed"
	StatusICE    = "ice_processed"
	StatusAck    = "ack_processed"
)

// ReasonUserBusy is sent in CALL_REJECTED when the callee is already in a call.
const ReasonUserBusy = "User is busy"

// MessageStore persists chat messages.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *models.Message) error
}

// CallStateStore tracks which users are in a call.
type CallStateStore interface {
	IsBusy(ctx context.Context, userID uuid.UUID) (bool, error)
	SetBusy(ctx context.Context, userID uuid.UUID, ttl time.Duration) error
}

// Publisher sends envelopes to the broker without waiting for the result.
type Publisher interface {
	PublishAsync(ctx context.Context, channel string, payload []byte)
}

// Router dispatches inbound frames by event tag. Each call returns the
// frame to send back to the sender, or nil.
type Router struct {
	messages    MessageStore
	calls       CallStateStore
	publisher   Publisher
	callBusyTTL time.Duration
	logger      zerolog.Logger
}

// NewRouter creates an event router.
func NewRouter(messages MessageStore, calls CallStateStore, publisher Publisher, callBusyTTL time.Duration, logger zerolog.Logger) *Router {
	if callBusyTTL <= 0 {
		callBusyTTL = store.DefaultCallBusyTTL
	}
	return &Router{
		messages:    messages,
		calls:       calls,
		publisher:   publisher,
		callBusyTTL: callBusyTTL,
		logger:      logger.With().Str("component", "router").Logger(),
	}
}

// Handle processes one raw frame from the sender. Panics are recovered and
// reported as INTERNAL_ERROR.
func (r *Router) Handle(ctx context.Context, sender auth.Identity, raw []byte) (reply []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Str("user_id", sender.UserID.String()).
				Interface("panic", rec).
				Msg("frame handler panicked")
			reply = errorFrame(events.CodeInternal, "Internal error")
		}
	}()

	payload, err := events.Decode(raw)
	if err != nil {
		metrics.FramesReceived.WithLabelValues("invalid").Inc()
		r.logger.Debug().Err(err).Str("user_id", sender.UserID.String()).Msg("rejected frame")
		return errorFrame(events.CodeProtocol, events.ProtocolErrorText(err))
	}
	metrics.FramesReceived.WithLabelValues(string(payload.Event())).Inc()

	switch p := payload.(type) {
	case *events.SendMessageData:
		return r.sendMessage(ctx, sender, p)
	case *events.TypingData:
		return r.typing(ctx, p)
	case *events.SignalSDPData:
		return r.signalSDP(ctx, sender, p)
	case *events.SignalICEData:
		return r.signalICE(ctx, p)
	case *events.AckData:
		return events.StatusBytes(StatusAck)
	default:
		return errorFrame(events.CodeProtocol, events.ProtocolErrorText(events.ErrUnknownEvent))
	}
}

func (r *Router) sendMessage(ctx context.Context, sender auth.Identity, p *events.SendMessageData) []byte {
	if err := p.Validate(); err != nil {
		return errorFrame(events.CodeProtocol, events.ProtocolErrorText(err))
	}

	msg := &models.Message{
		RoomID:      p.RoomID,
		SenderID:    sender.UserID,
		Type:        p.Type,
		ContentText: p.ContentText,
		ContentMeta: p.ContentMeta,
	}
	if err := r.messages.InsertMessage(ctx, msg); err != nil {
		r.logger.Error().Err(err).
			Str("user_id", sender.UserID.String()).
			Str("room_id", p.RoomID.String()).
			Msg("failed to persist message")
		return errorFrame(events.CodePersistence, "Failed to persist message")
	}
	metrics.MessagesPosted.Inc()

	data := events.NewMessageData{
		ID:          msg.ID,
		RoomID:      msg.RoomID,
		SenderID:    msg.SenderID,
		Type:        msg.Type,
		ContentText: msg.ContentText,
		CreatedAt:   msg.CreatedAt,
	}

	// The broadcast and the reply are separate envelopes with their own trace ids.
	r.publish(ctx, broker.RoomChannel(msg.RoomID), data)

	reply, err := events.Encode(data)
	if err != nil {
		return r.internalError(err)
	}
	return reply
}

func (r *Router) typing(ctx context.Context, p *events.TypingData) []byte {
	if err := p.Validate(); err != nil {
		return errorFrame(events.CodeProtocol, events.ProtocolErrorText(err))
	}
	r.publish(ctx, broker.TypingChannel(p.RoomID), events.TypingData{RoomID: p.RoomID, IsTyping: p.IsTyping})
	return events.StatusBytes(StatusTyping)
}

func (r *Router) signalSDP(ctx context.Context, sender auth.Identity, p *events.SignalSDPData) []byte {
	if err := p.Validate(); err != nil {
		return errorFrame(events.CodeProtocol, events.ProtocolErrorText(err))
	}

	if p.IsOffer() {
		busy, err := r.calls.IsBusy(ctx, p.TargetID)
		if err != nil {
			return r.internalError(fmt.Errorf("check call state: %w", err))
		}
		if busy {
			metrics.CallsRejected.Inc()
			rejected, err := events.Encode(events.CallRejectedData{
				CallerID: sender.UserID,
				TargetID: p.TargetID,
				Status:   models.CallBusy,
				Reason:   ReasonUserBusy,
			})
			if err != nil {
				return r.internalError(err)
			}
			return rejected
		}
		if err := r.calls.SetBusy(ctx, sender.UserID, r.callBusyTTL); err != nil {
			return r.internalError(fmt.Errorf("mark caller busy: %w", err))
		}
	}

	r.publish(ctx, broker.UserChannel(p.TargetID), events.SignalSDPData{
		TargetID: p.TargetID,
		Type:     p.Type,
		SDP:      p.SDP,
	})
	return events.StatusBytes(StatusSignal)
}

func (r *Router) signalICE(ctx context.Context, p *events.SignalICEData) []byte {
	if err := p.Validate(); err != nil {
		return errorFrame(events.CodeProtocol, events.ProtocolErrorText(err))
	}
	r.publish(ctx, broker.UserChannel(p.TargetID), *p)
	return events.StatusBytes(StatusICE)
}

// publish wraps p in a fresh envelope and hands it to the broker.
func (r *Router) publish(ctx context.Context, channel string, p events.Payload) {
	payload, err := events.Encode(p)
	if err != nil {
		r.logger.Error().Err(err).Str("channel", channel).Msg("failed to encode broker payload")
		return
	}
	r.publisher.PublishAsync(ctx, channel, payload)
}

func (r *Router) internalError(err error) []byte {
	r.logger.Error().Err(err).Msg("frame handling failed")
	return errorFrame(events.CodeInternal, "Internal error")
}

func errorFrame(code, message string) []byte {
	metrics.ErrorFrames.WithLabelValues(code).Inc()
	return events.ErrorBytes(code, message)
}

