package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/limaxs-dev/chat-server/internal/events"
	"github.com/limaxs-dev/chat-server/internal/metrics"
)

var (
	errNoRoutingKey  = errors.New("payload has no routing key for its channel")
	errUnknownFamily = errors.New("unknown channel family")
)

// Deliverer hands raw frames to the connections registered on this node.
type Deliverer interface {
	BroadcastRoom(roomID uuid.UUID, frame []byte) int
	SendToUser(userID uuid.UUID, frame []byte) bool
}

// Listener subscribes to every channel family and re-delivers each payload
// to local connections.
type Listener struct {
	client *redis.Client
	local  Deliverer
	logger zerolog.Logger
	ready  chan struct{}
}

// NewListener creates a fanout listener.
func NewListener(client *redis.Client, local Deliverer, logger zerolog.Logger) *Listener {
	return &Listener{
		client: client,
		local:  local,
		logger: logger.With().Str("component", "fanout").Logger(),
		ready:  make(chan struct{}),
	}
}

// Ready is closed once the wildcard subscriptions are confirmed.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// Run consumes broker messages until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	pubsub := l.client.PSubscribe(ctx, Patterns()...)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe: %w", err)
	}
	close(l.ready)
	l.logger.Info().Strs("patterns", Patterns()).Msg("fanout listener subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("fanout listener stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			l.Dispatch(msg.Channel, []byte(msg.Payload))
		}
	}
}

// Dispatch routes one payload received on channel. Failures are logged and
// the payload is dropped.
func (l *Listener) Dispatch(channel string, payload []byte) {
	family := Family(channel)
	metrics.BrokerReceived.WithLabelValues(familyLabel(family)).Inc()

	delivered, err := l.deliver(family, payload)
	if err != nil {
		metrics.BrokerParseFailures.Inc()
		l.logger.Warn().Err(err).Str("channel", channel).Msg("dropping broker payload")
		return
	}
	metrics.FanoutDeliveries.Add(float64(delivered))
}

func (l *Listener) deliver(family string, payload []byte) (int, error) {
	route, err := events.Route(payload)
	if err != nil {
		return 0, err
	}

	switch family {
	case FamilyRoom, FamilyTyping, FamilyPresence:
		if route.RoomID == uuid.Nil {
			return 0, errNoRoutingKey
		}
		return l.local.BroadcastRoom(route.RoomID, payload), nil
	case FamilySignal:
		if route.TargetID == uuid.Nil {
			return 0, errNoRoutingKey
		}
		if l.local.SendToUser(route.TargetID, payload) {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, errUnknownFamily
	}
}
