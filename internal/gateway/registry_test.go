package gateway

import (
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/limaxs-dev/chat-server/internal/auth"
)

func testConn(userID uuid.UUID, queue int) *Conn {
	opts := DefaultOptions()
	opts.SendQueueSize = queue
	c := newConn(nil, opts, zerolog.Nop())
	c.bind(auth.Identity{UserID: userID, Name: "test"})
	return c
}

func drain(c *Conn) []string {
	var frames []string
	for {
		select {
		case f := <-c.send:
			frames = append(frames, string(f))
		default:
			return frames
		}
	}
}

func TestRegistryBroadcastRoom(t *testing.T) {
	r := NewRegistry()
	room := uuid.New()
	a, b, outsider := testConn(uuid.New(), 4), testConn(uuid.New(), 4), testConn(uuid.New(), 4)

	for _, c := range []*Conn{a, b, outsider} {
		r.Register(c)
	}
	r.JoinRoom(room, a)
	r.JoinRoom(room, b)
	r.JoinRoom(room, b)

	assert.Equal(t, 2, r.BroadcastRoom(room, []byte("hello")))
	assert.Equal(t, []string{"hello"}, drain(a))
	assert.Equal(t, []string{"hello"}, drain(b))
	assert.Empty(t, drain(outsider))

	assert.Equal(t, 0, r.BroadcastRoom(uuid.New(), []byte("nobody")))
}

func TestRegistryJoinRoomRequiresRegistration(t *testing.T) {
	r := NewRegistry()
	room := uuid.New()
	c := testConn(uuid.New(), 4)

	r.JoinRoom(room, c)
	assert.Empty(t, r.RoomMembers(room))
}

func TestRegistryLastRegistrationWins(t *testing.T) {
	r := NewRegistry()
	user := uuid.New()
	first, second := testConn(user, 4), testConn(user, 4)

	r.Register(first)
	r.Register(second)
	assert.Equal(t, 2, r.Count())

	assert.True(t, r.SendToUser(user, []byte("direct")))
	assert.Empty(t, drain(first))
	assert.Equal(t, []string{"direct"}, drain(second))

	// Closing the older connection must not drop the newer mapping.
	r.Unregister(first)
	got, ok := r.Lookup(user)
	assert.True(t, ok)
	assert.Same(t, second, got)

	r.Unregister(second)
	_, ok = r.Lookup(user)
	assert.False(t, ok)
	assert.False(t, r.SendToUser(user, []byte("gone")))
}

func TestRegistryUnregisterLeavesEveryRoom(t *testing.T) {
	r := NewRegistry()
	user := uuid.New()
	r1, r2 := uuid.New(), uuid.New()
	c := testConn(user, 4)
	peer := testConn(uuid.New(), 4)

	r.Register(c)
	r.Register(peer)
	r.JoinRoom(r1, c)
	r.JoinRoom(r2, c)
	r.JoinRoom(r1, peer)
	assert.True(t, r.UserInAnyRoom(user))

	r.Unregister(c)

	assert.False(t, r.UserInAnyRoom(user))
	assert.Equal(t, []string{peer.ID()}, r.RoomMembers(r1))
	assert.Empty(t, r.RoomMembers(r2))
	assert.Equal(t, 1, r.Count())
}

func TestEnqueueOverflowClosesConnection(t *testing.T) {
	c := testConn(uuid.New(), 2)

	assert.True(t, c.Enqueue([]byte("1")))
	assert.True(t, c.Enqueue([]byte("2")))
	assert.False(t, c.Enqueue([]byte("3")))

	select {
	case <-c.Done():
	default:
		t.Fatal("connection not closed after overflow")
	}
	assert.Equal(t, websocket.CloseTryAgainLater, c.closeCode)
	assert.False(t, c.Enqueue([]byte("4")))
	assert.Equal(t, []string{"1", "2"}, drain(c))
}

func TestRegistryCloseAll(t *testing.T) {
	r := NewRegistry()
	a, b := testConn(uuid.New(), 1), testConn(uuid.New(), 1)
	r.Register(a)
	r.Register(b)

	r.CloseAll()

	for _, c := range []*Conn{a, b} {
		select {
		case <-c.Done():
		default:
			t.Fatalf("connection %s still open", c.ID())
		}
		assert.Equal(t, websocket.CloseGoingAway, c.closeCode)
	}
}
