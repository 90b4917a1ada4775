package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardpost/pkg/models"
)

func recvMessage(t *testing.T, c *Client) *Message {
	t.Helper()
	select {
	case msg := <-c.Send:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message on client %s", c.ID)
		return nil
	}
}

func assertNoMessage(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.Send:
		t.Fatalf("unexpected message %s in room %s", msg.Type, msg.Room)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_RoomIsolation(t *testing.T) {
	hub := NewHub(16, 16)
	defer hub.Stop()

	a := hub.NewClient("c1", "acc-1", models.RoleSupervisor, nil)
	b := hub.NewClient("c2", "acc-2", models.RoleSupervisor, nil)
	hub.Register(a)
	hub.Register(b)
	hub.Join(a, EventRoom("A"))
	hub.Join(b, EventRoom("B"))

	hub.Publish(EventRoom("A"), &Message{Type: "attendance:created"})

	msg := recvMessage(t, a)
	assert.Equal(t, "attendance:created", msg.Type)
	assert.Equal(t, EventRoom("A"), msg.Room)

	// A subscriber of event:B never sees event:A traffic
	assertNoMessage(t, b)
}

func TestHub_PerRoomSequenceAndOrder(t *testing.T) {
	hub := NewHub(64, 64)
	defer hub.Stop()

	c := hub.NewClient("c1", "acc-1", models.RoleAdmin, nil)
	hub.Register(c)
	hub.Join(c, EventRoom("E"))

	types := []string{"assignment:created", "attendance:created", "attendance:updated", "alert:new", "alert:resolved"}
	for _, typ := range types {
		hub.Publish(EventRoom("E"), &Message{Type: typ})
	}

	for i, typ := range types {
		msg := recvMessage(t, c)
		assert.Equal(t, typ, msg.Type, "publish order must be preserved within a room")
		assert.Equal(t, uint64(i+1), msg.Seq, "sequence must increase by one per message")
		assert.False(t, msg.ServerTime.IsZero())
	}
}

func TestHub_SequenceContinuesAcrossMembershipChanges(t *testing.T) {
	hub := NewHub(16, 16)
	defer hub.Stop()

	first := hub.NewClient("c1", "acc-1", models.RoleAgent, nil)
	hub.Register(first)
	hub.Join(first, EventRoom("E"))

	hub.Publish(EventRoom("E"), &Message{Type: "location:updated"})
	require.Equal(t, uint64(1), recvMessage(t, first).Seq)

	hub.Unregister(first)

	// Messages published with no members still consume sequence numbers, so
	// a rejoining client can detect the gap and trigger a re-sync.
	hub.Publish(EventRoom("E"), &Message{Type: "location:updated"})

	second := hub.NewClient("c2", "acc-1", models.RoleAgent, nil)
	hub.Register(second)
	hub.Join(second, EventRoom("E"))

	require.Eventually(t, func() bool {
		hub.Publish(EventRoom("E"), &Message{Type: "location:updated"})
		select {
		case msg := <-second.Send:
			return msg.Seq >= 3
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_UnregisterLeavesAllRooms(t *testing.T) {
	hub := NewHub(16, 16)
	defer hub.Stop()

	c := hub.NewClient("c1", "acc-1", models.RoleAgent, nil)
	hub.Register(c)
	hub.Join(c, EventRoom("E"))
	hub.Join(c, AccountRoom("acc-1"))
	hub.Join(c, RoleRoom(models.RoleAgent))

	assert.Equal(t, 1, hub.RoomSize(EventRoom("E")))
	assert.Len(t, hub.Rooms(c), 3)

	hub.Unregister(c)

	assert.Equal(t, 0, hub.ClientCount())
	assert.Equal(t, 0, hub.RoomSize(EventRoom("E")))
	assert.Equal(t, 0, hub.RoomSize(AccountRoom("acc-1")))

	// Publishing after the disconnect must not panic or block
	hub.Publish(EventRoom("E"), &Message{Type: "alert:new"})

	// Double unregister is a no-op
	hub.Unregister(c)
}

func TestHub_SlowClientDoesNotBlockPublish(t *testing.T) {
	hub := NewHub(1, 4)
	defer hub.Stop()

	c := hub.NewClient("c1", "acc-1", models.RoleAgent, nil)
	hub.Register(c)
	hub.Join(c, EventRoom("E"))

	// Nobody drains c.Send; the hub must drop rather than stall
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			hub.Publish(EventRoom("E"), &Message{Type: "location:updated"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow client")
	}
}

func TestHub_SendDirectAfterDeparture(t *testing.T) {
	hub := NewHub(16, 16)

	c := hub.NewClient("c1", "acc-1", models.RoleAgent, nil)
	hub.Register(c)

	c.SendDirect(&Message{Type: "pong"})
	assert.Equal(t, "pong", recvMessage(t, c).Type)

	// A direct send racing the channel close must drop the message, not panic
	hub.Unregister(c)
	c.SendDirect(&Message{Type: "pong"})

	d := hub.NewClient("c2", "acc-2", models.RoleAgent, nil)
	hub.Register(d)
	hub.Stop()
	d.SendDirect(&Message{Type: "pong"})
}

func TestHub_RegisterReplacesExistingClientID(t *testing.T) {
	hub := NewHub(16, 16)
	defer hub.Stop()

	first := hub.NewClient("c1", "acc-1", models.RoleAgent, nil)
	hub.Register(first)
	second := hub.NewClient("c1", "acc-1", models.RoleAgent, nil)
	hub.Register(second)

	assert.Equal(t, 1, hub.ClientCount())

	// The replaced client's channel is closed
	_, open := <-first.Send
	assert.False(t, open)
}
