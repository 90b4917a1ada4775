package events

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"guardpost/pkg/bus"
)

type captureHub struct {
	published []struct {
		room string
		msg  *bus.Message
	}
}

func (h *captureHub) Publish(room string, msg *bus.Message) {
	h.published = append(h.published, struct {
		room string
		msg  *bus.Message
	}{room, msg})
}

type panicHub struct{}

func (panicHub) Publish(string, *bus.Message) { panic("bus is down") }

func TestHubDispatcher_PublishesToEachRoom(t *testing.T) {
	hub := &captureHub{}
	d := NewHubDispatcher(hub)

	d.Dispatch(Event{
		Type:    EventAttendanceCreated,
		Rooms:   []string{bus.EventRoom("e1"), bus.AccountRoom("a1")},
		Payload: map[string]string{"record_id": "r1"},
	})

	assert.Len(t, hub.published, 2)
	assert.Equal(t, bus.EventRoom("e1"), hub.published[0].room)
	assert.Equal(t, bus.AccountRoom("a1"), hub.published[1].room)
	assert.Equal(t, EventAttendanceCreated, hub.published[0].msg.Type)
}

func TestHubDispatcher_NilHubIsSafe(t *testing.T) {
	d := NewHubDispatcher(nil)
	assert.NotPanics(t, func() {
		d.Dispatch(Event{Type: EventAlertNew, Rooms: []string{"event:e1"}})
	})
}

func TestHubDispatcher_ContainsBusPanics(t *testing.T) {
	d := NewHubDispatcher(panicHub{})
	assert.NotPanics(t, func() {
		d.Dispatch(Event{Type: EventAlertNew, Rooms: []string{"event:e1"}})
	})
}

func TestNopDispatcher(t *testing.T) {
	assert.NotPanics(t, func() {
		NopDispatcher{}.Dispatch(Event{Type: EventNotificationNew})
	})
}
