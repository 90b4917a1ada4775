package events

import (
	"guardpost/pkg/bus"
	"guardpost/pkg/logging"
)

// Message catalog. Every state change the rest of the system can observe in
// real time is one of these types.
const (
	EventAssignmentCreated = "assignment:created"
	EventAssignmentUpdated = "assignment:updated"
	EventAttendanceCreated = "attendance:created"
	EventAttendanceUpdated = "attendance:updated"
	EventIncidentNew       = "incident:new"
	EventIncidentUpdated   = "incident:updated"
	EventAlertNew          = "alert:new"
	EventAlertResolved     = "alert:resolved"
	EventLocationUpdated   = "location:updated"
	EventNotificationNew   = "notification:new"
)

// Event is a state change bound for one or more rooms
type Event struct {
	Type    string
	Rooms   []string
	Payload interface{}
}

// Dispatcher delivers events to connected clients. Implementations must be
// fire-and-forget: a failed or absent bus never propagates back to producers.
type Dispatcher interface {
	Dispatch(event Event)
}

// HubInterface is the slice of the bus the dispatcher needs
type HubInterface interface {
	Publish(room string, msg *bus.Message)
}

// HubDispatcher sends events through the WebSocket hub
type HubDispatcher struct {
	hub HubInterface
}

// NewHubDispatcher creates a dispatcher backed by the bus hub
func NewHubDispatcher(hub HubInterface) Dispatcher {
	return &HubDispatcher{hub: hub}
}

// Dispatch publishes the event to each of its rooms. Any panic out of the
// bus is contained here: the producer's own work is already committed and
// must not be failed by delivery problems.
func (d *HubDispatcher) Dispatch(event Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Errorf("events: dispatch of %s panicked: %v", event.Type, r)
		}
	}()

	if d.hub == nil {
		logging.Warnf("events: no hub configured, dropping %s", event.Type)
		return
	}

	for _, room := range event.Rooms {
		d.hub.Publish(room, &bus.Message{
			Type:    event.Type,
			Payload: event.Payload,
		})
	}
}

// NopDispatcher discards every event. Used in tests and tools that run the
// services without a bus.
type NopDispatcher struct{}

// Dispatch implements Dispatcher
func (NopDispatcher) Dispatch(Event) {}
