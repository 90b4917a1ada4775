package bus

import (
	"sync"
	"time"

	"guardpost/pkg/logging"
	"guardpost/pkg/metrics"
)

// Client represents one authenticated bus connection
type Client struct {
	ID        string
	AccountID string
	Role      string
	Conn      *Conn
	Send      chan *Message
	hub       *Hub
}

// room is a fan-out scope. Its queue is drained by exactly one goroutine,
// which assigns the room's sequence numbers: publish order within a room is
// delivery order. Rooms live for the process lifetime so sequence numbers
// never restart while the server is up.
type room struct {
	name    string
	queue   chan *Message
	members map[string]*Client
	seq     uint64
}

// Hub owns the room membership map. All membership mutations go through the
// hub under its lock; producers never touch shared state directly.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]*room

	sendBuffer int
	roomQueue  int

	done    chan struct{}
	wg      sync.WaitGroup
	stopped bool
}

// NewHub creates a hub with the given per-client and per-room buffer sizes
func NewHub(sendBuffer, roomQueue int) *Hub {
	if sendBuffer < 1 {
		sendBuffer = 256
	}
	if roomQueue < 1 {
		roomQueue = 512
	}
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]*room),
		sendBuffer: sendBuffer,
		roomQueue:  roomQueue,
		done:       make(chan struct{}),
	}
}

// NewClient creates a client owned by this hub. The caller registers it once
// the connection is authenticated.
func (h *Hub) NewClient(id, accountID, role string, conn *Conn) *Client {
	return &Client{
		ID:        id,
		AccountID: accountID,
		Role:      role,
		Conn:      conn,
		Send:      make(chan *Message, h.sendBuffer),
		hub:       h,
	}
}

// Register adds an authenticated client to the hub
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		close(client.Send)
		return
	}

	if existing, ok := h.clients[client.ID]; ok {
		h.removeLocked(existing)
	}
	h.clients[client.ID] = client

	metrics.BusConnections.Inc()
	logging.Debugf("bus: client registered id=%s account=%s role=%s total=%d",
		client.ID, client.AccountID, client.Role, len(h.clients))
}

// Unregister removes a client from the hub and every room it joined.
// Safe to call more than once; a client navigating away just closes its
// socket and ends up here.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	h.removeLocked(client)

	metrics.BusConnections.Dec()
	logging.Debugf("bus: client unregistered id=%s account=%s total=%d",
		client.ID, client.AccountID, len(h.clients))
}

func (h *Hub) removeLocked(client *Client) {
	delete(h.clients, client.ID)
	for _, r := range h.rooms {
		delete(r.members, client.ID)
	}
	close(client.Send)
}

// Join places a client into a room, creating the room on first use
func (h *Hub) Join(client *Client, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return
	}
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	h.roomLocked(name).members[client.ID] = client
}

// Leave removes a client from a room
func (h *Hub) Leave(client *Client, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[name]; ok {
		delete(r.members, client.ID)
	}
}

func (h *Hub) roomLocked(name string) *room {
	r, ok := h.rooms[name]
	if !ok {
		r = &room{
			name:    name,
			queue:   make(chan *Message, h.roomQueue),
			members: make(map[string]*Client),
		}
		h.rooms[name] = r
		h.wg.Add(1)
		go h.runRoom(r)
	}
	return r
}

// Publish enqueues a message for a room. Never blocks: a full room queue
// drops the message with a log line, because delivery is best-effort and a
// publish must never stall a producer.
func (h *Hub) Publish(name string, msg *Message) {
	if msg.ServerTime.IsZero() {
		msg.ServerTime = time.Now().UTC()
	}

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	r := h.roomLocked(name)
	h.mu.Unlock()

	select {
	case r.queue <- msg:
		metrics.BusMessagesPublished.WithLabelValues(msg.Type).Inc()
	default:
		logging.Warnf("bus: room %s queue full, dropping %s", name, msg.Type)
		metrics.BusMessagesDropped.Inc()
	}
}

// runRoom is the single dispatcher for one room
func (h *Hub) runRoom(r *room) {
	defer h.wg.Done()

	for {
		select {
		case msg := <-r.queue:
			r.seq++
			out := *msg
			out.Room = r.name
			out.Seq = r.seq
			h.deliver(r, &out)
		case <-h.done:
			return
		}
	}
}

func (h *Hub) deliver(r *room, msg *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, client := range r.members {
		select {
		case client.Send <- msg:
		default:
			logging.Warnf("bus: dropping %s for client %s (send buffer full)", msg.Type, id)
			metrics.BusMessagesDropped.Inc()
		}
	}
}

// SendDirect queues a message for this client only, bypassing room sequencing.
// The hub lock guards against the send channel being closed concurrently by
// Unregister or Stop; a message for a departed client is silently dropped.
func (c *Client) SendDirect(msg *Message) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	if _, ok := c.hub.clients[c.ID]; !ok {
		return
	}

	select {
	case c.Send <- msg:
	default:
		logging.Warnf("bus: dropping direct %s for client %s (send buffer full)", msg.Type, c.ID)
	}
}

// Stop closes every connection and stops all room dispatchers
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	close(h.done)

	for _, client := range h.clients {
		if client.Conn != nil {
			_ = client.Conn.Close()
		}
		close(client.Send)
	}
	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]*room)
	h.mu.Unlock()

	h.wg.Wait()
	logging.Infof("bus: hub stopped")
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of members in a room
func (h *Hub) RoomSize(name string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[name]; ok {
		return len(r.members)
	}
	return 0
}

// Rooms returns the names of the rooms a client is currently in
func (h *Hub) Rooms(client *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var names []string
	for name, r := range h.rooms {
		if _, ok := r.members[client.ID]; ok {
			names = append(names, name)
		}
	}
	return names
}
