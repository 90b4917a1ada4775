package bus

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"guardpost/pkg/logging"
	"guardpost/pkg/models"
)

// AuthFunc validates the credentials presented in the handshake. It returns
// an error when the account is unknown, suspended or claims the wrong role.
type AuthFunc func(ctx context.Context, accountID, role string) error

// AuthRequest is the first message a client must send after connecting
type AuthRequest struct {
	AccountID string   `json:"account_id"`
	Role      string   `json:"role"`
	EventIDs  []string `json:"event_ids,omitempty"`
}

// Handler upgrades HTTP requests and runs the connection lifecycle:
// handshake within the auth timeout, room placement, then read/write pumps.
type Handler struct {
	hub         *Hub
	authTimeout time.Duration
	authFn      AuthFunc
}

// NewHandler creates a bus connection handler
func NewHandler(hub *Hub, authTimeout time.Duration, authFn AuthFunc) *Handler {
	return &Handler{hub: hub, authTimeout: authTimeout, authFn: authFn}
}

// ServeHTTP handles WebSocket upgrades
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := UpgradeHTTP(w, r)
	if err != nil {
		logging.Warnf("bus: upgrade failed: %v", err)
		return
	}

	client, err := h.handshake(r.Context(), conn)
	if err != nil {
		_ = conn.WriteMessage(&Message{
			Type:       "auth:error",
			Payload:    map[string]interface{}{"reason": err.Error()},
			ServerTime: time.Now().UTC(),
		})
		_ = conn.Close()
		return
	}

	go h.readPump(client)
	go h.writePump(client)

	logging.Infof("bus: client connected id=%s account=%s role=%s remote=%s",
		client.ID, client.AccountID, client.Role, conn.RemoteAddr())
}

// handshake reads the auth message, validates it and places the client into
// its rooms. The connection is dropped when the handshake does not complete
// within the configured window.
func (h *Handler) handshake(ctx context.Context, conn *Conn) (*Client, error) {
	conn.SetReadDeadlineOnce(time.Now().Add(h.authTimeout))

	msg, err := conn.ReadMessage()
	if err != nil {
		return nil, errAuth("handshake not completed in time")
	}
	conn.ResetReadDeadline()

	if msg.Type != "auth" {
		return nil, errAuth("first message must be auth")
	}

	req, err := decodeAuthRequest(msg.Payload)
	if err != nil {
		return nil, err
	}

	if h.authFn != nil {
		if err := h.authFn(ctx, req.AccountID, req.Role); err != nil {
			return nil, err
		}
	}

	client := h.hub.NewClient(uuid.New().String(), req.AccountID, req.Role, conn)
	h.hub.Register(client)

	rooms := []string{AccountRoom(req.AccountID), RoleRoom(req.Role)}
	for _, eventID := range req.EventIDs {
		rooms = append(rooms, EventRoom(eventID))
	}
	for _, room := range rooms {
		h.hub.Join(client, room)
	}

	client.SendDirect(&Message{
		Type:       "auth:success",
		Payload:    map[string]interface{}{"client_id": client.ID, "rooms": rooms},
		ServerTime: time.Now().UTC(),
	})

	return client, nil
}

func decodeAuthRequest(payload interface{}) (*AuthRequest, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errAuth("malformed auth payload")
	}

	var req AuthRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, errAuth("malformed auth payload")
	}

	req.AccountID = strings.TrimSpace(req.AccountID)
	req.Role = strings.TrimSpace(req.Role)
	if req.AccountID == "" {
		return nil, errAuth("account_id is required")
	}
	switch req.Role {
	case models.RoleAgent, models.RoleSupervisor, models.RoleAdmin:
	default:
		return nil, errAuth("unknown role")
	}

	return &req, nil
}

type authError string

func errAuth(msg string) error { return authError(msg) }

func (e authError) Error() string { return string(e) }

// readPump consumes inbound messages until the connection drops. A closed
// socket is the normal way a client leaves; no explicit unsubscribe exists.
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hub.Unregister(client)
		_ = client.Conn.Close()
	}()

	for {
		msg, err := client.Conn.ReadMessage()
		if err != nil {
			if !client.Conn.IsClosed() {
				logging.Debugf("bus: client %s read error: %v", client.ID, err)
			}
			return
		}
		h.processMessage(client, msg)
	}
}

// writePump flushes queued messages and keeps the connection alive
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = client.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			if err := client.Conn.WriteMessage(msg); err != nil {
				logging.Debugf("bus: client %s write error: %v", client.ID, err)
				return
			}
		case <-ticker.C:
			if err := client.Conn.Ping(); err != nil {
				return
			}
		}
	}
}

func (h *Handler) processMessage(client *Client, msg *Message) {
	switch msg.Type {
	case "ping":
		client.SendDirect(&Message{Type: "pong", ServerTime: time.Now().UTC()})

	case "subscribe":
		if eventID := payloadEventID(msg.Payload); eventID != "" {
			h.hub.Join(client, EventRoom(eventID))
			client.SendDirect(&Message{
				Type:       "subscribed",
				Payload:    map[string]interface{}{"room": EventRoom(eventID)},
				ServerTime: time.Now().UTC(),
			})
		}

	case "unsubscribe":
		if eventID := payloadEventID(msg.Payload); eventID != "" {
			h.hub.Leave(client, EventRoom(eventID))
			client.SendDirect(&Message{
				Type:       "unsubscribed",
				Payload:    map[string]interface{}{"room": EventRoom(eventID)},
				ServerTime: time.Now().UTC(),
			})
		}

	default:
		logging.Debugf("bus: unknown message type from client %s: %s", client.ID, msg.Type)
	}
}

func payloadEventID(payload interface{}) string {
	data, ok := payload.(map[string]interface{})
	if !ok {
		return ""
	}
	eventID, _ := data["event_id"].(string)
	return strings.TrimSpace(eventID)
}
