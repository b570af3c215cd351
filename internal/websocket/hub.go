// Package websocket pushes RBAC change events to connected admin clients.
// When a role's permission matrix is saved, the back-office sessions holding
// that role receive a permissions.updated event and drop their cached
// permission map instead of waiting out the cache TTL.
package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"amap/internal/rbac"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for dev simplicity
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Event types pushed to clients
const (
	EventPermissionsUpdated = "permissions.updated"
)

// Event is the wire format for RBAC notifications.
type Event struct {
	Type string `json:"type"`
	Role string `json:"role,omitempty"`
}

// Client is one connected back-office session. Role is taken from the token
// at upgrade time and decides which permission events the client receives.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	Role string
}

// Hub tracks connected clients by role and fans out RBAC change events.
// A permissions.updated event for role X goes to the sessions holding X and
// to superuser sessions (whose role-management screens display every matrix);
// everyone else is left alone.
type Hub struct {
	clients    map[*Client]bool
	events     chan Event
	register   chan *Client
	unregister chan *Client
	mu         sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		events:     make(chan Event, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// PermissionsUpdated queues a permissions.updated event for a role.
// Satisfies the role service's ChangeNotifier. Non-blocking: if the hub is
// not running or its queue is full, the event is dropped rather than
// stalling the matrix save; the cache TTL still bounds staleness.
func (h *Hub) PermissionsUpdated(roleName string) {
	select {
	case h.events <- Event{Type: EventPermissionsUpdated, Role: roleName}:
	default:
	}
}

// Run is the dispatch loop. It owns the client set; register/unregister and
// event delivery are serialized here.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("websocket: client connected (role=%s)", client.Role)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Println("websocket: client disconnected")
			}
			h.mu.Unlock()
		case event := <-h.events:
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			h.mu.Lock()
			for client := range h.clients {
				if !h.wants(client, event) {
					continue
				}
				select {
				case client.send <- payload:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) wants(client *Client, event Event) bool {
	if event.Type != EventPermissionsUpdated || event.Role == "" {
		return true
	}
	return client.Role == event.Role || client.Role == rbac.SuperuserRole
}

func (c *Client) writePump() {
	defer func() {
		_ = c.conn.Close()
	}()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()
	for {
		// Just reading to keep the connection alive
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket: read error: %v", err)
			}
			break
		}
	}
}

// ServeWs upgrades an authenticated back-office session to a websocket.
func ServeWs(hub *Hub, c *gin.Context, secret []byte) {
	// Authenticate via token query param; cookies are not available to
	// the browser's WebSocket constructor in a cross-origin setup.
	tokenString := c.Query("token")
	if tokenString == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	// Only sessions with some back-office role listen for RBAC events.
	role, _ := claims["role"].(string)
	if role == "" {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Println("websocket: upgrade failed:", err)
		return
	}

	client := &Client{hub: hub, conn: conn, send: make(chan []byte, 16), Role: role}
	hub.register <- client

	go client.writePump()
	go client.readPump()
}
