// Package realtime fans mutation events out to every websocket client
// subscribed to a board's room.
package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings with this period; must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096

	sendBuffer = 64
)

// Broadcaster is the emission surface the mutation services depend on.
// It is injected at construction so tests can substitute a recorder.
type Broadcaster interface {
	EmitToBoard(boardID, event string, payload any)
}

// Event is the wire envelope for one board mutation.
type Event struct {
	Board   string          `json:"board"`
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Client is one websocket connection joined to a single board room.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	board string
}

// Hub holds the board rooms of one process. Delivery is best-effort: a
// client whose send buffer is full is dropped and must re-fetch on
// reconnect.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Client]struct{})}
}

// Join adds the client to a board room. Joining a room the client is
// already in is a no-op.
func (h *Hub) Join(boardID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[boardID]
	if room == nil {
		room = make(map[*Client]struct{})
		h.rooms[boardID] = room
	}
	room[c] = struct{}{}
}

// Leave removes the client from a board room. Leaving a room the client
// never joined is a no-op.
func (h *Hub) Leave(boardID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[boardID]
	if room == nil {
		return
	}
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, boardID)
	}
}

// RoomSize reports the number of clients joined to a board.
func (h *Hub) RoomSize(boardID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[boardID])
}

// EmitToBoard delivers an event to every client in the board's room on
// this process. When a backplane is in use it wraps the hub and this is
// only called from the subscription loop.
func (h *Hub) EmitToBoard(boardID, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("realtime: marshal payload for %s: %v", event, err)
		return
	}
	message, err := json.Marshal(Event{Board: boardID, Name: event, Payload: raw})
	if err != nil {
		log.Printf("realtime: marshal event %s: %v", event, err)
		return
	}
	h.deliver(boardID, message)
}

func (h *Hub) deliver(boardID string, message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[boardID] {
		select {
		case c.send <- message:
		default:
			// Slow consumer: drop it rather than block the room.
			delete(h.rooms[boardID], c)
			close(c.send)
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and joins the connection to the board's
// room. The caller has already authenticated the user and verified
// board membership.
func ServeWS(hub *Hub, boardID string, w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{hub: hub, conn: conn, send: make(chan []byte, sendBuffer), board: boardID}
	hub.Join(boardID, client)

	go client.writePump()
	go client.readPump()
	return nil
}

// readPump discards inbound frames; clients mutate over HTTP, the
// socket is downstream-only. It exists to service pongs and notice
// disconnects.
func (c *Client) readPump() {
	defer func() {
		c.hub.Leave(c.board, c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("realtime: read error: %v", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
