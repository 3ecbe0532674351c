package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
)

// EventSink receives connection lifecycle and protocol events from the hub's
// run loop. Every callback runs on that single goroutine, one event at a
// time, which is what serializes all room and message mutations.
type EventSink interface {
	HandleConnect(connID string)
	HandleEvent(connID, event string, data json.RawMessage)
	HandleDisconnect(connID string)
}

// Envelope is the wire frame: one event name plus its payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type inboundEvent struct {
	connID string
	env    Envelope
}

// Hub owns the connection set and per-room delivery sets, and runs the single
// dispatch loop that all inbound events funnel through.
type Hub struct {
	clients map[string]*Client
	rooms   map[string]map[string]*Client

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundEvent

	sink     EventSink
	upgrader websocket.Upgrader

	mu sync.RWMutex
}

func NewHub(allowedOrigins []string) *Hub {
	allowed := make(map[string]bool, len(allowedOrigins))
	allowAll := false
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundEvent, 256),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return allowAll || allowed[r.Header.Get("Origin")]
			},
		},
	}
}

// SetSink wires the event handler. Must be called before Run.
func (h *Hub) SetSink(sink EventSink) { h.sink = sink }

// Run is the hub's event loop. Register/unregister/inbound are all consumed
// here, so a handler never observes another handler's half-applied state.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.addClient(c)
			h.sink.HandleConnect(c.id)

		case c := <-h.unregister:
			h.removeClient(c)
			h.sink.HandleDisconnect(c.id)

		case ev := <-h.inbound:
			h.sink.HandleEvent(ev.connID, ev.env.Event, ev.env.Data)
		}
	}
}

// ServeWS upgrades the request and registers the connection. The register
// send completes before the pumps start, so HandleConnect always precedes the
// connection's first event.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
		id:   ulid.Make().String(),
		addr: r.RemoteAddr,
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
	log.Printf("Connection %s registered from %s. Total connections: %d", c.id, c.addr, len(h.clients))
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

// dropLocked detaches a client from every map and closes its send channel
// exactly once. Callers hold h.mu.
func (h *Hub) dropLocked(c *Client) {
	if c.closed {
		return
	}
	c.closed = true
	delete(h.clients, c.id)
	for room, set := range h.rooms {
		if _, ok := set[c.id]; ok {
			delete(set, c.id)
			if len(set) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	close(c.send)
	log.Printf("Connection %s unregistered. Total connections: %d", c.id, len(h.clients))
}

// Subscribe adds a connection to a room's delivery set.
func (h *Hub) Subscribe(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*Client)
	}
	h.rooms[room][connID] = c
}

// Unsubscribe removes a connection from a room's delivery set.
func (h *Hub) Unsubscribe(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(h.rooms, room)
	}
}

// SubscriberCount reports how many connections a room's delivery set holds.
func (h *Hub) SubscriberCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ToConn delivers one event to one connection.
func (h *Hub) ToConn(connID, event string, payload any) {
	data, err := marshalEnvelope(event, payload)
	if err != nil {
		log.Printf("Failed to marshal %s event: %v", event, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[connID]; ok {
		h.sendLocked(c, data)
	}
}

// ToRoom fans an event out to every connection in the room's delivery set.
func (h *Hub) ToRoom(room, event string, payload any) {
	h.toRoom(room, "", event, payload)
}

// ToRoomExcept fans out to the room minus one connection, for signals the
// sender already knows about (its own typing).
func (h *Hub) ToRoomExcept(room, exceptConnID, event string, payload any) {
	h.toRoom(room, exceptConnID, event, payload)
}

func (h *Hub) toRoom(room, exceptConnID, event string, payload any) {
	data, err := marshalEnvelope(event, payload)
	if err != nil {
		log.Printf("Failed to marshal %s event: %v", event, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for connID, c := range h.rooms[room] {
		if connID == exceptConnID {
			continue
		}
		h.sendLocked(c, data)
	}
}

// sendLocked queues data for a client, dropping the client when its buffer is
// full. Callers hold h.mu.
func (h *Hub) sendLocked(c *Client, data []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("Connection %s send buffer full, dropping client", c.id)
		h.dropLocked(c)
	}
}

func marshalEnvelope(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
