package client

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"roomchat-backend/ws"
)

const (
	initialReconnectDelay = time.Second
	maxReconnectDelay     = 30 * time.Second
)

// Socket moves envelopes between a Session and the server over a websocket,
// reconnecting with backoff when the connection drops. After every
// successful dial the session's Resync replays the cached joins.
type Socket struct {
	url     string
	session *Session

	mu        sync.Mutex
	conn      *websocket.Conn
	reconnect *time.Timer
	delay     time.Duration
	closed    bool
}

func NewSocket(url string) *Socket {
	return &Socket{url: url, delay: initialReconnectDelay}
}

// Bind attaches the session that consumes inbound events. Must be called
// before Connect.
func (s *Socket) Bind(session *Session) { s.session = session }

// Connect dials the server and starts the read loop. A failed dial schedules
// a retry instead of returning an error, so callers can fire and forget.
func (s *Socket) Connect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	if err != nil {
		log.Printf("Dial %s failed: %v", s.url, err)
		s.scheduleReconnect()
		return
	}

	s.mu.Lock()
	// Close may have raced the dial; a closed socket never adopts a fresh
	// connection.
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.delay = initialReconnectDelay
	s.mu.Unlock()

	log.Printf("Connected to %s", s.url)
	s.session.Resync()
	go s.readLoop(conn)
}

// Emit sends one event envelope. Writes are serialized; a write on a dead
// connection is dropped and reported, reconnection handles the rest.
func (s *Socket) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return errors.New("not connected")
	}
	return s.conn.WriteJSON(ws.Envelope{Event: event, Data: data})
}

// Close shuts the transport down for good; no further reconnects.
func (s *Socket) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *Socket) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
			}
			closed := s.closed
			s.mu.Unlock()
			conn.Close()
			if !closed {
				log.Printf("Connection lost: %v", err)
				s.scheduleReconnect()
			}
			return
		}

		var env ws.Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			continue
		}
		if err := s.session.HandleEvent(env.Event, env.Data); err != nil {
			log.Printf("Failed to apply %s event: %v", env.Event, err)
		}
	}
}

// scheduleReconnect arms the retry timer, replacing any pending one rather
// than stacking a second.
func (s *Socket) scheduleReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.reconnect != nil {
		s.reconnect.Stop()
	}
	delay := s.delay
	s.delay *= 2
	if s.delay > maxReconnectDelay {
		s.delay = maxReconnectDelay
	}
	log.Printf("Reconnecting in %v", delay)
	s.reconnect = time.AfterFunc(delay, s.Connect)
}
