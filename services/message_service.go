package services

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"roomchat-backend/models"
	"roomchat-backend/repository"
)

// MessageService is the Message Log & Delivery component: bounded per-room
// history, room-wide fan-out and per-message seen-state.
type MessageService struct {
	messages repository.MessageRepository
	rooms    repository.RoomRepository
	conns    repository.ConnectionRepository
	hub      Broadcaster
	maxLen   int
}

func NewMessageService(mr repository.MessageRepository, rr repository.RoomRepository, cr repository.ConnectionRepository, hub Broadcaster, maxLen int) *MessageService {
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &MessageService{messages: mr, rooms: rr, conns: cr, hub: hub, maxLen: maxLen}
}

// Send appends the message and fans it out to every connection subscribed to
// the room, including members currently sitting on the room list screen.
// Reaching off-screen subscribers is what keeps their unread counts honest.
// The sender gets the echo too; clients only append on that echo.
func (s *MessageService) Send(connID string, msg models.Message) error {
	if _, err := s.rooms.FindByName(msg.Room); err != nil {
		return ErrRoomNotFound
	}

	msg.Body = strings.TrimSpace(msg.Body)
	if msg.Body == "" {
		return errors.New("empty message body")
	}
	if len(msg.Body) > s.maxLen {
		return errors.New("message too long (max " + strconv.Itoa(s.maxLen) + " characters)")
	}

	// Server owns the ordering timestamp regardless of what the client sent.
	msg.CreatedAt = time.Now()
	// The author's implicit self-seen entry, seeded at creation. It also makes
	// a later messageSeen from the author a natural no-op.
	msg.SeenBy = map[string]models.SeenRecord{
		msg.AuthorID: {DisplayName: msg.AuthorName, SeenAt: msg.CreatedAt},
	}

	if err := s.messages.Append(&msg); err != nil {
		return err
	}

	s.hub.ToRoom(msg.Room, models.EventReceiveMessage, msg)
	return nil
}

// MarkSeen stamps a seen entry and broadcasts the increment so every client's
// copy of the message converges. Idempotent: a message already seen by the
// user, authored by the user, or evicted from the bounded history is a no-op.
func (s *MessageService) MarkSeen(connID string, req models.SeenRequest) error {
	displayName := req.SeenByUserID
	if conn, err := s.conns.Find(connID); err == nil && conn.DisplayName != "" {
		displayName = conn.DisplayName
	}

	now := time.Now()
	if !s.messages.MarkSeen(req.Room, req.MessageID, req.SeenByUserID, displayName, now) {
		return nil
	}

	s.hub.ToRoom(req.Room, models.EventUpdateMessageStatus, models.SeenUpdate{
		MessageID:   req.MessageID,
		Room:        req.Room,
		SeenBy:      req.SeenByUserID,
		DisplayName: displayName,
		SeenAt:      now,
	})
	return nil
}

// History returns the current bounded history for a room.
func (s *MessageService) History(room string) []models.Message {
	return s.messages.History(room)
}
