package repository

import (
	"errors"
	"sync"
	"time"

	"roomchat-backend/models"
)

// MessageRepository stores the bounded per-room history. Histories are
// append-only: the only mutation after Append is the monotonic growth of a
// message's seenBy map.
type MessageRepository interface {
	Append(msg *models.Message) error
	History(room string) []models.Message
	// MarkSeen stamps userID on the message if it is still in history and has
	// no entry for that user yet. A miss on either condition is a no-op, not
	// an error.
	MarkSeen(room, messageID, userID, displayName string, at time.Time) (added bool)
	DeleteRoom(room string)
}

type InMemoryMessageRepo struct {
	mu    sync.RWMutex
	limit int
	byR   map[string][]*models.Message
}

func NewInMemoryMessageRepo(limit int) *InMemoryMessageRepo {
	if limit <= 0 {
		limit = 50
	}
	return &InMemoryMessageRepo{
		limit: limit,
		byR:   make(map[string][]*models.Message),
	}
}

func (r *InMemoryMessageRepo) Append(msg *models.Message) error {
	if msg == nil {
		return errors.New("nil message")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if msg.SeenBy == nil {
		msg.SeenBy = make(map[string]models.SeenRecord)
	}

	history := append(r.byR[msg.Room], msg)
	// FIFO eviction once the retention cap is exceeded
	if len(history) > r.limit {
		history = history[len(history)-r.limit:]
	}
	r.byR[msg.Room] = history
	return nil
}

func (r *InMemoryMessageRepo) History(room string) []models.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.byR[room]
	msgs := make([]models.Message, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, copyMessage(m))
	}
	return msgs
}

func (r *InMemoryMessageRepo) MarkSeen(room, messageID, userID, displayName string, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.byR[room] {
		if m.ID != messageID {
			continue
		}
		if _, seen := m.SeenBy[userID]; seen {
			return false
		}
		m.SeenBy[userID] = models.SeenRecord{DisplayName: displayName, SeenAt: at}
		return true
	}
	// Scrolled out of the bounded window or never existed.
	return false
}

func (r *InMemoryMessageRepo) DeleteRoom(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byR, room)
}

func copyMessage(m *models.Message) models.Message {
	out := *m
	out.SeenBy = make(map[string]models.SeenRecord, len(m.SeenBy))
	for k, v := range m.SeenBy {
		out.SeenBy[k] = v
	}
	return out
}
