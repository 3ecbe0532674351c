package services

import (
	"sort"
	"sync"

	"roomchat-backend/models"
	"roomchat-backend/repository"
)

// PresenceService tracks the narrow presence signals layered on top of room
// subscription: typing and active viewing. The active-viewer set is kept
// strictly separate from the broadcast-subscription set; collapsing the two
// would break unread-count derivation on the client.
type PresenceService struct {
	conns repository.ConnectionRepository
	hub   Broadcaster

	mu      sync.RWMutex
	viewers map[string]map[string]models.OnlineUser // room -> connID -> viewer
}

func NewPresenceService(cr repository.ConnectionRepository, hub Broadcaster) *PresenceService {
	return &PresenceService{
		conns:   cr,
		hub:     hub,
		viewers: make(map[string]map[string]models.OnlineUser),
	}
}

// Typing rebroadcasts the signal verbatim to the rest of the room. The server
// runs no timeout of its own: the sender owns the eventual isTyping=false.
func (p *PresenceService) Typing(connID string, sig models.TypingSignal) {
	conn, err := p.conns.Find(connID)
	if err != nil {
		return
	}
	p.hub.ToRoomExcept(sig.Room, connID, models.EventUserTyping, models.UserTyping{
		Room:         sig.Room,
		ConnectionID: connID,
		DisplayName:  conn.DisplayName,
		IsTyping:     sig.IsTyping,
	})
}

// EnterView marks the connection as actively on the chat screen for the room.
func (p *PresenceService) EnterView(connID, room string) {
	conn, err := p.conns.Find(connID)
	if err != nil {
		return
	}

	p.mu.Lock()
	if p.viewers[room] == nil {
		p.viewers[room] = make(map[string]models.OnlineUser)
	}
	p.viewers[room][connID] = models.OnlineUser{
		ConnectionID: connID,
		StableUserID: conn.StableUserID,
		DisplayName:  conn.DisplayName,
	}
	p.mu.Unlock()

	p.BroadcastViewers(room)
}

func (p *PresenceService) LeaveView(connID, room string) {
	if p.removeViewer(connID, room) {
		p.BroadcastViewers(room)
	}
}

// DropViewer clears viewer state without a broadcast of its own; callers
// decide whether the room still exists to broadcast to.
func (p *PresenceService) DropViewer(connID, room string) {
	p.removeViewer(connID, room)
}

// Viewers returns the active-viewer snapshot for a room.
func (p *PresenceService) Viewers(room string) []models.OnlineUser {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]models.OnlineUser, 0, len(p.viewers[room]))
	for _, v := range p.viewers[room] {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectionID < out[j].ConnectionID })
	return out
}

// IsViewing reports whether the connection is on the chat screen for room.
func (p *PresenceService) IsViewing(connID, room string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.viewers[room][connID]
	return ok
}

// BroadcastViewers pushes the current active-viewer snapshot to the room.
func (p *PresenceService) BroadcastViewers(room string) {
	p.hub.ToRoom(room, models.EventActiveViewersUpdate, models.ActiveViewersUpdate{
		Room:    room,
		Viewers: p.Viewers(room),
	})
}

func (p *PresenceService) removeViewer(connID, room string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.viewers[room]
	if !ok {
		return false
	}
	if _, ok := set[connID]; !ok {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(p.viewers, room)
	}
	return true
}
