package repository

import (
	"errors"
	"sync"
	"time"

	"roomchat-backend/models"
)

var (
	ErrRoomExists   = errors.New("room name already exists")
	ErrRoomNotFound = errors.New("room not found")
)

// RoomRepository is the Room Directory's storage. Active rooms and rooms in
// deletion limbo live in separate maps so a deleted name never shadows a
// create and a join can never land in a dead room.
type RoomRepository interface {
	Create(room *models.Room) error
	FindByName(name string) (*models.Room, error)
	FindDeleted(name string) (*models.Room, error)
	List() []*models.Room
	Delete(name string) error

	AddMember(name, userID string) error
	RemoveMember(name, userID string) (remaining int, err error)
	IsMember(name, userID string) bool
	Members(name string) []string
	RemoveDeletedMember(name, userID string) (remaining int, err error)

	AdjustLive(name string, delta int) (int, error)
	MarkDeleted(name, byName string, at time.Time) error
	PurgeDeleted(name string)
}

type InMemoryRoomRepo struct {
	mu      sync.RWMutex
	rooms   map[string]*models.Room
	deleted map[string]*models.Room
}

func NewInMemoryRoomRepo() *InMemoryRoomRepo {
	return &InMemoryRoomRepo{
		rooms:   make(map[string]*models.Room),
		deleted: make(map[string]*models.Room),
	}
}

func (r *InMemoryRoomRepo) Create(room *models.Room) error {
	if room == nil || room.Name == "" {
		return errors.New("room name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[room.Name]; ok {
		return ErrRoomExists
	}
	if room.Members == nil {
		room.Members = make(map[string]bool)
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now()
	}
	r.rooms[room.Name] = room
	return nil
}

func (r *InMemoryRoomRepo) FindByName(name string) (*models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[name]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

func (r *InMemoryRoomRepo) FindDeleted(name string) (*models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.deleted[name]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

func (r *InMemoryRoomRepo) List() []*models.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]*models.Room, 0, len(r.rooms))
	for _, v := range r.rooms {
		rooms = append(rooms, v)
	}
	return rooms
}

func (r *InMemoryRoomRepo) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[name]; !ok {
		return ErrRoomNotFound
	}
	delete(r.rooms, name)
	return nil
}

func (r *InMemoryRoomRepo) AddMember(name, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[name]
	if !ok {
		return ErrRoomNotFound
	}
	room.Members[userID] = true
	return nil
}

func (r *InMemoryRoomRepo) RemoveMember(name, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[name]
	if !ok {
		return 0, ErrRoomNotFound
	}
	delete(room.Members, userID)
	return len(room.Members), nil
}

func (r *InMemoryRoomRepo) IsMember(name, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[name]
	return ok && room.Members[userID]
}

func (r *InMemoryRoomRepo) Members(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[name]
	if !ok {
		if room, ok = r.deleted[name]; !ok {
			return nil
		}
	}
	members := make([]string, 0, len(room.Members))
	for uid := range room.Members {
		members = append(members, uid)
	}
	return members
}

func (r *InMemoryRoomRepo) RemoveDeletedMember(name, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.deleted[name]
	if !ok {
		return 0, ErrRoomNotFound
	}
	delete(room.Members, userID)
	return len(room.Members), nil
}

func (r *InMemoryRoomRepo) AdjustLive(name string, delta int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[name]
	if !ok {
		return 0, ErrRoomNotFound
	}
	room.LiveConnections += delta
	if room.LiveConnections < 0 {
		room.LiveConnections = 0
	}
	return room.LiveConnections, nil
}

// MarkDeleted moves a room from the active map into deletion limbo.
func (r *InMemoryRoomRepo) MarkDeleted(name, byName string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[name]
	if !ok {
		return ErrRoomNotFound
	}
	room.Deletion = &models.RoomDeletion{DeletedByName: byName, DeletedAt: at}
	room.LiveConnections = 0
	delete(r.rooms, name)
	r.deleted[name] = room
	return nil
}

func (r *InMemoryRoomRepo) PurgeDeleted(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.deleted, name)
}
