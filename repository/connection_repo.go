package repository

import (
	"errors"
	"sync"

	"roomchat-backend/models"
)

var ErrConnectionNotFound = errors.New("connection not found")

// ConnectionRepository is the Connection Registry: one record per live
// transport session, keyed by the connection ID assigned at upgrade time.
type ConnectionRepository interface {
	Add(conn *models.Connection)
	Remove(id string) (*models.Connection, error)
	Find(id string) (*models.Connection, error)
	SetIdentity(id, stableUserID, displayName string) error
	SetRoom(id, room string) error
	FindByUser(stableUserID string) []*models.Connection
	InRoom(room string) []*models.Connection
}

type InMemoryConnectionRepo struct {
	mu   sync.RWMutex
	byID map[string]*models.Connection
}

func NewInMemoryConnectionRepo() *InMemoryConnectionRepo {
	return &InMemoryConnectionRepo{byID: make(map[string]*models.Connection)}
}

func (r *InMemoryConnectionRepo) Add(conn *models.Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[conn.ID] = conn
}

func (r *InMemoryConnectionRepo) Remove(id string) (*models.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byID[id]
	if !ok {
		return nil, ErrConnectionNotFound
	}
	delete(r.byID, id)
	return conn, nil
}

func (r *InMemoryConnectionRepo) Find(id string) (*models.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.byID[id]
	if !ok {
		return nil, ErrConnectionNotFound
	}
	return conn, nil
}

func (r *InMemoryConnectionRepo) SetIdentity(id, stableUserID, displayName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byID[id]
	if !ok {
		return ErrConnectionNotFound
	}
	conn.StableUserID = stableUserID
	conn.DisplayName = displayName
	return nil
}

func (r *InMemoryConnectionRepo) SetRoom(id, room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byID[id]
	if !ok {
		return ErrConnectionNotFound
	}
	conn.CurrentRoom = room
	return nil
}

func (r *InMemoryConnectionRepo) FindByUser(stableUserID string) []*models.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []*models.Connection
	for _, c := range r.byID {
		if c.StableUserID == stableUserID {
			conns = append(conns, c)
		}
	}
	return conns
}

func (r *InMemoryConnectionRepo) InRoom(room string) []*models.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []*models.Connection
	for _, c := range r.byID {
		if c.CurrentRoom == room {
			conns = append(conns, c)
		}
	}
	return conns
}
