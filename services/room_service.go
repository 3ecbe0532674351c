package services

import (
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"roomchat-backend/models"
	"roomchat-backend/repository"
)

// RoomService is the Room Directory: room lifecycle, permanent membership and
// live-connection bookkeeping. All event-driven entry points run on the hub's
// single dispatch goroutine, so each operation completes atomically relative
// to every other one.
type RoomService struct {
	rooms    repository.RoomRepository
	conns    repository.ConnectionRepository
	messages repository.MessageRepository
	presence *PresenceService
	hub      Broadcaster
}

func NewRoomService(rr repository.RoomRepository, cr repository.ConnectionRepository, mr repository.MessageRepository, ps *PresenceService, hub Broadcaster) *RoomService {
	return &RoomService{rooms: rr, conns: cr, messages: mr, presence: ps, hub: hub}
}

// Create registers a new room and immediately joins the caller to it. A
// caller-supplied name that is already active fails; a generated name is
// retried until the directory lookup misses.
func (s *RoomService) Create(connID string, req models.CreateRoomRequest) error {
	name := strings.TrimSpace(req.DesiredName)
	if name != "" {
		if _, err := s.rooms.FindByName(name); err == nil {
			return ErrRoomNameTaken
		}
	} else {
		name = s.generateRoomName()
	}

	var hash []byte
	if req.Password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		hash = h
	}

	room := &models.Room{
		Name:         name,
		PasswordHash: hash,
		CreatorID:    req.StableUserID,
		Members:      map[string]bool{req.StableUserID: true},
		CreatedAt:    time.Now(),
	}
	if err := s.rooms.Create(room); err != nil {
		if errors.Is(err, repository.ErrRoomExists) {
			return ErrRoomNameTaken
		}
		return err
	}
	log.Printf("Room %q created by %s", name, req.StableUserID)

	return s.Join(connID, models.JoinRoomRequest{
		Room:         name,
		DisplayName:  req.DisplayName,
		Password:     req.Password,
		StableUserID: req.StableUserID,
	})
}

// Join admits a connection into a room. Existing members skip the password
// check entirely, which is what makes silent rejoin-after-reconnect work.
func (s *RoomService) Join(connID string, req models.JoinRoomRequest) error {
	room, err := s.rooms.FindByName(req.Room)
	if err != nil {
		// A member who was offline when the creator deleted the room learns of
		// the deletion on their rejoin attempt, not as an error; the dismissal
		// flow takes it from there.
		if limbo, lerr := s.rooms.FindDeleted(req.Room); lerr == nil && limbo.Members[req.StableUserID] {
			notice := models.RoomDeletedNotice{Room: req.Room}
			if limbo.Deletion != nil {
				notice.DeletedBy = limbo.Deletion.DeletedByName
				notice.DeletedAt = limbo.Deletion.DeletedAt
			}
			s.hub.ToConn(connID, models.EventRoomDeletedByCreator, notice)
			return nil
		}
		return ErrRoomNotFound
	}

	if !s.rooms.IsMember(req.Room, req.StableUserID) {
		if room.PasswordHash != nil {
			if bcrypt.CompareHashAndPassword(room.PasswordHash, []byte(req.Password)) != nil {
				return ErrIncorrectPassword
			}
		}
		if err := s.rooms.AddMember(req.Room, req.StableUserID); err != nil {
			return ErrRoomNotFound
		}
	}

	// A connection lives in at most one room; switching rooms implies a
	// transient leave of the previous one.
	if conn, err := s.conns.Find(connID); err == nil && conn.CurrentRoom != "" && conn.CurrentRoom != req.Room {
		s.LeaveTransient(connID, conn.CurrentRoom)
	}

	if err := s.conns.SetIdentity(connID, req.StableUserID, req.DisplayName); err != nil {
		// Connection vanished mid-operation; membership above stands.
		return nil
	}
	s.conns.SetRoom(connID, req.Room)
	s.hub.Subscribe(connID, req.Room)
	s.rooms.AdjustLive(req.Room, 1)

	online := OnlineUsers(s.conns, req.Room)
	s.hub.ToConn(connID, models.EventJoinSuccess, models.JoinSuccess{
		RoomName:    req.Room,
		IsCreator:   room.CreatorID == req.StableUserID,
		OnlineUsers: online,
	})
	// Full bounded history goes out before any live broadcast can reach the
	// joiner; per-connection delivery order is preserved by the transport.
	s.hub.ToConn(connID, models.EventLoadHistory, models.HistoryPayload{
		Room:     req.Room,
		Messages: s.messages.History(req.Room),
	})
	s.hub.ToRoom(req.Room, models.EventRoomUsers, models.RoomUsers{Room: req.Room, Users: online})
	s.presence.BroadcastViewers(req.Room)

	log.Printf("Connection %s joined room %q as %s (%s)", connID, req.Room, req.DisplayName, req.StableUserID)
	return nil
}

// LeaveTransient drops the live subscription but keeps permanent membership,
// so the user keeps receiving nothing but remains able to rejoin silently.
func (s *RoomService) LeaveTransient(connID, roomName string) error {
	conn, err := s.conns.Find(connID)
	if err != nil || conn.CurrentRoom != roomName {
		return nil
	}

	s.hub.Unsubscribe(connID, roomName)
	s.conns.SetRoom(connID, "")
	live, adjErr := s.rooms.AdjustLive(roomName, -1)
	s.presence.DropViewer(connID, roomName)

	// The last permanent member may already be gone while this connection kept
	// the room alive; once it detaches too, the room is garbage.
	if adjErr == nil && live <= 0 && len(s.rooms.Members(roomName)) == 0 {
		s.destroyRoom(roomName)
		return nil
	}

	s.hub.ToRoom(roomName, models.EventRoomUsers, models.RoomUsers{
		Room:  roomName,
		Users: OnlineUsers(s.conns, roomName),
	})
	return nil
}

// LeavePermanently removes the user from the member set. The room is garbage
// once it has neither members nor live connections.
func (s *RoomService) LeavePermanently(connID string, req models.LeaveRoomPermanentlyRequest) error {
	room, err := s.rooms.FindByName(req.Room)
	if err != nil {
		return ErrRoomNotFound
	}

	remaining, err := s.rooms.RemoveMember(req.Room, req.StableUserID)
	if err != nil {
		return ErrRoomNotFound
	}

	if conn, err := s.conns.Find(connID); err == nil && conn.CurrentRoom == req.Room {
		s.hub.Unsubscribe(connID, req.Room)
		s.conns.SetRoom(connID, "")
		s.rooms.AdjustLive(req.Room, -1)
		s.presence.DropViewer(connID, req.Room)
	}

	s.hub.ToConn(connID, models.EventLeftRoomPermanently, models.RoomNotice{Room: req.Room})

	if remaining == 0 && room.LiveConnections <= 0 {
		s.destroyRoom(req.Room)
		return nil
	}

	s.hub.ToRoom(req.Room, models.EventRoomUsers, models.RoomUsers{
		Room:  req.Room,
		Users: OnlineUsers(s.conns, req.Room),
	})
	return nil
}

// DeleteAsCreator force-tears-down a room independent of membership. The room
// moves into deletion limbo until every remaining member has dismissed it.
// Creator identity is taken from the request as supplied; there is no
// cryptographic proof behind stableUserId anywhere in this protocol.
func (s *RoomService) DeleteAsCreator(connID string, req models.DeleteRoomRequest) error {
	room, err := s.rooms.FindByName(req.Room)
	if err != nil {
		return ErrRoomNotFound
	}
	if room.CreatorID != req.StableUserID {
		return ErrNotRoomCreator
	}

	deletedBy := req.StableUserID
	if conn, err := s.conns.Find(connID); err == nil && conn.DisplayName != "" {
		deletedBy = conn.DisplayName
	}
	now := time.Now()

	// The creator does not linger in limbo membership.
	s.rooms.RemoveMember(req.Room, req.StableUserID)

	// Detach every live connection before the room leaves the active map.
	for _, conn := range s.conns.InRoom(req.Room) {
		s.hub.Unsubscribe(conn.ID, req.Room)
		s.conns.SetRoom(conn.ID, "")
		s.presence.DropViewer(conn.ID, req.Room)
	}

	if err := s.rooms.MarkDeleted(req.Room, deletedBy, now); err != nil {
		return ErrRoomNotFound
	}

	notice := models.RoomDeletedNotice{Room: req.Room, DeletedBy: deletedBy, DeletedAt: now}
	s.hub.ToConn(connID, models.EventRoomDeletedByCreator, notice)

	members := s.rooms.Members(req.Room)
	for _, uid := range members {
		for _, conn := range s.conns.FindByUser(uid) {
			if conn.ID == connID {
				continue
			}
			s.hub.ToConn(conn.ID, models.EventRoomDeletedByCreator, notice)
		}
	}
	log.Printf("Room %q deleted by creator %s, %d members pending dismissal", req.Room, req.StableUserID, len(members))

	if len(members) == 0 {
		s.purgeRoom(req.Room)
	}
	return nil
}

// Dismiss acknowledges a creator-deletion. Once the last member has
// dismissed, the room and its history are purged. Dismissing a room the
// server no longer knows is acknowledged anyway so clients can always clear
// their local copy.
func (s *RoomService) Dismiss(connID string, req models.DismissRoomRequest) error {
	if _, err := s.rooms.FindDeleted(req.Room); err != nil {
		s.hub.ToConn(connID, models.EventRoomDismissed, models.RoomNotice{Room: req.Room})
		return nil
	}

	remaining, err := s.rooms.RemoveDeletedMember(req.Room, req.StableUserID)
	if err == nil && remaining == 0 {
		s.purgeRoom(req.Room)
	}

	s.hub.ToConn(connID, models.EventRoomDismissed, models.RoomNotice{Room: req.Room})
	return nil
}

// Disconnect clears live bookkeeping for a dropped connection. Permanent
// membership is untouched, which is what enables reconnect-and-resume.
func (s *RoomService) Disconnect(connID string) {
	conn, err := s.conns.Remove(connID)
	if err != nil {
		return
	}
	if conn.CurrentRoom == "" {
		return
	}

	roomName := conn.CurrentRoom
	live, adjErr := s.rooms.AdjustLive(roomName, -1)
	s.presence.DropViewer(connID, roomName)

	if adjErr == nil && live <= 0 && len(s.rooms.Members(roomName)) == 0 {
		s.destroyRoom(roomName)
		log.Printf("Connection %s disconnected from room %q", connID, roomName)
		return
	}

	s.hub.ToRoom(roomName, models.EventRoomUsers, models.RoomUsers{
		Room:  roomName,
		Users: OnlineUsers(s.conns, roomName),
	})
	log.Printf("Connection %s disconnected from room %q", connID, roomName)
}

// ListRooms backs the REST room listing.
func (s *RoomService) ListRooms() []models.RoomSummary {
	rooms := s.rooms.List()
	summaries := make([]models.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, models.RoomSummary{
			Name:        room.Name,
			OnlineCount: len(s.conns.InRoom(room.Name)),
			MemberCount: len(s.rooms.Members(room.Name)),
			HasPassword: room.PasswordHash != nil,
			CreatedAt:   room.CreatedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	return summaries
}

func (s *RoomService) generateRoomName() string {
	for {
		name := "room-" + uuid.NewString()[:8]
		if _, err := s.rooms.FindByName(name); err != nil {
			return name
		}
	}
}

func (s *RoomService) destroyRoom(name string) {
	s.rooms.Delete(name)
	s.messages.DeleteRoom(name)
	log.Printf("Room %q destroyed (no members, no live connections)", name)
}

func (s *RoomService) purgeRoom(name string) {
	s.rooms.PurgeDeleted(name)
	s.messages.DeleteRoom(name)
	log.Printf("Room %q purged from deletion limbo", name)
}

// OnlineUsers derives the room-level presence snapshot from the Connection
// Registry. Sorted by connection ID, which for ULIDs is join order.
func OnlineUsers(conns repository.ConnectionRepository, room string) []models.OnlineUser {
	live := conns.InRoom(room)
	users := make([]models.OnlineUser, 0, len(live))
	for _, c := range live {
		users = append(users, models.OnlineUser{
			ConnectionID: c.ID,
			StableUserID: c.StableUserID,
			DisplayName:  c.DisplayName,
		})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ConnectionID < users[j].ConnectionID })
	return users
}
