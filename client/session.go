package client

import (
	"encoding/json"
	"errors"
	"hash/fnv"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"roomchat-backend/models"
)

const (
	defaultTypingWindow = 2 * time.Second
	historyCap          = 50
)

var colorPalette = []string{"teal", "coral", "violet", "amber", "sky", "rose", "lime", "indigo"}

// Emitter is the outbound half of the transport. Implemented by Socket;
// anything that can push an event envelope to the server will do.
type Emitter interface {
	Emit(event string, payload any) error
}

// Identity is the persisted client identity: a generated stableUserId that
// survives reconnects, the last display name used, and a color tag for the UI.
type Identity struct {
	StableUserID string `json:"stableUserId"`
	DisplayName  string `json:"displayName"`
	ColorTag     string `json:"colorTag"`
}

// RoomMembership is the cached record of one joined room.
type RoomMembership struct {
	DisplayName string `json:"displayName"`
	IsCreator   bool   `json:"isCreator"`
}

// Session is the client-side reconciliation core. It owns the local
// projection of rooms, history, presence and typing state, mutated only by
// server-pushed events and by explicit local actions that mirror straight to
// the server. The projection is a read replica: optimistic updates are
// limited to typing and viewing, never message content.
type Session struct {
	mu      sync.Mutex
	store   Store
	emitter Emitter

	identity   Identity
	joined     map[string]RoomMembership
	lastViewed map[string]time.Time
	deleted    map[string]models.RoomDeletedNotice

	histories map[string][]models.Message
	online    map[string][]models.OnlineUser
	typing    map[string]map[string]models.UserTyping
	viewers   map[string][]models.OnlineUser

	// currentRoom is the room whose channel this connection is subscribed to
	// on the server; selectedRoom is the room on screen. Sitting on the home
	// screen means selectedRoom == "" while currentRoom keeps delivering.
	currentRoom  string
	selectedRoom string
	draft        string
	errBanner    string
	needsPass    bool

	pendingName   string
	pendingSelect bool

	typingTimer  *time.Timer
	typingRoom   string
	typingGen    uint64
	typingWindow time.Duration

	now func() time.Time
}

func NewSession(store Store, emitter Emitter) *Session {
	s := &Session{
		store:        store,
		emitter:      emitter,
		joined:       make(map[string]RoomMembership),
		lastViewed:   make(map[string]time.Time),
		deleted:      make(map[string]models.RoomDeletedNotice),
		histories:    make(map[string][]models.Message),
		online:       make(map[string][]models.OnlineUser),
		typing:       make(map[string]map[string]models.UserTyping),
		viewers:      make(map[string][]models.OnlineUser),
		typingWindow: defaultTypingWindow,
		now:          time.Now,
	}
	s.loadState()
	return s
}

func (s *Session) loadState() {
	if raw, ok := s.store.Get(keyIdentity); ok {
		if err := json.Unmarshal([]byte(raw), &s.identity); err != nil {
			log.Printf("Ignoring corrupt identity record: %v", err)
		}
	}
	if s.identity.StableUserID == "" {
		s.identity.StableUserID = uuid.NewString()
		s.identity.ColorTag = colorFor(s.identity.StableUserID)
		s.persistIdentity()
	}
	if raw, ok := s.store.Get(keyJoinedRooms); ok {
		if err := json.Unmarshal([]byte(raw), &s.joined); err != nil {
			log.Printf("Ignoring corrupt joined-rooms record: %v", err)
		}
		if s.joined == nil {
			s.joined = make(map[string]RoomMembership)
		}
	}
	if raw, ok := s.store.Get(keyLastViewed); ok {
		if err := json.Unmarshal([]byte(raw), &s.lastViewed); err != nil {
			log.Printf("Ignoring corrupt last-viewed record: %v", err)
		}
		if s.lastViewed == nil {
			s.lastViewed = make(map[string]time.Time)
		}
	}
}

// Identity returns the persisted client identity.
func (s *Session) Identity() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// JoinedRooms returns the cached room memberships.
func (s *Session) JoinedRooms() map[string]RoomMembership {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]RoomMembership, len(s.joined))
	for k, v := range s.joined {
		out[k] = v
	}
	return out
}

// SelectedRoom returns the room currently on screen, empty on the home screen.
func (s *Session) SelectedRoom() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedRoom
}

// ErrorBanner returns the pending error text and whether the server asked for
// a password.
func (s *Session) ErrorBanner() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errBanner, s.needsPass
}

// History returns the local copy of a room's message history.
func (s *Session) History(room string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.histories[room]...)
}

// OnlineUsers returns the last presence snapshot for a room.
func (s *Session) OnlineUsers(room string) []models.OnlineUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.OnlineUser(nil), s.online[room]...)
}

// Viewers returns the last active-viewer snapshot for a room.
func (s *Session) Viewers(room string) []models.OnlineUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.OnlineUser(nil), s.viewers[room]...)
}

// TypingUsers returns who is currently typing in a room.
func (s *Session) TypingUsers(room string) []models.UserTyping {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.UserTyping, 0, len(s.typing[room]))
	for _, t := range s.typing[room] {
		out = append(out, t)
	}
	return out
}

// DeletedNotice reports whether a joined room sits in deletion limbo.
func (s *Session) DeletedNotice(room string) (models.RoomDeletedNotice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.deleted[room]
	return n, ok
}

// UnreadCount derives the unread badge for a room purely from the history and
// the last-viewed stamp: foreign messages newer than the stamp.
func (s *Session) UnreadCount(room string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unreadLocked(room)
}

func (s *Session) unreadLocked(room string) int {
	viewedAt := s.lastViewed[room]
	count := 0
	for _, msg := range s.histories[room] {
		if msg.AuthorID != s.identity.StableUserID && msg.CreatedAt.After(viewedAt) {
			count++
		}
	}
	return count
}

// CreateRoom asks the server for a new room. An empty desiredName lets the
// server generate one.
func (s *Session) CreateRoom(desiredName, displayName, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingName = displayName
	s.pendingSelect = true
	return s.emitter.Emit(models.EventCreateRoom, models.CreateRoomRequest{
		DesiredName:  desiredName,
		DisplayName:  displayName,
		Password:     password,
		StableUserID: s.identity.StableUserID,
	})
}

// JoinRoom asks the server for membership in an existing room.
func (s *Session) JoinRoom(room, displayName, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joinLocked(room, displayName, password, true)
}

// RejoinRoom re-enters a cached room with the display name used before and no
// password, relying on the server's membership bypass.
func (s *Session) RejoinRoom(room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	membership, ok := s.joined[room]
	if !ok {
		return errors.New("not a member of room " + room)
	}
	return s.joinLocked(room, membership.DisplayName, "", true)
}

func (s *Session) joinLocked(room, displayName, password string, selectOnSuccess bool) error {
	s.pendingName = displayName
	s.pendingSelect = selectOnSuccess
	return s.emitter.Emit(models.EventJoinRoom, models.JoinRoomRequest{
		Room:         room,
		DisplayName:  displayName,
		Password:     password,
		StableUserID: s.identity.StableUserID,
	})
}

// GoHome returns to the room list. The connection stays subscribed to the
// room so messages keep arriving and the unread badge stays honest; only the
// chat-screen signal is withdrawn.
func (s *Session) GoHome() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selectedRoom == "" {
		s.errBanner, s.needsPass = "", false
		return
	}
	room := s.selectedRoom
	s.cancelTypingLocked(true)
	s.stampViewedLocked(room)
	s.emitter.Emit(models.EventLeaveChatView, models.ViewSignal{Room: room})
	s.selectedRoom = ""
	s.errBanner, s.needsPass = "", false
}

// EnterRoom puts a joined room on screen, resets its unread count and emits
// seen receipts for everything already in the local history.
func (s *Session) EnterRoom(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enterRoomLocked(room)
}

func (s *Session) enterRoomLocked(room string) {
	s.selectedRoom = room
	s.errBanner, s.needsPass = "", false
	s.stampViewedLocked(room)
	s.emitter.Emit(models.EventEnterChatView, models.ViewSignal{Room: room})
	s.markHistorySeenLocked(room)
}

// LeaveRoomPermanently gives up membership. Local removal happens on the
// server's leftRoomPermanently confirmation, not here.
func (s *Session) LeaveRoomPermanently(room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selectedRoom == room {
		s.cancelTypingLocked(true)
	}
	return s.emitter.Emit(models.EventLeaveRoomPermanently, models.LeaveRoomPermanentlyRequest{
		Room:         room,
		StableUserID: s.identity.StableUserID,
	})
}

// DeleteRoom tears the room down for everyone; only honored by the server
// when this user created it.
func (s *Session) DeleteRoom(room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitter.Emit(models.EventDeleteRoomAsCreator, models.DeleteRoomRequest{
		Room:         room,
		StableUserID: s.identity.StableUserID,
	})
}

// DismissRoom acknowledges a creator-deleted room so the server can purge it.
func (s *Session) DismissRoom(room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitter.Emit(models.EventDismissDeletedRoom, models.DismissRoomRequest{
		Room:         room,
		StableUserID: s.identity.StableUserID,
	})
}

// SetDraft mirrors the input box and fires the typing signal.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
	if text != "" && s.selectedRoom != "" {
		s.notifyTypingLocked(s.selectedRoom)
	}
}

// Draft returns the current input box contents.
func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// NotifyTyping emits isTyping=true and (re)arms the inactivity timer that
// will emit the matching false. Retriggering replaces the timer, never
// stacks another one.
func (s *Session) NotifyTyping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selectedRoom != "" {
		s.notifyTypingLocked(s.selectedRoom)
	}
}

func (s *Session) notifyTypingLocked(room string) {
	s.emitter.Emit(models.EventTyping, models.TypingSignal{Room: room, IsTyping: true})
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.typingRoom = room
	s.typingGen++
	gen := s.typingGen
	s.typingTimer = time.AfterFunc(s.typingWindow, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		// A retrigger replaced this timer; let the replacement own the false.
		if s.typingGen != gen || s.typingRoom != room {
			return
		}
		s.typingTimer = nil
		s.typingRoom = ""
		s.emitter.Emit(models.EventTyping, models.TypingSignal{Room: room, IsTyping: false})
	})
}

func (s *Session) cancelTypingLocked(emitStop bool) {
	s.typingGen++
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	if s.typingRoom != "" && emitStop {
		s.emitter.Emit(models.EventTyping, models.TypingSignal{Room: s.typingRoom, IsTyping: false})
	}
	s.typingRoom = ""
}

// SendMessage ships the draft (or explicit body) to the server. The message
// is not appended locally; it shows up when the server echoes it back, which
// is what rules out duplicate entries from self-broadcast.
func (s *Session) SendMessage(body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	body = strings.TrimSpace(body)
	if body == "" || s.selectedRoom == "" {
		return nil
	}

	name := s.identity.DisplayName
	if m, ok := s.joined[s.selectedRoom]; ok && m.DisplayName != "" {
		name = m.DisplayName
	}

	msg := models.Message{
		ID:         uuid.NewString(),
		Room:       s.selectedRoom,
		AuthorID:   s.identity.StableUserID,
		AuthorName: name,
		Body:       body,
		CreatedAt:  s.now(),
	}
	if err := s.emitter.Emit(models.EventSendMessage, msg); err != nil {
		return err
	}
	s.draft = ""
	s.cancelTypingLocked(true)
	return nil
}

// Resync replays the cached joined-room list as joinRoom calls after a
// (re)connect, restoring server-side subscription state. The room that was
// live before goes last so the connection ends up subscribed to it again.
func (s *Session) Resync() {
	s.mu.Lock()
	defer s.mu.Unlock()

	last := s.currentRoom
	for room, membership := range s.joined {
		if room == last {
			continue
		}
		if _, gone := s.deleted[room]; gone {
			continue
		}
		s.joinLocked(room, membership.DisplayName, "", false)
	}
	if membership, ok := s.joined[last]; ok {
		s.joinLocked(last, membership.DisplayName, "", false)
	}
	if s.selectedRoom != "" {
		if _, ok := s.joined[s.selectedRoom]; ok {
			s.emitter.Emit(models.EventEnterChatView, models.ViewSignal{Room: s.selectedRoom})
		}
	}
}

// HandleEvent is the single reconciliation entry point for server pushes.
// Unknown events are ignored.
func (s *Session) HandleEvent(event string, data json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch event {
	case models.EventJoinSuccess:
		var p models.JoinSuccess
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		s.applyJoinSuccess(p)

	case models.EventRoomError:
		var p models.RoomError
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		s.errBanner = p.Message
		s.needsPass = p.NeedsPassword
		s.pendingSelect = false

	case models.EventRoomUsers:
		var p models.RoomUsers
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		s.online[p.Room] = p.Users
		s.pruneTypingLocked(p.Room, p.Users)

	case models.EventReceiveMessage:
		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		s.applyMessage(msg)

	case models.EventLoadHistory:
		var p models.HistoryPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		s.histories[p.Room] = p.Messages
		if s.selectedRoom == p.Room {
			s.stampViewedLocked(p.Room)
			s.markHistorySeenLocked(p.Room)
		}

	case models.EventUpdateMessageStatus:
		var p models.SeenUpdate
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		s.applySeenUpdate(p)

	case models.EventUserTyping:
		var p models.UserTyping
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.IsTyping {
			if s.typing[p.Room] == nil {
				s.typing[p.Room] = make(map[string]models.UserTyping)
			}
			s.typing[p.Room][p.ConnectionID] = p
		} else {
			delete(s.typing[p.Room], p.ConnectionID)
		}

	case models.EventActiveViewersUpdate:
		var p models.ActiveViewersUpdate
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		s.viewers[p.Room] = p.Viewers

	case models.EventLeftRoomPermanently:
		var p models.RoomNotice
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		s.removeRoomLocked(p.Room)

	case models.EventRoomDeletedByCreator:
		var p models.RoomDeletedNotice
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		s.deleted[p.Room] = p
		if s.selectedRoom == p.Room {
			s.selectedRoom = ""
		}
		if s.currentRoom == p.Room {
			s.currentRoom = ""
		}

	case models.EventRoomDismissed:
		var p models.RoomNotice
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		delete(s.deleted, p.Room)
		s.removeRoomLocked(p.Room)
	}

	return nil
}

func (s *Session) applyJoinSuccess(p models.JoinSuccess) {
	name := s.pendingName
	if name == "" {
		if m, ok := s.joined[p.RoomName]; ok {
			name = m.DisplayName
		} else {
			name = s.identity.DisplayName
		}
	}

	s.joined[p.RoomName] = RoomMembership{DisplayName: name, IsCreator: p.IsCreator}
	s.persistJoined()
	if name != "" && name != s.identity.DisplayName {
		s.identity.DisplayName = name
		s.persistIdentity()
	}

	s.online[p.RoomName] = p.OnlineUsers
	s.currentRoom = p.RoomName
	s.errBanner, s.needsPass = "", false

	if s.pendingSelect {
		s.pendingSelect = false
		s.enterRoomLocked(p.RoomName)
	}
	s.pendingName = ""
}

func (s *Session) applyMessage(msg models.Message) {
	history := s.histories[msg.Room]
	for _, existing := range history {
		if existing.ID == msg.ID {
			return
		}
	}
	history = append(history, msg)
	if len(history) > historyCap {
		history = history[len(history)-historyCap:]
	}
	s.histories[msg.Room] = history

	if s.selectedRoom == msg.Room && msg.AuthorID != s.identity.StableUserID {
		s.stampViewedLocked(msg.Room)
		s.emitter.Emit(models.EventMessageSeen, models.SeenRequest{
			MessageID:    msg.ID,
			Room:         msg.Room,
			SeenByUserID: s.identity.StableUserID,
		})
	}
}

func (s *Session) applySeenUpdate(p models.SeenUpdate) {
	history := s.histories[p.Room]
	for i := range history {
		if history[i].ID != p.MessageID {
			continue
		}
		if history[i].SeenBy == nil {
			history[i].SeenBy = make(map[string]models.SeenRecord)
		}
		// Seen entries only grow; an existing stamp is never rewritten.
		if _, ok := history[i].SeenBy[p.SeenBy]; !ok {
			history[i].SeenBy[p.SeenBy] = models.SeenRecord{DisplayName: p.DisplayName, SeenAt: p.SeenAt}
		}
		return
	}
}

// markHistorySeenLocked emits seen receipts for every foreign message in the
// local history that has no stamp from this user yet. The server is
// idempotent, so a receipt that races its own echo is harmless.
func (s *Session) markHistorySeenLocked(room string) {
	for _, msg := range s.histories[room] {
		if msg.AuthorID == s.identity.StableUserID {
			continue
		}
		if _, seen := msg.SeenBy[s.identity.StableUserID]; seen {
			continue
		}
		s.emitter.Emit(models.EventMessageSeen, models.SeenRequest{
			MessageID:    msg.ID,
			Room:         room,
			SeenByUserID: s.identity.StableUserID,
		})
	}
}

// stampViewedLocked moves the last-viewed watermark to at least the newest
// message in history, so the unread derivation lands on zero even when the
// server clock runs ahead of ours.
func (s *Session) stampViewedLocked(room string) {
	v := s.now()
	if history := s.histories[room]; len(history) > 0 {
		if latest := history[len(history)-1].CreatedAt; latest.After(v) {
			v = latest
		}
	}
	s.lastViewed[room] = v
	s.persistViewed()
}

func (s *Session) pruneTypingLocked(room string, online []models.OnlineUser) {
	set := s.typing[room]
	if len(set) == 0 {
		return
	}
	present := make(map[string]bool, len(online))
	for _, u := range online {
		present[u.ConnectionID] = true
	}
	for connID := range set {
		if !present[connID] {
			delete(set, connID)
		}
	}
}

func (s *Session) removeRoomLocked(room string) {
	delete(s.joined, room)
	delete(s.histories, room)
	delete(s.online, room)
	delete(s.typing, room)
	delete(s.viewers, room)
	delete(s.lastViewed, room)
	s.persistJoined()
	s.persistViewed()
	if s.selectedRoom == room {
		s.selectedRoom = ""
	}
	if s.currentRoom == room {
		s.currentRoom = ""
	}
	if s.typingRoom == room {
		s.cancelTypingLocked(false)
	}
}

func (s *Session) persistIdentity() {
	if raw, err := json.Marshal(s.identity); err == nil {
		s.store.Set(keyIdentity, string(raw))
	}
}

func (s *Session) persistJoined() {
	if raw, err := json.Marshal(s.joined); err == nil {
		s.store.Set(keyJoinedRooms, string(raw))
	}
}

func (s *Session) persistViewed() {
	if raw, err := json.Marshal(s.lastViewed); err == nil {
		s.store.Set(keyLastViewed, string(raw))
	}
}

func colorFor(id string) string {
	h := fnv.New32a()
	h.Write([]byte(id))
	return colorPalette[h.Sum32()%uint32(len(colorPalette))]
}
