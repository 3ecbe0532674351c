package handlers

import (
	"encoding/json"
	"sync"
	"testing"

	"roomchat-backend/models"
	"roomchat-backend/repository"
	"roomchat-backend/services"
)

// fakeHub satisfies services.Broadcaster and records deliveries, so the full
// handler-to-service path runs without a websocket.
type fakeHub struct {
	mu   sync.Mutex
	subs map[string]map[string]bool
	sent []sentEvent
}

type sentEvent struct {
	ConnID  string
	Room    string
	Event   string
	Payload any
}

func newFakeHub() *fakeHub {
	return &fakeHub{subs: make(map[string]map[string]bool)}
}

func (f *fakeHub) Subscribe(connID, room string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs[room] == nil {
		f.subs[room] = make(map[string]bool)
	}
	f.subs[room][connID] = true
}

func (f *fakeHub) Unsubscribe(connID, room string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs[room], connID)
}

func (f *fakeHub) ToConn(connID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEvent{ConnID: connID, Event: event, Payload: payload})
}

func (f *fakeHub) ToRoom(room, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEvent{Room: room, Event: event, Payload: payload})
}

func (f *fakeHub) ToRoomExcept(room, exceptConnID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEvent{Room: room, Event: event, Payload: payload})
}

func (f *fakeHub) connEvents(connID, event string) []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentEvent
	for _, e := range f.sent {
		if e.ConnID == connID && e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func newTestHandler() (*EventHandler, *fakeHub, *repository.InMemoryRoomRepo) {
	hub := newFakeHub()
	rooms := repository.NewInMemoryRoomRepo()
	conns := repository.NewInMemoryConnectionRepo()
	messages := repository.NewInMemoryMessageRepo(50)
	presence := services.NewPresenceService(conns, hub)
	roomSvc := services.NewRoomService(rooms, conns, messages, presence, hub)
	msgSvc := services.NewMessageService(messages, rooms, conns, hub, 1000)
	return NewEventHandler(roomSvc, msgSvc, presence, conns, hub), hub, rooms
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestHandleEventCreateRoomFlow(t *testing.T) {
	h, hub, rooms := newTestHandler()
	h.HandleConnect("c1")

	h.HandleEvent("c1", models.EventCreateRoom, raw(t, models.CreateRoomRequest{
		DesiredName:  "team",
		DisplayName:  "Alice",
		StableUserID: "u-alice",
	}))

	if got := hub.connEvents("c1", models.EventJoinSuccess); len(got) != 1 {
		t.Fatalf("joinSuccess count = %d, want 1", len(got))
	}
	if _, err := rooms.FindByName("team"); err != nil {
		t.Errorf("room not created: %v", err)
	}
}

func TestHandleEventErrorTaxonomy(t *testing.T) {
	h, hub, _ := newTestHandler()
	h.HandleConnect("c1")
	h.HandleConnect("c2")
	h.HandleEvent("c1", models.EventCreateRoom, raw(t, models.CreateRoomRequest{
		DesiredName: "team", DisplayName: "Alice", StableUserID: "u-alice", Password: "pw",
	}))

	tests := []struct {
		name      string
		event     string
		payload   any
		wantMsg   string
		needsPass bool
	}{
		{
			name:    "join unknown room",
			event:   models.EventJoinRoom,
			payload: models.JoinRoomRequest{Room: "ghost", DisplayName: "Bob", StableUserID: "u-bob"},
			wantMsg: "room not found",
		},
		{
			name:      "wrong password prompts for one",
			event:     models.EventJoinRoom,
			payload:   models.JoinRoomRequest{Room: "team", DisplayName: "Bob", StableUserID: "u-bob", Password: "nope"},
			wantMsg:   "incorrect password",
			needsPass: true,
		},
		{
			name:    "duplicate name",
			event:   models.EventCreateRoom,
			payload: models.CreateRoomRequest{DesiredName: "team", DisplayName: "Bob", StableUserID: "u-bob"},
			wantMsg: "a room with that name is already active",
		},
		{
			name:    "delete as non-creator",
			event:   models.EventDeleteRoomAsCreator,
			payload: models.DeleteRoomRequest{Room: "team", StableUserID: "u-bob"},
			wantMsg: "only the room creator can delete the room",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(hub.connEvents("c2", models.EventRoomError))
			h.HandleEvent("c2", tt.event, raw(t, tt.payload))

			errs := hub.connEvents("c2", models.EventRoomError)
			if len(errs) != before+1 {
				t.Fatalf("roomError count = %d, want %d", len(errs), before+1)
			}
			re := errs[len(errs)-1].Payload.(models.RoomError)
			if re.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", re.Message, tt.wantMsg)
			}
			if re.NeedsPassword != tt.needsPass {
				t.Errorf("needsPassword = %v, want %v", re.NeedsPassword, tt.needsPass)
			}
		})
	}
}

func TestHandleEventDropsGarbage(t *testing.T) {
	h, hub, _ := newTestHandler()
	h.HandleConnect("c1")

	// Undecodable payload and unknown event both vanish without a reply.
	h.HandleEvent("c1", models.EventJoinRoom, json.RawMessage(`{"room":`))
	h.HandleEvent("c1", "selfDestruct", raw(t, map[string]string{"room": "team"}))

	// An empty message body is dropped silently, not surfaced as roomError.
	h.HandleEvent("c1", models.EventCreateRoom, raw(t, models.CreateRoomRequest{
		DesiredName: "team", DisplayName: "Alice", StableUserID: "u-alice",
	}))
	h.HandleEvent("c1", models.EventSendMessage, raw(t, models.Message{Room: "team", AuthorID: "u-alice", Body: "   "}))

	if got := hub.connEvents("c1", models.EventRoomError); len(got) != 0 {
		t.Errorf("roomError count = %d, want 0", len(got))
	}
}

func TestHandleDisconnectClearsLiveState(t *testing.T) {
	h, _, rooms := newTestHandler()
	h.HandleConnect("c1")
	h.HandleEvent("c1", models.EventCreateRoom, raw(t, models.CreateRoomRequest{
		DesiredName: "team", DisplayName: "Alice", StableUserID: "u-alice",
	}))

	h.HandleDisconnect("c1")

	room, err := rooms.FindByName("team")
	if err != nil {
		t.Fatalf("room destroyed by disconnect: %v", err)
	}
	if room.LiveConnections != 0 {
		t.Errorf("LiveConnections = %d, want 0", room.LiveConnections)
	}
	if !rooms.IsMember("team", "u-alice") {
		t.Error("membership must survive disconnect")
	}

	// Repeat disconnects for the same connection are no-ops.
	h.HandleDisconnect("c1")
	if room.LiveConnections != 0 {
		t.Errorf("LiveConnections after repeat disconnect = %d, want 0", room.LiveConnections)
	}
}
