package handlers

import (
	"encoding/json"
	"errors"
	"log"

	"roomchat-backend/models"
	"roomchat-backend/repository"
	"roomchat-backend/services"
)

// EventHandler routes decoded protocol events to the services. It runs
// entirely on the hub's dispatch goroutine.
type EventHandler struct {
	rooms    *services.RoomService
	messages *services.MessageService
	presence *services.PresenceService
	conns    repository.ConnectionRepository
	hub      services.Broadcaster
}

func NewEventHandler(rs *services.RoomService, ms *services.MessageService, ps *services.PresenceService, cr repository.ConnectionRepository, hub services.Broadcaster) *EventHandler {
	return &EventHandler{rooms: rs, messages: ms, presence: ps, conns: cr, hub: hub}
}

func (h *EventHandler) HandleConnect(connID string) {
	h.conns.Add(&models.Connection{ID: connID})
}

func (h *EventHandler) HandleDisconnect(connID string) {
	h.rooms.Disconnect(connID)
}

// HandleEvent decodes and dispatches one client event. Unknown events and
// undecodable payloads are dropped without a reply; only the room-error
// taxonomy goes back to the originating connection.
func (h *EventHandler) HandleEvent(connID, event string, data json.RawMessage) {
	switch event {
	case models.EventCreateRoom:
		var req models.CreateRoomRequest
		if !decode(connID, event, data, &req) {
			return
		}
		h.report(connID, h.rooms.Create(connID, req))

	case models.EventJoinRoom:
		var req models.JoinRoomRequest
		if !decode(connID, event, data, &req) {
			return
		}
		h.report(connID, h.rooms.Join(connID, req))

	case models.EventLeaveRoom:
		var req models.LeaveRoomRequest
		if !decode(connID, event, data, &req) {
			return
		}
		h.rooms.LeaveTransient(connID, req.Room)

	case models.EventLeaveRoomPermanently:
		var req models.LeaveRoomPermanentlyRequest
		if !decode(connID, event, data, &req) {
			return
		}
		h.report(connID, h.rooms.LeavePermanently(connID, req))

	case models.EventDeleteRoomAsCreator:
		var req models.DeleteRoomRequest
		if !decode(connID, event, data, &req) {
			return
		}
		h.report(connID, h.rooms.DeleteAsCreator(connID, req))

	case models.EventDismissDeletedRoom:
		var req models.DismissRoomRequest
		if !decode(connID, event, data, &req) {
			return
		}
		h.rooms.Dismiss(connID, req)

	case models.EventSendMessage:
		var msg models.Message
		if !decode(connID, event, data, &msg) {
			return
		}
		if err := h.messages.Send(connID, msg); err != nil {
			// Bad message bodies are dropped silently; only a dead room is
			// worth a banner on the sender's side.
			if errors.Is(err, services.ErrRoomNotFound) {
				h.report(connID, err)
			} else {
				log.Printf("Dropped message from connection %s: %v", connID, err)
			}
		}

	case models.EventMessageSeen:
		var req models.SeenRequest
		if !decode(connID, event, data, &req) {
			return
		}
		h.messages.MarkSeen(connID, req)

	case models.EventTyping:
		var sig models.TypingSignal
		if !decode(connID, event, data, &sig) {
			return
		}
		h.presence.Typing(connID, sig)

	case models.EventEnterChatView:
		var sig models.ViewSignal
		if !decode(connID, event, data, &sig) {
			return
		}
		h.presence.EnterView(connID, sig.Room)

	case models.EventLeaveChatView:
		var sig models.ViewSignal
		if !decode(connID, event, data, &sig) {
			return
		}
		h.presence.LeaveView(connID, sig.Room)

	default:
		log.Printf("Connection %s sent unknown event %q, ignoring", connID, event)
	}
}

// report sends room-taxonomy failures back to the acting connection as a
// roomError; anything else is a handler bug or a hostile client, logged only.
func (h *EventHandler) report(connID string, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrRoomNotFound),
		errors.Is(err, services.ErrRoomNameTaken),
		errors.Is(err, services.ErrNotRoomCreator):
		h.hub.ToConn(connID, models.EventRoomError, models.RoomError{Message: err.Error()})
	case errors.Is(err, services.ErrIncorrectPassword):
		h.hub.ToConn(connID, models.EventRoomError, models.RoomError{Message: err.Error(), NeedsPassword: true})
	default:
		log.Printf("Event from connection %s failed: %v", connID, err)
	}
}

func decode(connID, event string, data json.RawMessage, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Printf("Connection %s sent undecodable %s payload, ignoring: %v", connID, event, err)
		return false
	}
	return true
}
