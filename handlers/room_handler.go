package handlers

import (
	"net/http"

	"roomchat-backend/services"
	"roomchat-backend/ws"
)

// RoomHandler exposes the read-only HTTP surface next to the websocket
// endpoint: the room listing the home screen renders, and the upgrade itself.
type RoomHandler struct {
	hub     *ws.Hub
	roomSvc *services.RoomService
}

func NewRoomHandler(hub *ws.Hub, rs *services.RoomService) *RoomHandler {
	return &RoomHandler{hub: hub, roomSvc: rs}
}

// List returns active rooms with presence counts. Passwords never appear
// here, only whether one is set.
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondWithError(w, "Method not allowed", "Use GET method", http.StatusMethodNotAllowed)
		return
	}
	respondWithSuccess(w, h.roomSvc.ListRooms())
}

// WS upgrades the connection and hands it to the hub.
func (h *RoomHandler) WS(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeWS(w, r)
}
