package models

import "time"

// Event names are the protocol contract shared by server and client.
const (
	// client -> server
	EventCreateRoom           = "createRoom"
	EventJoinRoom             = "joinRoom"
	EventLeaveRoom            = "leaveRoom"
	EventLeaveRoomPermanently = "leaveRoomPermanently"
	EventDeleteRoomAsCreator  = "deleteRoomAsCreator"
	EventDismissDeletedRoom   = "dismissDeletedRoom"
	EventSendMessage          = "sendMessage"
	EventMessageSeen          = "messageSeen"
	EventTyping               = "typing"
	EventEnterChatView        = "enterChatView"
	EventLeaveChatView        = "leaveChatView"

	// server -> client
	EventJoinSuccess          = "joinSuccess"
	EventRoomError            = "roomError"
	EventRoomUsers            = "roomUsers"
	EventReceiveMessage       = "receiveMessage"
	EventLoadHistory          = "loadHistory"
	EventUpdateMessageStatus  = "updateMessageStatus"
	EventUserTyping           = "userTyping"
	EventActiveViewersUpdate  = "activeViewersUpdate"
	EventLeftRoomPermanently  = "leftRoomPermanently"
	EventRoomDeletedByCreator = "roomDeletedByCreator"
	EventRoomDismissed        = "roomDismissed"
)

type CreateRoomRequest struct {
	DesiredName  string `json:"desiredName,omitempty"`
	DisplayName  string `json:"displayName"`
	Password     string `json:"password,omitempty"`
	StableUserID string `json:"stableUserId"`
}

type JoinRoomRequest struct {
	Room         string `json:"room"`
	DisplayName  string `json:"displayName"`
	Password     string `json:"password,omitempty"`
	StableUserID string `json:"stableUserId"`
}

type LeaveRoomRequest struct {
	Room string `json:"room"`
}

type LeaveRoomPermanentlyRequest struct {
	Room         string `json:"room"`
	StableUserID string `json:"stableUserId"`
}

type DeleteRoomRequest struct {
	Room         string `json:"room"`
	StableUserID string `json:"stableUserId"`
}

type DismissRoomRequest struct {
	Room         string `json:"room"`
	StableUserID string `json:"stableUserId"`
}

type SeenRequest struct {
	MessageID    string `json:"messageId"`
	Room         string `json:"room"`
	SeenByUserID string `json:"seenByStableUserId"`
}

type TypingSignal struct {
	Room     string `json:"room"`
	IsTyping bool   `json:"isTyping"`
}

type ViewSignal struct {
	Room string `json:"room"`
}

type JoinSuccess struct {
	RoomName    string       `json:"roomName"`
	IsCreator   bool         `json:"isCreator"`
	OnlineUsers []OnlineUser `json:"onlineUsers"`
}

type RoomError struct {
	Message       string `json:"message"`
	NeedsPassword bool   `json:"needsPassword,omitempty"`
}

type RoomUsers struct {
	Room  string       `json:"room"`
	Users []OnlineUser `json:"users"`
}

// HistoryPayload carries the room at top level so an empty history still
// tells the client which room it belongs to.
type HistoryPayload struct {
	Room     string    `json:"room"`
	Messages []Message `json:"messages"`
}

type SeenUpdate struct {
	MessageID   string    `json:"messageId"`
	Room        string    `json:"room"`
	SeenBy      string    `json:"seenBy"`
	DisplayName string    `json:"displayName"`
	SeenAt      time.Time `json:"seenAt"`
}

type UserTyping struct {
	Room         string `json:"room"`
	ConnectionID string `json:"connectionId"`
	DisplayName  string `json:"displayName"`
	IsTyping     bool   `json:"isTyping"`
}

type ActiveViewersUpdate struct {
	Room    string       `json:"room"`
	Viewers []OnlineUser `json:"viewers"`
}

type RoomNotice struct {
	Room string `json:"room"`
}

type RoomDeletedNotice struct {
	Room      string    `json:"room"`
	DeletedBy string    `json:"deletedBy"`
	DeletedAt time.Time `json:"deletedAt"`
}
