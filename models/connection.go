package models

// Connection is the server-side record of one live transport session. The ID
// is assigned at upgrade time and dies with the socket; StableUserID and
// DisplayName are filled in by the first createRoom/joinRoom the connection
// performs and survive across room switches.
type Connection struct {
	ID           string `json:"connectionId"`
	StableUserID string `json:"stableUserId"`
	DisplayName  string `json:"displayName"`
	CurrentRoom  string `json:"currentRoom,omitempty"`
}

// OnlineUser is the wire shape of one entry in a presence snapshot.
type OnlineUser struct {
	ConnectionID string `json:"connectionId"`
	StableUserID string `json:"stableUserId"`
	DisplayName  string `json:"displayName"`
}
