package models

import "time"

type Room struct {
	Name            string
	PasswordHash    []byte
	CreatorID       string
	Members         map[string]bool // stableUserId -> member, independent of connectivity
	LiveConnections int
	Deletion        *RoomDeletion
	CreatedAt       time.Time
}

// RoomDeletion marks a room torn down by its creator but still held in limbo
// until every remaining member has dismissed it.
type RoomDeletion struct {
	DeletedByName string    `json:"deletedBy"`
	DeletedAt     time.Time `json:"deletedAt"`
}

// RoomSummary is the REST listing shape. Password hashes never leave the server.
type RoomSummary struct {
	Name        string    `json:"name"`
	OnlineCount int       `json:"onlineCount"`
	MemberCount int       `json:"memberCount"`
	HasPassword bool      `json:"hasPassword"`
	CreatedAt   time.Time `json:"createdAt"`
}
