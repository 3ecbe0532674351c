package services

import "errors"

// Wire-visible error taxonomy. These are reported to the originating
// connection only, as roomError payloads; anything else is logged and dropped.
var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomNameTaken     = errors.New("a room with that name is already active")
	ErrIncorrectPassword = errors.New("incorrect password")

	ErrNotRoomCreator = errors.New("only the room creator can delete the room")
)
